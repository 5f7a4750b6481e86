// Package role maps raw role claims to the administrative roles of the console
// and encodes which roles each of them may create and see.
package role

import "strings"

type Role string

// Roles
const (
	Admin       Role = "admin"
	Coordinator Role = "coordinator"
	Adviser     Role = "adviser"
)

// legacy claim values still found on older identities
var aliases = map[string]Role{
	"super_admin": Admin,
}

var (
	// Roles lists the roles with their display names, highest first.
	Roles = []Info{
		{Name: "Administrator", Value: Admin},
		{Name: "OJT Coordinator", Value: Coordinator},
		{Name: "OJT Adviser", Value: Adviser},
	}

	creatable = map[Role][]Role{
		Admin:       {Coordinator, Adviser},
		Coordinator: {Adviser},
		Adviser:     nil,
	}

	visible = map[Role][]Role{
		Admin:       {Admin, Coordinator, Adviser},
		Coordinator: {Adviser},
		Adviser:     nil,
	}
)

type Info struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

// Normalize trims and lowers raw and maps legacy aliases.
// It reports false for empty or unrecognized claims; those never default to a role.
func Normalize(raw string) (Role, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if r, ok := aliases[s]; ok {
		return r, true
	}
	switch r := Role(s); r {
	case Admin, Coordinator, Adviser:
		return r, true
	}
	return "", false
}

// FromClaim normalizes a claim value of any type; non-string claims are not roles.
func FromClaim(claim interface{}) (Role, bool) {
	s, ok := claim.(string)
	if !ok {
		return "", false
	}
	return Normalize(s)
}

// CanCreate reports whether caller may create an account with the target role.
func CanCreate(caller, target Role) bool {
	return contains(creatable[caller], target)
}

// CreatableBy returns the roles caller may create.
func CreatableBy(caller Role) []Role {
	return append([]Role(nil), creatable[caller]...)
}

// CanSee reports whether caller may list accounts holding the target role.
func CanSee(caller, target Role) bool {
	return contains(visible[caller], target)
}

// VisibleTo returns the roles whose accounts caller may list.
func VisibleTo(caller Role) []Role {
	return append([]Role(nil), visible[caller]...)
}

func (r Role) String() string { return string(r) }

func contains(roles []Role, target Role) bool {
	for _, r := range roles {
		if r == target {
			return true
		}
	}
	return false
}
