// Package authz is the gate every privileged operation passes before any side effect:
// the caller must be authenticated, must carry a valid role claim, and that role must
// be allowed to run the operation. The checks always run in that order.
package authz

import (
	"strings"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/role"
)

// Caller is the verified identity behind a request.
type Caller struct {
	UID   string
	Email string
	// RoleClaim is the raw, not yet normalized, role custom claim.
	RoleClaim string
}

// System is the caller used by trusted operator tooling.
func System() *Caller {
	return &Caller{UID: "system", RoleClaim: string(role.Admin)}
}

func (c *Caller) Person() core.Person {
	if c == nil {
		return core.Person{}
	}
	return core.Person{ID: c.UID, Email: c.Email}
}

// RequireCaller fails with UNAUTHENTICATED when there is no verified caller.
func RequireCaller(c *Caller) error {
	if c == nil || strings.TrimSpace(c.UID) == "" {
		return core.NewError(core.KindUnauthenticated, "authentication required")
	}
	return nil
}

// CallerRole authenticates c and returns its normalized role.
func CallerRole(c *Caller) (role.Role, error) {
	if err := RequireCaller(c); err != nil {
		return "", err
	}
	r, ok := role.Normalize(c.RoleClaim)
	if !ok {
		return "", core.NewError(core.KindPermissionDenied, "missing role claim")
	}
	return r, nil
}

// RequireAnyRole checks that c holds any console role.
func RequireAnyRole(c *Caller) (role.Role, error) {
	return CallerRole(c)
}

// RequireRole checks that c holds one of the allowed roles for the named operation.
func RequireRole(c *Caller, operation string, allowed ...role.Role) (role.Role, error) {
	r, err := CallerRole(c)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if r == a {
			return r, nil
		}
	}
	return "", core.NewError(core.KindPermissionDenied, "%s requires one of the roles: %s", operation, joinRoles(allowed))
}

// RequireCanCreate checks that c may create an account with the target role.
// A target that is not a role at all is an INVALID_ARGUMENT, reported only after the caller was authorized.
func RequireCanCreate(c *Caller, rawTarget string) (caller role.Role, target role.Role, err error) {
	caller, err = CallerRole(c)
	if err != nil {
		return "", "", err
	}
	creatable := role.CreatableBy(caller)
	if len(creatable) == 0 {
		return "", "", core.NewError(core.KindPermissionDenied, "role %s cannot create accounts", caller)
	}
	target, ok := role.Normalize(rawTarget)
	if !ok {
		return "", "", core.NewError(core.KindInvalidArgument, "invalid role %q; expected one of: %s", rawTarget, joinRoles(creatable))
	}
	if !role.CanCreate(caller, target) {
		return "", "", core.NewError(core.KindPermissionDenied, "role %s cannot create %s accounts", caller, target)
	}
	return caller, target, nil
}

func joinRoles(roles []role.Role) string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}
