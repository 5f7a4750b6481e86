// Package user provisions console accounts, lists them for the roles that manage
// them, blocks them, and resolves student identifiers to contact emails.
package user

import (
	"encoding/json"
	"time"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/role"
)

// StudentRole is the claim of accounts used by the mobile app. It is not a console role.
const StudentRole = "student"

// profile document fields
const (
	fieldEmail       = "email"
	fieldUsername    = "username"
	fieldName        = "name"
	fieldRole        = "role"
	fieldSections    = "sections"
	fieldCreatedAt   = "createdAt"
	fieldUpdatedAt   = "updatedAt"
	fieldBlockInfo   = "blockInfo"
	fieldIsBlocked   = "isBlocked"
	fieldReason      = "reason"
	fieldBlockedBy   = "blockedBy"
	fieldBlockedAt   = "blockedAt"
	fieldBlockReason = "blockReason"
)

// Section is a program section assignment.
type Section struct {
	Year        string `json:"year"`
	ProgramCode string `json:"programCode"`
	Section     string `json:"section"`
}

// UnmarshalJSON accepts string or numeric values for every field.
func (s *Section) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Section{
		Year:        core.StringField(raw, "year"),
		ProgramCode: core.StringField(raw, "programCode"),
		Section:     core.StringField(raw, "section"),
	}
	return nil
}

func (s Section) complete() bool {
	return s.Year != "" && s.ProgramCode != "" && s.Section != ""
}

func (s Section) data() map[string]interface{} {
	return map[string]interface{}{"year": s.Year, "programCode": s.ProgramCode, "section": s.Section}
}

// NormalizeSections trims every field and drops the sections missing any of them.
func NormalizeSections(sections []Section) []Section {
	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		s = Section{
			Year:        core.CleanString(s.Year),
			ProgramCode: core.CleanString(s.ProgramCode),
			Section:     core.CleanString(s.Section),
		}
		if s.complete() {
			out = append(out, s)
		}
	}
	return out
}

type (
	// NewAccount is the input of a console account creation.
	NewAccount struct {
		Email       string    `json:"email" validate:"required,shallowemail"`
		Username    string    `json:"username" validate:"notblank"`
		Role        string    `json:"role"`
		Sections    []Section `json:"sections"`
		CallbackURL string    `json:"callbackUrl" validate:"omitempty,url"`
	}

	// ProvisionRequest is the input of an account provisioned with a known password.
	ProvisionRequest struct {
		Email     string `json:"email" validate:"required,shallowemail"`
		Password  string `json:"password" validate:"required"`
		StudentID string `json:"studentId"`
		Name      string `json:"name"`
		Role      string `json:"role"`
	}

	ProvisionResult struct {
		UID  string `json:"uid"`
		Role string `json:"role"`
	}

	// ManagedUser is a console account as listed to the roles managing it.
	ManagedUser struct {
		UID           string     `json:"uid"`
		Email         string     `json:"email"`
		DisplayName   string     `json:"displayName"`
		Role          role.Role  `json:"role"`
		Disabled      bool       `json:"disabled"`
		EmailVerified bool       `json:"emailVerified"`
		CreatedAt     time.Time  `json:"createdAt"`
		LastLogin     *time.Time `json:"lastLogin"`
	}

	// BlockRequest blocks or unblocks the account uid.
	BlockRequest struct {
		UID     string `json:"uid" validate:"notblank"`
		Blocked bool   `json:"blocked"`
		Reason  string `json:"reason" validate:"max=500"`
	}

	// Block describes why and by whom an account is blocked.
	Block struct {
		Reason    string `json:"reason"`
		BlockedBy string `json:"blockedBy"`
	}

	// LookupResult is the outcome of an identifier lookup.
	// Block is set when the account is blocked; Email is then never set.
	LookupResult struct {
		Email *string
		Block *Block
	}
)

// inviteData is the data of the account_invite_* email templates.
type inviteData struct {
	Name      string
	Email     string
	Link      string
	ExpiresIn string
	Sections  []Section
}
