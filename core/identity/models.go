// Package identity is the identity provider: it issues and verifies user credentials
// and carries the custom role claims of each identity.
package identity

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// errors
	ErrNotFound           = errors.New("identity not found")
	ErrEmailExists        = errors.New("the email address is already in use by another account")
	ErrInvalidEmail       = errors.New("the email address is improperly formatted")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDisabled           = errors.New("account disabled")
	ErrPasswordNotSet     = errors.New("password has not been set yet")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUntrustedCallback  = errors.New("the callback URL must be on the configured callback host")
)

// CustomClaims are the claims attached to an identity and copied into its ID tokens.
type CustomClaims struct {
	Role            string `json:"role,omitempty"`
	MustSetPassword bool   `json:"mustSetPassword,omitempty"`
}

type Identity struct {
	UID           string       `json:"uid"`
	Email         string       `json:"email"`
	DisplayName   string       `json:"displayName,omitempty"`
	EmailVerified bool         `json:"emailVerified"`
	Disabled      bool         `json:"disabled"`
	PasswordHash  []byte       `json:"-"`
	Claims        CustomClaims `json:"customClaims"`
	CreatedAt     time.Time    `json:"createdAt"` // UTC
	UpdatedAt     time.Time    `json:"-"`         // UTC
	LastLogin     time.Time    `json:"lastLogin"` // UTC
}

func (id *Identity) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	id.PasswordHash = hash
	return nil
}

func (id *Identity) CheckPassword(pwd string) error {
	if len(id.PasswordHash) == 0 {
		return ErrPasswordNotSet
	}
	return bcrypt.CompareHashAndPassword(id.PasswordHash, []byte(pwd))
}

// NewIdentity contains information needed to create a new Identity.
// An empty Password creates an identity that can only sign in after a password setup.
type NewIdentity struct {
	Email         string
	DisplayName   string
	Password      string
	EmailVerified bool
	Disabled      bool
}

// Repository persists identities.
type Repository interface {
	// CreateIdentity returns ErrEmailExists when the email is taken.
	CreateIdentity(ctx context.Context, id Identity) (Identity, error)
	GetIdentity(ctx context.Context, uid string) (Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (Identity, error)
	// ListIdentities returns up to limit identities with a UID greater than afterUID, ordered by UID.
	ListIdentities(ctx context.Context, afterUID string, limit int) ([]Identity, error)
	// UpdateIdentity saves every field of id but UID, Email and CreatedAt.
	UpdateIdentity(ctx context.Context, id Identity) (Identity, error)
}
