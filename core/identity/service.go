package identity

import (
	"context"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/internquest/backend/core"
)

const (
	defaultListLimit = 1000
	setupLinkPath    = "/set-password"
)

type Service struct {
	repo      Repository
	secretKey []byte
	issuer    string
	tokenTTL  time.Duration
	linkBase  string
	tokens    setupTokens
	nowFunc   func() time.Time
}

func NewService(repo Repository, conf *core.Config) *Service {
	svc := &Service{
		repo:      repo,
		secretKey: []byte(conf.SecretKey),
		issuer:    conf.AppName,
		tokenTTL:  conf.Server.JWTExpirationDelta,
		linkBase:  conf.CallbackBaseURL,
		nowFunc:   time.Now,
	}
	if svc.linkBase == "" {
		svc.linkBase = "https://" + conf.Server.Host
	}
	svc.tokens = setupTokens{
		secretKey: svc.secretKey,
		timeout:   conf.PasswordResetTimeoutDelta,
		nowFunc:   func() time.Time { return svc.nowFunc() },
	}
	return svc
}

// SetNowFunc replaces the clock; for tests.
func (svc *Service) SetNowFunc(now func() time.Time) { svc.nowFunc = now }

// CreateUser creates an enabled identity. The email is validated deeply and must be unique.
func (svc *Service) CreateUser(ctx context.Context, ni NewIdentity) (Identity, error) {
	email := core.CleanString(ni.Email, true /* lower */)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return Identity{}, ErrInvalidEmail
	}

	now := svc.nowFunc().UTC()
	id := Identity{
		UID:           strings.ReplaceAll(uuid.New().String(), "-", ""),
		Email:         email,
		DisplayName:   core.CleanString(ni.DisplayName),
		EmailVerified: ni.EmailVerified,
		Disabled:      ni.Disabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if ni.Password != "" {
		if err := id.SetPassword(ni.Password); err != nil {
			return Identity{}, errors.Wrap(err, "hashing password")
		}
	}
	return svc.repo.CreateIdentity(ctx, id)
}

// SetCustomClaims replaces all custom claims of the identity.
func (svc *Service) SetCustomClaims(ctx context.Context, uid string, claims CustomClaims) error {
	id, err := svc.repo.GetIdentity(ctx, uid)
	if err != nil {
		return err
	}
	id.Claims = claims
	id.UpdatedAt = svc.nowFunc().UTC()
	_, err = svc.repo.UpdateIdentity(ctx, id)
	return err
}

func (svc *Service) GetUser(ctx context.Context, uid string) (Identity, error) {
	return svc.repo.GetIdentity(ctx, uid)
}

func (svc *Service) GetUserByEmail(ctx context.Context, email string) (Identity, error) {
	return svc.repo.GetIdentityByEmail(ctx, core.CleanString(email, true /* lower */))
}

// ListUsers returns one page of identities and the token of the next page ("" on the last page).
func (svc *Service) ListUsers(ctx context.Context, pageToken string, max int) ([]Identity, string, error) {
	if max <= 0 || max > defaultListLimit {
		max = defaultListLimit
	}
	ids, err := svc.repo.ListIdentities(ctx, pageToken, max+1)
	if err != nil {
		return nil, "", err
	}
	if len(ids) <= max {
		return ids, "", nil
	}
	ids = ids[:max]
	return ids, ids[max-1].UID, nil
}

// SetDisabled enables or disables an identity.
func (svc *Service) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	id, err := svc.repo.GetIdentity(ctx, uid)
	if err != nil {
		return err
	}
	id.Disabled = disabled
	id.UpdatedAt = svc.nowFunc().UTC()
	_, err = svc.repo.UpdateIdentity(ctx, id)
	return err
}

// SetPassword sets a new password, clearing the must-set-password claim.
func (svc *Service) SetPassword(ctx context.Context, uid, pwd string) error {
	id, err := svc.repo.GetIdentity(ctx, uid)
	if err != nil {
		return err
	}
	if err := id.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	id.Claims.MustSetPassword = false
	id.UpdatedAt = svc.nowFunc().UTC()
	_, err = svc.repo.UpdateIdentity(ctx, id)
	return err
}

// SignIn checks the credentials and returns a fresh ID token.
func (svc *Service) SignIn(ctx context.Context, email, pwd string) (string, error) {
	id, err := svc.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return "", ErrInvalidCredentials
		}
		return "", errors.Wrap(err, "finding identity by email")
	}
	if err := id.CheckPassword(pwd); err != nil {
		if err == ErrPasswordNotSet {
			return "", ErrPasswordNotSet
		}
		return "", ErrInvalidCredentials
	}
	if id.Disabled {
		return "", ErrDisabled
	}

	id.LastLogin = svc.nowFunc().UTC()
	if id, err = svc.repo.UpdateIdentity(ctx, id); err != nil {
		return "", errors.Wrap(err, "setting lastLogin")
	}
	return svc.IssueIDToken(id)
}

// PasswordSetupLink generates a one-time link letting the owner of email choose a password.
// callbackURL, when set, overrides the configured base of the link. It must be on the same
// scheme and host as that base.
func (svc *Service) PasswordSetupLink(ctx context.Context, email, callbackURL string) (string, error) {
	if err := svc.CheckCallbackURL(callbackURL); err != nil {
		return "", err
	}
	id, err := svc.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	base := callbackURL
	if base == "" {
		base = svc.linkBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "parsing callback URL")
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = setupLinkPath
	}
	q := u.Query()
	q.Set("mode", "setPassword")
	q.Set("uid", EncodeUID(id))
	q.Set("token", svc.tokens.makeToken(id))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CheckCallbackURL returns ErrUntrustedCallback unless raw is empty or shares the scheme
// and host of the configured link base.
func (svc *Service) CheckCallbackURL(raw string) error {
	if raw == "" {
		return nil
	}
	base, err := url.Parse(svc.linkBase)
	if err != nil {
		return errors.Wrap(err, "parsing link base")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Opaque != "" || u.User != nil {
		return ErrUntrustedCallback
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return ErrUntrustedCallback
	}
	return nil
}

// ConfirmPasswordSetup checks a setup token and sets the identity's password.
func (svc *Service) ConfirmPasswordSetup(ctx context.Context, encodedUID, token, pwd string) (Identity, error) {
	uid, err := DecodeUID(encodedUID)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	id, err := svc.repo.GetIdentity(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, errors.Wrap(err, "finding identity")
	}
	if err := svc.tokens.verifyToken(id, token); err != nil {
		return Identity{}, err
	}
	if err := CheckPassword(pwd, id.Email, id.DisplayName); err != nil {
		return Identity{}, err
	}
	if err := id.SetPassword(pwd); err != nil {
		return Identity{}, errors.Wrap(err, "hashing password")
	}
	// the link was delivered to the address
	id.EmailVerified = true
	id.Claims.MustSetPassword = false
	id.UpdatedAt = svc.nowFunc().UTC()
	return svc.repo.UpdateIdentity(ctx, id)
}
