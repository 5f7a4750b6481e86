package identity_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/identity"
	"github.com/internquest/backend/tests"
)

func TestService_CreateUser(t *testing.T) {
	ctx := context.Background()
	svc := testutil.NewIdentityService(testutil.Config())
	testutil.CreateIdentity(t, svc, "taken@test.cd", "Taken", "", "")

	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{name: "malformed", email: "not-an-email", wantErr: identity.ErrInvalidEmail},
		{name: "display name form", email: "Awe <awe@test.cd>", wantErr: identity.ErrInvalidEmail},
		{name: "no domain dot", email: "awe@localhost", wantErr: identity.ErrInvalidEmail},
		{name: "duplicate", email: " TAKEN@test.cd ", wantErr: identity.ErrEmailExists},
		{name: "valid", email: " Awe@Test.cd "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.CreateUser(ctx, identity.NewIdentity{Email: tt.email, DisplayName: " Awe "})
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "awe@test.cd", id.Email)
			assert.Equal(t, "Awe", id.DisplayName)
			assert.NotEmpty(t, id.UID)
			assert.False(t, id.EmailVerified)
			assert.False(t, id.Disabled)
			assert.Empty(t, id.PasswordHash)
		})
	}
}

func TestService_SetCustomClaimsReplaces(t *testing.T) {
	ctx := context.Background()
	svc := testutil.NewIdentityService(testutil.Config())
	id := testutil.CreateIdentity(t, svc, "awe@test.cd", "Awe", "admin", "")

	require.NoError(t, svc.SetCustomClaims(ctx, id.UID, identity.CustomClaims{Role: "adviser", MustSetPassword: true}))
	got, err := svc.GetUser(ctx, id.UID)
	require.NoError(t, err)
	assert.Equal(t, identity.CustomClaims{Role: "adviser", MustSetPassword: true}, got.Claims)

	require.NoError(t, svc.SetCustomClaims(ctx, id.UID, identity.CustomClaims{}))
	got, err = svc.GetUser(ctx, id.UID)
	require.NoError(t, err)
	assert.Equal(t, identity.CustomClaims{}, got.Claims)

	assert.Equal(t, identity.ErrNotFound, svc.SetCustomClaims(ctx, "nope", identity.CustomClaims{}))
}

func TestService_ListUsers(t *testing.T) {
	ctx := context.Background()
	svc := testutil.NewIdentityService(testutil.Config())
	for _, email := range []string{"a@test.cd", "b@test.cd", "c@test.cd"} {
		testutil.CreateIdentity(t, svc, email, "", "", "")
	}

	page1, next, err := svc.ListUsers(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, next)

	page2, next, err := svc.ListUsers(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Empty(t, next)

	seen := map[string]bool{}
	for _, id := range append(page1, page2...) {
		seen[id.Email] = true
	}
	assert.Len(t, seen, 3)
}

func TestService_SignIn(t *testing.T) {
	ctx := context.Background()
	svc := testutil.NewIdentityService(testutil.Config())
	pwd := "Tr0ub4dor&3x"
	active := testutil.CreateIdentity(t, svc, "active@test.cd", "Active", "coordinator", pwd)
	disabled := testutil.CreateIdentity(t, svc, "disabled@test.cd", "Disabled", "adviser", pwd)
	require.NoError(t, svc.SetDisabled(ctx, disabled.UID, true))
	testutil.CreateIdentity(t, svc, "invited@test.cd", "Invited", "adviser", "")

	tests := []struct {
		name    string
		email   string
		pwd     string
		wantErr error
	}{
		{name: "unknown email", email: "who@test.cd", pwd: pwd, wantErr: identity.ErrInvalidCredentials},
		{name: "wrong password", email: "active@test.cd", pwd: "nope", wantErr: identity.ErrInvalidCredentials},
		{name: "disabled", email: "disabled@test.cd", pwd: pwd, wantErr: identity.ErrDisabled},
		{name: "password not set", email: "invited@test.cd", pwd: pwd, wantErr: identity.ErrPasswordNotSet},
		{name: "valid", email: " ACTIVE@test.cd", pwd: pwd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := svc.SignIn(ctx, tt.email, tt.pwd)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			claims, err := svc.VerifyIDToken(token)
			require.NoError(t, err)
			assert.Equal(t, active.UID, claims.Subject)
			assert.Equal(t, "coordinator", claims.Role)
			assert.Equal(t, "active@test.cd", claims.Email)
		})
	}

	got, err := svc.GetUser(ctx, active.UID)
	require.NoError(t, err)
	assert.False(t, got.LastLogin.IsZero())
}

func TestService_VerifyIDToken(t *testing.T) {
	conf := testutil.Config()
	svc := testutil.NewIdentityService(conf)
	id := testutil.CreateIdentity(t, svc, "awe@test.cd", "Awe", "admin", "")
	valid := testutil.Token(t, svc, id)

	other := testutil.NewIdentityService(&core.Config{SecretKey: "other", Server: conf.Server})
	foreign := testutil.Token(t, other, id)

	expiredSvc := testutil.NewIdentityService(conf)
	expiredSvc.SetNowFunc(func() time.Time { return time.Now().Add(-2 * conf.Server.JWTExpirationDelta) })
	expired := testutil.Token(t, expiredSvc, id)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "garbage", token: "lol", wantErr: identity.ErrInvalidToken},
		{name: "other key", token: foreign, wantErr: identity.ErrInvalidToken},
		{name: "expired", token: expired, wantErr: identity.ErrInvalidToken},
		{name: "valid", token: valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.VerifyIDToken(tt.token)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id.UID, claims.Subject)
			assert.Equal(t, "admin", claims.Role)
		})
	}
}

func TestService_PasswordSetup(t *testing.T) {
	ctx := context.Background()
	conf := testutil.Config()
	svc := testutil.NewIdentityService(conf)
	id := testutil.CreateIdentity(t, svc, "awe@test.cd", "Awe", "adviser", "")
	require.NoError(t, svc.SetCustomClaims(ctx, id.UID, identity.CustomClaims{Role: "adviser", MustSetPassword: true}))

	// default base is the console host
	link, err := svc.PasswordSetupLink(ctx, id.Email, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://console.internquest.test/set-password?"), link)

	// a callback URL on the console host overrides the path
	link, err = svc.PasswordSetupLink(ctx, id.Email, "https://console.internquest.test/welcome")
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "console.internquest.test", u.Host)
	assert.Equal(t, "/welcome", u.Path)
	assert.Equal(t, "setPassword", u.Query().Get("mode"))

	for _, cb := range []string{
		"https://app.internquest.test/welcome",
		"http://console.internquest.test/welcome",
		"https://console.internquest.test.evil.example/",
		"https://user@console.internquest.test/",
		"//evil.example/set-password",
		"javascript:alert(1)",
	} {
		_, err = svc.PasswordSetupLink(ctx, id.Email, cb)
		assert.Equal(t, identity.ErrUntrustedCallback, err, cb)
	}

	_, err = svc.PasswordSetupLink(ctx, "who@test.cd", "")
	assert.Equal(t, identity.ErrNotFound, err)

	uid, token := u.Query().Get("uid"), u.Query().Get("token")

	_, err = svc.ConfirmPasswordSetup(ctx, uid, "bad-token", "Tr0ub4dor&3x")
	assert.Equal(t, identity.ErrInvalidToken, err)

	_, err = svc.ConfirmPasswordSetup(ctx, uid, token, "weak")
	assert.IsType(t, &core.ValidationError{}, err)

	got, err := svc.ConfirmPasswordSetup(ctx, uid, token, "Tr0ub4dor&3x")
	require.NoError(t, err)
	assert.False(t, got.Claims.MustSetPassword)
	assert.Equal(t, "adviser", got.Claims.Role)
	assert.True(t, got.EmailVerified)
	require.NoError(t, got.CheckPassword("Tr0ub4dor&3x"))

	// the token is spent once the password is set
	_, err = svc.ConfirmPasswordSetup(ctx, uid, token, "An0ther&Pass")
	assert.Equal(t, identity.ErrInvalidToken, err)
}
