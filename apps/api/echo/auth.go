package echoapi

import (
	"net/http"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/authz"
	"github.com/internquest/backend/core/identity"
)

const (
	contextTokenKey    = "idToken"
	headerSharedSecret = "X-Shared-Secret"
)

// newJWTConfig verifies bearer ID tokens. Requests without Authorization header go
// through anonymous; the operations decide whether they need a caller.
func newJWTConfig(ids *identity.Service) middleware.JWTConfig {
	return middleware.JWTConfig{
		Skipper: func(ctx echo.Context) bool {
			return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
		},
		SigningKey:    ids.SigningKey(),
		SigningMethod: identity.SigningMethod.Alg(),
		ContextKey:    contextTokenKey,
		Claims:        new(identity.TokenClaims),
	}
}

func getContextClaims(ctx echo.Context) (*identity.TokenClaims, bool) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*identity.TokenClaims); ok {
			return claims, true
		}
	}
	return nil, false
}

// contextCaller returns the verified caller of the request, or nil for anonymous requests.
func contextCaller(ctx echo.Context) (*authz.Caller, bool) {
	claims, ok := getContextClaims(ctx)
	if !ok {
		return nil, false
	}
	return &authz.Caller{UID: claims.Subject, Email: claims.Email, RoleClaim: claims.Role}, true
}

// activeCallerMiddleware rejects verified tokens whose identity was disabled or
// deleted after the token was issued.
func activeCallerMiddleware(ids *identity.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			caller, ok := contextCaller(ctx)
			if !ok {
				return next(ctx)
			}
			id, err := ids.GetUser(ctx.Request().Context(), caller.UID)
			if err != nil {
				if errors.Cause(err) == identity.ErrNotFound {
					return core.NewError(core.KindUnauthenticated, "account no longer exists")
				}
				return errors.Wrap(err, "loading caller identity")
			}
			if id.Disabled {
				return core.NewError(core.KindPermissionDenied, "account disabled")
			}
			return next(ctx)
		}
	}
}

type authApi struct {
	ids       *identity.Service
	validator *core.Validator
}

func registerAuthAPI(g *echo.Group, ids *identity.Service, validator *core.Validator) {
	api := authApi{ids: ids, validator: validator}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/password-setup", api.confirmPasswordSetup)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := api.validator.Check(data); err != nil {
		return err
	}

	token, err := api.ids.SignIn(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		switch errors.Cause(err) {
		case identity.ErrInvalidCredentials:
			return errAuthenticationFailed
		case identity.ErrDisabled:
			return errAccountDisabled
		case identity.ErrPasswordNotSet:
			return errPasswordNotSet
		}
		return errors.Wrap(err, "signing in")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *authApi) confirmPasswordSetup(ctx echo.Context) error {
	var data PasswordSetupRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordSetupRequest")
	}
	if err := api.validator.Check(data); err != nil {
		return err
	}

	if _, err := api.ids.ConfirmPasswordSetup(ctx.Request().Context(), data.UID, data.Token, data.Password); err != nil {
		switch errors.Cause(err) {
		case identity.ErrInvalidToken, identity.ErrTokenExpired:
			return errInvalidSetupLink
		}
		return errors.Wrap(err, "confirming password setup")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Your password has been set. You can now sign in."})
}
