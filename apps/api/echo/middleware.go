package echoapi

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
)

// sharedSecretMiddleware requires the X-Shared-Secret header to match secret, when one is configured.
func sharedSecretMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if secret == "" {
				return next(ctx)
			}
			got := ctx.Request().Header.Get(headerSharedSecret)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return errBadSharedSecret
			}
			return next(ctx)
		}
	}
}
