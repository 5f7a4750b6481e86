package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/internquest/backend/core"
)

var (
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "invalid email or password")
	errAccountDisabled      = echo.NewHTTPError(http.StatusForbidden, "account disabled")
	errPasswordNotSet       = echo.NewHTTPError(http.StatusPreconditionFailed, "password has not been set yet; use the link you received by email")
	errInvalidSetupLink     = echo.NewHTTPError(http.StatusBadRequest, "invalid or expired password setup link")
	errBadSharedSecret      = echo.NewHTTPError(http.StatusForbidden, "forbidden")
)

var kindStatus = map[core.Kind]int{
	core.KindUnauthenticated:    http.StatusUnauthorized,
	core.KindPermissionDenied:   http.StatusForbidden,
	core.KindInvalidArgument:    http.StatusBadRequest,
	core.KindAlreadyExists:      http.StatusConflict,
	core.KindNotFound:           http.StatusNotFound,
	core.KindFailedPrecondition: http.StatusPreconditionFailed,
	core.KindInternal:           http.StatusInternalServerError,
}

func statusKind(code int) core.Kind {
	for kind, status := range kindStatus {
		if status == code {
			return kind
		}
	}
	if code >= http.StatusInternalServerError {
		return core.KindInternal
	}
	return core.KindInvalidArgument
}

type (
	// callableError is the error of a callable response: {"error": callableError}.
	callableError struct {
		Status  core.Kind         `json:"status"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	}

	appError struct {
		code    int
		kind    core.Kind
		message string
		fields  map[string]string
	}
)

func isCallable(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().URL.Path, callablePrefix)
}

// classify maps err to its status code, kind and user visible message.
func classify(err error) (appError, bool) {
	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		if herr == middleware.ErrJWTMissing {
			return appError{code: http.StatusUnauthorized, kind: core.KindUnauthenticated, message: "missing or malformed token"}, true
		}
		if inner, ok := herr.Internal.(*echo.HTTPError); ok {
			herr = inner
		}
		msg, ok := herr.Message.(string)
		if !ok {
			msg = http.StatusText(herr.Code)
		}
		return appError{code: herr.Code, kind: statusKind(herr.Code), message: msg}, true
	}

	var verr *core.ValidationError
	if errors.As(err, &verr) {
		ae := appError{code: http.StatusBadRequest, kind: core.KindInvalidArgument, message: verr.Error()}
		if len(verr.Fields) > 0 {
			ae.message = "invalid argument"
			ae.fields = make(map[string]string, len(verr.Fields))
			for _, fErr := range verr.Fields {
				ae.fields[fErr.Field] = fErr.Error
			}
		}
		return ae, true
	}

	if cerr, ok := core.AsError(err); ok && cerr.Kind != core.KindInternal {
		return appError{code: kindStatus[cerr.Kind], kind: cerr.Kind, message: cerr.Error()}, true
	}
	return appError{}, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// Callables get {"error": {"status", "message"}}, plain endpoints get {"error": message}.
func newAppHTTPErrorHandler(logger core.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		ae, ok := classify(err)
		if !ok { // any other error is a server error
			ae = appError{
				code:    http.StatusInternalServerError,
				kind:    core.KindInternal,
				message: http.StatusText(http.StatusInternalServerError),
			}
			// classified internal errors carry the collaborator's message for operators
			if cerr, isCore := core.AsError(err); isCore {
				ae.message = cerr.Error()
			}
			caller, _ := contextCaller(ctx)
			logger.Error(ae.message, errors.WithStack(err), caller.Person())
			if ctx.Echo().Debug {
				ae.message = err.Error()
			}
		}

		var body interface{}
		if isCallable(ctx) {
			body = echo.Map{"error": callableError{Status: ae.kind, Message: ae.message, Details: ae.fields}}
		} else {
			m := echo.Map{"error": ae.message}
			if ae.fields != nil {
				m["fields"] = ae.fields
			}
			body = m
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(ae.code)
			} else {
				err = ctx.JSON(ae.code, body)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
