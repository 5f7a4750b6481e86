package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/identity"
	"github.com/internquest/backend/core/migration"
	"github.com/internquest/backend/core/notification"
	"github.com/internquest/backend/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		DisableReqLogs bool
		Logger         core.Logger
		Validator      *core.Validator

		IdentitySvc     *identity.Service
		UserSvc         *user.Service
		MigrationEngine *migration.Engine
		NotificationSvc *notification.Service
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			headerSharedSecret,
		},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	verify := middleware.JWTWithConfig(newJWTConfig(s.opts.IdentitySvc))
	active := activeCallerMiddleware(s.opts.IdentitySvc)
	jwt := func(next echo.HandlerFunc) echo.HandlerFunc { return verify(active(next)) }
	secret := sharedSecretMiddleware(conf.SharedSecret)

	registerAuthAPI(v1, s.opts.IdentitySvc, s.opts.Validator)
	registerCallables(v1, jwt, s.opts)
	registerHTTPAPI(v1, jwt, secret, s.opts)
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Conf.Server.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to InternQuest API!")
}
