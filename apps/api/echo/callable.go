package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/internquest/backend/core/authz"
	"github.com/internquest/backend/core/migration"
	"github.com/internquest/backend/core/notification"
	"github.com/internquest/backend/core/user"
)

const callablePrefix = "/v1/callable/"

// callableFunc runs a callable for a caller (nil when anonymous) and returns its result.
type callableFunc func(ctx echo.Context, caller *authz.Caller) (interface{}, error)

type callableApi struct {
	userSvc         *user.Service
	migrationEngine *migration.Engine
	notificationSvc *notification.Service
}

func registerCallables(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := callableApi{
		userSvc:         opts.UserSvc,
		migrationEngine: opts.MigrationEngine,
		notificationSvc: opts.NotificationSvc,
	}

	cg := g.Group("/callable", jwt)
	cg.POST("/listUsers", callable(api.listUsers))
	cg.POST("/createUserWithRole", callable(api.createUserWithRole))
	cg.POST("/setUserBlocked", callable(api.setUserBlocked))
	cg.POST("/migrateStudentIds", callable(api.migrateStudentIds))
	cg.POST("/createNotification", callable(api.createNotification))
}

// callable adapts fn to the callable protocol: the result is sent as {"result": ...}
// and errors go through the error handler. Every callable needs a console role,
// checked before the data is decoded.
func callable(fn callableFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		caller, _ := contextCaller(ctx)
		if _, err := authz.RequireAnyRole(caller); err != nil {
			return err
		}
		result, err := fn(ctx, caller)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, echo.Map{"result": result})
	}
}

func (api *callableApi) listUsers(ctx echo.Context, caller *authz.Caller) (interface{}, error) {
	users, err := api.userSvc.ListManaged(ctx.Request().Context(), caller)
	if err != nil {
		return nil, err
	}
	return echo.Map{"users": users}, nil
}

func (api *callableApi) createUserWithRole(ctx echo.Context, caller *authz.Caller) (interface{}, error) {
	var data user.NewAccount
	if err := bindCallable(ctx, &data); err != nil {
		return nil, err
	}
	if err := api.userSvc.CreateWithRole(ctx.Request().Context(), caller, data); err != nil {
		return nil, err
	}
	return echo.Map{"success": true}, nil
}

func (api *callableApi) setUserBlocked(ctx echo.Context, caller *authz.Caller) (interface{}, error) {
	var data user.BlockRequest
	if err := bindCallable(ctx, &data); err != nil {
		return nil, err
	}
	if err := api.userSvc.SetBlocked(ctx.Request().Context(), caller, data); err != nil {
		return nil, err
	}
	return echo.Map{"success": true}, nil
}

func (api *callableApi) migrateStudentIds(ctx echo.Context, caller *authz.Caller) (interface{}, error) {
	var opts migration.Options
	if err := bindCallable(ctx, &opts); err != nil {
		return nil, err
	}
	report, err := api.migrationEngine.Run(ctx.Request().Context(), caller, opts)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (api *callableApi) createNotification(ctx echo.Context, caller *authz.Caller) (interface{}, error) {
	var data notification.NewNotification
	if err := bindCallable(ctx, &data); err != nil {
		return nil, err
	}
	id, err := api.notificationSvc.CreateNotification(ctx.Request().Context(), caller, data)
	if err != nil {
		return nil, err
	}
	return echo.Map{"id": id}, nil
}
