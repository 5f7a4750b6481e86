package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/internquest/backend/core/notification"
	"github.com/internquest/backend/core/user"
)

type httpApi struct {
	userSvc         *user.Service
	notificationSvc *notification.Service
}

func registerHTTPAPI(g *echo.Group, jwt, secret echo.MiddlewareFunc, opts *Options) {
	api := httpApi{
		userSvc:         opts.UserSvc,
		notificationSvc: opts.NotificationSvc,
	}

	// un-authed endpoints
	g.GET("/lookupEmailByStudentId", api.lookupEmail, secret)
	g.POST("/lookupEmailByStudentId", api.lookupEmail, secret)

	// authed endpoints
	g.POST("/provisionAccount", api.provisionAccount, secret, jwt)
	g.POST("/pushToSelf", api.pushToSelf, jwt)
	g.POST("/pushToUser", api.pushToUser, jwt)
}

// Handlers

func (api *httpApi) lookupEmail(ctx echo.Context) error {
	var data LookupRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LookupRequest")
	}
	if data.StudentID == "" {
		data.StudentID = ctx.QueryParam("studentId")
	}

	res, err := api.userSvc.LookupEmail(ctx.Request().Context(), data.StudentID)
	if err != nil {
		return err
	}
	if res.Block != nil {
		return ctx.JSON(http.StatusForbidden, newBlockedResponse(res.Block))
	}
	return ctx.JSON(http.StatusOK, LookupResponse{Email: res.Email})
}

func (api *httpApi) provisionAccount(ctx echo.Context) error {
	caller, _ := contextCaller(ctx)
	var data user.ProvisionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProvisionRequest")
	}

	res, err := api.userSvc.ProvisionAccount(ctx.Request().Context(), caller, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *httpApi) pushToSelf(ctx echo.Context) error {
	caller, _ := contextCaller(ctx)
	var data notification.Message
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Message")
	}

	res, err := api.notificationSvc.PushToSelf(ctx.Request().Context(), caller, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *httpApi) pushToUser(ctx echo.Context) error {
	caller, _ := contextCaller(ctx)
	var data notification.UserPush
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UserPush")
	}

	res, err := api.notificationSvc.PushToUser(ctx.Request().Context(), caller, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
