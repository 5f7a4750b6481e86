package echoapi

import (
	"bytes"
	"encoding/json"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/user"
)

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordSetupRequest struct {
		UID             string `json:"uid" validate:"required"`
		Token           string `json:"token" validate:"required"`
		Password        string `json:"password" validate:"required"`
		PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	// LookupRequest carries the identifier in the body or in the studentId query parameter.
	LookupRequest struct {
		StudentID string `json:"studentId" query:"studentId"`
	}

	LookupResponse struct {
		Email *string `json:"email"`
	}

	// BlockedResponse is returned with 403 when the looked up account is blocked.
	BlockedResponse struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		Reason    string `json:"reason,omitempty"`
		BlockedBy string `json:"blockedBy,omitempty"`
	}

	// callableRequest is the envelope of every callable: {"data": ...}.
	callableRequest struct {
		Data json.RawMessage `json:"data"`
	}
)

func newBlockedResponse(b *user.Block) BlockedResponse {
	return BlockedResponse{
		Error:     "ACCOUNT_BLOCKED",
		Message:   "This account has been blocked. Contact your OJT coordinator.",
		Reason:    b.Reason,
		BlockedBy: b.BlockedBy,
	}
}

// bindCallable decodes the data of a callable request into v. Absent data decodes as {}.
func bindCallable(ctx echo.Context, v interface{}) error {
	var req callableRequest
	if err := ctx.Bind(&req); err != nil {
		return core.NewError(core.KindInvalidArgument, "malformed callable request")
	}
	data := bytes.TrimSpace(req.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return core.WrapError(errors.Wrap(err, "decoding callable data"), core.KindInvalidArgument, "invalid request data")
	}
	return nil
}
