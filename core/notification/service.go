package notification

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/authz"
	"github.com/internquest/backend/core/role"
)

// recipientFields are the fields naming the recipient of a notification, by priority.
// Each of them was used by some version of the apps writing notifications.
var recipientFields = []string{"recipientUid", "recipientId", "userId", "targetUserId", "studentUid"}

// broadcastExtractors each report whether a notification targets every user.
var broadcastExtractors = []func(data map[string]interface{}) bool{
	func(data map[string]interface{}) bool { return core.BoolField(data, fieldIsBroadcast) },
	func(data map[string]interface{}) bool {
		return strings.EqualFold(core.StringField(data, fieldType), "broadcast")
	},
	func(data map[string]interface{}) bool {
		return strings.EqualFold(core.StringField(data, fieldTarget), "all")
	},
}

// RecipientOf returns the recipient uid of a notification, or "" when it names none.
func RecipientOf(data map[string]interface{}) string {
	for _, field := range recipientFields {
		if uid := core.StringField(data, field); uid != "" {
			return uid
		}
	}
	return ""
}

// IsBroadcast reports whether a notification targets every user.
func IsBroadcast(data map[string]interface{}) bool {
	for _, isBroadcast := range broadcastExtractors {
		if isBroadcast(data) {
			return true
		}
	}
	return false
}

type Service struct {
	store     core.DocStore
	gateway   core.PushGateway
	validator *core.Validator
	logger    core.Logger

	profiles      string
	notifications string
}

func NewService(
	store core.DocStore,
	gateway core.PushGateway,
	validator *core.Validator,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		store:         store,
		gateway:       gateway,
		validator:     validator,
		logger:        logger,
		profiles:      conf.ProfileCollection,
		notifications: conf.NotificationCollection,
	}
}

// PushToSelf pushes msg to the caller's own device.
func (svc *Service) PushToSelf(ctx context.Context, caller *authz.Caller, msg Message) (PushResult, error) {
	if err := authz.RequireCaller(caller); err != nil {
		return PushResult{}, err
	}
	if err := svc.validator.Check(msg); err != nil {
		return PushResult{}, err
	}
	token, err := svc.pushToken(ctx, caller.UID)
	if err != nil && !errors.Is(err, core.ErrDocNotFound) {
		return PushResult{}, core.Internal(err, "reading profile")
	}
	return svc.push(ctx, token, msg)
}

// PushToUser pushes a message to the device of another user. Admin only.
func (svc *Service) PushToUser(ctx context.Context, caller *authz.Caller, up UserPush) (PushResult, error) {
	if _, err := authz.RequireRole(caller, "pushToUser", role.Admin); err != nil {
		return PushResult{}, err
	}
	up.UID = core.CleanString(up.UID)
	if err := svc.validator.Check(up); err != nil {
		return PushResult{}, err
	}
	token, err := svc.pushToken(ctx, up.UID)
	if err != nil {
		if errors.Is(err, core.ErrDocNotFound) {
			return PushResult{}, core.NewError(core.KindNotFound, "user not found")
		}
		return PushResult{}, core.Internal(err, "reading profile")
	}
	return svc.push(ctx, token, up.Message)
}

// CreateNotification writes a notification document; the fan-out reacts to it once created.
func (svc *Service) CreateNotification(ctx context.Context, caller *authz.Caller, nn NewNotification) (string, error) {
	if _, err := authz.RequireAnyRole(caller); err != nil {
		return "", err
	}
	nn.Title = core.CleanString(nn.Title)
	nn.Body = core.CleanString(nn.Body)
	nn.RecipientUID = core.CleanString(nn.RecipientUID)
	if err := svc.validator.Check(nn); err != nil {
		return "", err
	}
	if nn.RecipientUID == "" && !nn.Broadcast {
		return "", core.NewError(core.KindInvalidArgument, "a recipient is required unless the notification is a broadcast")
	}

	data := map[string]interface{}{
		fieldTitle:       nn.Title,
		fieldBody:        nn.Body,
		fieldIsBroadcast: nn.Broadcast,
		fieldSkipPush:    nn.SkipPush,
		fieldCreatedBy:   caller.UID,
		fieldCreatedAt:   core.ServerTimestamp,
	}
	if nn.RecipientUID != "" {
		data[fieldRecipientUID] = nn.RecipientUID
	}
	id := uuid.New().String()
	if err := svc.store.Create(ctx, svc.notifications, id, data); err != nil {
		return "", core.Internal(err, "creating notification")
	}
	return id, nil
}

// OnNotificationCreated pushes a new notification to its recipient's device.
// Broadcasts, opted-out notifications and notifications without recipient are not pushed.
func (svc *Service) OnNotificationCreated(ctx context.Context, doc core.Document) (PushResult, error) {
	if core.BoolField(doc.Data, fieldSkipPush) || IsBroadcast(doc.Data) {
		return newPushResult(nil), nil
	}
	uid := RecipientOf(doc.Data)
	if uid == "" {
		return newPushResult(nil), nil
	}

	token, err := svc.pushToken(ctx, uid)
	if err != nil && !errors.Is(err, core.ErrDocNotFound) {
		return PushResult{}, core.Internal(err, "reading recipient profile")
	}
	body := core.StringField(doc.Data, fieldBody)
	if body == "" {
		body = core.StringField(doc.Data, fieldMessage)
	}
	msg := Message{
		Title: core.StringField(doc.Data, fieldTitle),
		Body:  body,
		Data:  map[string]interface{}{"notificationId": doc.ID},
	}
	if t := core.StringField(doc.Data, fieldType); t != "" {
		msg.Data[fieldType] = t
	}
	return svc.push(ctx, token, msg)
}

// Listen pushes the notifications created from now on until ctx is done.
// Failures are logged; one notification never stops the listener.
func (svc *Service) Listen(ctx context.Context, watcher core.DocWatcher) error {
	svc.logger.Info("listening for notifications", map[string]interface{}{"collection": svc.notifications})
	return watcher.WatchCreates(ctx, svc.notifications, func(doc core.Document) {
		res, err := svc.OnNotificationCreated(ctx, doc)
		if err != nil {
			svc.logger.Error("notification push failed", err, map[string]interface{}{"notificationId": doc.ID})
			return
		}
		if res.TicketsCount > 0 {
			svc.logger.Debug("notification pushed", map[string]interface{}{"notificationId": doc.ID})
		}
	})
}

// pushToken reads the device token of a profile; "" when the user has none.
func (svc *Service) pushToken(ctx context.Context, uid string) (string, error) {
	doc, err := svc.store.Get(ctx, svc.profiles, uid)
	if err != nil {
		return "", err
	}
	for _, field := range []string{fieldExpoPushToken, fieldPushToken} {
		if token := core.StringField(doc.Data, field); token != "" {
			return token, nil
		}
	}
	return "", nil
}

// push sends msg to token. Missing or malformed tokens are not an error:
// most users never enabled push notifications.
func (svc *Service) push(ctx context.Context, token string, msg Message) (PushResult, error) {
	if !core.IsPushToken(token) {
		return newPushResult(nil), nil
	}
	tickets, err := svc.gateway.Send(ctx, []core.PushMessage{{
		To:    token,
		Title: msg.Title,
		Body:  msg.Body,
		Data:  msg.Data,
		Sound: "default",
	}})
	if err != nil {
		return PushResult{}, core.Internal(err, "sending push notification")
	}
	for _, t := range tickets {
		if t.Status == "error" {
			svc.logger.Warn("push ticket error", map[string]interface{}{"message": t.Message, "details": t.Details})
		}
	}
	return newPushResult(tickets), nil
}
