// Package notification pushes messages to the mobile devices registered on user profiles,
// on demand and whenever a notification document is created.
package notification

import "github.com/internquest/backend/core"

// notification and profile document fields
const (
	fieldTitle         = "title"
	fieldBody          = "body"
	fieldMessage       = "message"
	fieldType          = "type"
	fieldTarget        = "target"
	fieldIsBroadcast   = "isBroadcast"
	fieldSkipPush      = "skipPush"
	fieldRecipientUID  = "recipientUid"
	fieldCreatedAt     = "createdAt"
	fieldCreatedBy     = "createdBy"
	fieldExpoPushToken = "expoPushToken"
	fieldPushToken     = "pushToken"
)

type (
	Message struct {
		Title string                 `json:"title" validate:"notblank,max=200"`
		Body  string                 `json:"body" validate:"notblank,max=2000"`
		Data  map[string]interface{} `json:"data"`
	}

	// UserPush pushes Message to the device of the user UID.
	UserPush struct {
		UID string `json:"uid" validate:"notblank"`
		Message
	}

	// PushResult carries the gateway receipts; a user without a valid token gets none.
	PushResult struct {
		OK           bool              `json:"ok"`
		TicketsCount int               `json:"ticketsCount"`
		Tickets      []core.PushTicket `json:"tickets"`
	}

	// NewNotification is a notification written by a console user.
	// It targets either RecipientUID or, with Broadcast, every user.
	NewNotification struct {
		Title        string `json:"title" validate:"notblank,max=200"`
		Body         string `json:"body" validate:"notblank,max=2000"`
		RecipientUID string `json:"recipientUid"`
		Broadcast    bool   `json:"broadcast"`
		SkipPush     bool   `json:"skipPush"`
	}
)

func newPushResult(tickets []core.PushTicket) PushResult {
	if tickets == nil {
		tickets = []core.PushTicket{}
	}
	return PushResult{OK: true, TicketsCount: len(tickets), Tickets: tickets}
}
