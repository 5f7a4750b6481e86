package core

import (
	"context"
	"strings"
)

type (
	PushMessage struct {
		To    string                 `json:"to"`
		Title string                 `json:"title,omitempty"`
		Body  string                 `json:"body,omitempty"`
		Data  map[string]interface{} `json:"data,omitempty"`
		Sound string                 `json:"sound,omitempty"`
	}

	// PushTicket is the gateway's delivery receipt for one message.
	PushTicket struct {
		Status  string                 `json:"status"`
		ID      string                 `json:"id,omitempty"`
		Message string                 `json:"message,omitempty"`
		Details map[string]interface{} `json:"details,omitempty"`
	}

	// PushGateway delivers mobile push notifications.
	PushGateway interface {
		// Send delivers messages, batching them as the gateway requires, and returns one ticket per message.
		Send(ctx context.Context, messages []PushMessage) ([]PushTicket, error)
	}
)

// IsPushToken reports whether token looks like an Expo push token.
func IsPushToken(token string) bool {
	return (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]")
}
