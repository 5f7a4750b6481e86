// Package pushsvc sends mobile push notifications through the Expo push API.
package pushsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/internquest/backend/core"
)

// maxBatch is the number of messages Expo accepts per request.
const maxBatch = 100

type expoResponse struct {
	Data   []core.PushTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

type ExpoGateway struct {
	url    string
	client *rest.Client
}

var _ core.PushGateway = (*ExpoGateway)(nil)

func NewExpoGateway(conf *core.Config) *ExpoGateway {
	return &ExpoGateway{
		url:    conf.PushURL,
		client: &rest.Client{HTTPClient: &http.Client{Timeout: 15 * time.Second}},
	}
}

// Send posts messages in batches of maxBatch, sequentially, and concatenates the tickets.
func (g *ExpoGateway) Send(ctx context.Context, messages []core.PushMessage) ([]core.PushTicket, error) {
	tickets := make([]core.PushTicket, 0, len(messages))
	for start := 0; start < len(messages); start += maxBatch {
		end := start + maxBatch
		if end > len(messages) {
			end = len(messages)
		}
		batch, err := g.send(ctx, messages[start:end])
		if err != nil {
			return tickets, err
		}
		tickets = append(tickets, batch...)
	}
	return tickets, nil
}

func (g *ExpoGateway) send(ctx context.Context, batch []core.PushMessage) ([]core.PushTicket, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, errors.Wrap(err, "encoding push messages")
	}
	req := rest.Request{
		Method:  rest.Post,
		BaseURL: g.url,
		Headers: map[string]string{
			"Accept":       "application/json",
			"Content-Type": "application/json",
		},
		Body: body,
	}

	res, err := g.client.SendWithContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "sending push messages")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, errors.Errorf("sending push messages - status: %d - body: %s", res.StatusCode, res.Body)
	}

	var parsed expoResponse
	if err := json.Unmarshal([]byte(res.Body), &parsed); err != nil {
		return nil, errors.Wrap(err, "decoding push tickets")
	}
	if len(parsed.Errors) > 0 {
		return nil, errors.Errorf("push gateway error %s: %s", parsed.Errors[0].Code, parsed.Errors[0].Message)
	}
	return parsed.Data, nil
}
