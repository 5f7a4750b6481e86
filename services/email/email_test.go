package emailsvc

import (
	"bytes"
	"context"
	"net/http"
	"net/mail"
	"strings"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/tests"
)

type inviteData struct {
	Name      string
	Email     string
	Link      string
	ExpiresIn string
	Sections  []struct{ Year, ProgramCode, Section string }
}

func newInvite() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Awe", Address: "awe@test.cd"}},
		Subject:      "Your account",
		TemplateName: "account_invite_adviser",
		TemplateData: inviteData{
			Name:      "Awe",
			Email:     "awe@test.cd",
			Link:      "https://console.internquest.test/set-password?token=x",
			ExpiresIn: "3 days",
		},
	}
}

func TestConsoleService_SendMessages(t *testing.T) {
	conf := testutil.Config()
	tmpls, err := core.ParseTemplates(conf)
	require.NoError(t, err)

	var out bytes.Buffer
	svc := NewConsoleServiceMock(conf, tmpls)
	svc.out = &out

	noRecipient := &core.EmailMessage{Subject: "lost", BodyStr: "nobody"}
	require.NoError(t, svc.SendMessages(context.Background(), newInvite(), noRecipient))

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "An OJT Adviser account was created for awe@test.cd.")
	assert.Contains(t, sent[0].HTMLContent, "https://console.internquest.test/set-password?token=x")
	assert.Contains(t, out.String(), "Subject: [InternQuest] Your account")
	assert.Contains(t, out.String(), "Content-Type: multipart/alternative; boundary=")
	assert.NotContains(t, out.String(), "multipart/mixed")
	assert.NotContains(t, out.String(), "CC:")

	unknown := &core.EmailMessage{To: []mail.Address{{Address: "a@b.c"}}, TemplateName: "nope"}
	assert.Error(t, svc.SendMessages(context.Background(), unknown))
}

func TestSendgridService_SendMessages(t *testing.T) {
	conf := testutil.Config()
	tmpls, err := core.ParseTemplates(conf)
	require.NoError(t, err)

	t.Run("not configured", func(t *testing.T) {
		svc := NewSendgridService(conf, tmpls)
		err := svc.SendMessages(context.Background(), newInvite())
		assert.Equal(t, core.ErrMailNotConfigured, err)
		assert.Equal(t, core.KindFailedPrecondition, core.KindOf(err))
	})

	conf.Mail.Host = "https://api.sendgrid.test"
	conf.Mail.Password = "SG.key"
	origAPI := sendgridAPI
	defer func() { sendgridAPI = origAPI }()

	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "rejected", status: http.StatusUnauthorized, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got rest.Request
			sendgridAPI = func(req rest.Request) (*rest.Response, error) {
				got = req
				return &rest.Response{StatusCode: tt.status, Body: "{}"}, nil
			}

			err := NewSendgridService(conf, tmpls).SendMessages(context.Background(), newInvite())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, "https://api.sendgrid.test/v3/mail/send", got.BaseURL)
			assert.Equal(t, "Bearer SG.key", got.Headers["Authorization"])
			assert.True(t, strings.Contains(string(got.Body), `"subject":"[InternQuest] Your account"`))
		})
	}
}
