package emailsvc

import (
	"context"
	"net/http"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/internquest/backend/core"
)

const endpoint = "/v3/mail/send"

var sendgridAPI = sendgrid.API // mockable

type sendgridService struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	templates  *core.Templates
}

var _ core.EmailService = (*sendgridService)(nil)

// NewSendgridService relays mail through SendGrid; conf.Mail.Password is the API key.
func NewSendgridService(conf *core.Config, templates *core.Templates) core.EmailService {
	from := conf.DefaultFromEmail()
	return &sendgridService{
		key:        conf.Mail.Password,
		host:       conf.Mail.Host,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		templates:  templates,
	}
}

func (svc *sendgridService) SendMessages(ctx context.Context, messages ...*core.EmailMessage) error {
	if svc.key == "" || svc.from.Address == "" {
		return core.ErrMailNotConfigured
	}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := svc.templates.Render(msg); err != nil {
			return errors.Wrap(err, "rendering email")
		}
		if msg.HasRecipients() && msg.HasContent() {
			if err := svc.send(*msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (svc *sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(svc.getSGEmail(to))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func (svc *sendgridService) getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func (svc *sendgridService) send(msg core.EmailMessage) error {
	var req rest.Request = sendgrid.GetRequest(svc.key, endpoint, svc.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(msg))

	res, err := sendgridAPI(req)
	if err != nil {
		return errors.Wrap(err, "sending email")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sending email - status: %d - body: %s", res.StatusCode, res.Body)
	}
	return nil
}
