package core

import (
	"bytes"
	"context"
	"embed"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

//go:embed all:templates/email
var templatesFS embed.FS

const templatesDir = "templates/email"

var ErrMailNotConfigured = NewError(KindFailedPrecondition, "mail relay is not configured")

type (
	tmplCacheEntry map[string]interface{}    // {ext: *Template}
	tmplCache      map[string]tmplCacheEntry // {name: {tmplCacheEntry}}

	// Templates holds the parsed email templates. Build it once with ParseTemplates and share it.
	Templates struct {
		cache   tmplCache
		appName string
		baseURL string
	}

	EmailMessage struct {
		To      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		CallbackBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages renders and sends messages in order, stopping at the first failure.
		SendMessages(ctx context.Context, messages ...*EmailMessage) error
	}
)

// ParseTemplates parses the embedded email templates.
// In strict mode, missing template keys fail rendering instead of printing "<no value>".
func ParseTemplates(conf *Config) (*Templates, error) {
	tmpls := &Templates{
		cache:   make(tmplCache),
		appName: conf.AppName,
		baseURL: conf.CallbackBaseURL,
	}
	strict := conf.Debug || conf.TestMode

	fps, err := fs.Glob(templatesFS, path.Join(templatesDir, "*"))
	if err != nil {
		return nil, errors.Wrap(err, "listing templates")
	}
	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := fname[:strings.LastIndex(fname, ".")]
		entry, ok := tmpls.cache[name]
		if !ok {
			entry = make(tmplCacheEntry)
			tmpls.cache[name] = entry
		}
		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(templatesFS, path.Join(templatesDir, "_base.txt"), fp)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fname)
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		} else {
			tmpl, err := htmltmpl.ParseFS(templatesFS, path.Join(templatesDir, "_base.gohtml"), fp)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fname)
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		}
	}
	return tmpls, nil
}

// Has reports whether a template with the given name (without ext) exists.
func (t *Templates) Has(name string) bool {
	_, ok := t.cache[name]
	return ok
}

func (t *Templates) get(name, ext string) (interface{}, bool) {
	entry, ok := t.cache[name]
	if !ok {
		return nil, ok
	}
	tmpl, ok := entry[ext]
	return tmpl, ok
}

func (t *Templates) contextData(m *EmailMessage) ContextData {
	return ContextData{
		AppName:         t.appName,
		CallbackBaseURL: t.baseURL,
		Data:            m.TemplateData,
	}
}

// Render fills m.TextContent and m.HTMLContent from m.BodyStr or from the m.TemplateName templates.
func (t *Templates) Render(m *EmailMessage) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}
	if !t.Has(m.TemplateName) {
		return errors.Errorf("unknown email template %q", m.TemplateName)
	}

	if m.TextContent == "" {
		if tmpl, ok := t.get(m.TemplateName, ".txt"); ok {
			var buff bytes.Buffer
			if err := tmpl.(*texttmpl.Template).Execute(&buff, t.contextData(m)); err != nil {
				return errors.Wrap(err, "rendering text")
			}
			m.TextContent = buff.String()
		}
	}
	if tmpl, ok := t.get(m.TemplateName, ".gohtml"); ok {
		var buff bytes.Buffer
		if err := tmpl.(*htmltmpl.Template).Execute(&buff, t.contextData(m)); err != nil {
			return errors.Wrap(err, "rendering html")
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
