package notify

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Message is a request to send a named template to one recipient.
type Message struct {
	To          string
	Template    string
	Data        any
	Attachments []Attachment
}

// Dispatcher renders templates and sends them through a Sender.
type Dispatcher struct {
	templates TemplateRepository
	logs      LogRepository
	sender    Sender
	from      string
}

// NewDispatcher creates a Dispatcher sending from the given address.
func NewDispatcher(from string, templates TemplateRepository, logs LogRepository, sender Sender) *Dispatcher {
	return &Dispatcher{
		templates: templates,
		logs:      logs,
		sender:    sender,
		from:      from,
	}
}

// Send renders msg.Template with msg.Data and delivers it. Every attempt is
// logged; failures are returned as *DispatchError.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (string, error) {
	email, err := d.render(ctx, msg)
	if err != nil {
		d.record(ctx, LogEntry{
			To:       msg.To,
			Template: msg.Template,
			Status:   StatusFailed,
			Error:    err.Error(),
		})
		return "", &DispatchError{Template: msg.Template, To: msg.To, Err: err}
	}

	id, err := d.sender.Send(ctx, email)
	if err != nil {
		d.record(ctx, LogEntry{
			To:       msg.To,
			Template: msg.Template,
			Subject:  email.Subject,
			Status:   StatusFailed,
			Error:    err.Error(),
		})
		return "", &DispatchError{Template: msg.Template, To: msg.To, Err: err}
	}

	d.record(ctx, LogEntry{
		To:        msg.To,
		Template:  msg.Template,
		Subject:   email.Subject,
		Status:    StatusSent,
		MessageID: id,
	})
	return id, nil
}

func (d *Dispatcher) render(ctx context.Context, msg Message) (Email, error) {
	tpl, err := d.templates.GetTemplate(ctx, msg.Template)
	if err != nil {
		return Email{}, errors.Wrap(err, "load template")
	}

	subject, err := renderText(tpl.Name+".subject", tpl.Subject, msg.Data)
	if err != nil {
		return Email{}, err
	}
	html, err := renderHTML(tpl.Name+".html", tpl.HTML, msg.Data)
	if err != nil {
		return Email{}, err
	}
	var text string
	if tpl.Text != "" {
		if text, err = renderText(tpl.Name+".text", tpl.Text, msg.Data); err != nil {
			return Email{}, err
		}
	}

	return Email{
		From:        d.from,
		To:          msg.To,
		Subject:     subject,
		HTML:        html,
		Text:        text,
		Attachments: msg.Attachments,
	}, nil
}

// record appends a log entry. The log is diagnostic only, so write failures
// are reported and dropped.
func (d *Dispatcher) record(ctx context.Context, entry LogEntry) {
	if err := d.logs.AppendLog(ctx, entry); err != nil {
		zctx.From(ctx).Warn("Email log write failed",
			zap.String("template", entry.Template),
			zap.Error(err),
		)
	}
}

func renderText(name, src string, data any) (string, error) {
	t, err := texttemplate.New(name).Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", errors.Wrapf(err, "parse %s", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render %s", name)
	}
	return buf.String(), nil
}

func renderHTML(name, src string, data any) (string, error) {
	t, err := htmltemplate.New(name).Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", errors.Wrapf(err, "parse %s", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render %s", name)
	}
	return buf.String(), nil
}
