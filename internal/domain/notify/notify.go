// Package notify renders stored email templates and submits them to the
// email delivery provider, recording every attempt.
package notify

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrTemplateNotFound is returned when no active template has the requested name.
var ErrTemplateNotFound = errors.New("email template not found")

// Template is a named email layout. Subject and Text are text/template
// sources, HTML is an html/template source.
type Template struct {
	Name    string
	Subject string
	HTML    string
	Text    string
}

// Attachment is a file attached to an outgoing email.
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

// Email is a fully rendered message ready for delivery.
type Email struct {
	From        string
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// LogStatus is the outcome recorded for a send attempt.
type LogStatus string

// Send outcomes.
const (
	StatusSent   LogStatus = "sent"
	StatusFailed LogStatus = "failed"
)

// LogEntry records one attempted send.
type LogEntry struct {
	To        string
	Template  string
	Subject   string
	Status    LogStatus
	MessageID string
	Error     string
}

// TemplateRepository loads active templates.
type TemplateRepository interface {
	GetTemplate(ctx context.Context, name string) (*Template, error)
}

// LogRepository appends send attempts.
type LogRepository interface {
	AppendLog(ctx context.Context, entry LogEntry) error
}

// Sender delivers a rendered email and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, email Email) (string, error)
}

// DispatchError reports a failed send. It never affects order state.
type DispatchError struct {
	Template string
	To       string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s to %s: %v", e.Template, e.To, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
