// Package email delivers rendered emails through Resend.
package email

import (
	"context"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/resend/resend-go/v2"

	"github.com/xenking/roofgenius/internal/domain/notify"
)

var _ notify.Sender = (*ResendSender)(nil)

// ResendSender implements notify.Sender with the Resend API.
type ResendSender struct {
	client *resend.Client
}

// NewResendSender creates a sender authenticated with apiKey. An empty
// baseURL uses the public endpoint.
func NewResendSender(apiKey, baseURL string) (*ResendSender, error) {
	client := resend.NewClient(apiKey)
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse resend base url")
		}
		client.BaseURL = u
	}
	return &ResendSender{client: client}, nil
}

// Send submits the email and returns the provider message id.
func (s *ResendSender) Send(ctx context.Context, e notify.Email) (string, error) {
	req := &resend.SendEmailRequest{
		From:    e.From,
		To:      []string{e.To},
		Subject: e.Subject,
		Html:    e.HTML,
		Text:    e.Text,
	}
	for _, a := range e.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Filename: a.Filename,
			Content:  a.Content,
		})
	}

	resp, err := s.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "resend")
	}
	return resp.Id, nil
}
