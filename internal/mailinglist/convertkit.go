// Package mailinglist subscribes addresses to the ConvertKit newsletter form.
package mailinglist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

const defaultBaseURL = "https://api.convertkit.com"

// ErrEmailRequired is returned for an empty address.
var ErrEmailRequired = errors.New("email required")

// ProviderError is a non-2xx answer from the mailing list provider.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("convertkit: status %d: %s", e.StatusCode, e.Body)
}

// Config holds client settings.
type Config struct {
	APIKey  string
	FormID  string
	BaseURL string
	Timeout time.Duration
}

// Client subscribes emails to a form.
type Client struct {
	apiKey  string
	formID  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  cfg.APIKey,
		formID:  cfg.FormID,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Subscribe adds email to the form. The call is not retried.
func (c *Client) Subscribe(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("api_key", func(e *jx.Encoder) { e.Str(c.apiKey) })
		e.Field("email", func(e *jx.Encoder) { e.Str(email) })
	})

	endpoint := fmt.Sprintf("%s/v3/forms/%s/subscribe", c.baseURL, url.PathEscape(c.formID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(e.Bytes()))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "subscribe")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
