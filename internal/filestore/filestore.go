// Package filestore reads purchased files from object storage over HTTP.
package filestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/hashicorp/go-retryablehttp"
)

// ErrNotFound is returned when storage has no object at the resolved URL.
var ErrNotFound = errors.New("file not found in storage")

// StatusError is an unexpected storage response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("storage %s: status %d", e.URL, e.StatusCode)
}

// Config holds Fetcher settings.
type Config struct {
	// BaseURL is prepended to relative file paths.
	BaseURL string
	// Timeout bounds waiting for response headers. Reading the body is
	// governed by the caller's context only. Zero means 10s.
	Timeout time.Duration
}

// Object is an open file. Callers must close Body.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Fetcher opens files by absolute URL or by path under BaseURL. GETs are
// retried once on connection errors and 5xx.
type Fetcher struct {
	base   *url.URL
	client *retryablehttp.Client
}

// New creates a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	f := &Fetcher{}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse storage base url")
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		f.base = u
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = timeout

	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Transport: tr}
	c.RetryMax = 1
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.Logger = nil
	f.client = c
	return f, nil
}

// Resolve returns the absolute URL for a stored file reference.
func (f *Fetcher) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", errors.Wrap(err, "parse file url")
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", errors.Errorf("unsupported file url scheme %q", u.Scheme)
		}
		return u.String(), nil
	}
	if f.base == nil {
		return "", errors.Errorf("relative file path %q without storage base url", ref)
	}
	return f.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(u.Path, "/")}).String(), nil
}

// Open starts reading the file at ref.
func (f *Fetcher) Open(ctx context.Context, ref string) (*Object, error) {
	target, err := f.Resolve(ref)
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch file")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, ErrNotFound
	default:
		_ = resp.Body.Close()
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Object{Body: resp.Body, ContentType: ct, ContentLength: resp.ContentLength}, nil
}
