package download

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/roofgenius/internal/domain/order"
	"github.com/xenking/roofgenius/internal/domain/product"
)

// tokenBytes is the entropy of a token before encoding.
const tokenBytes = 32

// IssuerConfig holds non-dependency configuration for the Issuer.
type IssuerConfig struct {
	// SiteURL is the public base URL download links are built on.
	SiteURL string
	// TTL is the token lifetime. Zero means DefaultTTL.
	TTL time.Duration
}

// Issuer mints one token per product file of an order.
type Issuer struct {
	repo    Repository
	siteURL string
	ttl     time.Duration
	now     func() time.Time
	random  io.Reader
}

// NewIssuer creates an Issuer that persists tokens to repo.
func NewIssuer(cfg IssuerConfig, repo Repository) *Issuer {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		repo:    repo,
		siteURL: cfg.SiteURL,
		ttl:     ttl,
		now:     time.Now,
		random:  rand.Reader,
	}
}

// Issue stores a fresh token for every file and returns the resulting links.
// An order without files yields no links and no writes.
func (i *Issuer) Issue(ctx context.Context, o *order.Order, files []product.File) ([]Link, error) {
	if len(files) == 0 {
		return []Link{}, nil
	}

	expiresAt := i.now().UTC().Add(i.ttl)
	tokens := make([]Token, len(files))
	links := make([]Link, len(files))
	for idx, f := range files {
		value, err := i.newValue()
		if err != nil {
			return nil, errors.Wrap(err, "generate token")
		}
		tokens[idx] = Token{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			FileID:    f.ID,
			UserID:    o.UserID,
			Value:     value,
			ExpiresAt: expiresAt,
		}
		links[idx] = Link{FileName: f.Name, URL: LinkFor(i.siteURL, value)}
	}

	if err := i.repo.CreateBatch(ctx, tokens); err != nil {
		return nil, errors.Wrapf(err, "store tokens for order %s", o.ID)
	}
	return links, nil
}

func (i *Issuer) newValue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
