package download

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/roofgenius/internal/domain/product"
)

// Grant is a validated token together with the file it unlocks.
type Grant struct {
	Token Token
	File  product.File
}

// Service redeems download tokens.
type Service struct {
	tokens   Repository
	products product.Repository
	siteURL  string
	now      func() time.Time
}

// NewService creates a redemption Service.
func NewService(siteURL string, tokens Repository, products product.Repository) *Service {
	return &Service{
		tokens:   tokens,
		products: products,
		siteURL:  siteURL,
		now:      time.Now,
	}
}

// Authorize validates a token value without consuming it. Unknown and
// consumed tokens yield ErrNotFound, expired ones ErrExpired.
func (s *Service) Authorize(ctx context.Context, value string) (*Grant, error) {
	if !tokenPattern.MatchString(value) {
		return nil, ErrMalformed
	}

	tok, err := s.tokens.FindByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	if tok.ConsumedAt != nil {
		return nil, ErrNotFound
	}
	if !s.now().Before(tok.ExpiresAt) {
		return nil, ErrExpired
	}

	f, err := s.products.GetFile(ctx, tok.FileID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get file")
	}
	return &Grant{Token: *tok, File: *f}, nil
}

// Redeem consumes the granted token and records the access. It returns
// ErrNotFound when a concurrent request consumed the token first. A failed
// access log write does not fail the redemption.
func (s *Service) Redeem(ctx context.Context, g *Grant, ip, userAgent string) error {
	ok, err := s.tokens.Consume(ctx, g.Token.Value, s.now())
	if err != nil {
		return errors.Wrap(err, "consume token")
	}
	if !ok {
		return ErrNotFound
	}
	if err := s.tokens.LogAccess(ctx, AccessLog{
		Token:     g.Token.Value,
		FileID:    g.File.ID,
		IP:        ip,
		UserAgent: userAgent,
	}); err != nil {
		zctx.From(ctx).Warn("Download log failed",
			zap.String("file_id", g.File.ID),
			zap.Error(err),
		)
	}
	return nil
}

// Links lists the download links issued for an order.
func (s *Service) Links(ctx context.Context, orderID string) ([]Link, error) {
	issued, err := s.tokens.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list tokens")
	}
	links := make([]Link, len(issued))
	for i, it := range issued {
		name := it.FileName
		if name == "" {
			name = "File"
		}
		links[i] = Link{FileName: name, URL: LinkFor(s.siteURL, it.Value)}
	}
	return links, nil
}
