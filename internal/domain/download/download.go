// Package download issues and redeems time-limited download tokens for
// purchased product files.
package download

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// DefaultTTL is the lifetime of a freshly issued token.
const DefaultTTL = 30 * 24 * time.Hour

// Token redemption errors.
var (
	ErrMalformed = errors.New("malformed download token")
	ErrNotFound  = errors.New("download token not found")
	ErrExpired   = errors.New("download token expired")
)

var tokenPattern = regexp.MustCompile(`^[\w-]{20,}$`)

// Token grants access to one product file of one order.
type Token struct {
	ID         string
	OrderID    string
	FileID     string
	UserID     string
	Value      string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Link is a file name paired with the URL that downloads it.
type Link struct {
	FileName string
	URL      string
}

// Issued is a stored token joined with the name of the file it unlocks.
type Issued struct {
	Value    string
	FileName string
}

// AccessLog records a single redeemed download.
type AccessLog struct {
	Token     string
	FileID    string
	IP        string
	UserAgent string
}

// Repository defines persistence operations for download tokens.
type Repository interface {
	// CreateBatch stores tokens. Storing a second token for the same
	// (order, file) pair is an error.
	CreateBatch(ctx context.Context, tokens []Token) error
	FindByValue(ctx context.Context, value string) (*Token, error)
	// Consume marks an unexpired, unconsumed token as used and reports
	// whether this call consumed it.
	Consume(ctx context.Context, value string, at time.Time) (bool, error)
	ListByOrder(ctx context.Context, orderID string) ([]Issued, error)
	LogAccess(ctx context.Context, entry AccessLog) error
}

// LinkFor builds the public download URL for a token.
func LinkFor(siteURL, token string) string {
	return strings.TrimSuffix(siteURL, "/") + "/api/download/" + token
}
