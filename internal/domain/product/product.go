package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	// PriceID is the payment provider's price identifier.
	PriceID  string
	TenantID string
	Active   bool
}

// File is a downloadable asset delivered with a purchased product.
type File struct {
	ID        string
	ProductID string
	Name      string
	// URL is either an absolute http(s) URL or a path relative to the
	// configured storage base URL.
	URL string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	FindByPriceID(ctx context.Context, priceID string) (*Product, error)
	Files(ctx context.Context, productID string) ([]File, error)
	GetFile(ctx context.Context, fileID string) (*File, error)
	Search(ctx context.Context, query string, limit int) ([]Product, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Product, error)
}
