package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/roofgenius/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, COALESCE(price_id, ''), COALESCE(tenant_id, ''), is_active`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductByPriceIDSQL = `SELECT ` + productColumns + ` FROM products WHERE price_id = $1`

	searchProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE is_active AND name ILIKE '%' || $1 || '%'
		ORDER BY name LIMIT $2`

	listProductsByTenantSQL = `SELECT ` + productColumns + ` FROM products
		WHERE is_active AND tenant_id = $1 ORDER BY name`

	fileColumns = `id, product_id, file_name, file_url`

	listProductFilesSQL = `SELECT ` + fileColumns + ` FROM product_files WHERE product_id = $1 ORDER BY file_name, id`

	getProductFileSQL = `SELECT ` + fileColumns + ` FROM product_files WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, description, price, price_id, tenant_id, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			price_id = EXCLUDED.price_id,
			tenant_id = EXCLUDED.tenant_id,
			is_active = EXCLUDED.is_active`

	upsertProductFileSQL = `INSERT INTO product_files (id, product_id, file_name, file_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			file_name = EXCLUDED.file_name,
			file_url = EXCLUDED.file_url`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.one(ctx, getProductByIDSQL, id)
}

// FindByPriceID returns the product sold under a provider price id.
func (r *ProductRepository) FindByPriceID(ctx context.Context, priceID string) (*product.Product, error) {
	return r.one(ctx, getProductByPriceIDSQL, priceID)
}

// Search returns active products whose name contains query, case-insensitively.
func (r *ProductRepository) Search(ctx context.Context, query string, limit int) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, searchProductsSQL, escapeLike(query), limit)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ListByTenant returns the active products of a partner tenant.
func (r *ProductRepository) ListByTenant(ctx context.Context, tenantID string) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listProductsByTenantSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing products of tenant %q: %w", tenantID, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Files returns the downloadable files of a product.
func (r *ProductRepository) Files(ctx context.Context, productID string) ([]product.File, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listProductFilesSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("listing files of product %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanFile)
}

// GetFile returns a product file by id.
func (r *ProductRepository) GetFile(ctx context.Context, fileID string) (*product.File, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductFileSQL, fileID)
	if err != nil {
		return nil, fmt.Errorf("getting file %q: %w", fileID, err)
	}
	f, err := pgx.CollectExactlyOneRow(rows, scanFile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting file %q: %w", fileID, err)
	}
	return &f, nil
}

func (r *ProductRepository) one(ctx context.Context, sql, arg string) (*product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.PriceID, &p.TenantID, &p.Active)
	return p, err
}

func scanFile(row pgx.CollectableRow) (product.File, error) {
	var f product.File
	err := row.Scan(&f.ID, &f.ProductID, &f.Name, &f.URL)
	return f, err
}

// escapeLike neutralizes LIKE wildcards in user input.
func escapeLike(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			b = append(b, '\\')
		}
		b = append(b, s[i])
	}
	return string(b)
}

// Upsert creates or replaces a catalog product. Used by the seed command.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	if _, err := r.db.conn(ctx).Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.PriceID, p.TenantID, p.Active,
	); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// UpsertFile creates or replaces a product file.
func (r *ProductRepository) UpsertFile(ctx context.Context, f product.File) error {
	if _, err := r.db.conn(ctx).Exec(ctx, upsertProductFileSQL, f.ID, f.ProductID, f.Name, f.URL); err != nil {
		return fmt.Errorf("upserting product file %q: %w", f.ID, err)
	}
	return nil
}
