package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/roofgenius/internal/domain/download"
)

const (
	insertDownloadSQL = `INSERT INTO downloads (id, order_id, product_file_id, user_id, download_token, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`

	findDownloadSQL = `SELECT id, order_id, product_file_id, COALESCE(user_id, ''), download_token, expires_at, consumed_at
		FROM downloads WHERE download_token = $1`

	consumeDownloadSQL = `UPDATE downloads SET consumed_at = $2
		WHERE download_token = $1 AND consumed_at IS NULL AND expires_at > $2`

	listDownloadsByOrderSQL = `SELECT d.download_token, COALESCE(f.file_name, '')
		FROM downloads d LEFT JOIN product_files f ON f.id = d.product_file_id
		WHERE d.order_id = $1 ORDER BY f.file_name, d.id`

	insertDownloadLogSQL = `INSERT INTO download_logs (token, file_id, ip, user_agent) VALUES ($1, $2, $3, $4)`
)

var _ download.Repository = (*DownloadRepository)(nil)

// DownloadRepository implements download.Repository backed by PostgreSQL.
type DownloadRepository struct {
	db *DB
}

// NewDownloadRepository returns a DownloadRepository.
func NewDownloadRepository(db *DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// CreateBatch inserts tokens in one round trip. It joins the caller's
// transaction when there is one.
func (r *DownloadRepository) CreateBatch(ctx context.Context, tokens []download.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, t := range tokens {
		b.Queue(insertDownloadSQL, t.ID, t.OrderID, t.FileID, t.UserID, t.Value, t.ExpiresAt)
	}
	if err := r.db.conn(ctx).SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("inserting %d download tokens: %w", len(tokens), err)
	}
	return nil
}

// FindByValue returns a token by its value.
func (r *DownloadRepository) FindByValue(ctx context.Context, value string) (*download.Token, error) {
	var t download.Token
	err := r.db.conn(ctx).QueryRow(ctx, findDownloadSQL, value).Scan(
		&t.ID, &t.OrderID, &t.FileID, &t.UserID, &t.Value, &t.ExpiresAt, &t.ConsumedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, download.ErrNotFound
		}
		return nil, fmt.Errorf("finding download token: %w", err)
	}
	return &t, nil
}

// Consume marks an unexpired, unconsumed token as used.
func (r *DownloadRepository) Consume(ctx context.Context, value string, at time.Time) (bool, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, consumeDownloadSQL, value, at)
	if err != nil {
		return false, fmt.Errorf("consuming download token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByOrder returns the tokens issued for an order with their file names.
func (r *DownloadRepository) ListByOrder(ctx context.Context, orderID string) ([]download.Issued, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listDownloadsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing downloads of order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (download.Issued, error) {
		var it download.Issued
		err := row.Scan(&it.Value, &it.FileName)
		return it, err
	})
}

// LogAccess appends a download log entry.
func (r *DownloadRepository) LogAccess(ctx context.Context, e download.AccessLog) error {
	if _, err := r.db.conn(ctx).Exec(ctx, insertDownloadLogSQL, e.Token, e.FileID, e.IP, e.UserAgent); err != nil {
		return fmt.Errorf("logging download: %w", err)
	}
	return nil
}
