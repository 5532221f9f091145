package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/roofgenius/internal/domain/order"
)

const (
	orderColumns = `id, stripe_session_id, COALESCE(user_id, ''), COALESCE(product_id, ''),
		COALESCE(customer_email, ''), amount, status, fulfilled_at, created_at`

	findOrderBySessionSQL = `SELECT ` + orderColumns + ` FROM orders WHERE stripe_session_id = $1`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	insertPendingOrderSQL = `INSERT INTO orders (id, stripe_session_id, user_id, product_id, customer_email, amount, status)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, 'pending')
		ON CONFLICT (stripe_session_id) DO NOTHING`

	assignProductSQL = `UPDATE orders SET product_id = $2 WHERE id = $1 AND product_id IS NULL`

	markCompletedSQL = `UPDATE orders SET status = 'completed', fulfilled_at = now()
		WHERE id = $1 AND status <> 'completed'`

	listRecentOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// FindBySession returns the order created for a checkout session.
func (r *OrderRepository) FindBySession(ctx context.Context, sessionID string) (*order.Order, error) {
	return r.one(ctx, findOrderBySessionSQL, sessionID)
}

// Get returns an order by id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderSQL, id)
}

// UpsertPending inserts a pending order unless the session already has one,
// then returns the stored row.
func (r *OrderRepository) UpsertPending(ctx context.Context, p order.PendingOrder) (*order.Order, error) {
	_, err := r.db.conn(ctx).Exec(ctx, insertPendingOrderSQL,
		uuid.New().String(), p.SessionID, p.UserID, p.ProductID, p.CustomerEmail, p.Amount,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting order for session %q: %w", p.SessionID, err)
	}
	return r.FindBySession(ctx, p.SessionID)
}

// AssignProduct sets the product of an order that has none.
func (r *OrderRepository) AssignProduct(ctx context.Context, orderID, productID string) error {
	if _, err := r.db.conn(ctx).Exec(ctx, assignProductSQL, orderID, productID); err != nil {
		return fmt.Errorf("assigning product to order %q: %w", orderID, err)
	}
	return nil
}

// MarkCompleted moves the order to completed with a single conditional
// update and reports whether this call changed the row.
func (r *OrderRepository) MarkCompleted(ctx context.Context, orderID string) (bool, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, markCompletedSQL, orderID)
	if err != nil {
		return false, fmt.Errorf("completing order %q: %w", orderID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListRecent returns the newest orders first.
func (r *OrderRepository) ListRecent(ctx context.Context, limit int) ([]order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listRecentOrdersSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListByUser returns a user's newest orders first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listOrdersByUserSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (r *OrderRepository) one(ctx context.Context, sql string, arg string) (*order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.SessionID, &o.UserID, &o.ProductID,
		&o.CustomerEmail, &o.Amount, &status, &o.FulfilledAt, &o.CreatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}
