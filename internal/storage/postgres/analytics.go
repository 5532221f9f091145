package postgres

import (
	"context"
	"fmt"

	"github.com/xenking/roofgenius/internal/domain/analytics"
)

const insertAnalyticsEventSQL = `INSERT INTO analytics_events (user_id, event_type, event_data, created_at)
	VALUES (NULLIF($1, ''), $2, $3::jsonb, $4)`

var _ analytics.Tracker = (*AnalyticsRepository)(nil)

// AnalyticsRepository stores analytics events in the analytics_events table.
type AnalyticsRepository struct {
	db *DB
}

// NewAnalyticsRepository returns an AnalyticsRepository.
func NewAnalyticsRepository(db *DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Track inserts the event.
func (r *AnalyticsRepository) Track(ctx context.Context, e analytics.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, err := r.db.conn(ctx).Exec(ctx, insertAnalyticsEventSQL,
		e.UserID, e.Type, string(e.DataOrEmpty()), e.OccurredAt,
	); err != nil {
		return fmt.Errorf("inserting %s event: %w", e.Type, err)
	}
	return nil
}
