package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/roofgenius/internal/domain/notify"
)

const (
	getEmailTemplateSQL = `SELECT name, subject, html_content, COALESCE(text_content, '')
		FROM email_templates WHERE name = $1 AND is_active`

	upsertEmailTemplateSQL = `INSERT INTO email_templates (name, subject, html_content, text_content, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), TRUE)
		ON CONFLICT (name) DO UPDATE SET
			subject = EXCLUDED.subject,
			html_content = EXCLUDED.html_content,
			text_content = EXCLUDED.text_content,
			is_active = TRUE`

	insertEmailLogSQL = `INSERT INTO email_logs (to_email, template, subject, status, message_id, error)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`
)

var (
	_ notify.TemplateRepository = (*EmailRepository)(nil)
	_ notify.LogRepository      = (*EmailRepository)(nil)
)

// EmailRepository stores email templates and the send log.
type EmailRepository struct {
	db *DB
}

// NewEmailRepository returns an EmailRepository.
func NewEmailRepository(db *DB) *EmailRepository {
	return &EmailRepository{db: db}
}

// GetTemplate returns an active template by name.
func (r *EmailRepository) GetTemplate(ctx context.Context, name string) (*notify.Template, error) {
	var t notify.Template
	err := r.db.conn(ctx).QueryRow(ctx, getEmailTemplateSQL, name).Scan(&t.Name, &t.Subject, &t.HTML, &t.Text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notify.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("getting email template %q: %w", name, err)
	}
	return &t, nil
}

// UpsertTemplate creates or replaces a template and activates it.
func (r *EmailRepository) UpsertTemplate(ctx context.Context, t notify.Template) error {
	if _, err := r.db.conn(ctx).Exec(ctx, upsertEmailTemplateSQL, t.Name, t.Subject, t.HTML, t.Text); err != nil {
		return fmt.Errorf("upserting email template %q: %w", t.Name, err)
	}
	return nil
}

// AppendLog records a send attempt.
func (r *EmailRepository) AppendLog(ctx context.Context, e notify.LogEntry) error {
	_, err := r.db.conn(ctx).Exec(ctx, insertEmailLogSQL,
		e.To, e.Template, e.Subject, string(e.Status), e.MessageID, e.Error,
	)
	if err != nil {
		return fmt.Errorf("appending email log: %w", err)
	}
	return nil
}
