package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/campaign-mailer/internal/errors"
	"github.com/unclebandit/campaign-mailer/internal/model"
)

// EmailLogRepositoryInterface covers the audit trail written by the dispatcher
// and read by the API.
type EmailLogRepositoryInterface interface {
	EnsurePending(ctx context.Context, l *model.EmailLog) error
	Finalize(ctx context.Context, l *model.EmailLog) (bool, error)
	TerminalContactIDs(ctx context.Context, campaignID string) (map[string]bool, error)

	GetByID(ctx context.Context, id string) (*model.EmailLog, error)
	List(ctx context.Context, f model.EmailLogFilter) ([]model.EmailLog, error)
	StatsByCampaign(ctx context.Context, campaignID string) (*model.CampaignStats, error)
	CountByStatus(ctx context.Context, status model.EmailStatus) (int, error)
	CountByStatusSince(ctx context.Context, status model.EmailStatus, since time.Time) (int, error)
	Recent(ctx context.Context, limit int) ([]model.EmailLog, error)
}

type EmailLogRepository struct {
	DB *sql.DB
}

const emailLogColumns = `id, campaign_id, contact_id, template_id, recipient, subject, body, status, error_message,
        ai_fallback, dry_run, sent_at, created_at, updated_at`

// EnsurePending records a pending row for (campaign, contact) unless one
// already exists.
func (r *EmailLogRepository) EnsurePending(ctx context.Context, l *model.EmailLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	l.Status = model.EmailPending

	query := `
        INSERT INTO email_logs (` + emailLogColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (campaign_id, contact_id) DO NOTHING
    `
	_, err := r.DB.ExecContext(ctx, query,
		l.ID, l.CampaignID, l.ContactID, l.TemplateID, l.Recipient, l.Subject, l.Body, l.Status, l.ErrorMessage,
		l.AIFallback, l.DryRun, l.SentAt, l.CreatedAt, l.UpdatedAt)
	return err
}

// Finalize writes the outcome for (campaign, contact) and bumps the matching
// campaign counter in the same transaction. A row that is already terminal is
// left alone and false is returned, so each recipient is counted once.
func (r *EmailLogRepository) Finalize(ctx context.Context, l *model.EmailLog) (bool, error) {
	counter, err := counterColumn(l.Status)
	if err != nil {
		return false, err
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO email_logs (` + emailLogColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (campaign_id, contact_id) DO UPDATE SET
            template_id = excluded.template_id,
            recipient = excluded.recipient,
            subject = excluded.subject,
            body = excluded.body,
            status = excluded.status,
            error_message = excluded.error_message,
            ai_fallback = excluded.ai_fallback,
            dry_run = excluded.dry_run,
            sent_at = excluded.sent_at,
            updated_at = excluded.updated_at
        WHERE email_logs.status = 'pending'
    `
	res, err := tx.ExecContext(ctx, query,
		l.ID, l.CampaignID, l.ContactID, l.TemplateID, l.Recipient, l.Subject, l.Body, l.Status, l.ErrorMessage,
		l.AIFallback, l.DryRun, l.SentAt, l.CreatedAt, l.UpdatedAt)
	recorded, err := affected(res, err)
	if err != nil {
		return false, fmt.Errorf("finalize email log: %w", err)
	}
	if !recorded {
		return false, nil
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE campaigns SET `+counter+` = `+counter+` + 1, updated_at=$1 WHERE id=$2`, now, l.CampaignID)
	ok, err := affected(res, err)
	if err != nil {
		return false, fmt.Errorf("bump %s: %w", counter, err)
	}
	if !ok {
		return false, appErrors.NewCampaignNotFound(l.CampaignID)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func counterColumn(status model.EmailStatus) (string, error) {
	switch status {
	case model.EmailSent:
		return "sent_count", nil
	case model.EmailFailed, model.EmailBounced:
		return "failed_count", nil
	}
	return "", fmt.Errorf("cannot finalize email log with status %q", status)
}

// TerminalContactIDs returns contacts of the campaign whose outcome is final.
func (r *EmailLogRepository) TerminalContactIDs(ctx context.Context, campaignID string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT contact_id FROM email_logs WHERE campaign_id=$1 AND status<>$2`, campaignID, model.EmailPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		done[id] = true
	}
	return done, rows.Err()
}

func (r *EmailLogRepository) GetByID(ctx context.Context, id string) (*model.EmailLog, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+emailLogColumns+` FROM email_logs WHERE id=$1`, id)
	l, err := scanEmailLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFound("email log", id)
	}
	return l, err
}

// List returns logs newest first, narrowed by the non-zero filter fields.
func (r *EmailLogRepository) List(ctx context.Context, f model.EmailLogFilter) ([]model.EmailLog, error) {
	conds := []string{}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.CampaignID != "" {
		add("campaign_id=$%d", f.CampaignID)
	}
	if f.ContactID != "" {
		add("contact_id=$%d", f.ContactID)
	}
	if f.Status != "" {
		add("status=$%d", f.Status)
	}
	if f.Since != nil {
		add("created_at>=$%d", f.Since.UTC())
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT `+emailLogColumns+` FROM email_logs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	return r.queryLogs(ctx, query, append(args, limit, f.Offset)...)
}

// StatsByCampaign aggregates log statuses for one campaign.
func (r *EmailLogRepository) StatsByCampaign(ctx context.Context, campaignID string) (*model.CampaignStats, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM email_logs WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &model.CampaignStats{CampaignID: campaignID}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch model.EmailStatus(status) {
		case model.EmailSent:
			stats.Sent = count
		case model.EmailFailed:
			stats.Failed = count
		case model.EmailPending:
			stats.Pending = count
		case model.EmailBounced:
			stats.Bounced = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(stats.Total) * 100
	}
	return stats, nil
}

func (r *EmailLogRepository) CountByStatus(ctx context.Context, status model.EmailStatus) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_logs WHERE status=$1`, status).Scan(&n)
	return n, err
}

func (r *EmailLogRepository) CountByStatusSince(ctx context.Context, status model.EmailStatus, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_logs WHERE status=$1 AND updated_at>=$2`, status, since.UTC()).Scan(&n)
	return n, err
}

func (r *EmailLogRepository) Recent(ctx context.Context, limit int) ([]model.EmailLog, error) {
	return r.queryLogs(ctx, `SELECT `+emailLogColumns+` FROM email_logs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (r *EmailLogRepository) queryLogs(ctx context.Context, query string, args ...any) ([]model.EmailLog, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []model.EmailLog{}
	for rows.Next() {
		l, err := scanEmailLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

func scanEmailLog(s rowScanner) (*model.EmailLog, error) {
	var l model.EmailLog
	err := s.Scan(
		&l.ID, &l.CampaignID, &l.ContactID, &l.TemplateID, &l.Recipient, &l.Subject, &l.Body, &l.Status,
		&l.ErrorMessage, &l.AIFallback, &l.DryRun, &l.SentAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

var _ EmailLogRepositoryInterface = (*EmailLogRepository)(nil)
