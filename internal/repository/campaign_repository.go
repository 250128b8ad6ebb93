package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/campaign-mailer/internal/errors"
	"github.com/unclebandit/campaign-mailer/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(ctx context.Context, c *model.Campaign) error
	Update(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
	ListByStatus(ctx context.Context, status model.CampaignStatus) ([]*model.Campaign, error)
	Delete(ctx context.Context, id string) error

	// Membership
	MemberIDs(ctx context.Context, campaignID string) ([]string, error)
	ActiveRecipients(ctx context.Context, campaignID string) ([]model.Contact, error)

	// Lifecycle
	TryStart(ctx context.Context, id string, dryRun bool, at time.Time) (bool, error)
	Transition(ctx context.Context, id string, from, to model.CampaignStatus, at time.Time) (bool, error)
	RequestPause(ctx context.Context, id string, at time.Time) (bool, error)
	PauseRequested(ctx context.Context, id string) (bool, error)
	PauseIfRequested(ctx context.Context, id string, at time.Time) (bool, error)

	// Dashboard
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context, status model.CampaignStatus) (int, error)
	Recent(ctx context.Context, limit int) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, description, template_id, from_email, status, total_count, sent_count, failed_count,
        dry_run, pause_requested, scheduled_at, started_at, completed_at, created_at, updated_at`

// ====================== Campaign CRUD ======================

// Create stores the campaign and its membership snapshot in one transaction.
// TotalCount is fixed to the snapshot size.
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.TotalCount = len(c.ContactIDs)
	c.SentCount, c.FailedCount = 0, 0

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO campaigns (` + campaignColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `
	if _, err := tx.ExecContext(ctx, query,
		c.ID, c.Name, c.Description, c.TemplateID, c.FromEmail, c.Status, c.TotalCount, c.SentCount, c.FailedCount,
		c.DryRun, c.PauseRequested, c.ScheduledAt, c.StartedAt, c.CompletedAt, c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	for i, contactID := range c.ContactIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO campaign_contacts (campaign_id, contact_id, position) VALUES ($1, $2, $3)`,
			c.ID, contactID, i,
		); err != nil {
			if isUniqueViolation(err) {
				return appErrors.NewValidation("contact_ids", "duplicate contact "+contactID)
			}
			return fmt.Errorf("insert campaign member: %w", err)
		}
	}
	return tx.Commit()
}

// Update rewrites the editable fields of a draft campaign.
func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) error {
	c.UpdatedAt = time.Now().UTC()
	query := `
        UPDATE campaigns
        SET name=$1, description=$2, template_id=$3, from_email=$4, scheduled_at=$5, updated_at=$6
        WHERE id=$7 AND status=$8
    `
	res, err := r.DB.ExecContext(ctx, query,
		c.Name, c.Description, c.TemplateID, c.FromEmail, c.ScheduledAt, c.UpdatedAt, c.ID, model.CampaignDraft)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missOrConflict(ctx, c.ID, "only draft campaigns can be edited")
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	if c.ContactIDs, err = r.MemberIDs(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns returns newest campaigns first. Membership is not loaded.
func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	where := ""
	args := []any{}
	if status != "" {
		where = " WHERE status=$1"
		args = append(args, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+campaignColumns+` FROM campaigns%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	campaigns, err := r.queryCampaigns(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) ListByStatus(ctx context.Context, status model.CampaignStatus) ([]*model.Campaign, error) {
	return r.queryCampaigns(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE status=$1 ORDER BY created_at`, status)
}

// Delete removes the campaign with its membership and logs. A campaign that
// is being dispatched cannot be deleted.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM campaigns WHERE id=$1 AND status<>$2`, id, model.CampaignInProgress)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id=$1`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.NewCampaignNotFound(id)
		}
		if err != nil {
			return err
		}
		return appErrors.NewConflict("campaign", id, "campaign is in progress")
	}

	// sqlite does not enforce the cascade unless foreign keys are switched on
	if _, err := tx.ExecContext(ctx, `DELETE FROM email_logs WHERE campaign_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_contacts WHERE campaign_id=$1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ====================== Membership ======================

// MemberIDs returns the snapshot taken at creation, in insertion order.
func (r *CampaignRepository) MemberIDs(ctx context.Context, campaignID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT contact_id FROM campaign_contacts WHERE campaign_id=$1 ORDER BY position`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActiveRecipients resolves the snapshot against contacts that still exist
// and are active, ordered by contact creation time.
func (r *CampaignRepository) ActiveRecipients(ctx context.Context, campaignID string) ([]model.Contact, error) {
	query := `
        SELECT c.id, c.email, c.first_name, c.last_name, c.custom_fields, c.tags, c.active, c.created_at, c.updated_at
        FROM campaign_contacts cc
        JOIN contacts c ON c.id = cc.contact_id
        WHERE cc.campaign_id=$1 AND c.active=$2
        ORDER BY c.created_at, c.id
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// ====================== Lifecycle ======================

// TryStart moves a draft or paused campaign to in_progress. It reports false
// when the campaign was not in a startable state.
func (r *CampaignRepository) TryStart(ctx context.Context, id string, dryRun bool, at time.Time) (bool, error) {
	query := `
        UPDATE campaigns
        SET status=$1, dry_run=$2, started_at=$3, pause_requested=$4, updated_at=$3
        WHERE id=$5 AND status IN ($6, $7)
    `
	res, err := r.DB.ExecContext(ctx, query,
		model.CampaignInProgress, dryRun, at.UTC(), false, id, model.CampaignDraft, model.CampaignPaused)
	return affected(res, err)
}

// Transition is a compare-and-set on status. It clears any pending pause
// request; entering completed stamps completed_at.
func (r *CampaignRepository) Transition(ctx context.Context, id string, from, to model.CampaignStatus, at time.Time) (bool, error) {
	var completedAt *time.Time
	if to == model.CampaignCompleted {
		t := at.UTC()
		completedAt = &t
	}
	query := `
        UPDATE campaigns
        SET status=$1, updated_at=$2, completed_at=COALESCE($3, completed_at), pause_requested=$4
        WHERE id=$5 AND status=$6
    `
	res, err := r.DB.ExecContext(ctx, query, to, at.UTC(), completedAt, false, id, from)
	return affected(res, err)
}

// RequestPause flags a running campaign. The dispatch loop honours it at the
// next recipient boundary.
func (r *CampaignRepository) RequestPause(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaigns SET pause_requested=$1, updated_at=$2 WHERE id=$3 AND status=$4`,
		true, at.UTC(), id, model.CampaignInProgress)
	return affected(res, err)
}

// PauseRequested reads the pause flag without changing anything.
func (r *CampaignRepository) PauseRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := r.DB.QueryRowContext(ctx, `SELECT pause_requested FROM campaigns WHERE id=$1`, id).Scan(&requested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, appErrors.NewCampaignNotFound(id)
	}
	return requested, err
}

// PauseIfRequested parks the campaign if a pause was requested.
func (r *CampaignRepository) PauseIfRequested(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaigns SET status=$1, pause_requested=$2, updated_at=$3 WHERE id=$4 AND status=$5 AND pause_requested=$6`,
		model.CampaignPaused, false, at.UTC(), id, model.CampaignInProgress, true)
	return affected(res, err)
}

// ====================== Dashboard ======================

func (r *CampaignRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`).Scan(&n)
	return n, err
}

func (r *CampaignRepository) CountByStatus(ctx context.Context, status model.CampaignStatus) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns WHERE status=$1`, status).Scan(&n)
	return n, err
}

func (r *CampaignRepository) Recent(ctx context.Context, limit int) ([]*model.Campaign, error) {
	return r.queryCampaigns(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

// ====================== helpers ======================

func (r *CampaignRepository) queryCampaigns(ctx context.Context, query string, args ...any) ([]*model.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) missOrConflict(ctx context.Context, id, reason string) error {
	var status string
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.NewCampaignNotFound(id)
	}
	if err != nil {
		return err
	}
	return appErrors.NewConflict("campaign", id, fmt.Sprintf("%s (status %s)", reason, status))
}

func scanCampaign(s rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := s.Scan(
		&c.ID, &c.Name, &c.Description, &c.TemplateID, &c.FromEmail, &c.Status,
		&c.TotalCount, &c.SentCount, &c.FailedCount, &c.DryRun, &c.PauseRequested,
		&c.ScheduledAt, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
