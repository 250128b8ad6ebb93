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

// ContactRepositoryInterface defines methods used by services
type ContactRepositoryInterface interface {
	Create(ctx context.Context, c *model.Contact) error
	Upsert(ctx context.Context, c *model.Contact) error
	GetByID(ctx context.Context, id string) (*model.Contact, error)
	GetByEmail(ctx context.Context, email string) (*model.Contact, error)
	List(ctx context.Context, offset, limit int, active *bool) ([]model.Contact, int, error)
	Delete(ctx context.Context, id string) error
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	Count(ctx context.Context) (int, error)
}

// ContactRepository is the concrete implementation
type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, email, first_name, last_name, custom_fields, tags, active, created_at, updated_at`

// Create inserts a new contact. A duplicate email is a conflict.
func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	fields, tags, err := encodeContactJSON(c)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO contacts (` + contactColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err = r.DB.ExecContext(ctx, query, c.ID, c.Email, c.FirstName, c.LastName, fields, tags, c.Active, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return appErrors.NewConflict("contact", "", fmt.Sprintf("email %s already exists", c.Email))
	}
	return err
}

// Upsert inserts or replaces the contact keyed by ID.
func (r *ContactRepository) Upsert(ctx context.Context, c *model.Contact) error {
	if c.ID == "" {
		return r.Create(ctx, c)
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	fields, tags, err := encodeContactJSON(c)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO contacts (` + contactColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            email = excluded.email,
            first_name = excluded.first_name,
            last_name = excluded.last_name,
            custom_fields = excluded.custom_fields,
            tags = excluded.tags,
            active = excluded.active,
            updated_at = excluded.updated_at
    `
	_, err = r.DB.ExecContext(ctx, query, c.ID, c.Email, c.FirstName, c.LastName, fields, tags, c.Active, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return appErrors.NewConflict("contact", c.ID, fmt.Sprintf("email %s already exists", c.Email))
	}
	return err
}

// GetByID fetches a contact by ID
func (r *ContactRepository) GetByID(ctx context.Context, id string) (*model.Contact, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewContactNotFound(id)
	}
	return c, err
}

func (r *ContactRepository) GetByEmail(ctx context.Context, email string) (*model.Contact, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE email = $1`, email)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFound("contact", email)
	}
	return c, err
}

// List returns one page of contacts, oldest first, plus the filtered total.
func (r *ContactRepository) List(ctx context.Context, offset, limit int, active *bool) ([]model.Contact, int, error) {
	where := ""
	args := []any{}
	if active != nil {
		where = " WHERE active = $1"
		args = append(args, *active)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+contactColumns+` FROM contacts%s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, total, rows.Err()
}

// Delete removes the contact. Campaign membership is left untouched.
func (r *ContactRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewContactNotFound(id)
	}
	return nil
}

// ExistingIDs reports which of ids exist.
func (r *ContactRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM contacts WHERE id IN (`+placeholders(1, len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}

func (r *ContactRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&n)
	return n, err
}

func encodeContactJSON(c *model.Contact) (string, string, error) {
	if c.CustomFields == nil {
		c.CustomFields = map[string]string{}
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	fields, err := encodeJSON(c.CustomFields)
	if err != nil {
		return "", "", err
	}
	tags, err := encodeJSON(c.Tags)
	if err != nil {
		return "", "", err
	}
	return fields, tags, nil
}

func scanContact(s rowScanner) (*model.Contact, error) {
	var c model.Contact
	var fields, tags string
	if err := s.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &fields, &tags, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.CustomFields, err = decodeStringMap(fields); err != nil {
		return nil, err
	}
	if c.Tags, err = decodeStrings(tags); err != nil {
		return nil, err
	}
	return &c, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
