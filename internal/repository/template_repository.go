package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/campaign-mailer/internal/errors"
	"github.com/unclebandit/campaign-mailer/internal/model"
)

type TemplateRepositoryInterface interface {
	Upsert(ctx context.Context, t *model.Template) error
	GetByID(ctx context.Context, id string) (*model.Template, error)
	List(ctx context.Context, offset, limit int) ([]model.Template, int, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

const templateColumns = `id, name, description, subject, content, placeholders, use_llm, created_at, updated_at`

// Upsert creates the template when ID is empty or unknown and replaces it
// otherwise. CreatedAt is preserved on replace.
func (r *TemplateRepository) Upsert(ctx context.Context, t *model.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Placeholders == nil {
		t.Placeholders = []string{}
	}
	placeholdersJSON, err := encodeJSON(t.Placeholders)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO templates (` + templateColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            name = excluded.name,
            description = excluded.description,
            subject = excluded.subject,
            content = excluded.content,
            placeholders = excluded.placeholders,
            use_llm = excluded.use_llm,
            updated_at = excluded.updated_at
    `
	_, err = r.DB.ExecContext(ctx, query,
		t.ID, t.Name, t.Description, t.Subject, t.Content, placeholdersJSON, t.UseLLM, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*model.Template, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id=$1`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	return t, err
}

func (r *TemplateRepository) List(ctx context.Context, offset, limit int) ([]model.Template, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM templates ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	templates := []model.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		templates = append(templates, *t)
	}
	return templates, total, rows.Err()
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM templates WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewTemplateNotFound(id)
	}
	return nil
}

func (r *TemplateRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&n)
	return n, err
}

func scanTemplate(s rowScanner) (*model.Template, error) {
	var t model.Template
	var placeholdersJSON string
	if err := s.Scan(&t.ID, &t.Name, &t.Description, &t.Subject, &t.Content, &placeholdersJSON, &t.UseLLM, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if t.Placeholders, err = decodeStrings(placeholdersJSON); err != nil {
		return nil, err
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
