package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/campaign-mailer/internal/errors"
	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/repository"
)

var validate = validator.New()

type ContactService struct {
	ContactRepo repository.ContactRepositoryInterface
}

// BulkResult summarizes a bulk import.
type BulkResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

func normalizeContact(c *model.Contact) error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	if err := validate.Var(c.Email, "required,email"); err != nil {
		return appErrors.NewValidation("email", fmt.Sprintf("%q is not a valid email address", c.Email))
	}
	return nil
}

func (s *ContactService) Create(ctx context.Context, c *model.Contact) error {
	if err := normalizeContact(c); err != nil {
		return err
	}
	return s.ContactRepo.Create(ctx, c)
}

// Update replaces an existing contact's fields.
func (s *ContactService) Update(ctx context.Context, c *model.Contact) error {
	existing, err := s.ContactRepo.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := normalizeContact(c); err != nil {
		return err
	}
	c.CreatedAt = existing.CreatedAt
	return s.ContactRepo.Upsert(ctx, c)
}

func (s *ContactService) Get(ctx context.Context, id string) (*model.Contact, error) {
	return s.ContactRepo.GetByID(ctx, id)
}

func (s *ContactService) List(ctx context.Context, skip, limit int, active *bool) ([]model.Contact, int, error) {
	skip, limit = clampWindow(skip, limit)
	return s.ContactRepo.List(ctx, skip, limit, active)
}

func (s *ContactService) Delete(ctx context.Context, id string) error {
	return s.ContactRepo.Delete(ctx, id)
}

// BulkCreate inserts each contact independently. Existing emails are
// skipped and invalid rows are reported without stopping the import.
func (s *ContactService) BulkCreate(ctx context.Context, contacts []model.Contact) (*BulkResult, error) {
	res := &BulkResult{Errors: []string{}}
	for i := range contacts {
		c := &contacts[i]
		err := s.Create(ctx, c)
		switch {
		case err == nil:
			res.Created++
		case appErrors.IsConflict(err):
			res.Skipped++
		case appErrors.IsValidation(err):
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", i+1, err))
		default:
			return res, err
		}
	}
	return res, nil
}
