package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

type ContactController struct {
	ContactService *service.ContactService
}

type contactRequest struct {
	Email        string            `json:"email" validate:"required"`
	FirstName    string            `json:"first_name" validate:"max=100"`
	LastName     string            `json:"last_name" validate:"max=100"`
	CustomFields map[string]string `json:"custom_fields"`
	Tags         []string          `json:"tags"`
	Active       *bool             `json:"active"`
}

// contact converts the request; contacts are active unless told otherwise.
func (b contactRequest) contact() model.Contact {
	c := model.Contact{
		Email:        b.Email,
		FirstName:    b.FirstName,
		LastName:     b.LastName,
		CustomFields: b.CustomFields,
		Tags:         b.Tags,
		Active:       true,
	}
	if b.Active != nil {
		c.Active = *b.Active
	}
	return c
}

func (c *ContactController) Mount(r chi.Router) {
	r.Route("/contacts", func(r chi.Router) {
		r.Post("/", c.Create)
		r.Post("/bulk", c.BulkCreate)
		r.Get("/", c.List)
		r.Get("/{id}", c.Get)
		r.Put("/{id}", c.Update)
		r.Delete("/{id}", c.Delete)
	})
}

func (c *ContactController) Create(w http.ResponseWriter, r *http.Request) {
	var body contactRequest
	if !decodeBody(w, r, &body, false) {
		return
	}
	contact := body.contact()
	if err := c.ContactService.Create(r.Context(), &contact); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, contact)
}

// BulkCreate imports many contacts; bad rows are reported, not fatal.
func (c *ContactController) BulkCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contacts []contactRequest `json:"contacts" validate:"required,min=1,max=1000"`
	}
	if !decodeBody(w, r, &body, false) {
		return
	}
	contacts := make([]model.Contact, len(body.Contacts))
	for i, b := range body.Contacts {
		contacts[i] = b.contact()
	}

	res, err := c.ContactService.BulkCreate(r.Context(), contacts)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (c *ContactController) List(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	active, err := queryBool(r, "active")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	contacts, total, err := c.ContactService.List(r.Context(), skip, limit, active)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":  contacts,
		"total": total,
	})
}

func (c *ContactController) Get(w http.ResponseWriter, r *http.Request) {
	contact, err := c.ContactService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, contact)
}

func (c *ContactController) Update(w http.ResponseWriter, r *http.Request) {
	var body contactRequest
	if !decodeBody(w, r, &body, false) {
		return
	}
	contact := body.contact()
	contact.ID = chi.URLParam(r, "id")
	if err := c.ContactService.Update(r.Context(), &contact); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, contact)
}

func (c *ContactController) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.ContactService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
