package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

type TemplateController struct {
	TemplateService *service.TemplateService
}

type templateRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
	Subject     string `json:"subject" validate:"required,max=500"`
	Content     string `json:"content" validate:"required"`
	UseLLM      bool   `json:"use_llm"`
}

func (b templateRequest) template() model.Template {
	return model.Template{
		Name:        b.Name,
		Description: b.Description,
		Subject:     b.Subject,
		Content:     b.Content,
		UseLLM:      b.UseLLM,
	}
}

func (c *TemplateController) Mount(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Post("/", c.Create)
		r.Get("/", c.List)
		r.Get("/{id}", c.Get)
		r.Put("/{id}", c.Update)
		r.Delete("/{id}", c.Delete)
		r.Post("/{id}/preview", c.Preview)
	})
}

func (c *TemplateController) Create(w http.ResponseWriter, r *http.Request) {
	var body templateRequest
	if !decodeBody(w, r, &body, false) {
		return
	}
	tpl := body.template()
	if err := c.TemplateService.Save(r.Context(), &tpl); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, tpl)
}

func (c *TemplateController) List(w http.ResponseWriter, r *http.Request) {
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

	templates, total, err := c.TemplateService.List(r.Context(), skip, limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":  templates,
		"total": total,
	})
}

func (c *TemplateController) Get(w http.ResponseWriter, r *http.Request) {
	tpl, err := c.TemplateService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, tpl)
}

func (c *TemplateController) Update(w http.ResponseWriter, r *http.Request) {
	var body templateRequest
	if !decodeBody(w, r, &body, false) {
		return
	}
	tpl := body.template()
	tpl.ID = chi.URLParam(r, "id")
	if err := c.TemplateService.Update(r.Context(), &tpl); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, tpl)
}

func (c *TemplateController) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.TemplateService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview renders the template with the supplied variables.
func (c *TemplateController) Preview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Variables map[string]string `json:"variables"`
	}
	if !decodeBody(w, r, &body, true) {
		return
	}

	preview, err := c.TemplateService.Preview(r.Context(), chi.URLParam(r, "id"), body.Variables)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, preview)
}
