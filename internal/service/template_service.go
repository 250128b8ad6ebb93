// internal/service/template_service.go
package service

import (
	"context"
	"sort"
	"strings"

	appErrors "github.com/unclebandit/campaign-mailer/internal/errors"
	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/repository"
)

// token is either literal text or a placeholder reference.
type token struct {
	text string // literal text, or the raw placeholder as written
	name string // placeholder name; empty for literals
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentChar(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

// tokenize splits tpl into literals and $name / ${name} references.
// "$$" yields a literal "$".
func tokenize(tpl string) []token {
	var out []token
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, token{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tpl); {
		if tpl[i] != '$' || i+1 >= len(tpl) {
			lit.WriteByte(tpl[i])
			i++
			continue
		}
		next := tpl[i+1]
		switch {
		case next == '$':
			lit.WriteByte('$')
			i += 2
		case next == '{':
			j := i + 2
			if j < len(tpl) && isIdentStart(tpl[j]) {
				for j < len(tpl) && isIdentChar(tpl[j]) {
					j++
				}
				if j < len(tpl) && tpl[j] == '}' {
					flush()
					out = append(out, token{text: tpl[i : j+1], name: tpl[i+2 : j]})
					i = j + 1
					continue
				}
			}
			lit.WriteByte('$')
			i++
		case isIdentStart(next):
			j := i + 1
			for j < len(tpl) && isIdentChar(tpl[j]) {
				j++
			}
			flush()
			out = append(out, token{text: tpl[i:j], name: tpl[i+1 : j]})
			i = j
		default:
			lit.WriteByte('$')
			i++
		}
	}
	flush()
	return out
}

// RenderTemplate substitutes $name and ${name} from data. Unknown
// placeholders are left as written and "$$" becomes "$".
func RenderTemplate(template string, data map[string]string) string {
	out, _ := RenderWithMissing(template, data)
	return out
}

// RenderWithMissing renders template and returns the sorted names that had
// no entry in data.
func RenderWithMissing(template string, data map[string]string) (string, []string) {
	var b strings.Builder
	b.Grow(len(template))
	missing := map[string]bool{}
	for _, t := range tokenize(template) {
		if t.name == "" {
			b.WriteString(t.text)
			continue
		}
		if v, ok := data[t.name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(t.text)
			missing[t.name] = true
		}
	}
	return b.String(), sortedKeys(missing)
}

// ExtractPlaceholders returns the sorted set of placeholder names in template.
func ExtractPlaceholders(template string) []string {
	seen := map[string]bool{}
	for _, t := range tokenize(template) {
		if t.name != "" {
			seen[t.name] = true
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// renderPair renders subject and content and merges their missing names.
func renderPair(subject, content string, vars map[string]string) (string, string, []string) {
	s, missSubject := RenderWithMissing(subject, vars)
	c, missContent := RenderWithMissing(content, vars)
	set := map[string]bool{}
	for _, n := range append(missSubject, missContent...) {
		set[n] = true
	}
	return s, c, sortedKeys(set)
}

// MissingPlaceholders lists placeholders still present in rendered output.
func MissingPlaceholders(rendered string) []string {
	return ExtractPlaceholders(rendered)
}

// TemplatePlaceholders is the union of placeholders in subject and body.
func TemplatePlaceholders(subject, content string) []string {
	return ExtractPlaceholders(subject + "\n" + content)
}

// TemplateService manages templates and keeps their placeholder set current.
type TemplateService struct {
	TemplateRepo repository.TemplateRepositoryInterface
}

// TemplatePreview is a rendered template with any unresolved placeholders.
type TemplatePreview struct {
	Subject string   `json:"subject"`
	Content string   `json:"content"`
	Missing []string `json:"missing_placeholders"`
}

func (s *TemplateService) Save(ctx context.Context, t *model.Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return appErrors.NewValidation("name", "name is required")
	}
	if strings.TrimSpace(t.Subject) == "" {
		return appErrors.NewValidation("subject", "subject is required")
	}
	if strings.TrimSpace(t.Content) == "" {
		return appErrors.NewValidation("content", "content is required")
	}
	t.Placeholders = TemplatePlaceholders(t.Subject, t.Content)
	return s.TemplateRepo.Upsert(ctx, t)
}

// Update replaces an existing template, keeping its creation time.
func (s *TemplateService) Update(ctx context.Context, t *model.Template) error {
	existing, err := s.TemplateRepo.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	t.CreatedAt = existing.CreatedAt
	return s.Save(ctx, t)
}

func (s *TemplateService) Get(ctx context.Context, id string) (*model.Template, error) {
	return s.TemplateRepo.GetByID(ctx, id)
}

func (s *TemplateService) List(ctx context.Context, skip, limit int) ([]model.Template, int, error) {
	skip, limit = clampWindow(skip, limit)
	return s.TemplateRepo.List(ctx, skip, limit)
}

func (s *TemplateService) Delete(ctx context.Context, id string) error {
	return s.TemplateRepo.Delete(ctx, id)
}

// Preview renders a stored template with caller-supplied variables.
func (s *TemplateService) Preview(ctx context.Context, id string, vars map[string]string) (*TemplatePreview, error) {
	t, err := s.TemplateRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	subject, content, missing := renderPair(t.Subject, t.Content, vars)
	return &TemplatePreview{
		Subject: subject,
		Content: content,
		Missing: missing,
	}, nil
}

// clampWindow bounds skip/limit listings.
func clampWindow(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit < 1 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return skip, limit
}
