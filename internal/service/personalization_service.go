package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-mailer/internal/llm"
	"github.com/unclebandit/campaign-mailer/internal/logger"
	"github.com/unclebandit/campaign-mailer/internal/metrics"
	"github.com/unclebandit/campaign-mailer/internal/model"
)

const (
	FallbackError   = "error"
	FallbackTimeout = "timeout"
	FallbackEmpty   = "empty"
)

const personalizationSystemPrompt = "You write personalized marketing emails. Rewrite the draft for the recipient " +
	"described below. Keep the structure, tone and any facts of the draft. " +
	"Return only the email body, with no subject line and no commentary."

// Personalized is the subject and body chosen for one recipient.
type Personalized struct {
	Subject        string
	Body           string
	AIUsed         bool
	Fallback       bool
	FallbackReason string
	// Missing lists placeholders left unresolved in subject or body.
	Missing []string
}

// PersonalizationService renders templates and optionally has the model
// rewrite the rendered draft.
type PersonalizationService struct {
	Completer   llm.Completer
	Model       string
	Temperature float64
	Timeout     time.Duration

	log *zap.Logger
}

func NewPersonalizationService(c llm.Completer, model string, temperature float64, timeout time.Duration) *PersonalizationService {
	return &PersonalizationService{
		Completer:   c,
		Model:       model,
		Temperature: temperature,
		Timeout:     timeout,
		log:         logger.Named("personalization"),
	}
}

// ContactVars builds the variable map for contact. Custom fields are applied
// last and win over the built-in names.
func ContactVars(c model.Contact) map[string]string {
	vars := make(map[string]string, len(c.CustomFields)+3)
	vars["email"] = c.Email
	vars["first_name"] = c.FirstName
	vars["last_name"] = c.LastName
	for k, v := range c.CustomFields {
		vars[k] = v
	}
	return vars
}

// Personalize returns the message for one recipient. Generation problems
// never fail the call; they fall back to the rendered draft.
func (s *PersonalizationService) Personalize(ctx context.Context, tpl *model.Template, vars map[string]string, useAI bool) (Personalized, error) {
	if tpl == nil {
		return Personalized{}, errors.New("personalize: no template supplied")
	}

	var out Personalized
	out.Subject, out.Body, out.Missing = renderPair(tpl.Subject, tpl.Content, vars)
	if !useAI {
		return out, nil
	}

	if s.Completer == nil {
		s.fallback(&out, FallbackError, errors.New("no completion service configured"))
		return out, nil
	}

	genCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	text, err := s.Completer.Complete(genCtx, llm.CompletionRequest{
		Model:       s.Model,
		System:      personalizationSystemPrompt,
		Prompt:      buildPrompt(out.Body, vars),
		Temperature: s.Temperature,
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (err != nil && errors.Is(genCtx.Err(), context.DeadlineExceeded)):
		s.fallback(&out, FallbackTimeout, err)
	case err != nil:
		s.fallback(&out, FallbackError, err)
	case strings.TrimSpace(text) == "":
		s.fallback(&out, FallbackEmpty, errors.New("model returned no text"))
	default:
		out.Body = text
		out.AIUsed = true
	}
	return out, nil
}

func (s *PersonalizationService) fallback(p *Personalized, reason string, err error) {
	p.Fallback = true
	p.FallbackReason = reason
	metrics.ObserveFallback(reason)
	s.log.Warn("AI generation failed, using rendered template",
		zap.String("reason", reason), logger.Err(err))
}

func buildPrompt(draft string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Draft:\n")
	b.WriteString(draft)
	b.WriteString("\n\nRecipient:\n")
	for _, k := range keys {
		if vars[k] == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", k, vars[k])
	}
	return b.String()
}
