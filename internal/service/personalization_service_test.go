package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-mailer/internal/llm"
	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

var welcome = &model.Template{
	ID:      "tpl-1",
	Subject: "Welcome $first_name",
	Content: "Hi $first_name, thanks for joining $company.",
	UseLLM:  true,
}

func TestContactVarsCustomFieldsWin(t *testing.T) {
	vars := service.ContactVars(model.Contact{
		Email:        "a@x.io",
		FirstName:    "Ann",
		LastName:     "Lee",
		CustomFields: map[string]string{"first_name": "Annie", "company": "Acme"},
	})
	assert.Equal(t, "Annie", vars["first_name"])
	assert.Equal(t, "Lee", vars["last_name"])
	assert.Equal(t, "a@x.io", vars["email"])
	assert.Equal(t, "Acme", vars["company"])
}

func TestPersonalizeWithoutAI(t *testing.T) {
	completer := &fakeCompleter{text: "ignored"}
	svc := service.NewPersonalizationService(completer, "llama2", 0.7, time.Second)

	p, err := svc.Personalize(context.Background(), welcome, map[string]string{"first_name": "Ann"}, false)
	require.NoError(t, err)
	assert.Equal(t, "Welcome Ann", p.Subject)
	assert.Equal(t, "Hi Ann, thanks for joining $company.", p.Body)
	assert.Equal(t, []string{"company"}, p.Missing)
	assert.False(t, p.AIUsed)
	assert.Zero(t, completer.callCount())
}

func TestPersonalizeMissingIgnoresDollarsInOutput(t *testing.T) {
	svc := service.NewPersonalizationService(nil, "", 0, 0)
	tpl := &model.Template{Subject: "Save $$5", Content: "Hi $first_name, your code is $code."}

	p, err := svc.Personalize(context.Background(), tpl, map[string]string{"first_name": "$ann"}, false)
	require.NoError(t, err)
	assert.Equal(t, "Save $5", p.Subject)
	assert.Equal(t, "Hi $ann, your code is $code.", p.Body)
	assert.Equal(t, []string{"code"}, p.Missing)
}

func TestPersonalizeUsesCompletion(t *testing.T) {
	completer := &fakeCompleter{text: "Hey Ann! Great to have you at Acme."}
	svc := service.NewPersonalizationService(completer, "llama2", 0.4, time.Second)

	vars := map[string]string{"first_name": "Ann", "company": "Acme"}
	p, err := svc.Personalize(context.Background(), welcome, vars, true)
	require.NoError(t, err)
	assert.True(t, p.AIUsed)
	assert.False(t, p.Fallback)
	assert.Equal(t, "Welcome Ann", p.Subject, "subject is never generated")
	assert.Equal(t, "Hey Ann! Great to have you at Acme.", p.Body)

	req := completer.lastRequest()
	assert.Equal(t, "llama2", req.Model)
	assert.InDelta(t, 0.4, req.Temperature, 0.0001)
	assert.Contains(t, req.Prompt, "Hi Ann, thanks for joining Acme.")
	assert.Contains(t, req.Prompt, "- company: Acme")
	assert.NotEmpty(t, req.System)
}

func TestPersonalizeFallbacks(t *testing.T) {
	vars := map[string]string{"first_name": "Ann", "company": "Acme"}
	draft := "Hi Ann, thanks for joining Acme."

	tests := []struct {
		name      string
		completer llm.Completer
		reason    string
	}{
		{"error", &fakeCompleter{err: errors.New("connection refused")}, service.FallbackError},
		{"empty", &fakeCompleter{text: "  \n\t"}, service.FallbackEmpty},
		{"timeout", &fakeCompleter{delay: time.Second}, service.FallbackTimeout},
		{"no completer", nil, service.FallbackError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := service.NewPersonalizationService(tc.completer, "llama2", 0.7, 20*time.Millisecond)
			p, err := svc.Personalize(context.Background(), welcome, vars, true)
			require.NoError(t, err)
			assert.True(t, p.Fallback)
			assert.False(t, p.AIUsed)
			assert.Equal(t, tc.reason, p.FallbackReason)
			assert.Equal(t, draft, p.Body)
			assert.Equal(t, "Welcome Ann", p.Subject)
		})
	}
}

func TestPersonalizeRequiresTemplate(t *testing.T) {
	svc := service.NewPersonalizationService(nil, "", 0, 0)
	_, err := svc.Personalize(context.Background(), nil, nil, false)
	assert.Error(t, err)
}
