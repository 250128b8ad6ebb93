// Package llm talks to the generative model used to rewrite email drafts.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// CompletionRequest is one non-streaming generation.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
}

// Completer returns the model's text for a request.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// OllamaCompleter calls an Ollama server's generate endpoint.
type OllamaCompleter struct {
	client *api.Client
	model  string
}

// NewOllamaCompleter builds a completer for host (e.g. http://localhost:11434).
// model is used when a request leaves Model empty.
func NewOllamaCompleter(host, model string, httpClient *http.Client) (*OllamaCompleter, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("llm: parse host %q: %w", host, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("llm: host %q must include scheme and host", host)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaCompleter{client: api.NewClient(base, httpClient), model: model}, nil
}

func (c *OllamaCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	stream := false
	gen := &api.GenerateRequest{
		Model:   model,
		System:  req.System,
		Prompt:  req.Prompt,
		Stream:  &stream,
		Options: map[string]any{"temperature": req.Temperature},
	}

	var out strings.Builder
	err := c.client.Generate(ctx, gen, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("llm: generate with %s: %w", model, err)
	}
	return out.String(), nil
}

// Ping reports whether the Ollama server answers.
func (c *OllamaCompleter) Ping(ctx context.Context) error {
	return c.client.Heartbeat(ctx)
}

var _ Completer = (*OllamaCompleter)(nil)
