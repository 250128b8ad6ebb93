package service_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-mailer/internal/db"
	"github.com/unclebandit/campaign-mailer/internal/llm"
	"github.com/unclebandit/campaign-mailer/internal/mailer"
	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/queue"
	"github.com/unclebandit/campaign-mailer/internal/repository"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

// fakeCompleter returns text, or err, optionally after a delay. Prompts
// containing slowFor always stall until the context ends.
type fakeCompleter struct {
	mu      sync.Mutex
	text    string
	err     error
	delay   time.Duration
	slowFor string
	calls   int
	last    llm.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	f.mu.Unlock()

	delay := f.delay
	if f.slowFor != "" && strings.Contains(req.Prompt, f.slowFor) {
		delay = time.Hour
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCompleter) lastRequest() llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// countingSender records live sends. onSend runs before each one.
type countingSender struct {
	mu     sync.Mutex
	sent   []mailer.Message
	onSend func(n int)
}

func (s *countingSender) Send(_ context.Context, msg mailer.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	n := len(s.sent)
	hook := s.onSend
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// recordingQueue keeps published jobs instead of running them.
type recordingQueue struct {
	mu   sync.Mutex
	jobs [][]byte
	err  error
}

func (q *recordingQueue) Publish(_ context.Context, _ string, payload []byte) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, payload)
	return nil
}

func (q *recordingQueue) Subscribe(string, queue.Handler) error { return nil }
func (q *recordingQueue) Close() error                         { return nil }

func (q *recordingQueue) published() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

var errBrokerDown = errors.New("broker unavailable")

var errStoreDown = errors.New("store unavailable")

// flakyLogRepo fails Finalize while failing is set.
type flakyLogRepo struct {
	repository.EmailLogRepositoryInterface
	mu      sync.Mutex
	failing bool
}

func (r *flakyLogRepo) Finalize(ctx context.Context, l *model.EmailLog) (bool, error) {
	r.mu.Lock()
	failing := r.failing
	r.mu.Unlock()
	if failing {
		return false, errStoreDown
	}
	return r.EmailLogRepositoryInterface.Finalize(ctx, l)
}

func (r *flakyLogRepo) setFailing(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = v
}

type harness struct {
	ctx       context.Context
	conn      *sql.DB
	contacts  *repository.ContactRepository
	templates *repository.TemplateRepository
	campaigns *repository.CampaignRepository
	logs      *repository.EmailLogRepository
	sender    *countingSender
	completer *fakeCompleter
	queue     *recordingQueue
	d         *service.Dispatcher
	svc       *service.CampaignService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	h := &harness{
		ctx:       ctx,
		conn:      conn,
		contacts:  &repository.ContactRepository{DB: conn},
		templates: &repository.TemplateRepository{DB: conn},
		campaigns: &repository.CampaignRepository{DB: conn},
		logs:      &repository.EmailLogRepository{DB: conn},
		sender:    &countingSender{},
		completer: &fakeCompleter{text: "A note written just for you."},
		queue:     &recordingQueue{},
	}
	personalizer := service.NewPersonalizationService(h.completer, "llama2", 0.7, 30*time.Millisecond)
	delivery := mailer.NewDeliveryService(h.sender, nil, "noreply@x.io", time.Second)
	h.d = service.NewDispatcher(h.campaigns, h.templates, h.logs, personalizer, delivery, h.queue)
	h.svc = &service.CampaignService{
		CampaignRepo: h.campaigns,
		ContactRepo:  h.contacts,
		TemplateRepo: h.templates,
		LogRepo:      h.logs,
		Personalizer: personalizer,
		Dispatcher:   h.d,
	}
	return h
}

func (h *harness) template(t *testing.T, useLLM bool) *model.Template {
	t.Helper()
	tpl := &model.Template{
		Name:    "Welcome",
		Subject: "Welcome $first_name",
		Content: "Hi $first_name, thanks for joining $company.",
		UseLLM:  useLLM,
	}
	require.NoError(t, h.templates.Upsert(h.ctx, tpl))
	return tpl
}

// contact is inserted through the repository so tests can store addresses
// the API would reject.
func (h *harness) contact(t *testing.T, email, first string) string {
	t.Helper()
	c := &model.Contact{Email: email, FirstName: first, CustomFields: map[string]string{"company": "Acme"}, Active: true}
	require.NoError(t, h.contacts.Create(h.ctx, c))
	return c.ID
}

func (h *harness) campaign(t *testing.T, tplID string, contactIDs ...string) *model.Campaign {
	t.Helper()
	c, err := h.svc.CreateCampaign(h.ctx, service.CampaignInput{Name: "Launch", TemplateID: tplID, ContactIDs: contactIDs})
	require.NoError(t, err)
	return c
}

// runQueued drains the recorded jobs through the dispatcher.
func (h *harness) runQueued(t *testing.T) {
	t.Helper()
	h.queue.mu.Lock()
	jobs := h.queue.jobs
	h.queue.jobs = nil
	h.queue.mu.Unlock()
	for _, j := range jobs {
		require.NoError(t, h.d.HandleJob(h.ctx, j))
	}
}

func (h *harness) reload(t *testing.T, id string) *model.Campaign {
	t.Helper()
	c, err := h.campaigns.GetByID(h.ctx, id)
	require.NoError(t, err)
	return c
}

func (h *harness) logsFor(t *testing.T, campaignID string) []model.EmailLog {
	t.Helper()
	logs, err := h.logs.List(h.ctx, model.EmailLogFilter{CampaignID: campaignID, Limit: 1000})
	require.NoError(t, err)
	return logs
}

// assertCountersMatchLogs checks sent/failed against the log rows.
func (h *harness) assertCountersMatchLogs(t *testing.T, campaignID string) {
	t.Helper()
	c := h.reload(t, campaignID)
	sent, failed := 0, 0
	for _, l := range h.logsFor(t, campaignID) {
		switch l.Status {
		case model.EmailSent:
			sent++
		case model.EmailFailed, model.EmailBounced:
			failed++
		}
	}
	assert.Equal(t, sent, c.SentCount, "sent_count")
	assert.Equal(t, failed, c.FailedCount, "failed_count")
	assert.LessOrEqual(t, c.SentCount+c.FailedCount, c.TotalCount)
}
