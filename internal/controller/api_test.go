package controller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-mailer/internal/controller"
	"github.com/unclebandit/campaign-mailer/internal/db"
	"github.com/unclebandit/campaign-mailer/internal/mailer"
	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/queue"
	"github.com/unclebandit/campaign-mailer/internal/repository"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

type nopSender struct{}

func (nopSender) Send(context.Context, mailer.Message) error { return nil }

type api struct {
	t      *testing.T
	router http.Handler
	queue  *queue.InMemoryQueue
}

func newAPI(t *testing.T) *api {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	contacts := &repository.ContactRepository{DB: conn}
	templates := &repository.TemplateRepository{DB: conn}
	campaigns := &repository.CampaignRepository{DB: conn}
	logs := &repository.EmailLogRepository{DB: conn}

	q := queue.NewInMemoryQueue()
	q.Backoff = time.Millisecond
	t.Cleanup(func() { q.Close() })

	personalizer := service.NewPersonalizationService(nil, "", 0, 0)
	delivery := mailer.NewDeliveryService(nopSender{}, nil, "noreply@x.io", time.Second)
	d := service.NewDispatcher(campaigns, templates, logs, personalizer, delivery, q)
	require.NoError(t, service.NewWorker(q, d, false).Start(ctx))

	r := chi.NewRouter()
	(&controller.ContactController{ContactService: &service.ContactService{ContactRepo: contacts}}).Mount(r)
	(&controller.TemplateController{TemplateService: &service.TemplateService{TemplateRepo: templates}}).Mount(r)
	(&controller.CampaignController{CampaignService: &service.CampaignService{
		CampaignRepo: campaigns,
		ContactRepo:  contacts,
		TemplateRepo: templates,
		LogRepo:      logs,
		Personalizer: personalizer,
		Dispatcher:   d,
	}}).Mount(r)
	(&controller.EmailController{EmailLogService: &service.EmailLogService{LogRepo: logs}}).Mount(r)

	return &api{t: t, router: r, queue: q}
}

// do sends body as JSON and decodes the response into out when given.
func (a *api) do(method, path, body string, out any) int {
	a.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func TestContactEndpoints(t *testing.T) {
	a := newAPI(t)

	var created model.Contact
	require.Equal(t, http.StatusCreated, a.do("POST", "/contacts", `{"email":"Ann@X.io","first_name":"Ann","custom_fields":{"company":"Acme"}}`, &created))
	assert.Equal(t, "ann@x.io", created.Email)
	assert.True(t, created.Active)

	var errBody controller.ErrorBody
	assert.Equal(t, http.StatusConflict, a.do("POST", "/contacts", `{"email":"ann@x.io"}`, &errBody))
	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/contacts", `{"email":"nope"}`, nil))
	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/contacts", `{"email":`, nil))

	var bulk service.BulkResult
	require.Equal(t, http.StatusOK, a.do("POST", "/contacts/bulk",
		`{"contacts":[{"email":"b@x.io"},{"email":"ann@x.io"},{"email":"bad"},{"email":"c@x.io","active":false}]}`, &bulk))
	assert.Equal(t, 2, bulk.Created)
	assert.Equal(t, 1, bulk.Skipped)
	assert.Len(t, bulk.Errors, 1)

	var list struct {
		Data  []model.Contact `json:"data"`
		Total int             `json:"total"`
	}
	require.Equal(t, http.StatusOK, a.do("GET", "/contacts?active=true", "", &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, http.StatusBadRequest, a.do("GET", "/contacts?active=maybe", "", nil))

	var updated model.Contact
	require.Equal(t, http.StatusOK, a.do("PUT", "/contacts/"+created.ID, `{"email":"ann@x.io","last_name":"Lee"}`, &updated))
	assert.Equal(t, "Lee", updated.LastName)
	assert.Equal(t, created.ID, updated.ID)

	assert.Equal(t, http.StatusNoContent, a.do("DELETE", "/contacts/"+created.ID, "", nil))
	assert.Equal(t, http.StatusNotFound, a.do("GET", "/contacts/"+created.ID, "", nil))
}

func TestTemplateEndpoints(t *testing.T) {
	a := newAPI(t)

	var tpl model.Template
	require.Equal(t, http.StatusCreated, a.do("POST", "/templates",
		`{"name":"Welcome","subject":"Hi $first_name","content":"Welcome to ${company}s"}`, &tpl))
	assert.Equal(t, []string{"company", "first_name"}, tpl.Placeholders)

	var errBody controller.ErrorBody
	require.Equal(t, http.StatusBadRequest, a.do("POST", "/templates", `{"name":"x"}`, &errBody))
	assert.Contains(t, errBody.Fields, "subject")
	assert.Contains(t, errBody.Fields, "content")

	var preview service.TemplatePreview
	require.Equal(t, http.StatusOK, a.do("POST", "/templates/"+tpl.ID+"/preview", `{"variables":{"company":"Acme"}}`, &preview))
	assert.Equal(t, "Welcome to Acmes", preview.Content)
	assert.Equal(t, []string{"first_name"}, preview.Missing)

	assert.Equal(t, http.StatusNotFound, a.do("POST", "/templates/missing/preview", "", nil))
	assert.Equal(t, http.StatusNoContent, a.do("DELETE", "/templates/"+tpl.ID, "", nil))
}

func TestCampaignDispatchFlow(t *testing.T) {
	a := newAPI(t)

	var tpl model.Template
	require.Equal(t, http.StatusCreated, a.do("POST", "/templates",
		`{"name":"Launch","subject":"News for $first_name","content":"Hello $first_name"}`, &tpl))
	var ann, bob model.Contact
	require.Equal(t, http.StatusCreated, a.do("POST", "/contacts", `{"email":"ann@x.io","first_name":"Ann"}`, &ann))
	require.Equal(t, http.StatusCreated, a.do("POST", "/contacts", `{"email":"bob@x.io","first_name":"Bob"}`, &bob))

	var campaign model.Campaign
	require.Equal(t, http.StatusCreated, a.do("POST", "/campaigns",
		`{"name":"Launch","template_id":"`+tpl.ID+`","contact_ids":["`+ann.ID+`","`+bob.ID+`"]}`, &campaign))
	assert.Equal(t, model.CampaignDraft, campaign.Status)
	assert.Equal(t, 2, campaign.TotalCount)

	assert.Equal(t, http.StatusNotFound, a.do("POST", "/campaigns",
		`{"name":"Launch","template_id":"`+tpl.ID+`","contact_ids":["ghost"]}`, nil))
	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/campaigns",
		`{"name":"Launch","template_id":"`+tpl.ID+`","from_email":"not-an-address","contact_ids":["`+ann.ID+`"]}`, nil))

	var ack service.Ack
	require.Equal(t, http.StatusAccepted, a.do("POST", "/campaigns/"+campaign.ID+"/send", `{"dry_run":true}`, &ack))
	assert.Equal(t, model.CampaignInProgress, ack.Status)
	assert.True(t, ack.DryRun)

	a.queue.Wait()

	var details service.CampaignDetails
	require.Equal(t, http.StatusOK, a.do("GET", "/campaigns/"+campaign.ID, "", &details))
	assert.Equal(t, model.CampaignCompleted, details.Status)
	assert.Equal(t, 2, details.SentCount)
	assert.Equal(t, 2, details.Stats.Sent)

	var logs []model.EmailLog
	require.Equal(t, http.StatusOK, a.do("GET", "/emails?campaign_id="+campaign.ID+"&status=sent&days=1", "", &logs))
	require.Len(t, logs, 2)
	assert.True(t, logs[0].DryRun)

	var one model.EmailLog
	require.Equal(t, http.StatusOK, a.do("GET", "/emails/"+logs[0].ID, "", &one))
	assert.Equal(t, logs[0].Recipient, one.Recipient)

	assert.Equal(t, http.StatusBadRequest, a.do("GET", "/emails?status=opened", "", nil))
	assert.Equal(t, http.StatusConflict, a.do("POST", "/campaigns/"+campaign.ID+"/send", "", nil))
	assert.Equal(t, http.StatusConflict, a.do("POST", "/campaigns/"+campaign.ID+"/pause", "", nil))
	assert.Equal(t, http.StatusConflict, a.do("POST", "/campaigns/"+campaign.ID+"/resume", "", nil))
	assert.Equal(t, http.StatusConflict, a.do("PUT", "/campaigns/"+campaign.ID, `{"name":"x","template_id":"`+tpl.ID+`"}`, nil))
	assert.Equal(t, http.StatusNotFound, a.do("POST", "/campaigns/missing/send", "", nil))

	assert.Equal(t, http.StatusNoContent, a.do("DELETE", "/campaigns/"+campaign.ID, "", nil))
	assert.Equal(t, http.StatusNotFound, a.do("GET", "/campaigns/"+campaign.ID, "", nil))
}
