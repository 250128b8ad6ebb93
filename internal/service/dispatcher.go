package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/campaign-mailer/internal/errors"
	"github.com/unclebandit/campaign-mailer/internal/logger"
	"github.com/unclebandit/campaign-mailer/internal/mailer"
	"github.com/unclebandit/campaign-mailer/internal/metrics"
	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/queue"
	"github.com/unclebandit/campaign-mailer/internal/repository"
)

const DefaultDispatchTopic = "campaign_dispatch"

// DispatchJob is the queued unit of work for one campaign run.
type DispatchJob struct {
	CampaignID string `json:"campaign_id"`
	DryRun     bool   `json:"dry_run"`
}

// Ack is returned to the caller once a dispatch request was accepted.
type Ack struct {
	CampaignID string               `json:"campaign_id"`
	Status     model.CampaignStatus `json:"status"`
	DryRun     bool                 `json:"dry_run"`
	Message    string               `json:"message"`
}

// Personalizer produces the message for one recipient.
type Personalizer interface {
	Personalize(ctx context.Context, tpl *model.Template, vars map[string]string, useAI bool) (Personalized, error)
}

// Deliverer hands one message to the relay, or pretends to in dry-run mode.
type Deliverer interface {
	Deliver(ctx context.Context, msg mailer.Message, dryRun bool) mailer.Result
}

// Dispatcher moves campaigns through their lifecycle and runs the
// per-recipient send loop as a queued job.
type Dispatcher struct {
	CampaignRepo repository.CampaignRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	LogRepo      repository.EmailLogRepositoryInterface
	Personalizer Personalizer
	Delivery     Deliverer
	Queue        queue.Queue
	Topic        string
	// Concurrency bounds in-flight recipients per run. 1 sends sequentially.
	Concurrency int

	now func() time.Time
	log *zap.Logger
}

func NewDispatcher(
	campaigns repository.CampaignRepositoryInterface,
	templates repository.TemplateRepositoryInterface,
	logs repository.EmailLogRepositoryInterface,
	personalizer Personalizer,
	delivery Deliverer,
	q queue.Queue,
) *Dispatcher {
	return &Dispatcher{
		CampaignRepo: campaigns,
		TemplateRepo: templates,
		LogRepo:      logs,
		Personalizer: personalizer,
		Delivery:     delivery,
		Queue:        q,
		Topic:        DefaultDispatchTopic,
		Concurrency:  1,
		now:          func() time.Time { return time.Now().UTC() },
		log:          logger.Named("dispatcher"),
	}
}

// Start moves a draft or paused campaign to in_progress and enqueues the run.
// It returns as soon as the job is queued.
func (d *Dispatcher) Start(ctx context.Context, campaignID string, dryRun bool) (*Ack, error) {
	c, err := d.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !c.Status.Startable() {
		return nil, appErrors.NewConflict("campaign", campaignID, fmt.Sprintf("cannot send campaign with status %s", c.Status))
	}
	return d.start(ctx, c, dryRun)
}

// Resume restarts a paused campaign with the dry-run mode it was started with.
func (d *Dispatcher) Resume(ctx context.Context, campaignID string) (*Ack, error) {
	c, err := d.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignPaused {
		return nil, appErrors.NewConflict("campaign", campaignID, fmt.Sprintf("only paused campaigns can be resumed, status is %s", c.Status))
	}
	return d.start(ctx, c, c.DryRun)
}

func (d *Dispatcher) start(ctx context.Context, c *model.Campaign, dryRun bool) (*Ack, error) {
	prior := c.Status
	ok, err := d.CampaignRepo.TryStart(ctx, c.ID, dryRun, d.now())
	if err != nil {
		return nil, fmt.Errorf("start campaign %s: %w", c.ID, err)
	}
	if !ok {
		// lost the race against another start
		return nil, appErrors.NewConflict("campaign", c.ID, "campaign is already being dispatched")
	}

	if err := d.enqueue(ctx, DispatchJob{CampaignID: c.ID, DryRun: dryRun}); err != nil {
		if _, revertErr := d.CampaignRepo.Transition(ctx, c.ID, model.CampaignInProgress, prior, d.now()); revertErr != nil {
			d.log.Error("failed to revert campaign status", logger.CampaignID(c.ID), logger.Err(revertErr))
		}
		return nil, fmt.Errorf("enqueue dispatch for campaign %s: %w", c.ID, err)
	}

	d.log.Info("📨 Campaign dispatch queued", logger.CampaignID(c.ID), logger.DryRun(dryRun), logger.Status(string(prior)))
	msg := "campaign sending started"
	if dryRun {
		msg = "campaign sending started in dry-run mode"
	}
	return &Ack{CampaignID: c.ID, Status: model.CampaignInProgress, DryRun: dryRun, Message: msg}, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, job DispatchJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.Queue.Publish(ctx, d.Topic, payload)
}

// Pause asks a running campaign to stop at the next recipient boundary.
func (d *Dispatcher) Pause(ctx context.Context, campaignID string) (*Ack, error) {
	ok, err := d.CampaignRepo.RequestPause(ctx, campaignID, d.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		c, err := d.CampaignRepo.GetByID(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		return nil, appErrors.NewConflict("campaign", campaignID, fmt.Sprintf("only in-progress campaigns can be paused, status is %s", c.Status))
	}
	d.log.Info("⏸️ Pause requested", logger.CampaignID(campaignID))
	return &Ack{
		CampaignID: campaignID,
		Status:     model.CampaignInProgress,
		Message:    "pause requested; sending stops after the current recipient",
	}, nil
}

// RecoverInterrupted re-enqueues every in_progress campaign. Run it when a
// consumer starts so work cut short by a crash resumes.
func (d *Dispatcher) RecoverInterrupted(ctx context.Context) (int, error) {
	campaigns, err := d.CampaignRepo.ListByStatus(ctx, model.CampaignInProgress)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range campaigns {
		if err := d.enqueue(ctx, DispatchJob{CampaignID: c.ID, DryRun: c.DryRun}); err != nil {
			return n, fmt.Errorf("re-enqueue campaign %s: %w", c.ID, err)
		}
		n++
	}
	if n > 0 {
		d.log.Info("🔁 Re-enqueued interrupted campaigns", logger.Count(n))
	}
	return n, nil
}

// Abandon is called when the queue stops retrying a job. The campaign is
// parked as paused with its counters intact so it can be resumed.
func (d *Dispatcher) Abandon(ctx context.Context, payload []byte, cause error) {
	var job DispatchJob
	if err := json.Unmarshal(payload, &job); err != nil || job.CampaignID == "" {
		return
	}
	log := d.log.With(logger.CampaignID(job.CampaignID))
	ok, err := d.CampaignRepo.Transition(ctx, job.CampaignID, model.CampaignInProgress, model.CampaignPaused, d.now())
	if err != nil {
		log.Error("failed to park abandoned campaign", logger.Err(err), zap.NamedError("cause", cause))
		return
	}
	if ok {
		log.Error("⏸️ Dispatch gave up; campaign paused for resume", zap.NamedError("cause", cause))
		metrics.ObserveDispatch("abandoned")
	}
}

// HandleJob is the queue handler. Malformed payloads are dropped.
func (d *Dispatcher) HandleJob(ctx context.Context, payload []byte) error {
	var job DispatchJob
	if err := json.Unmarshal(payload, &job); err != nil || job.CampaignID == "" {
		d.log.Error("invalid dispatch job", zap.ByteString("payload", payload), logger.Err(err))
		return nil
	}
	return d.Run(ctx, job)
}

// Run processes every recipient of the campaign that has no final outcome
// yet. A returned error means the run should be retried; the retry resumes
// where this one stopped.
func (d *Dispatcher) Run(ctx context.Context, job DispatchJob) error {
	log := d.log.With(logger.CampaignID(job.CampaignID))

	c, err := d.CampaignRepo.GetByID(ctx, job.CampaignID)
	if appErrors.IsNotFound(err) {
		log.Warn("campaign vanished before dispatch")
		metrics.ObserveDispatch("stale")
		return nil
	}
	if err != nil {
		metrics.ObserveDispatch("error")
		return err
	}
	if c.Status != model.CampaignInProgress {
		log.Info("skipping stale dispatch job", logger.Status(string(c.Status)))
		metrics.ObserveDispatch("stale")
		return nil
	}

	tpl, err := d.TemplateRepo.GetByID(ctx, c.TemplateID)
	if appErrors.IsNotFound(err) {
		return d.fail(ctx, c, "template not found")
	}
	if err != nil {
		metrics.ObserveDispatch("error")
		return err
	}

	recipients, err := d.CampaignRepo.ActiveRecipients(ctx, c.ID)
	if err != nil {
		metrics.ObserveDispatch("error")
		return err
	}
	done, err := d.LogRepo.TerminalContactIDs(ctx, c.ID)
	if err != nil {
		metrics.ObserveDispatch("error")
		return err
	}
	// a resumed campaign whose remaining members were deactivated completes
	if len(recipients) == 0 && len(done) == 0 {
		return d.fail(ctx, c, "no active recipients")
	}
	pending := make([]model.Contact, 0, len(recipients))
	for _, r := range recipients {
		if !done[r.ID] {
			pending = append(pending, r)
		}
	}

	log.Info("🚀 Dispatching campaign",
		logger.Count(len(pending)),
		zap.Int("already_done", len(recipients)-len(pending)),
		logger.DryRun(c.DryRun))

	paused, err := d.process(ctx, c, tpl, pending)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("dispatch interrupted; campaign stays in progress", logger.Err(err))
		} else {
			log.Error("dispatch aborted", logger.Err(err))
		}
		metrics.ObserveDispatch("error")
		return err
	}
	if paused {
		log.Info("⏸️ Campaign paused")
		metrics.ObserveDispatch("paused")
		return nil
	}

	ok, err := d.CampaignRepo.Transition(ctx, c.ID, model.CampaignInProgress, model.CampaignCompleted, d.now())
	if err != nil {
		metrics.ObserveDispatch("error")
		return err
	}
	if ok {
		log.Info("✅ Campaign completed")
		metrics.ObserveDispatch("completed")
	}
	return nil
}

// process runs the recipients with at most Concurrency in flight. The pause
// flag is checked once a slot is free, so with one slot it is seen after the
// previous recipient finished. Once seen, in-flight recipients complete
// before the campaign is parked.
func (d *Dispatcher) process(ctx context.Context, c *model.Campaign, tpl *model.Template, recipients []model.Contact) (bool, error) {
	limit := d.Concurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	slots := make(chan struct{}, limit)

	pauseSeen := false
	var loopErr error
	for _, r := range recipients {
		select {
		case slots <- struct{}{}:
		case <-gctx.Done():
		}
		if gctx.Err() != nil {
			break
		}
		requested, err := d.CampaignRepo.PauseRequested(gctx, c.ID)
		if err != nil {
			loopErr = err
			break
		}
		if requested {
			pauseSeen = true
			break
		}
		g.Go(func() error {
			defer func() { <-slots }()
			return d.sendOne(gctx, c, tpl, r)
		})
	}

	if err := g.Wait(); err != nil {
		return false, err
	}
	if loopErr != nil {
		return false, loopErr
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !pauseSeen {
		return false, nil
	}
	paused, err := d.CampaignRepo.PauseIfRequested(ctx, c.ID, d.now())
	if err != nil {
		return false, err
	}
	if !paused {
		// recipients remain; let the queue retry instead of completing
		return false, errPauseLost
	}
	return true, nil
}

// sendOne personalizes, delivers and records the outcome for one recipient.
// When ctx ends mid-way the pending row is left for the next run.
func (d *Dispatcher) sendOne(ctx context.Context, c *model.Campaign, tpl *model.Template, contact model.Contact) error {
	entry := &model.EmailLog{
		CampaignID: c.ID,
		ContactID:  contact.ID,
		TemplateID: tpl.ID,
		Recipient:  contact.Email,
		DryRun:     c.DryRun,
	}
	if err := d.LogRepo.EnsurePending(ctx, entry); err != nil {
		return fmt.Errorf("mark %s pending: %w", contact.ID, err)
	}

	p, err := d.Personalizer.Personalize(ctx, tpl, ContactVars(contact), tpl.UseLLM)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		entry.Status = model.EmailFailed
		entry.ErrorMessage = "personalization failed: " + err.Error()
	} else {
		entry.Subject = p.Subject
		entry.Body = p.Body
		entry.AIFallback = p.Fallback

		res := d.Delivery.Deliver(ctx, mailer.Message{
			To:      contact.Email,
			From:    c.FromEmail,
			Subject: p.Subject,
			Body:    p.Body,
		}, c.DryRun)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		entry.Status = res.Status
		entry.ErrorMessage = res.Error
		if res.Status == model.EmailSent {
			sentAt := d.now()
			entry.SentAt = &sentAt
		}
	}

	recorded, err := d.LogRepo.Finalize(ctx, entry)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", contact.ID, err)
	}
	if recorded {
		metrics.ObserveEmail(string(entry.Status), c.DryRun)
	}

	if entry.Status == model.EmailSent {
		d.log.Debug("email sent", logger.CampaignID(c.ID), logger.ContactID(contact.ID), logger.DryRun(c.DryRun))
	} else {
		d.log.Warn("email failed", logger.CampaignID(c.ID), logger.ContactID(contact.ID), zap.String("error", entry.ErrorMessage))
	}
	return nil
}

// fail marks a campaign that could not begin dispatching.
func (d *Dispatcher) fail(ctx context.Context, c *model.Campaign, reason string) error {
	ok, err := d.CampaignRepo.Transition(ctx, c.ID, model.CampaignInProgress, model.CampaignFailed, d.now())
	if err != nil {
		metrics.ObserveDispatch("error")
		return err
	}
	if ok {
		d.log.Error("❌ Campaign failed", logger.CampaignID(c.ID), zap.String("reason", reason))
		metrics.ObserveDispatch("failed")
	}
	return nil
}

var errPauseLost = errors.New("pause request cleared before the campaign was parked")

// ErrNoDispatcher is returned by services constructed without a dispatcher.
var ErrNoDispatcher = errors.New("dispatch is not configured")
