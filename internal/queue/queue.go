package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-mailer/internal/logger"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("queue: closed")

// Handler processes one payload. A non-nil error asks the queue to retry.
type Handler func(ctx context.Context, payload []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// GiveUpFunc is told about a job whose retries ran out, with the last error.
type GiveUpFunc func(ctx context.Context, payload []byte, err error)

// GiveUpNotifier is implemented by queues that report jobs they dropped.
type GiveUpNotifier interface {
	OnGiveUp(topic string, fn GiveUpFunc)
}

const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 500 * time.Millisecond
)

// InMemoryQueue runs every published job on its own goroutine with retry
type InMemoryQueue struct {
	MaxRetries int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration

	mu       sync.Mutex
	handlers map[string][]Handler
	giveUp   map[string]GiveUpFunc
	closed   bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	log      *zap.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &InMemoryQueue{
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
		handlers:   make(map[string][]Handler),
		giveUp:     make(map[string]GiveUpFunc),
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.Named("queue"),
	}
}

// job wraps a payload with retry info
type job struct {
	topic      string
	payload    []byte
	retryCount int
}

// Publish hands the payload to all subscribers of topic
func (q *InMemoryQueue) Publish(_ context.Context, topic string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	handlers := q.handlers[topic]
	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, h := range handlers {
		q.wg.Add(1)
		go q.processJob(h, job{topic: topic, payload: payload})
	}
	return nil
}

// processJob handles retries with linear-exponential backoff
func (q *InMemoryQueue) processJob(h Handler, j job) {
	defer q.wg.Done()
	log := q.log.With(zap.String("topic", j.topic))

	for {
		err := h(q.ctx, j.payload)
		if err == nil {
			log.Debug("job processed", zap.Int("attempt", j.retryCount+1))
			return
		}
		if q.ctx.Err() != nil {
			log.Info("job abandoned on shutdown", zap.Error(err))
			return
		}

		j.retryCount++
		if j.retryCount > q.MaxRetries {
			log.Error("job permanently failed", zap.Int("attempts", j.retryCount), zap.Error(err))
			if fn := q.giveUpFor(j.topic); fn != nil {
				fn(q.ctx, j.payload, err)
			}
			return
		}
		log.Warn("job failed, retrying", zap.Int("attempt", j.retryCount), zap.Int("max_retries", q.MaxRetries), zap.Error(err))

		select {
		case <-time.After(time.Duration(j.retryCount) * q.Backoff):
		case <-q.ctx.Done():
			return
		}
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// OnGiveUp registers fn for jobs on topic that exhaust MaxRetries.
func (q *InMemoryQueue) OnGiveUp(topic string, fn GiveUpFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.giveUp[topic] = fn
}

func (q *InMemoryQueue) giveUpFor(topic string) GiveUpFunc {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.giveUp[topic]
}

// Close cancels running handlers and waits for them to return.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	return nil
}

// Wait blocks until every published job has finished. Tests use it to
// drain the queue without closing it.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

var (
	_ Queue          = (*InMemoryQueue)(nil)
	_ GiveUpNotifier = (*InMemoryQueue)(nil)
)
