package service

import (
	"context"
	"fmt"

	"github.com/unclebandit/campaign-mailer/internal/logger"
	"github.com/unclebandit/campaign-mailer/internal/queue"
)

// Worker connects the dispatcher to a queue.
type Worker struct {
	Queue      queue.Queue
	Dispatcher *Dispatcher
	// RecoverOnStart re-enqueues campaigns left in_progress by a previous
	// process.
	RecoverOnStart bool
}

// Constructor
func NewWorker(q queue.Queue, d *Dispatcher, recoverOnStart bool) *Worker {
	return &Worker{Queue: q, Dispatcher: d, RecoverOnStart: recoverOnStart}
}

// Start subscribes the dispatcher and optionally recovers interrupted runs.
func (w *Worker) Start(ctx context.Context) error {
	topic := w.Dispatcher.Topic
	if err := w.Queue.Subscribe(topic, w.Dispatcher.HandleJob); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	if n, ok := w.Queue.(queue.GiveUpNotifier); ok {
		n.OnGiveUp(topic, w.Dispatcher.Abandon)
	}
	logger.Named("worker").Info("👷 Dispatch worker subscribed", logger.String("topic", topic))

	if !w.RecoverOnStart {
		return nil
	}
	if _, err := w.Dispatcher.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("recover interrupted campaigns: %w", err)
	}
	return nil
}
