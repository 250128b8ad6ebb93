package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-mailer/internal/logger"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes to durable RabbitMQ queues named after the topic.
// Failed deliveries are republished with an incremented retry header and
// dropped once MaxRetries is exceeded.
type AMQPQueue struct {
	MaxRetries int
	Backoff    time.Duration

	conn *amqp.Connection
	// publishing on a channel is not safe for concurrent use
	mu       sync.Mutex
	ch       *amqp.Channel
	declared map[string]bool
	giveUp   map[string]GiveUpFunc
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *zap.Logger
}

// DialAMQP connects to the broker at url.
func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	log := logger.Named("queue")
	log.Info("✅ Connected to RabbitMQ")
	return &AMQPQueue{
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
		conn:       conn,
		ch:         ch,
		declared:   map[string]bool{},
		giveUp:     map[string]GiveUpFunc{},
		ctx:        ctx,
		cancel:     cancel,
		log:        log,
	}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		queueArgs(),
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

// queueArgs makes the broker feed one consumer at a time, so several worker
// processes never run two jobs of the same queue side by side.
func queueArgs() amqp.Table {
	return amqp.Table{"x-single-active-consumer": true}
}

func (q *AMQPQueue) Publish(_ context.Context, topic string, payload []byte) error {
	return q.publish(topic, payload, 0)
}

func (q *AMQPQueue) publish(topic string, payload []byte, retryCount int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.declare(topic); err != nil {
		return err
	}
	return q.ch.Publish(
		"",    // default exchange
		topic, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{retryHeader: int32(retryCount)},
			Body:         payload,
		},
	)
}

// Subscribe starts a consumer goroutine with manual acks.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	if err := q.declare(topic); err != nil {
		q.mu.Unlock()
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for d := range msgs {
			q.handle(topic, handler, d)
		}
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, handler Handler, d amqp.Delivery) {
	err := handler(q.ctx, d.Body)
	if err == nil {
		d.Ack(false)
		return
	}
	if q.ctx.Err() != nil {
		// leave it on the broker for the next consumer
		d.Nack(false, true)
		return
	}

	retryCount := headerInt(d.Headers[retryHeader]) + 1
	log := q.log.With(zap.String("topic", topic), zap.Int("attempt", retryCount), zap.Error(err))
	if retryCount > q.MaxRetries {
		log.Error("job permanently failed")
		if fn := q.giveUpFor(topic); fn != nil {
			fn(q.ctx, d.Body, err)
		}
		d.Nack(false, false)
		return
	}

	log.Warn("job failed, retrying")
	select {
	case <-time.After(time.Duration(retryCount) * q.Backoff):
	case <-q.ctx.Done():
		d.Nack(false, true)
		return
	}
	if err := q.publish(topic, d.Body, retryCount); err != nil {
		log.Error("failed to republish job", zap.NamedError("publish_error", err))
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

// OnGiveUp registers fn for jobs on topic that exhaust MaxRetries.
func (q *AMQPQueue) OnGiveUp(topic string, fn GiveUpFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.giveUp[topic] = fn
}

func (q *AMQPQueue) giveUpFor(topic string) GiveUpFunc {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.giveUp[topic]
}

func headerInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	}
	return 0
}

// Close stops consumers and releases the connection.
func (q *AMQPQueue) Close() error {
	q.cancel()
	q.mu.Lock()
	chErr := q.ch.Close()
	q.mu.Unlock()
	connErr := q.conn.Close()
	q.wg.Wait()
	if chErr != nil {
		return chErr
	}
	return connErr
}

var (
	_ Queue          = (*AMQPQueue)(nil)
	_ GiveUpNotifier = (*AMQPQueue)(nil)
)
