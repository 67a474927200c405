package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/infrastructure/resilience"
)

type Options struct {
	Prefetch           int
	MaxReconnectWait   time.Duration
	// Concurrency is the number of deliveries handled at once. Prefetch is raised to
	// match so every handler has a message to work on.
	Concurrency        int
	ResilienceExecutor *resilience.Executor
}

// Queue is a durable RabbitMQ queue of run ids. Deliveries are acked only after the
// handler returns, so a crashed worker leaves the message for a peer.
type Queue struct {
	url         string
	name        string
	prefetch    int
	concurrency int
	maxWait     time.Duration
	executor    *resilience.Executor

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func New(url, queueName string, options Options) (*Queue, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if strings.TrimSpace(queueName) == "" {
		return nil, errors.New("rabbitmq queue name is required")
	}
	prefetch := options.Prefetch
	if prefetch <= 0 {
		prefetch = 4
	}
	maxWait := options.MaxReconnectWait
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	concurrency := max(options.Concurrency, 1)
	q := &Queue{
		url:         url,
		name:        queueName,
		prefetch:    max(prefetch, concurrency),
		concurrency: concurrency,
		maxWait:     maxWait,
		executor:    options.ResilienceExecutor,
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.channelLocked(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetLocked()
}

func (q *Queue) PublishRun(ctx context.Context, runID string) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("rabbitmq publish: run id is empty")
	}
	call := func(ctx context.Context) error { return q.publish(ctx, runID) }

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "rabbitmq.publish", call, classifyAMQPError)
	} else {
		err = call(ctx)
	}
	return resilience.TemporaryIfRetryable("rabbitmq publish", err, classifyAMQPError)
}

func (q *Queue) publish(ctx context.Context, runID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channelLocked()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    runID,
		Body:         []byte(runID),
	})
	if err != nil {
		q.resetLocked()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// SubscribeRuns consumes until ctx is done, reconnecting with exponential backoff
// when the broker drops the connection.
func (q *Queue) SubscribeRuns(ctx context.Context, handler func(context.Context, string) error) error {
	backoff := time.Second
	for {
		err := q.consume(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("rabbitmq_consume_interrupted", "queue", q.name, "error", err, "retry_in", backoff.String())

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, q.maxWait)
	}
}

func (q *Queue) consume(ctx context.Context, handler func(context.Context, string) error) error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos: %w", err)
	}
	if _, err := declare(ch, q.name); err != nil {
		return err
	}
	deliveries, err := ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}
	slog.Info("rabbitmq_subscribed", "queue", q.name, "prefetch", q.prefetch, "concurrency", q.concurrency)

	closed := make(chan struct{})
	var once sync.Once
	var workers sync.WaitGroup
	for range q.concurrency {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						once.Do(func() { close(closed) })
						return
					}
					if ctx.Err() != nil {
						_ = d.Nack(false, true)
						return
					}
					q.handle(ctx, d, handler)
				}
			}
		}()
	}
	workers.Wait()

	select {
	case <-closed:
		return errors.New("rabbitmq deliveries channel closed")
	default:
		return ctx.Err()
	}
}

// handle acks after the handler returns. Failures are dropped rather than requeued:
// the run table is the source of truth and the sweeper republishes what is left pending.
func (q *Queue) handle(ctx context.Context, d amqp.Delivery, handler func(context.Context, string) error) {
	runID := string(d.Body)
	err := handler(ctx, runID)
	switch {
	case err == nil:
		_ = d.Ack(false)
		return
	case domain.IsKind(err, domain.ErrTemporary):
		slog.Warn("run_released", "run_id", runID, "error", err)
	default:
		slog.Error("run_handler_failed", "run_id", runID, "error", err)
	}
	_ = d.Nack(false, false)
}

func (q *Queue) channelLocked() (*amqp.Channel, error) {
	if q.ch != nil && !q.ch.IsClosed() {
		return q.ch, nil
	}
	q.resetLocked()

	conn, err := amqp.Dial(q.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := declare(ch, q.name); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	q.conn, q.ch = conn, ch
	return ch, nil
}

func (q *Queue) resetLocked() {
	if q.ch != nil {
		_ = q.ch.Close()
		q.ch = nil
	}
	if q.conn != nil {
		_ = q.conn.Close()
		q.conn = nil
	}
}

func declare(ch *amqp.Channel, name string) (amqp.Queue, error) {
	queue, err := ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	return queue, nil
}

func classifyAMQPError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case resilience.IsCircuitOpen(err), errors.Is(err, amqp.ErrClosed):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return resilience.ErrorClassification{Retryable: amqpErr.Recover || amqpErr.Server, RecordFailure: true}
	}
	// Dial failures surface as net errors.
	return resilience.ErrorClassification{Retryable: strings.Contains(err.Error(), "dial"), RecordFailure: true}
}
