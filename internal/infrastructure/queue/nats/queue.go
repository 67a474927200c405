package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/infrastructure/resilience"
)

const (
	defaultQueueGroup   = "workers"
	publishFlushTimeout = 5 * time.Second
)

// Queue dispatches pipeline run ids over a NATS subject. Runs are durable in the
// run table, so an at-most-once core subscription is enough here.
type Queue struct {
	conn        *nats.Conn
	subject     string
	group       string
	concurrency int
	executor    *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	// Concurrency caps how many runs one subscriber executes at once.
	Concurrency          int
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("nats subject is required")
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	group := options.QueueGroup
	if group == "" {
		group = defaultQueueGroup
	}

	conn, err := nats.Connect(
		url,
		nats.Name("studyforge"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:        conn,
		subject:     subject,
		group:       group,
		concurrency: max(options.Concurrency, 1),
		executor:    options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishRun(ctx context.Context, runID string) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("nats publish: run id is empty")
	}
	call := func(ctx context.Context) error {
		if err := q.conn.Publish(q.subject, []byte(runID)); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		// Flush surfaces a dead connection now instead of on the next publish. It needs
		// a deadline, which request contexts usually lack.
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, publishFlushTimeout)
			defer cancel()
		}
		if err := q.conn.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("nats flush: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return resilience.TemporaryIfRetryable("nats publish", err, classifyNATSError)
}

// SubscribeRuns blocks until ctx is done. The NATS callback only admits a message once
// one of the concurrency slots is free, so a busy worker pushes back on the server's
// per-subscription buffer instead of piling up goroutines. On shutdown the
// subscription is drained and in-flight runs are awaited. Messages delivered during
// the drain are dropped; the watchdog re-dispatches their runs.
func (q *Queue) SubscribeRuns(ctx context.Context, handler func(context.Context, string) error) error {
	runs := newDispatcher(q.concurrency)

	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		runID := string(msg.Data)
		admitted := runs.dispatch(ctx, func() {
			logHandlerError(runID, handler(ctx, runID))
		})
		if !admitted {
			slog.Debug("nats_run_dropped", "run_id", runID)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	slog.Info("nats_subscribed", "subject", q.subject, "group", q.group, "concurrency", q.concurrency)

	<-ctx.Done()
	drainErr := sub.Drain()
	runs.close()
	if drainErr != nil && !errors.Is(drainErr, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats drain subscription: %w", drainErr)
	}
	return nil
}

func logHandlerError(runID string, err error) {
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrTemporary):
		slog.Warn("run_released", "run_id", runID, "error", err)
	default:
		slog.Error("run_handler_failed", "run_id", runID, "error", err)
	}
}
