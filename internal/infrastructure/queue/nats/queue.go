package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

// Queue carries diagnosis traffic over NATS: request/reply diagnosis jobs on
// one subject and fire-and-forget diagnosis events on another.
type Queue struct {
	conn            *nats.Conn
	diagnoseSubject string
	eventsSubject   string
	queueGroup      string
	executor        *resilience.Executor
}

type Options struct {
	DiagnoseSubject      string
	EventsSubject        string
	QueueGroup           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url string, options Options) (*Queue, error) {
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
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = "plant-doctor-workers"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("plant-doctor"),
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
		conn:            conn,
		diagnoseSubject: options.DiagnoseSubject,
		eventsSubject:   options.EventsSubject,
		queueGroup:      queueGroup,
		executor:        options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDiagnosis(ctx context.Context, event domain.DiagnosisEvent) error {
	if q.eventsSubject == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal diagnosis event: %w", err)
	}

	_, err = resilience.Do(ctx, q.executor, "nats.publish", func(_ context.Context) (struct{}, error) {
		if err := q.conn.Publish(q.eventsSubject, payload); err != nil {
			return struct{}{}, fmt.Errorf("nats publish: %w", err)
		}
		return struct{}{}, nil
	}, classifyError)
	if err != nil {
		return asTemporary("nats publish", err)
	}
	return nil
}

// RequestDiagnosis sends raw image bytes to the worker pool and waits for the
// encoded reply.
func (q *Queue) RequestDiagnosis(ctx context.Context, image []byte) ([]byte, error) {
	msg, err := resilience.Do(ctx, q.executor, "nats.request", func(ctx context.Context) (*nats.Msg, error) {
		return q.conn.RequestWithContext(ctx, q.diagnoseSubject, image)
	}, classifyError)
	if err != nil {
		return nil, asTemporary("nats request", err)
	}
	return msg.Data, nil
}

// ServeDiagnoseRequests answers diagnosis requests in a queue group until ctx
// is done, then drains the subscription.
func (q *Queue) ServeDiagnoseRequests(ctx context.Context, handler func(context.Context, []byte) []byte) error {
	if q.diagnoseSubject == "" {
		return errors.New("nats diagnose subject is empty")
	}
	sub, err := q.conn.QueueSubscribe(q.diagnoseSubject, q.queueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		reply := handler(handlerCtx, msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			slog.Error("nats_respond_failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
