// Package outbox delivers committed ledger events from the outbox table to
// a Publisher.
package outbox

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"ledger/internal/domain/event"
)

var (
	relayTracer         = otel.Tracer("ledger/outbox")
	relayMeter          = otel.Meter("ledger/outbox")
	relayDuration, _    = relayMeter.Float64Histogram("outbox.flush.duration", metric.WithDescription("Outbox flush duration in seconds"), metric.WithUnit("s"))
	relayEvents, _      = relayMeter.Int64Counter("outbox.events.total", metric.WithDescription("Outbox events processed by result"))
	relayFlushErrors, _ = relayMeter.Int64Counter("outbox.flush.errors", metric.WithDescription("Outbox flushes that failed before completing"))
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultBatchSize   = 50
	DefaultMaxAttempts = 10
)

// Publisher delivers one event to its destination.
type Publisher interface {
	Publish(ctx context.Context, e *event.Event) error
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a publisher that logs every event.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(ctx context.Context, e *event.Event) error {
	p.logger.Info("Ledger event",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.String("key", e.Key),
		zap.ByteString("payload", e.Payload),
	)
	return nil
}

// Config tunes the relay.
type Config struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// Relay polls the outbox and publishes pending events in order. It also
// runs immediately when woken, typically by a database notification.
type Relay struct {
	repo      event.Repository
	publisher Publisher
	cfg       Config
	logger    *zap.Logger

	wakeCh chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRelay creates a relay. Zero config values fall back to defaults.
func NewRelay(repo event.Repository, publisher Publisher, cfg Config, logger *zap.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("outbox_relay"),
		wakeCh:    make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the polling goroutine.
func (r *Relay) Start() {
	r.logger.Info("Starting outbox relay",
		zap.Duration("interval", r.cfg.Interval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)
	r.wg.Add(1)
	go r.run()
}

// Wake requests an immediate flush. It never blocks.
func (r *Relay) Wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

func (r *Relay) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("Outbox relay stopped")
			return
		case <-ticker.C:
			r.drain()
		case <-r.wakeCh:
			r.drain()
		}
	}
}

// drain flushes until the outbox is empty, a delivery fails, or the relay
// is stopped.
func (r *Relay) drain() {
	for r.ctx.Err() == nil {
		batch, err := r.Flush(r.ctx)
		if err != nil || batch.Failed > 0 || batch.Claimed < r.cfg.BatchSize {
			return
		}
	}
}

// Flush processes one batch of pending events.
func (r *Relay) Flush(ctx context.Context) (event.Batch, error) {
	ctx, span := relayTracer.Start(ctx, "outbox.flush")
	defer span.End()

	start := time.Now()
	batch, err := r.repo.ProcessPending(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts, r.publish)
	relayDuration.Record(ctx, time.Since(start).Seconds())

	span.SetAttributes(
		attribute.Int("outbox.claimed", batch.Claimed),
		attribute.Int("outbox.sent", batch.Sent),
		attribute.Int("outbox.failed", batch.Failed),
	)
	if batch.Sent > 0 {
		relayEvents.Add(ctx, int64(batch.Sent), metric.WithAttributes(attribute.String("result", "sent")))
	}
	if batch.Failed > 0 {
		relayEvents.Add(ctx, int64(batch.Failed), metric.WithAttributes(attribute.String("result", "failed")))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		relayFlushErrors.Add(ctx, 1)
		if ctx.Err() == nil {
			r.logger.Error("Outbox flush failed", zap.Error(err))
		}
		return batch, err
	}
	if batch.Claimed > 0 {
		r.logger.Debug("Outbox batch processed",
			zap.Int("claimed", batch.Claimed),
			zap.Int("sent", batch.Sent),
			zap.Int("failed", batch.Failed),
		)
	}
	return batch, nil
}

func (r *Relay) publish(ctx context.Context, e *event.Event) error {
	if err := r.publisher.Publish(ctx, e); err != nil {
		r.logger.Warn("Failed to publish event",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
			zap.Int("attempt", e.Attempts+1),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Shutdown stops the relay, waiting up to timeout for an in-flight batch.
// Undelivered events stay pending for the next start.
func (r *Relay) Shutdown(timeout time.Duration) {
	r.logger.Info("Outbox relay: initiating shutdown", zap.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		r.cancel()
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Outbox relay: shutdown complete")
	case <-time.After(timeout):
		r.logger.Warn("Outbox relay: timeout reached before the in-flight batch finished")
	}
}
