// Package event dispatches the durable sync event stream to subscribed
// handlers with retry, backoff, and escalation.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syncbridge/backend/internal/domain/alert"
	"github.com/syncbridge/backend/internal/domain/event"
	"go.uber.org/zap"
)

// DispatcherConfig holds configuration for the dispatcher loops.
type DispatcherConfig struct {
	TickInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultDispatcherConfig returns default configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		TickInterval:     time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Dispatcher pulls due events off the durable queue one at a time, highest
// priority first, and runs every matching handler. Critical events skip
// the queue and dispatch synchronously at publish time.
type Dispatcher struct {
	events   event.Repository
	records  event.ProcessingRecordRepository
	registry *Registry
	alerts   alert.Repository
	config   DispatcherConfig
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(
	events event.Repository,
	records event.ProcessingRecordRepository,
	registry *Registry,
	alerts alert.Repository,
	config DispatcherConfig,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		events:   events,
		records:  records,
		registry: registry,
		alerts:   alerts,
		config:   config,
		logger:   logger,
	}
}

// Publish durably appends an event. Critical-priority events are
// dispatched before Publish returns; everything else waits for the loop.
func (d *Dispatcher) Publish(ctx context.Context, e *event.SyncEvent) error {
	if err := d.events.Append(ctx, e); err != nil {
		return err
	}
	d.logger.Debug("event published",
		zap.String("event_id", e.ID.String()),
		zap.String("type", string(e.Type)),
		zap.String("priority", string(e.Priority)),
	)

	if e.Priority == event.PriorityCritical {
		d.claimAndDispatch(ctx, e)
	}
	return nil
}

// Start starts the dispatch and cleanup loops.
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go d.dispatchLoop(ctx)

	if d.config.CleanupEnabled {
		d.wg.Add(1)
		go d.cleanupLoop(ctx)
	}

	d.logger.Info("event dispatcher started",
		zap.Duration("tick_interval", d.config.TickInterval),
		zap.Int("subscriptions", d.registry.Len()),
	)
	return nil
}

// Stop gracefully stops the dispatcher.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("event dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) dispatchLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick dispatches the single highest-priority due event, if any.
func (d *Dispatcher) Tick(ctx context.Context) {
	e, err := d.events.NextDue(ctx, time.Now())
	if errors.Is(err, event.ErrEventNotFound) {
		return
	}
	if err != nil {
		d.logger.Error("failed to fetch next due event", zap.Error(err))
		return
	}
	d.claimAndDispatch(ctx, e)
}

func (d *Dispatcher) claimAndDispatch(ctx context.Context, e *event.SyncEvent) {
	if err := e.MarkProcessing(); err != nil {
		d.logger.Warn("event already claimed",
			zap.String("event_id", e.ID.String()),
			zap.String("status", string(e.Status)),
		)
		return
	}
	if err := d.events.Update(ctx, e); err != nil {
		d.logger.Error("failed to claim event", zap.Error(err))
		return
	}
	d.dispatch(ctx, e)
}

// dispatch runs every matching handler in order. The first failure stops
// the chain, compensates already-completed handlers, and defers the whole
// event; success of all handlers marks it processed.
func (d *Dispatcher) dispatch(ctx context.Context, e *event.SyncEvent) {
	subs := d.registry.MatchesFor(e)
	if len(subs) == 0 {
		d.logger.Debug("no matching subscriptions",
			zap.String("event_id", e.ID.String()),
			zap.String("type", string(e.Type)),
		)
		e.MarkProcessed()
		if err := d.events.Update(ctx, e); err != nil {
			d.logger.Error("failed to update event", zap.Error(err))
		}
		return
	}

	var completed []*event.Subscription
	for _, sub := range subs {
		if err := d.invoke(ctx, sub, e); err != nil {
			d.compensate(ctx, completed, e)
			d.deferEvent(ctx, e, sub, fmt.Sprintf("%s: %v", sub.Handler.Name(), err))
			return
		}
		completed = append(completed, sub)
	}

	e.MarkProcessed()
	if err := d.events.Update(ctx, e); err != nil {
		d.logger.Error("failed to mark event processed", zap.Error(err))
		return
	}
	d.logger.Debug("event processed",
		zap.String("event_id", e.ID.String()),
		zap.Int("handlers", len(subs)),
	)
}

// invoke runs one handler with its timeout. A handler that outlives the
// timeout is abandoned; its goroutine exits when it observes ctx.
func (d *Dispatcher) invoke(ctx context.Context, sub *event.Subscription, e *event.SyncEvent) error {
	timeout := sub.Timeout
	if timeout <= 0 {
		timeout = event.DefaultHandlerTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- sub.Handler.Handle(hctx, e)
	}()

	var outcome event.ProcessingOutcome
	var invokeErr error
	select {
	case err := <-done:
		if err != nil {
			outcome, invokeErr = event.OutcomeFailure, err
		} else {
			outcome = event.OutcomeSuccess
		}
	case <-hctx.Done():
		outcome, invokeErr = event.OutcomeTimeout, event.ErrHandlerTimeout
	}

	errMsg := ""
	if invokeErr != nil {
		errMsg = invokeErr.Error()
	}
	record := event.NewProcessingRecord(e.ID, sub.ID, sub.Handler.Name(), e.RetryCount+1, outcome, errMsg, start, time.Since(start))
	if err := d.records.Save(ctx, record); err != nil {
		d.logger.Error("failed to save processing record", zap.Error(err))
	}
	return invokeErr
}

// compensate undoes side effects of handlers that completed before a later
// one failed, in reverse order. Compensation failures are logged, never
// retried.
func (d *Dispatcher) compensate(ctx context.Context, completed []*event.Subscription, e *event.SyncEvent) {
	for i := len(completed) - 1; i >= 0; i-- {
		comp, ok := completed[i].Handler.(event.CompensatingHandler)
		if !ok {
			continue
		}
		if err := comp.Compensate(ctx, e); err != nil {
			d.logger.Error("handler compensation failed",
				zap.String("event_id", e.ID.String()),
				zap.String("handler", comp.Name()),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) deferEvent(ctx context.Context, e *event.SyncEvent, sub *event.Subscription, errMsg string) {
	delay := sub.Backoff.Delay(e.RetryCount + 1)
	e.Defer(delay, errMsg)

	if e.IsEscalated() {
		d.logger.Warn("event escalated after exhausting retries",
			zap.String("event_id", e.ID.String()),
			zap.String("type", string(e.Type)),
			zap.Int("retry_count", e.RetryCount),
			zap.String("last_error", e.LastError),
		)
		a := alert.New(e.UserID, alert.KindEscalation, alert.SeverityCritical,
			fmt.Sprintf("event %s escalated after %d attempts", e.ID, e.RetryCount),
			map[string]any{
				"event_id":   e.ID,
				"event_type": e.Type,
				"last_error": e.LastError,
			})
		if err := d.alerts.Save(ctx, a); err != nil {
			d.logger.Error("failed to save escalation alert", zap.Error(err))
		}
	} else {
		d.logger.Debug("event deferred",
			zap.String("event_id", e.ID.String()),
			zap.Int("retry_count", e.RetryCount),
			zap.Duration("delay", delay),
		)
	}

	if err := d.events.Update(ctx, e); err != nil {
		d.logger.Error("failed to update deferred event", zap.Error(err))
	}
}

func (d *Dispatcher) cleanupLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cleanup(ctx)
		}
	}
}

func (d *Dispatcher) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-d.config.CleanupRetention)
	deleted, err := d.events.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		d.logger.Error("failed to clean up processed events", zap.Error(err))
		return
	}
	if deleted > 0 {
		d.logger.Info("cleaned up processed events",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
