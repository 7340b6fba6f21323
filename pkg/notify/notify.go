// Package notify delivers request events to interested parties without
// affecting the request outcome.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dukex/querygate/pkg/events"
)

// Notifier delivers one event. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event events.RequestEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event events.RequestEvent) error

func (f NotifierFunc) Notify(ctx context.Context, event events.RequestEvent) error {
	return f(ctx, event)
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event events.RequestEvent) error {
	var errs []error

	for _, notifier := range m {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Log only records the event.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("module", "notify_log")}
}

func (l *Log) Notify(ctx context.Context, event events.RequestEvent) error {
	l.logger.InfoContext(ctx, "Request notification",
		"type", event.Type,
		"request_id", event.RequestID,
		"team", event.Team,
		"actor_id", event.ActorID,
		"status", event.Status,
	)

	return nil
}

// Outbox hands events to a notifier on a detached goroutine. Delivery errors
// are logged and never reach the caller.
type Outbox struct {
	notifier Notifier
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewOutbox(notifier Notifier, logger *slog.Logger) *Outbox {
	return &Outbox{
		notifier: notifier,
		logger:   logger.With("module", "notify_outbox"),
	}
}

// Send schedules delivery and returns immediately.
func (o *Outbox) Send(ctx context.Context, event events.RequestEvent) {
	if o == nil || o.notifier == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)

	o.wg.Add(1)

	go func() {
		defer o.wg.Done()

		defer func() {
			if r := recover(); r != nil {
				o.logger.ErrorContext(ctx, "Notifier panicked", "type", event.Type, "request_id", event.RequestID, "panic", r)
			}
		}()

		if err := o.notifier.Notify(ctx, event); err != nil {
			o.logger.ErrorContext(ctx, "Failed to deliver notification",
				"type", event.Type, "request_id", event.RequestID, "error", err)
		}
	}()
}

// Wait blocks until every scheduled delivery finished or ctx is done.
func (o *Outbox) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
