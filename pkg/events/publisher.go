package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const publisherLogPrefix = "events:publisher"

// EventPublisher publishes session lifecycle events.
type EventPublisher interface {
	PublishSession(ctx context.Context, event *SessionEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing.
type NoOpPublisher struct{}

// PublishSession is a no-op.
func (p *NoOpPublisher) PublishSession(_ context.Context, _ *SessionEvent) error {
	return nil
}

// CallbackPublisher hands each event to a function. A nil function drops events.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *SessionEvent) error
}

// NewCallbackPublisher creates a publisher that invokes cb for each event.
func NewCallbackPublisher(cb func(ctx context.Context, event *SessionEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishSession calls the callback.
func (p *CallbackPublisher) PublishSession(ctx context.Context, event *SessionEvent) error {
	if p.callback == nil {
		return nil
	}
	return p.callback(ctx, event)
}

// LogPublisher writes each event to the default slog logger at debug level.
type LogPublisher struct{}

// PublishSession logs the event.
func (LogPublisher) PublishSession(_ context.Context, event *SessionEvent) error {
	slog.Debug(fmt.Sprintf("%s - session %s peer=%s kind=%s reason=%s",
		publisherLogPrefix, event.SessionID, event.Peer, event.Kind, event.Reason))
	return nil
}

// FanOut publishes to every non-nil publisher in order. All publishers are
// tried; their errors are joined.
func FanOut(publishers ...EventPublisher) EventPublisher {
	out := make(fanOut, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

type fanOut []EventPublisher

func (f fanOut) PublishSession(ctx context.Context, event *SessionEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishSession(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
