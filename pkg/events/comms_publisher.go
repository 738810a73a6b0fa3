package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/packet-router/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisher publishes session events to a NATS subject.
type CommsPublisher struct {
	nc      *comms.Conn
	subject string
}

// NewCommsPublisher creates a CommsPublisher publishing on subjects.SessionEvents().
func NewCommsPublisher(nc *comms.Conn, subjects commsutil.Subjects) *CommsPublisher {
	return &CommsPublisher{nc: nc, subject: subjects.SessionEvents()}
}

// PublishSession encodes and publishes event.
func (p *CommsPublisher) PublishSession(_ context.Context, event *SessionEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s event for session %s", commsPublisherLogPrefix, event.Kind, event.SessionID))
	return nil
}
