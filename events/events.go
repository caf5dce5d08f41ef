// Package events publishes domain events (enrollments created, payments
// settled) to NATS JetStream. Without a configured server it degrades to a
// no-op publisher so the service keeps working.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	EnrollmentCreated   = "lms.enrollment.created"
	EnrollmentCancelled = "lms.enrollment.cancelled"
	PaymentCompleted    = "lms.payment.completed"
	PaymentFailed       = "lms.payment.failed"

	streamName = "LMS_EVENTS"
	version    = "1.0.0"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close() error
}

type Envelope struct {
	Type          string    `json:"type"`
	Version       string    `json:"version"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID string    `json:"correlationId"`
	Payload       any       `json:"payload"`
}

func NewEnvelope(subject string, payload any) Envelope {
	return Envelope{
		Type:          subject,
		Version:       version,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.NewString(),
		Payload:       payload,
	}
}

type noop struct{}

func NewNoop() Publisher { return noop{} }

func (noop) Publish(context.Context, string, any) error { return nil }

func (noop) Close() error { return nil }

type natsPub struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect dials url and makes sure the event stream exists. An empty url
// yields the no-op publisher.
func Connect(url string) (Publisher, error) {
	if url == "" {
		return noop{}, nil
	}

	nc, err := nats.Connect(url, nats.Name("course-enrollment"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats[%s]: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"lms.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		nc.Close()
		return nil, fmt.Errorf("creating stream %s: %w", streamName, err)
	}

	return &natsPub{nc: nc, js: js}, nil
}

// ConnectOrNoop is Connect for startup: when the server cannot be reached
// the failure is logged and events are dropped instead.
func ConnectOrNoop(url string, log logrus.FieldLogger) Publisher {
	p, err := Connect(url)
	if err != nil {
		log.WithError(err).Warn("event publisher unavailable, events will be dropped")
		return noop{}
	}
	return p
}

func (p *natsPub) Publish(ctx context.Context, subject string, payload any) error {
	b, err := json.Marshal(NewEnvelope(subject, payload))
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", subject, err)
	}

	if _, err := p.js.Publish(subject, b, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publishing %s event: %w", subject, err)
	}
	return nil
}

func (p *natsPub) Close() error {
	return p.nc.Drain()
}
