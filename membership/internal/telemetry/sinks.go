package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cohortlabs/cohort-stack/common/messaging"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

// MessagePublisher is the part of a broker client the NATS sink needs. Both
// the core client and the JetStream durable publisher satisfy it.
type MessagePublisher interface {
	PublishMsg(ctx context.Context, msg *messaging.Message) error
}

// NATSSink publishes each event as JSON on groups.audit.<EVENT_TYPE>.
type NATSSink struct {
	publisher MessagePublisher
}

// NewNATSSink creates a NATSSink.
func NewNATSSink(publisher MessagePublisher) *NATSSink {
	return &NATSSink{publisher: publisher}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Send(ctx context.Context, ev models.AuditEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	msg := &messaging.Message{
		Subject: messaging.AuditSubject(ev.EventType),
		Data:    data,
		Metadata: map[string]string{
			messaging.HeaderContentType: "application/json",
		},
	}
	if ev.RequestID != "" {
		msg.Metadata[messaging.HeaderRequestID] = ev.RequestID
	}
	return s.publisher.PublishMsg(ctx, msg)
}

// MultiSink fans an event out to several sinks. Every sink is tried; the
// failures are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a MultiSink. Nil sinks are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Name() string { return "multi" }

func (m *MultiSink) Send(ctx context.Context, ev models.AuditEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// RecordingSink keeps events in memory. Used by tests and by the CLI when no
// broker is configured.
type RecordingSink struct {
	mu     sync.Mutex
	events []models.AuditEvent
	err    error
}

// NewRecordingSink creates an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// FailWith makes subsequent sends record the event and return err.
func (r *RecordingSink) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *RecordingSink) Name() string { return "recording" }

func (r *RecordingSink) Send(_ context.Context, ev models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

// Events returns a copy of the recorded events.
func (r *RecordingSink) Events() []models.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AuditEvent(nil), r.events...)
}

// EventTypes returns the recorded event types in order.
func (r *RecordingSink) EventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType
	}
	return out
}

// Reset drops the recorded events.
func (r *RecordingSink) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
