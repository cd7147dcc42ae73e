// Package messagingtest provides an in-process messaging.Client for tests.
package messagingtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cohortlabs/cohort-stack/common/messaging"
)

// ErrNoResponders mirrors the broker error returned when nobody serves a
// request subject.
var ErrNoResponders = errors.New("no responders available for request")

// Bus delivers messages synchronously to subscribers of the exact subject.
// Queue groups deliver to the first subscriber of the group only.
type Bus struct {
	mu         sync.Mutex
	subs       map[string][]*subscription
	published  []*messaging.Message
	connected  bool
	publishErr error
}

// NewBus returns a connected Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*subscription), connected: true}
}

// FailPublish makes every subsequent publish return err.
func (b *Bus) FailPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

// Disconnect marks the bus as disconnected.
func (b *Bus) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

// Published returns a copy of every message published so far.
func (b *Bus) Published() []*messaging.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*messaging.Message(nil), b.published...)
}

func (b *Bus) Publish(ctx context.Context, subject string, data []byte) error {
	return b.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

func (b *Bus) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	if b.publishErr != nil {
		err := b.publishErr
		b.mu.Unlock()
		return err
	}
	m := *msg
	m.Timestamp = time.Now()
	b.published = append(b.published, &m)
	targets := b.targets(m.Subject)
	b.mu.Unlock()

	for _, s := range targets {
		if err := s.handler(ctx, &m); err != nil {
			return fmt.Errorf("handler for %s: %w", m.Subject, err)
		}
	}
	return nil
}

// Request publishes data with a fresh reply subject and returns the first
// reply. Handlers run synchronously, so the reply is available on return.
func (b *Bus) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*messaging.Message, error) {
	return b.RequestMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

// RequestMsg is Request with headers.
func (b *Bus) RequestMsg(ctx context.Context, msg *messaging.Message) (*messaging.Message, error) {
	inbox := "_INBOX." + uuid.NewString()
	var reply *messaging.Message
	sub, err := b.Subscribe(inbox, func(_ context.Context, m *messaging.Message) error {
		reply = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	b.mu.Lock()
	served := len(b.subs[msg.Subject]) > 0
	b.mu.Unlock()
	if !served {
		return nil, ErrNoResponders
	}

	m := *msg
	m.Reply = inbox
	if err := b.PublishMsg(ctx, &m); err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, fmt.Errorf("no reply on %s", msg.Subject)
	}
	return reply, nil
}

func (b *Bus) Subscribe(subject string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	return b.QueueSubscribe(subject, "", handler)
}

func (b *Bus) QueueSubscribe(subject, queue string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &subscription{bus: b, subject: subject, queue: queue, handler: handler, valid: true}
	b.subs[subject] = append(b.subs[subject], s)
	return s, nil
}

func (b *Bus) Drain() error { return b.Close() }

func (b *Bus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]*subscription)
	b.connected = false
	return nil
}

// targets picks the subscribers for subject. Caller holds b.mu.
func (b *Bus) targets(subject string) []*subscription {
	var out []*subscription
	seenQueue := make(map[string]bool)
	for _, s := range b.subs[subject] {
		if s.queue != "" {
			if seenQueue[s.queue] {
				continue
			}
			seenQueue[s.queue] = true
		}
		out = append(out, s)
	}
	return out
}

type subscription struct {
	bus     *Bus
	subject string
	queue   string
	handler messaging.MessageHandler
	valid   bool
}

func (s *subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	subs := s.bus.subs[s.subject]
	for i, other := range subs {
		if other == s {
			s.bus.subs[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.valid = false
	return nil
}

func (s *subscription) Subject() string { return s.subject }

func (s *subscription) IsValid() bool { return s.valid }
