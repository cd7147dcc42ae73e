package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/cohortlabs/cohort-stack/common/messaging"
)

// JetStreamClient extends Client with JetStream persistence so audit events
// survive consumer downtime.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream.
type StreamConfig struct {
	Name      string
	Subjects  []string
	MaxAge    time.Duration
	MaxBytes  int64
	MaxMsgs   int64
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType
}

// AuditStream captures every audit event published under groups.audit.
// Events are kept for downstream consumers regardless of who is listening.
var AuditStream = StreamConfig{
	Name:      "GROUP_AUDIT",
	Subjects:  []string{messaging.SubjectGroupsAudit + ".>"},
	MaxAge:    7 * 24 * time.Hour,
	MaxBytes:  512 * 1024 * 1024,
	MaxMsgs:   1000000,
	Retention: jetstream.LimitsPolicy,
	Storage:   jetstream.FileStorage,
}

// NewJetStreamClient creates a JetStream-enabled client.
func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamClient{Client: client, js: js}, nil
}

// CreateOrUpdateStream creates or updates a stream.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		MaxMsgs:   cfg.MaxMsgs,
		Retention: cfg.Retention,
		Storage:   cfg.Storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// PublishDurable stores msg in JetStream and waits for the acknowledgment.
// Subjects not captured by any stream fail with jetstream.ErrNoStreamResponse.
func (c *JetStreamClient) PublishDurable(ctx context.Context, msg *messaging.Message) error {
	if _, err := c.js.PublishMsg(ctx, messageToNATS(msg)); err != nil {
		return fmt.Errorf("jetstream publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Durable returns a view of the client whose PublishMsg goes through
// JetStream. Core request/reply traffic keeps using the client itself.
func (c *JetStreamClient) Durable() *DurablePublisher {
	return &DurablePublisher{client: c}
}

// DurablePublisher publishes through JetStream.
type DurablePublisher struct {
	client *JetStreamClient
}

func (p *DurablePublisher) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	return p.client.PublishDurable(ctx, msg)
}

// PublishSync publishes data and waits for acknowledgment.
func (c *JetStreamClient) PublishSync(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	return c.js.Publish(ctx, subject, data)
}
