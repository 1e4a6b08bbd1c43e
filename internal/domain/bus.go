package domain

import (
	"context"
)

// EventBus decouples pipeline stages from downstream consumers.
// Backed by Go channels (community) or NATS (pro). All methods require
// tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the evaluation pipeline.
const (
	// TopicRecordSubmitted carries raw records for async evaluation.
	TopicRecordSubmitted = "kestrel.record.submitted"

	// TopicRecordAccepted fires after a record is normalized and
	// appended to the store.
	TopicRecordAccepted = "kestrel.record.accepted"

	TopicViolationDetected = "kestrel.violation.detected"
	TopicFraudFlagged      = "kestrel.fraud.flagged"
	TopicBatchCompleted    = "kestrel.batch.completed"
)
