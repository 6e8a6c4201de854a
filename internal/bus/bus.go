// Package bus defines the message channel job viewers talk over: topic-named
// messages, optionally scoped to a job, delivered to matching subscriptions.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var (
	ErrClosed = errors.New("bus closed")
)

// Message is a single bus message.
type Message struct {
	Topic   string                 `json:"topic"`
	JobID   string                 `json:"jobId"`
	Payload json.RawMessage        `json:"payload,omitempty"`
	Trace   propagation.MapCarrier `json:"trace,omitempty"`
}

// NewMessage builds a message with payload encoded as JSON.
func NewMessage(topic, jobID string, payload any) (Message, error) {
	msg := Message{Topic: topic, JobID: jobID}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", topic, err)
	}
	msg.Payload = data
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("decode %s: empty payload", m.Topic)
	}
	return json.Unmarshal(m.Payload, v)
}

// Filter selects messages for a subscription. An empty JobID matches every job and
// an empty Topics list matches every topic.
type Filter struct {
	JobID  string
	Topics []string
}

// Matches reports whether msg passes the filter.
func (f Filter) Matches(msg Message) bool {
	if f.JobID != "" && f.JobID != msg.JobID {
		return false
	}
	return len(f.Topics) == 0 || slices.Contains(f.Topics, msg.Topic)
}

// Subscription delivers matching messages in publish order until Unsubscribe.
type Subscription interface {
	ID() string
	// C is closed once the subscription has been torn down.
	C() <-chan Message
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe()
}

// Bus publishes and subscribes.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
	Close() error
}

// Inject stores the trace context of ctx on msg.
func Inject(ctx context.Context, msg *Message) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) > 0 {
		msg.Trace = carrier
	}
}

// Extract returns ctx carrying the trace context stored on msg, if any.
func Extract(ctx context.Context, msg Message) context.Context {
	if msg.Trace == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, msg.Trace)
}
