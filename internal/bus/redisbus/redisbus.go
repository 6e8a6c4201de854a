// Package redisbus implements bus.Bus on Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"jobwatch/internal/bus"

	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"
)

// DefaultPrefix namespaces every channel name.
const DefaultPrefix = "jobwatch"

// Bus publishes each message on "<prefix>:<topic>:<jobID>".
type Bus struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
	owned  bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithPrefix overrides the channel name prefix.
func WithPrefix(prefix string) Option {
	return func(b *Bus) { b.prefix = prefix }
}

// WithLogger sets the logger used for dropped messages.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New wraps an existing client. Close does not close the client.
func New(client *redis.Client, opts ...Option) *Bus {
	b := &Bus{client: client, prefix: DefaultPrefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dial connects to addr and checks the connection. Close closes the client.
func Dial(addr string, opts ...Option) (*Bus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	b := New(client, opts...)
	b.owned = true
	return b, nil
}

// Channel returns the Redis channel name for a topic and job.
func (b *Bus) Channel(topic, jobID string) string {
	return b.prefix + ":" + topic + ":" + jobID
}

// Publish sends msg as a JSON envelope carrying the caller's trace context.
func (b *Bus) Publish(ctx context.Context, msg bus.Message) error {
	if msg.Trace == nil {
		bus.Inject(ctx, &msg)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Topic, err)
	}
	if err := b.client.Publish(b.Channel(msg.Topic, msg.JobID), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe subscribes to the filter's topics. A filter without a job id uses
// pattern subscriptions so every job matches. A filter without topics is rejected.
func (b *Bus) Subscribe(ctx context.Context, filter bus.Filter) (bus.Subscription, error) {
	if len(filter.Topics) == 0 {
		return nil, fmt.Errorf("redis subscription needs at least one topic")
	}

	var pubsub *redis.PubSub
	if filter.JobID == "" {
		patterns := make([]string, len(filter.Topics))
		for i, topic := range filter.Topics {
			patterns[i] = b.Channel(topic, "*")
		}
		pubsub = b.client.PSubscribe(patterns...)
	} else {
		channels := make([]string, len(filter.Topics))
		for i, topic := range filter.Topics {
			channels[i] = b.Channel(topic, filter.JobID)
		}
		pubsub = b.client.Subscribe(channels...)
	}

	// wait for the server to confirm so no message published after Subscribe returns is lost
	if _, err := pubsub.Receive(); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s := &subscription{
		id:     uuid.NewString(),
		pubsub: pubsub,
		filter: filter,
		out:    make(chan bus.Message),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: b.logger,
	}
	go s.forward(ctx)
	return s, nil
}

// Close closes the client when the bus created it.
func (b *Bus) Close() error {
	if b.owned {
		return b.client.Close()
	}
	return nil
}

type subscription struct {
	id     string
	pubsub *redis.PubSub
	filter bus.Filter
	out    chan bus.Message
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (s *subscription) ID() string { return s.id }
func (s *subscription) C() <-chan bus.Message { return s.out }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.pubsub.Close()
		<-s.exited
		close(s.out)
	})
}

func (s *subscription) forward(ctx context.Context) {
	defer close(s.exited)

	// tear down when the subscriber's context ends
	go func() {
		select {
		case <-ctx.Done():
			s.Unsubscribe()
		case <-s.done:
		}
	}()

	in := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case raw, ok := <-in:
			if !ok {
				return
			}
			var msg bus.Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				s.logger.Warn("dropping malformed bus message", "channel", raw.Channel, "error", err)
				continue
			}
			if msg.Topic == "" {
				msg.Topic, msg.JobID = splitChannel(raw.Channel)
			}
			if !s.filter.Matches(msg) {
				continue
			}
			select {
			case s.out <- msg:
			case <-s.done:
				return
			}
		}
	}
}

// splitChannel recovers topic and job id from "<prefix>:<topic>:<jobID>".
func splitChannel(channel string) (string, string) {
	parts := strings.SplitN(channel, ":", 3)
	if len(parts) != 3 {
		return "", ""
	}
	return parts[1], parts[2]
}
