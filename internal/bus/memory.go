package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// every message travels on one channel topic so a subscriber sees them in publish order
const memoryTopic = "jobwatch"

// Memory is an in-process bus on top of a watermill go channel. Each subscription
// has its own unbounded queue so Publish never waits on a slow reader.
type Memory struct {
	pubsub *gochannel.GoChannel

	mu     sync.RWMutex
	subs   map[string]*memorySub
	closed bool
}

// MemoryOption configures a Memory bus.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	logger watermill.LoggerAdapter
}

// WithMemoryLogger routes the channel's own logging to l.
func WithMemoryLogger(l *slog.Logger) MemoryOption {
	return func(c *memoryConfig) { c.logger = watermill.NewSlogLogger(l) }
}

// NewMemory returns an empty in-process bus.
func NewMemory(opts ...MemoryOption) *Memory {
	cfg := memoryConfig{logger: watermill.NopLogger{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Memory{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		}, cfg.logger),
		subs: make(map[string]*memorySub),
	}
}

// Publish delivers msg to every matching subscription.
func (b *Memory) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if msg.Trace == nil {
		Inject(ctx, &msg)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.pubsub.Publish(memoryTopic, message.NewMessage(watermill.NewUUID(), data))
}

// Subscribe registers a subscription. It is removed when ctx is done or on
// Unsubscribe.
func (b *Memory) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(context.Background())
	in, err := b.pubsub.Subscribe(subCtx, memoryTopic)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &memorySub{
		id:     uuid.NewString(),
		filter: filter,
		bus:    b,
		cancel: cancel,
		out:    make(chan Message),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	b.subs[s.id] = s

	go s.receive(in)
	go s.pump()
	go func() {
		select {
		case <-ctx.Done():
			s.Unsubscribe()
		case <-s.done:
		}
	}()

	return s, nil
}

// Close tears down every subscription.
func (b *Memory) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*memorySub, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	return b.pubsub.Close()
}

// Subscribers returns the number of live subscriptions.
func (b *Memory) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Memory) remove(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

type memorySub struct {
	id     string
	filter Filter
	bus    *Memory
	cancel context.CancelFunc

	mu    sync.Mutex
	queue []Message

	out    chan Message
	notify chan struct{}
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func (s *memorySub) ID() string        { return s.id }
func (s *memorySub) C() <-chan Message { return s.out }

func (s *memorySub) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.id)
		s.cancel()
		close(s.done)
		<-s.exited
		close(s.out)
	})
}

// receive acks each channel message as soon as it is queued, which releases the
// publisher.
func (s *memorySub) receive(in <-chan *message.Message) {
	for m := range in {
		var msg Message
		if err := json.Unmarshal(m.Payload, &msg); err == nil && s.filter.Matches(msg) {
			s.enqueue(msg)
		}
		m.Ack()
	}
}

func (s *memorySub) enqueue(msg Message) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *memorySub) pump() {
	defer close(s.exited)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		msg := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- msg:
		case <-s.done:
			return
		}
	}
}
