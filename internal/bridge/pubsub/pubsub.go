package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PubSub is in-memory publish-subscribe messaging between the channel
// sessions and the local event gateway.
//
//counterfeiter:generate . PubSub
type PubSub[T any] interface {
	// Publish delivers message to every current subscriber of topic.
	// Subscribers whose buffer is full miss the message.
	Publish(ctx context.Context, topic string, message T) error

	// Subscribe returns a channel of messages on topic and a function that
	// ends the subscription. The subscription also ends with ctx.
	Subscribe(ctx context.Context, topic string) (<-chan Message[T], func(), error)

	Stats(topic string) TopicStats

	Close() error
}

// Message represents a published message with metadata.
type Message[T any] struct {
	ID        string
	Topic     string
	Payload   T
	Timestamp time.Time
}

// TopicStats provides statistics about a topic.
type TopicStats struct {
	Topic           string
	MessageCount    int64
	DroppedCount    int64
	SubscriberCount int
	LastMessageTime time.Time
}

type memoryPubSub[T any] struct {
	bufferSize int

	// mu guards closed; Publish and Subscribe hold it for reading
	mu     sync.RWMutex
	closed bool

	topicsMu sync.Mutex
	topics   map[string]*topic[T]
}

type topic[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber[T]
	stats       TopicStats
}

type subscriber[T any] struct {
	channel chan Message[T]
	cancel  context.CancelFunc
}

// Option represents a functional option for configuring the PubSub system.
type Option[T any] func(*memoryPubSub[T])

// WithBufferSize sets the buffer size for subscriber channels.
func WithBufferSize[T any](size int) Option[T] {
	return func(p *memoryPubSub[T]) {
		if size > 0 {
			p.bufferSize = size
		}
	}
}

func NewPubSub[T any](opts ...Option[T]) PubSub[T] {
	p := &memoryPubSub[T]{
		topics:     make(map[string]*topic[T]),
		bufferSize: 16,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *memoryPubSub[T]) Publish(ctx context.Context, topicName string, message T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	t := p.getOrCreateTopic(topicName)
	msg := Message[T]{
		ID:        uuid.NewString(),
		Topic:     topicName,
		Payload:   message,
		Timestamp: time.Now(),
	}

	// subscriber channels are only closed under t.mu's write lock
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.MessageCount++
	t.stats.LastMessageTime = msg.Timestamp
	for _, sub := range t.subscribers {
		select {
		case sub.channel <- msg:
		default:
			t.stats.DroppedCount++
		}
	}
	return nil
}

func (p *memoryPubSub[T]) Subscribe(ctx context.Context, topicName string) (<-chan Message[T], func(), error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, nil, ErrSubscriberClosed
	}

	t := p.getOrCreateTopic(topicName)
	subCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	sub := &subscriber[T]{
		channel: make(chan Message[T], p.bufferSize),
		cancel:  cancel,
	}

	t.mu.Lock()
	t.subscribers[id] = sub
	t.stats.SubscriberCount = len(t.subscribers)
	t.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			t.mu.Lock()
			if _, ok := t.subscribers[id]; ok {
				delete(t.subscribers, id)
				close(sub.channel)
			}
			t.stats.SubscriberCount = len(t.subscribers)
			t.mu.Unlock()
		})
	}

	go func() {
		<-subCtx.Done()
		unsubscribe()
	}()

	return sub.channel, unsubscribe, nil
}

func (p *memoryPubSub[T]) Stats(topicName string) TopicStats {
	p.topicsMu.Lock()
	t, ok := p.topics[topicName]
	p.topicsMu.Unlock()
	if !ok {
		return TopicStats{Topic: topicName}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// Close ends every subscription. Later Publish and Subscribe calls fail.
func (p *memoryPubSub[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	p.topicsMu.Lock()
	defer p.topicsMu.Unlock()
	for _, t := range p.topics {
		t.mu.Lock()
		for id, sub := range t.subscribers {
			sub.cancel()
			close(sub.channel)
			delete(t.subscribers, id)
		}
		t.stats.SubscriberCount = 0
		t.mu.Unlock()
	}
	return nil
}

func (p *memoryPubSub[T]) getOrCreateTopic(name string) *topic[T] {
	p.topicsMu.Lock()
	defer p.topicsMu.Unlock()

	if t, ok := p.topics[name]; ok {
		return t
	}
	t := &topic[T]{
		subscribers: make(map[string]*subscriber[T]),
		stats:       TopicStats{Topic: name},
	}
	p.topics[name] = t
	return t
}
