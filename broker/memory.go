package broker

import (
	"context"
	"maps"
	"sync"
)

const memoryBufferSize = 64

// MemoryBroker is an in-process broker with per-subscription buffers.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{})}
}

// Publish delivers msg to every current subscriber of msg.Topic. It blocks
// while a subscriber buffer is full.
func (b *MemoryBroker) Publish(ctx context.Context, msg Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	targets := make([]*memorySubscription, 0, len(b.subs[msg.Topic]))
	for sub := range b.subs[msg.Topic] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		if err := sub.deliver(ctx, copyMessage(msg)); err != nil && err != ErrClosed {
			return err
		}
	}
	return nil
}

// Subscribe registers a new subscription on topic.
func (b *MemoryBroker) Subscribe(_ context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		broker: b,
		topic:  topic,
		ch:     make(chan Message, memoryBufferSize),
		done:   make(chan struct{}),
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memorySubscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	return sub, nil
}

// Subscribers returns the number of open subscriptions on topic.
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Close closes every subscription and rejects further use.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*memorySubscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		_ = sub.Close()
	}
	return nil
}

func (b *MemoryBroker) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[sub.topic], sub)
	if len(b.subs[sub.topic]) == 0 {
		delete(b.subs, sub.topic)
	}
}

type memorySubscription struct {
	broker *MemoryBroker
	topic  string
	ch     chan Message
	done   chan struct{}
	once   sync.Once
}

func (s *memorySubscription) deliver(ctx context.Context, msg Message) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memorySubscription) Next(ctx context.Context) (Message, error) {
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.broker.remove(s)
	})
	return nil
}

func copyMessage(msg Message) Message {
	out := Message{
		Topic: msg.Topic,
		Key:   append([]byte(nil), msg.Key...),
		Value: append([]byte(nil), msg.Value...),
	}
	if msg.Headers != nil {
		out.Headers = maps.Clone(msg.Headers)
	}
	return out
}
