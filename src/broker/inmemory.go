package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// InMemoryBroker is a channel-based in-memory implementation of Broker.
// Used when the webhook server and the relay agent run in one process.
type InMemoryBroker struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Message
	seq         atomic.Int64
	closed      bool
}

// NewInMemoryBroker creates a new InMemoryBroker instance.
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subscribers: make(map[string][]chan Message),
	}
}

// Publish delivers a message to every subscriber of the topic.
// Delivery blocks until each subscriber accepts the message or ctx is done,
// so a stalled consumer applies backpressure instead of dropping events.
// The read lock is held for the duration of delivery, which keeps Close
// from closing a channel mid-send.
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("broker is closed")
	}

	msg := Message{
		Topic:     topic,
		Key:       key,
		Value:     value,
		Offset:    b.seq.Add(1) - 1,
		Timestamp: time.Now().UnixMilli(),
	}

	for _, sub := range b.subscribers[topic] {
		select {
		case sub <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Subscribe registers a new subscriber channel for the topic.
// The channel is closed when ctx is done or the broker closes.
func (b *InMemoryBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("broker is closed")
	}

	msgChan := make(chan Message, 100)
	b.subscribers[topic] = append(b.subscribers[topic], msgChan)

	go func() {
		<-ctx.Done()
		b.remove(topic, msgChan)
	}()

	return msgChan, nil
}

// remove detaches one subscriber channel and closes it.
func (b *InMemoryBroker) remove(topic string, msgChan chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[topic]
	for i, sub := range subs {
		if sub == msgChan {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close shuts down the broker and closes all subscriber channels.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub)
		}
	}
	b.subscribers = make(map[string][]chan Message)

	return nil
}
