package broker

import (
	"sync"
)

// Broker implements a simple fan-out message broker. Publishing never blocks: subscribers which
// are not keeping up miss messages.
type Broker[T any] struct {
	mu          sync.Mutex
	subscribers map[string]chan T
	dropped     map[string]uint64
	closed      bool
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subscribers: make(map[string]chan T),
		dropped:     make(map[string]uint64),
	}
}

// Subscribe registers a new subscriber with the given name and channel buffer size.
// It returns a receive-only channel that will receive published messages. Subscribing again with
// the same name replaces, and closes, the previous channel. After Close, the returned channel is
// already closed.
func (b *Broker[T]) Subscribe(name string, size int) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, size)

	if b.closed {
		close(ch)
		return ch
	}

	if oldCh, ok := b.subscribers[name]; ok {
		close(oldCh)
	}
	b.subscribers[name] = ch
	b.dropped[name] = 0

	return ch
}

// Unsubscribe removes and closes the given subscriber channel.
func (b *Broker[T]) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[name]; ok {
		close(ch)
		delete(b.subscribers, name)
		delete(b.dropped, name)
	}
}

// Publish sends a message to all registered subscribers, skipping the ones with a full buffer.
// It returns how many subscribers got the message.
func (b *Broker[T]) Publish(t T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for name, ch := range b.subscribers {
		select {
		case ch <- t:
			n++
		default:
			b.dropped[name]++
		}
	}

	return n
}

// Dropped returns how many messages the subscriber missed due to a full buffer.
func (b *Broker[T]) Dropped(name string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped[name]
}

// Close closes all subscriber channels, signaling that no more messages will be published.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		close(ch)
	}

	b.subscribers = make(map[string]chan T)
	b.dropped = make(map[string]uint64)
	b.closed = true
}
