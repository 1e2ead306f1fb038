// Package realtime delivers events to the live client connections of a
// principal, across processes, through a shared publish/subscribe broker.
package realtime

import (
	"context"
	"sync"
)

// Handler receives a message published on a subscribed topic.
type Handler func(topic string, payload []byte)

// Broker is the publish/subscribe transport between processes. Delivery is
// at-most-once.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, h Handler) (func(), error)
	Close() error
}

// LocalBroker is an in-process Broker. Handlers run synchronously in the
// publishing goroutine.
type LocalBroker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[int]Handler)}
}

func (b *LocalBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(topic, payload)
	}
	return nil
}

func (b *LocalBroker) Subscribe(topic string, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}, nil
}

// Subscribers returns the number of handlers registered on topic.
func (b *LocalBroker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	b.subs = make(map[string]map[int]Handler)
	b.mu.Unlock()
	return nil
}
