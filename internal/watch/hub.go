package watch

import (
	"context"
	"sync"
	"sync/atomic"
)

type subscription struct {
	ch chan Event
}

// Hub is an in-process Broker.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*subscription]struct{}
	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[*subscription]struct{}),
	}
}

// Subscribe implements Subscriber.
func (h *Hub) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	sub := &subscription{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*subscription]struct{})
	}
	h.topics[topic][sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.unsubscribe(topic, sub)
	}()

	return sub.ch, nil
}

func (h *Hub) unsubscribe(topic string, sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	close(sub.ch)
}

// Publish implements Publisher. It never blocks on a slow subscriber.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, topic := range ev.Topics() {
		for sub := range h.topics[topic] {
			select {
			case sub.ch <- ev:
			default:
				h.dropped.Add(1)
			}
		}
	}
	return nil
}

// Subscribers returns the number of open subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
