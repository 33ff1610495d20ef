package event

import (
	"log/slog"
	"sync"
	"time"
)

type Topic string

const (
	TopicOnline         Topic = "connectivity.online"
	TopicOffline        Topic = "connectivity.offline"
	TopicOutboxChanged  Topic = "outbox.changed"
	TopicBranchChanged  Topic = "branch.changed"
	TopicSalesRefreshed Topic = "sales.refreshed"
)

// Event carries no payload contract beyond "something changed": subscribers
// re-read the authoritative getter. Data is informational only.
type Event struct {
	Topic Topic     `json:"topic"`
	At    time.Time `json:"at"`
	Data  any       `json:"data,omitempty"`
}

type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Bus is a synchronous publish/subscribe hub. Handlers run on the publisher's
// goroutine in subscription order, which keeps transitions deterministic in
// tests. A nil *Bus drops everything.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	topics map[Topic][]subscription
	all    []subscription
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics: make(map[Topic][]subscription),
		logger: logger,
	}
}

// Subscribe registers handler for topic and returns a func that removes it.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	if b == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.topics[topic] = without(b.topics[topic], id)
	}
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(handler Handler) func() {
	if b == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = without(b.all, id)
	}
}

func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	handlers := make([]subscription, 0, len(b.topics[e.Topic])+len(b.all))
	handlers = append(handlers, b.topics[e.Topic]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, s := range handlers {
		b.deliver(s, e)
	}
}

func (b *Bus) Emit(topic Topic, data any) {
	b.Publish(Event{Topic: topic, Data: data})
}

func (b *Bus) deliver(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "topic", e.Topic, "panic", r)
		}
	}()
	s.handler(e)
}

func without(subs []subscription, id int) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
