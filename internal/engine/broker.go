package engine

import (
	"encoding/json"
	"sync"

	"github.com/seantiz/scribe/internal/model"
)

// QuotaTopic is the broker topic carrying quota snapshots.
const QuotaTopic = "quota"

// subscriberBufferSize is the channel buffer for each subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Broker fans events out to per-topic subscribers. It is safe for concurrent
// use.
//
// Closed topics are retained as markers so that late subscribers receive the
// retained history followed by a closed channel instead of blocking forever.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs    map[int]chan string
	nextID  int
	closed  bool
	history []string
}

// NewBroker creates a new broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topic),
	}
}

func (b *Broker) topic(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{subs: make(map[int]chan string)}
		b.topics[name] = t
	}
	return t
}

// Open creates the named topic if it does not exist yet.
func (b *Broker) Open(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topic(name)
}

// Has reports whether the named topic exists, open or closed.
func (b *Broker) Has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.topics[name]
	return ok
}

// Subscribe returns a channel that receives events for the named topic and an
// unsubscribe function. Retained events are replayed first. If the topic has
// already been closed, the returned channel is closed after the replay.
func (b *Broker) Subscribe(name string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(name)
	ch := make(chan string, max(subscriberBufferSize, len(t.history)))
	for _, ev := range t.history {
		ch <- ev
	}
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends an event to the current subscribers of the named topic.
// Events are dropped for subscribers whose buffers are full.
func (b *Broker) Publish(name, event string) {
	b.publish(name, event, false)
}

// PublishRetained sends an event like Publish and also keeps it for replay to
// later subscribers. Only the most recent events, up to the subscriber buffer
// size, are kept, so the last event published is always replayed.
func (b *Broker) PublishRetained(name, event string) {
	b.publish(name, event, true)
}

func (b *Broker) publish(name, event string, retain bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(name)
	if t.closed {
		return
	}
	if retain {
		if len(t.history) == subscriberBufferSize {
			t.history = append(t.history[:0], t.history[1:]...)
		}
		t.history = append(t.history, event)
	}

	for _, ch := range t.subs {
		select {
		case ch <- event:
		default:
			// Drop event for slow subscribers to avoid blocking the loop.
		}
	}
}

// Close signals that no more events will be published on the named topic.
// All subscriber channels are closed and future Subscribe calls return a
// closed channel.
func (b *Broker) Close(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topic(name).close()
}

// CloseAll closes every topic.
func (b *Broker) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.topics {
		t.close()
	}
}

func (t *topic) close() {
	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// NotifyQuota publishes a quota snapshot on QuotaTopic.
func (b *Broker) NotifyQuota(u model.QuotaUpdate) {
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	b.Publish(QuotaTopic, string(data))
}
