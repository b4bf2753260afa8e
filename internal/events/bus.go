// Package events carries cart and auth change notifications from the cart
// synchronizer to unrelated consumers such as the header badge.
package events

import (
	"context"
	"sync"
	"time"
)

// Kind names what changed.
type Kind string

const (
	KindCartChanged Kind = "cart.changed"
	KindAuthChanged Kind = "auth.changed"
)

// Event is scoped to a topic, normally the user id or browser session id.
type Event struct {
	Topic string    `json:"topic"`
	Kind  Kind      `json:"kind"`
	At    time.Time `json:"at"`
}

// Bus publishes events to topic subscribers.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(topic string) *Subscription
}

const subscriberBuffer = 8

// Subscription receives events for one topic until closed.
type Subscription struct {
	ch    chan Event
	once  sync.Once
	close func()
}

// Events returns the delivery channel. It is closed by Close or when the bus closes.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.close)
}

// LocalBus fans out in-process. Delivery never blocks the publisher: a subscriber
// whose buffer is full misses the event.
type LocalBus struct {
	mu     sync.Mutex
	topics map[string]map[*Subscription]struct{}
	closed bool
}

// NewLocalBus returns an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{topics: make(map[string]map[*Subscription]struct{})}
}

// Publish delivers evt to current subscribers of evt.Topic.
func (b *LocalBus) Publish(_ context.Context, evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for sub := range b.topics[evt.Topic] {
		select {
		case sub.ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for topic.
func (b *LocalBus) Subscribe(topic string) *Subscription {
	sub := &Subscription{ch: make(chan Event, subscriberBuffer)}
	sub.close = func() { b.remove(topic, sub) }

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		sub.close = func() {}
		return sub
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Subscribers reports how many subscriptions topic has.
func (b *LocalBus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Close closes every subscription channel.
func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.topics {
		for sub := range subs {
			close(sub.ch)
		}
		delete(b.topics, topic)
	}
}

func (b *LocalBus) remove(topic string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
}

// UserTopic is the topic for a signed-in user. Empty uid yields "".
func UserTopic(uid string) string {
	if uid == "" {
		return ""
	}
	return "user:" + uid
}

// SessionTopic is the topic for a browser session. Empty id yields "".
func SessionTopic(id string) string {
	if id == "" {
		return ""
	}
	return "session:" + id
}
