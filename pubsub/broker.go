// Package pubsub provides named topics for decoupled notification between
// actors, locations, and the driver, with the delivery bookkeeping that
// operator tooling inspects.
package pubsub

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Undelivered messages kept per topic for inspection. The pending counter
// keeps counting past this limit.
const maxRetainedPending = 100

// A Listener receives messages published on topics it subscribed to.
type Listener interface {
	TopicEvent(topic string, message any) error
}

// TopicStats is a read-only diagnostic snapshot of one topic.
type TopicStats struct {
	// Pending counts publishes that reached zero subscribers.
	Pending int `json:"pending"`

	// Idle is how long ago the topic last saw a publish or subscribe.
	Idle time.Duration `json:"idle"`

	// Subscribers is the current subscriber count.
	Subscribers int `json:"subscribers"`
}

type topicState struct {
	name         string
	subscribers  []Listener
	pending      []any
	pendingCount int
	lastActivity time.Time
}

// A Broker holds named topics. Topics come to exist on first subscribe or
// publish and are reaped once they have neither subscribers nor pending
// messages. Delivery is synchronous and at-most-once per subscriber per
// publish: a subscriber added after a publish never sees that message.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topicState
	nowFn  func() time.Time
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topicState),
		nowFn:  time.Now,
	}
}

// Subscribe adds a listener to a topic, creating the topic if needed.
// Subscribing an existing subscriber again is a no-op. Delivery order across
// a topic's subscribers is subscription order.
func (b *Broker) Subscribe(topic string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(topic)
	t.lastActivity = b.nowFn()

	for _, existing := range t.subscribers {
		if existing == l {
			return
		}
	}

	t.subscribers = append(t.subscribers, l)
}

// Unsubscribe removes a listener from a topic. Removing an unknown listener
// is a no-op.
func (b *Broker) Unsubscribe(topic string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[topic]
	if !ok {
		return
	}

	for i, existing := range t.subscribers {
		if existing == l {
			t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
			break
		}
	}

	b.reapLocked(t)
}

// UnsubscribeAll removes a listener from every topic it subscribes to. It is
// used when an actor is destroyed.
func (b *Broker) UnsubscribeAll(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.topics {
		for i, existing := range t.subscribers {
			if existing == l {
				t.subscribers = append(
					t.subscribers[:i], t.subscribers[i+1:]...)
				break
			}
		}

		b.reapLocked(t)
	}
}

// Publish delivers a message synchronously to the topic's current
// subscribers, in subscription order. A failing subscriber never prevents
// delivery to the others; their errors are joined and returned. A publish
// that reaches zero subscribers is counted as pending for diagnostics and is
// never replayed.
func (b *Broker) Publish(topic string, message any) error {
	b.mu.Lock()
	t := b.topicLocked(topic)
	t.lastActivity = b.nowFn()

	if len(t.subscribers) == 0 {
		t.pendingCount++
		if len(t.pending) < maxRetainedPending {
			t.pending = append(t.pending, message)
		}
		b.mu.Unlock()
		return nil
	}

	// Deliver to a snapshot so listeners can subscribe or unsubscribe,
	// and so taps added to someone's topic cannot perturb delivery.
	targets := make([]Listener, len(t.subscribers))
	copy(targets, t.subscribers)
	b.mu.Unlock()

	var errs []error
	for _, l := range targets {
		err := safeDeliver(l, topic, message)
		if err != nil {
			errs = append(errs, fmt.Errorf("topic %q: %w", topic, err))
		}
	}

	return errors.Join(errs...)
}

// Stats returns the diagnostic snapshot of one topic.
func (b *Broker) Stats(topic string) (TopicStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[topic]
	if !ok {
		return TopicStats{}, false
	}

	return b.statsLocked(t), true
}

// Inspect returns a diagnostic snapshot of every topic. It does not mutate
// any state.
func (b *Broker) Inspect() map[string]TopicStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := make(map[string]TopicStats, len(b.topics))
	for name, t := range b.topics {
		snapshot[name] = b.statsLocked(t)
	}

	return snapshot
}

// Topics returns all topic names in sorted order.
func (b *Broker) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// PendingMessages returns the retained undelivered messages of a topic.
func (b *Broker) PendingMessages(topic string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[topic]
	if !ok {
		return nil
	}

	retained := make([]any, len(t.pending))
	copy(retained, t.pending)

	return retained
}

func (b *Broker) topicLocked(name string) *topicState {
	t, ok := b.topics[name]
	if !ok {
		t = &topicState{name: name, lastActivity: b.nowFn()}
		b.topics[name] = t
	}

	return t
}

func (b *Broker) statsLocked(t *topicState) TopicStats {
	return TopicStats{
		Pending:     t.pendingCount,
		Idle:        b.nowFn().Sub(t.lastActivity),
		Subscribers: len(t.subscribers),
	}
}

func (b *Broker) reapLocked(t *topicState) {
	if len(t.subscribers) == 0 && t.pendingCount == 0 {
		delete(b.topics, t.name)
	}
}

func safeDeliver(l Listener, topic string, message any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return l.TopicEvent(topic, message)
}

// ListenerFunc adapts a function to the Listener interface. Note that every
// ListenerFunc value is a distinct subscriber, even for the same function.
type ListenerFunc struct {
	F func(topic string, message any) error
}

// TopicEvent calls the wrapped function.
func (l *ListenerFunc) TopicEvent(topic string, message any) error {
	return l.F(topic, message)
}
