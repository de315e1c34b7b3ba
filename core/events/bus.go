package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// TypedEvent is implemented by every event payload; the type doubles as the topic.
type TypedEvent interface {
	EventType() string
}

// Bus is an in-process pub/sub bus built on buffered channels.
// Publishing never blocks: a subscriber whose buffer is full misses the
// event, and the miss is counted by Dropped.
type Bus interface {
	// Subscribe returns a channel of events on topic and a func that
	// unsubscribes and closes the channel. Subscribing to a closed bus yields
	// an already closed channel.
	Subscribe(topic string) (<-chan TypedEvent, func(), error)
	Publish(ctx context.Context, topic string, payload TypedEvent)
	// Dropped returns how many deliveries were skipped for slow subscribers.
	Dropped() uint64
	// Close closes every subscriber channel. It is idempotent.
	Close()
}

// DefaultBufferSize is the per-subscriber channel capacity used by New.
const DefaultBufferSize = 16

type subscription struct {
	topic string
	ch    chan TypedEvent
}

type bus struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// New returns a new event bus instance.
func New() Bus {
	return NewWithBuffer(DefaultBufferSize)
}

// NewWithBuffer returns a bus whose subscriber channels hold size events.
func NewWithBuffer(size int) Bus {
	if size < 1 {
		size = 1
	}
	return &bus{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: size,
	}
}

func (b *bus) Subscribe(topic string) (<-chan TypedEvent, func(), error) {
	s := &subscription{topic: topic, ch: make(chan TypedEvent, b.buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s.ch, func() {}, nil
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*subscription]struct{})
	}
	b.subs[topic][s] = struct{}{}

	return s.ch, func() { b.unsubscribe(s) }, nil
}

func (b *bus) unsubscribe(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[s.topic]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.ch)
	if len(set) == 0 {
		delete(b.subs, s.topic)
	}
}

// Publish delivers payload to every subscriber of topic. The read lock is
// held while sending so that unsubscribe cannot close a channel mid-send.
func (b *bus) Publish(ctx context.Context, topic string, payload TypedEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[topic] {
		select {
		case s.ch <- payload:
		case <-ctx.Done():
			return
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *bus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, set := range b.subs {
		for s := range set {
			close(s.ch)
		}
		delete(b.subs, topic)
	}
}
