// Package bus implements the in-process event fan-out.
package bus

import (
	"sync"

	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
)

// subscription buffers events in an unbounded queue per subscriber. A pump
// goroutine moves events from the queue to the out channel, so a slow reader
// never backs up into Publish.
type subscription struct {
	mu      sync.Mutex
	pending []event.Event
	wake    chan struct{}
	out     chan event.Event
	done    chan struct{}
}

// Events implements eventbus.Subscription.
func (s *subscription) Events() <-chan event.Event {
	return s.out
}

func (s *subscription) push(ev event.Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		queued := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, ev := range queued {
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

// Bus is the in-memory fan-out broadcaster. Delivery is best effort: events
// published while nobody subscribes are dropped.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[*subscription]struct{})}
}

// Publish delivers the event to every current subscriber without blocking.
func (b *Bus) Publish(ev event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		sub.push(ev)
	}
}

// Subscribe registers a new subscriber with an independent queue.
func (b *Bus) Subscribe() eventbus.Subscription {
	sub := &subscription{
		wake: make(chan struct{}, 1),
		out:  make(chan event.Event),
		done: make(chan struct{}),
	}
	go sub.pump()

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(s eventbus.Subscription) {
	sub, ok := s.(*subscription)
	if !ok {
		return
	}
	b.mu.Lock()
	_, present := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if present {
		close(sub.done)
	}
}
