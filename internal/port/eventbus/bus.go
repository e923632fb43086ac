// Package eventbus defines the in-process event fan-out port.
package eventbus

import "github.com/Strob0t/CrewForge/internal/domain/event"

// Subscription is one subscriber's view of the bus. Events arrives through an
// unbounded per-subscriber queue, so a slow subscriber never blocks
// publishers. Delivery is best effort.
type Subscription interface {
	// Events returns the channel the subscriber reads from.
	Events() <-chan event.Event
}

// Bus is the fan-out-only broadcaster port.
type Bus interface {
	// Publish delivers the event to every current subscriber without blocking.
	Publish(ev event.Event)

	// Subscribe registers a new subscriber with an independent queue.
	Subscribe() Subscription

	// Unsubscribe removes the subscriber and closes its channel.
	Unsubscribe(sub Subscription)
}
