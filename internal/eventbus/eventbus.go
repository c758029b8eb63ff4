// Package eventbus fans job lifecycle events out to in-process
// subscribers, mainly the /events/stream SSE handler.
package eventbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/metrics"
)

const subscriberBuffer = 256

type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan domain.Event
	logger *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan domain.Event),
		logger: logger.With("component", "eventbus"),
	}
}

// Publish stamps the event and delivers it to every subscriber. A
// subscriber that cannot keep up loses the new event rather than
// blocking the publisher.
func (b *Bus) Publish(eventType string, payload map[string]any) {
	ev := domain.Event{Type: eventType, Payload: payload, TS: time.Now().UTC()}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			metrics.EventsDropped.Inc()
			b.logger.Warn("subscriber queue full, dropping event", "subscriber", id, "type", eventType)
		}
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
func (b *Bus) Subscribe() (int, <-chan domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.Event, subscriberBuffer)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes the subscriber channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers reports the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
