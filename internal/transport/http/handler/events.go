package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/hydrajobs/hydra/internal/eventbus"
)

type EventsHandler struct {
	bus    *eventbus.Bus
	logger *slog.Logger
}

func NewEventsHandler(bus *eventbus.Bus, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger.With("component", "events_handler")}
}

// GET /events/stream
//
// SSE of scheduler lifecycle events, event name = event type. Domain
// callers only see their own events; admins and unauthenticated
// subscribers (the path is auth exempt) get the whole firehose.
func (h *EventsHandler) Stream(c *gin.Context) {
	scope := scopeFrom(c)
	filtered := scope.Domain != "" && !scope.Admin

	id, events := h.bus.Subscribe()
	defer h.bus.Unsubscribe(id)

	sseHeaders(c)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if filtered && ev.EventDomain() != scope.Domain {
				continue
			}
			c.SSEvent(ev.Type, ev)
			c.Writer.Flush()
		}
	}
}
