package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marketwatch/fraudmesh/internal/platform/errs"
	"github.com/marketwatch/fraudmesh/internal/streaming"
)

// websocketEventBuffer bounds how many undelivered bus events queue per
// client subscription; events published while it is full are dropped.
const websocketEventBuffer = 32

const websocketWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket implements GET /ws: the client subscribes to one or more
// topics via repeated "topic" query parameters, and every message produced
// to those topics is bridged onto the socket as it's published to the
// canonical event name, per spec.md §6.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	topics := r.URL.Query()["topic"]
	if len(topics) == 0 {
		writeError(w, errs.NewInvalidArgument("at least one ?topic= query parameter is required"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	bus := s.engine.Bus()

	subs := make([]<-chan streaming.BusEvent, 0, len(topics))
	for _, topic := range topics {
		eventName := streaming.EventNameFor(topic)
		subs = append(subs, bus.Subscribe(eventName, websocketEventBuffer))
	}

	out := make(chan streaming.BusEvent, websocketEventBuffer*len(subs))
	for _, sub := range subs {
		go func(ch <-chan streaming.BusEvent) {
			for ev := range ch {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-out:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			if err := conn.WriteJSON(map[string]any{
				"event": ev.EventName,
				"topic": ev.Topic,
				"key":   string(ev.Message.Key),
				"value": string(ev.Message.Value),
				"ts":    ev.Message.Timestamp,
			}); err != nil {
				return
			}
		}
	}
}
