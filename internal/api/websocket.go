package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"futures-terminal/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamed are the events forwarded to websocket clients.
var streamed = []events.Event{
	events.EventSnapshotApplied,
	events.EventTrailingConverted,
	events.EventBatchCompleted,
	events.EventAccountChanged,
}

type envelope struct {
	Event events.Event `json:"event"`
	Data  any          `json:"data"`
}

func (s *server) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("ws upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	out := make(chan envelope, 64)
	done := make(chan struct{})
	defer close(done)
	for _, ev := range streamed {
		ch, unsub := s.bus.Subscribe(ev, 16)
		defer unsub()
		go func(ev events.Event, ch <-chan any) {
			for msg := range ch {
				select {
				case out <- envelope{Event: ev, Data: msg}:
				case <-done:
					return
				}
			}
		}(ev, ch)
	}

	// the client never sends; a read error means it went away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-out:
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug("ws write", zap.Error(err))
				return
			}
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
