package eventsmodule

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tunegrab/tunegrab/internal/events"
	"github.com/tunegrab/tunegrab/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Streamer forwards bus events to websocket clients as they happen.
type Streamer struct {
	bus events.EventBus
}

// NewStreamer creates a streamer over the given bus.
func NewStreamer(bus events.EventBus) *Streamer {
	return &Streamer{bus: bus}
}

// Handle upgrades the connection and streams events until the client
// disconnects. An optional "type" query parameter narrows the stream.
func (s *Streamer) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", []logger.Field{logger.Err(err)})
		return
	}
	defer conn.Close()

	filter := events.EventFilter{}
	if eventType := c.Query("type"); eventType != "" {
		filter.Types = []events.EventType{events.EventType(eventType)}
	}

	eventCh := make(chan events.Event, 64)
	sub, err := s.bus.Subscribe(filter, func(e events.Event) error {
		select {
		case eventCh <- e:
		default:
			// Slow consumer; drop rather than block the bus.
		}
		return nil
	})
	if err != nil {
		return
	}
	defer s.bus.Unsubscribe(sub.ID)

	// Reader goroutine detects client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case event := <-eventCh:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
