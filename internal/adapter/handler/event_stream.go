package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/gelchrist-coder/gel-invent/internal/core/event"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	streamBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The till UI is served from a different local origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventStream pushes bus events to UI clients over WebSocket. Slow clients
// lose events rather than stall publishers; every event only says "re-read".
type EventStream struct {
	bus    *event.Bus
	logger *slog.Logger
}

func NewEventStream(bus *event.Bus, logger *slog.Logger) *EventStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{bus: bus, logger: logger}
}

func (s *EventStream) Register(r gin.IRouter) {
	r.GET("/api/v1/events", s.Serve)
}

func (s *EventStream) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	send := make(chan event.Event, streamBuffer)
	done := make(chan struct{})
	unsubscribe := s.bus.SubscribeAll(func(e event.Event) {
		select {
		case send <- e:
		case <-done:
		default:
			s.logger.Warn("event stream client lagging, dropping event", "topic", e.Topic)
		}
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(conn, send, done)
	}()

	s.readPump(conn)

	unsubscribe()
	close(done)
	<-writerDone
	conn.Close()
}

// readPump only watches for close frames and pongs.
func (s *EventStream) readPump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("event stream closed", "error", err)
			}
			return
		}
	}
}

func (s *EventStream) writePump(conn *websocket.Conn, send <-chan event.Event, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				// Unblock readPump.
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}

		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
