package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mr1hm/go-shelter-alerts/internal/stream"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Same open policy as the cors middleware
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamAlerts pushes a full snapshot on connect and after every store change.
func (h *Handler) streamAlerts(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream unavailable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	id, events := h.broadcaster.Subscribe()
	h.metrics.StreamSubscribers.Inc()
	defer func() {
		h.broadcaster.Unsubscribe(id)
		h.metrics.StreamSubscribers.Dec()
	}()

	slog.Info("stream client connected", "subscriber", id, "remote", c.ClientIP())

	closed := make(chan struct{})
	go readPump(conn, closed)

	h.writePump(conn, events, closed)
	conn.Close()
	<-closed

	slog.Info("stream client disconnected", "subscriber", id)
}

// readPump only exists to process pongs and notice the peer going away.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("stream read error", "error", err)
			}
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, events <-chan stream.Event, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	// Records age out of the snapshot without a store event.
	refresh := time.NewTicker(h.opts.StreamRefresh)
	defer refresh.Stop()

	if err := h.writeSnapshot(conn); err != nil {
		return
	}

	for {
		select {
		case _, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			// Coalesce a burst into one snapshot
			for drained := false; !drained; {
				select {
				case _, ok := <-events:
					if !ok {
						drained = true
					}
				default:
					drained = true
				}
			}
			if err := h.writeSnapshot(conn); err != nil {
				return
			}
		case <-refresh.C:
			if err := h.writeSnapshot(conn); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (h *Handler) writeSnapshot(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(h.store.Snapshot()); err != nil {
		slog.Debug("stream write failed", "error", err)
		return err
	}
	return nil
}
