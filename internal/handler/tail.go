package handler

import (
	"net/http"
	"time"

	"github.com/GoPolymarket/logreplay/internal/pkg/logger"
	"github.com/GoPolymarket/logreplay/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	tailWriteWait  = 10 * time.Second
	tailPongWait   = 60 * time.Second
	tailPingPeriod = tailPongWait * 9 / 10
)

type TailHandler struct {
	hub      *service.TailHub
	upgrader websocket.Upgrader
}

func NewTailHandler(hub *service.TailHub) *TailHandler {
	return &TailHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Stream pushes every persisted record to the websocket as a JSON text frame.
func (h *TailHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response
		logger.Warn("tail: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	feed, leave := h.hub.Subscribe()
	defer leave()

	// the read side only services control frames and notices disconnects
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(tailPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(tailPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(tailPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case payload, open := <-feed:
			_ = conn.SetWriteDeadline(time.Now().Add(tailWriteWait))
			if !open {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(tailWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// Status is a plain HTTP probe of the tail hub.
func (h *TailHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: gin.H{"subscribers": h.hub.Subscribers()}})
}
