package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Stream 升级为 WebSocket，在状态变化后按帧间隔推送最新快照。
// 同一帧内的多次变化只推送一次，慢客户端看到的永远是最新状态。
func (h *Handler) Stream(c *gin.Context) {
	depth, ok := h.depthParam(c)
	if !ok {
		return
	}
	select {
	case <-h.closing:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	default:
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	pub := h.svc.Publisher()
	changed := pub.Subscribe()
	defer pub.Unsubscribe(changed)

	// 读循环只用于感知客户端断开
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.frameInterval)
	defer ticker.Stop()
	dirty := true
	for {
		select {
		case <-gone:
			return
		case <-h.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(writeWait))
			return
		case <-c.Request.Context().Done():
			return
		case <-changed:
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(h.svc.Snapshot(depth)); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.log.Debug("stream write failed", zap.Error(err))
				}
				return
			}
		}
	}
}
