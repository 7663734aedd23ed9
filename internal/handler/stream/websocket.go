package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/emotion-dashboard/internal/service/events"
)

type wsConfig struct {
	upgrader   websocket.Upgrader
	pongWait   time.Duration
	pingPeriod time.Duration
	writeWait  time.Duration
}

func defaultWSConfig() *wsConfig {
	return &wsConfig{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pongWait:   60 * time.Second,
		pingPeriod: 54 * time.Second,
		writeWait:  10 * time.Second,
	}
}

type inboundMessage struct {
	Type string `json:"type"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// handleWebSocket 推送事件，并接收页面发来的 typing 通知
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan inboundMessage)
	go h.readLoop(ctx, cancel, conn, inbound)

	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr)
	h.write(conn, outgoingMessage{Type: "connected", Timestamp: time.Now().Unix()})

	ticker := time.NewTicker(h.ws.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := h.write(conn, outgoingMessage{Type: "event", Data: evt, Timestamp: evt.Time.Unix()}); err != nil {
				return
			}
		case msg := <-inbound:
			h.handleInbound(conn, msg)
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.ws.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, inbound chan<- inboundMessage) {
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.ws.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.ws.pongWait))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "err", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.ws.pongWait))

		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) handleInbound(conn *websocket.Conn, msg inboundMessage) {
	switch msg.Type {
	case "typing":
		triggered := false
		if h.typist != nil {
			triggered = h.typist.Typing()
		}
		h.write(conn, outgoingMessage{
			Type:      "typing",
			Data:      map[string]bool{"triggered": triggered},
			Timestamp: time.Now().Unix(),
		})
	default:
		h.write(conn, outgoingMessage{
			Type:      "error",
			Data:      map[string]string{"message": "unsupported message type: " + msg.Type},
			Timestamp: time.Now().Unix(),
		})
	}
}

func (h *Handler) write(conn *websocket.Conn, msg outgoingMessage) error {
	conn.SetWriteDeadline(time.Now().Add(h.ws.writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", "type", msg.Type, "err", err)
		return err
	}
	return nil
}

var _ Subscriber = (*events.Hub)(nil)
