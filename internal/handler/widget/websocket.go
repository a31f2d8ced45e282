package widget

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/widget/internal/service/chat"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
)

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接：入站为提交，出站为会话事件
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "websocket").Msg("upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Str("component", "websocket").Str("session_id", s.ID).Logger()
	logger.Info().Msg("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	outbound := make(chan outgoingMessage, 16)
	outbound <- outgoingMessage{Type: "snapshot", SessionID: s.ID, Data: s.Snapshot(), Timestamp: time.Now().UnixMilli()}

	go writeLoop(ctx, cancel, conn, s.ID, events, outbound, logger)

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		switch msg.Type {
		case "submit":
			go h.submitFromSocket(ctx, s.ID, msg.Content, outbound)
		case "ping":
			enqueue(ctx, outbound, outgoingMessage{Type: "pong", SessionID: s.ID, Timestamp: time.Now().UnixMilli()})
		default:
			enqueue(ctx, outbound, outgoingMessage{Type: "error", SessionID: s.ID, Data: "unknown message type", Timestamp: time.Now().UnixMilli()})
		}
	}
}

func (h *Handler) submitFromSocket(ctx context.Context, sessionID, content string, outbound chan<- outgoingMessage) {
	// transcript updates reach the socket as events; only refusals need a reply
	_, err := h.manager.Submit(context.WithoutCancel(ctx), sessionID, content)
	if err == nil || submitStatus(err) == http.StatusNoContent {
		return
	}
	enqueue(ctx, outbound, outgoingMessage{Type: "error", SessionID: sessionID, Data: err.Error(), Timestamp: time.Now().UnixMilli()})
}

func enqueue(ctx context.Context, outbound chan<- outgoingMessage, msg outgoingMessage) {
	select {
	case outbound <- msg:
	case <-ctx.Done():
	}
}

// writeLoop owns every write on conn.
func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sessionID string, events <-chan chat.Event, outbound <-chan outgoingMessage, logger zerolog.Logger) {
	defer cancel()
	defer conn.Close()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	write := func(msg outgoingMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug().Err(err).Msg("write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-outbound:
			if !write(msg) {
				return
			}
		case ev, open := <-events:
			if !open {
				_ = write(outgoingMessage{Type: "closed", SessionID: sessionID, Timestamp: time.Now().UnixMilli()})
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"), time.Now().Add(wsWriteTimeout))
				return
			}
			if !write(outgoingMessage{Type: string(ev.Kind), SessionID: sessionID, Data: ev, Timestamp: ev.At.UnixMilli()}) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
