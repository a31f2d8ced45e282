package widget

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	model "github.com/zhouzirui/z-tavern/widget/internal/model/chat"
	"github.com/zhouzirui/z-tavern/widget/internal/service/chat"
	widgetService "github.com/zhouzirui/z-tavern/widget/internal/service/widget"
	"github.com/zhouzirui/z-tavern/widget/pkg/utils"
)

const defaultKeepAlive = 15 * time.Second

// ClientConfig is what the page glue needs before the first message.
type ClientConfig struct {
	Welcome       string `json:"welcome"`
	DisclaimerURL string `json:"disclaimerUrl"`
	DisclaimerKey string `json:"disclaimerKey"`
}

// Handler 聊天组件的HTTP处理器
type Handler struct {
	manager   *widgetService.Manager
	client    ClientConfig
	upgrader  websocket.Upgrader
	keepAlive time.Duration
}

// New 创建聊天组件处理器
func New(manager *widgetService.Manager, client ClientConfig) *Handler {
	return &Handler{
		manager: manager,
		client:  client,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		keepAlive: defaultKeepAlive,
	}
}

// RegisterRoutes 注册聊天组件相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/config", h.handleConfig)
	r.Post("/sessions", h.handleOpenSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleCloseSession)
		r.Post("/messages", h.handleSubmit)
		r.Get("/events", h.handleEvents)
		r.Get("/ws", h.handleWebSocket)
	})
}

type sessionResponse struct {
	ID       string         `json:"id"`
	Snapshot model.Snapshot `json:"snapshot"`
}

// handleConfig 返回组件初始化配置
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.client)
}

// handleOpenSession 为页面创建新的聊天会话
func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	s := h.manager.Open()
	utils.RespondJSON(w, http.StatusCreated, sessionResponse{ID: s.ID, Snapshot: s.Snapshot()})
}

// handleGetSession 返回会话当前快照
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessionResponse{ID: s.ID, Snapshot: s.Snapshot()})
}

// handleCloseSession 关闭会话
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmit 提交用户消息并等待本轮对话完成
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	// the exchange outlives a dropped HTTP client; the transcript still records it
	snap, err := h.manager.Submit(context.WithoutCancel(r.Context()), sessionID, payload.Content)
	if err != nil {
		status := submitStatus(err)
		if status == http.StatusNoContent {
			w.WriteHeader(status)
			return
		}
		utils.RespondError(w, status, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return http.StatusNoContent
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, widgetService.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, widgetService.ErrSessionNotFound), errors.Is(err, chat.ErrClosed):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleEvents 通过SSE推送会话事件
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	events, cancel := s.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	logger := log.With().Str("component", "sse").Str("session_id", s.ID).Logger()
	logger.Debug().Msg("event stream opened")

	if err := utils.SendSSEEvent(w, flusher, "snapshot", s.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("event stream closed by client")
			return
		case ev, open := <-events:
			if !open {
				_ = utils.SendSSEEvent(w, flusher, "closed", map[string]string{"sessionId": s.ID})
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Kind), ev); err != nil {
				logger.Warn().Err(err).Msg("event stream write failed")
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		}
	}
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*widgetService.Session, bool) {
	s, err := h.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return s, true
}
