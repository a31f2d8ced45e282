package stub

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/widget/internal/model/chat"
	"github.com/zhouzirui/z-tavern/widget/internal/model/profile"
	"github.com/zhouzirui/z-tavern/widget/internal/service/ai"
	"github.com/zhouzirui/z-tavern/widget/internal/service/conversation"
	"github.com/zhouzirui/z-tavern/widget/pkg/utils"
)

// Handler 替身后端的HTTP处理器，实现聊天组件依赖的两个接口
type Handler struct {
	conversations *conversation.Service
	responder     ai.Responder
	profiles      profile.Store
	profile       profile.Profile
}

// New 创建替身后端处理器，activeID 为空时使用默认助手
func New(conversations *conversation.Service, responder ai.Responder, profiles profile.Store, activeID string) (*Handler, error) {
	p, err := profiles.Get(activeID)
	if err != nil {
		return nil, err
	}
	return &Handler{
		conversations: conversations,
		responder:     responder,
		profiles:      profiles,
		profile:       p,
	}, nil
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profile", h.handleGetProfile)
	r.Get("/profiles", h.handleListProfiles)
	r.Get("/profiles/{profileID}", h.handleFindProfile)
	r.Post("/chat/create", h.handleCreateChat)
	r.Get("/chat/{chatID}", h.handleGetChat)
	r.Post("/chat/{chatID}/message", h.handleMessage)
}

// handleGetProfile 返回当前扮演的助手设定
func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.profile)
}

// handleListProfiles 列出所有助手设定
func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.profiles.List())
}

// handleFindProfile 按 ID 查询助手设定
func (h *Handler) handleFindProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(chi.URLParam(r, "profileID"))
	if errors.Is(err, profile.ErrProfileNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

// handleGetChat 返回会话及其全部消息
func (h *Handler) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	conv, err := h.conversations.GetConversation(r.Context(), chatID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	messages, err := h.conversations.Transcript(r.Context(), chatID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"chat": conv, "messages": messages})
}

// handleCreateChat 创建会话
func (h *Handler) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.CreateConversation(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("component", "stub").Str("chat_id", conv.ID).Msg("chat created")
	utils.RespondJSON(w, http.StatusCreated, map[string]any{"chat": conv})
}

// handleMessage 保存用户消息并生成回复
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content := strings.TrimSpace(payload.Content)
	if content == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}

	chatID := chi.URLParam(r, "chatID")
	ctx := r.Context()

	history, err := h.conversations.Transcript(ctx, chatID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	userMsg, err := h.conversations.Append(ctx, chat.Message{
		ConversationID: chatID,
		Role:           chat.RoleUser,
		Content:        content,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	reply, err := h.responder.Respond(ctx, &h.profile, history, content)
	if err != nil {
		// 200 + error 字段，组件会把它显示为 "Error: ..." 消息
		log.Warn().Err(err).Str("component", "stub").Str("chat_id", chatID).Msg("responder failed")
		utils.RespondJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}

	assistantMsg, err := h.conversations.Append(ctx, chat.Message{
		ConversationID: chatID,
		Role:           chat.RoleAssistant,
		Content:        reply,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"response": []chat.Message{userMsg, assistantMsg}})
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, conversation.ErrEmptyContent), errors.Is(err, conversation.ErrInvalidRole):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
