package chat

import (
	"context"
	"encoding/json"
	"net/http"

	"cipher-chat/internal/feed"
	myMiddleware "cipher-chat/internal/middleware"
	"cipher-chat/internal/naming"
	apperrors "cipher-chat/pkg/errors"
	"cipher-chat/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	ctx     context.Context
	service *Service
	hub     *feed.Hub
	logger  *logger.Logger
}

// NewHandler wires the REST and WebSocket surface. WebSocket sessions live
// under ctx rather than the upgrade request, which ends once the handler
// returns.
func NewHandler(ctx context.Context, service *Service, hub *feed.Hub, log *logger.Logger) *Handler {
	return &Handler{
		ctx:     ctx,
		service: service,
		hub:     hub,
		logger:  log,
	}
}

// Routes mounts the chat endpoints. Callers wrap them in the auth middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/ws", h.ServeWs)
	r.Route("/api/chats", func(r chi.Router) {
		r.Post("/", h.OpenChat)
		r.Get("/", h.ListChats)
		r.Get("/{chatID}", h.GetChat)
		r.Put("/{chatID}/name", h.RenameChat)
		r.Get("/{chatID}/messages", h.ListMessages)
		r.Post("/{chatID}/messages", h.SendMessage)
	})
}

// OpenChat is the "new chat by code" flow: 201 when the chat was created,
// 200 when the pair already had one.
func (h *Handler) OpenChat(w http.ResponseWriter, r *http.Request) {
	accountID, ok := myMiddleware.AccountID(r.Context())
	if !ok {
		apperrors.WriteHTTP(w, apperrors.ErrMissingToken)
		return
	}

	var req OpenChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteHTTP(w, apperrors.InvalidArg("malformed request body"))
		return
	}

	view, created, err := h.service.OpenByCode(r.Context(), accountID, req.Code)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, OpenChatResponse{
		ChatID:  view.ID,
		Created: created,
		Label:   naming.Resolve(*view, accountID),
	})
}

// ListChats returns the caller's roster, optionally filtered by ?q=.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	accountID, ok := myMiddleware.AccountID(r.Context())
	if !ok {
		apperrors.WriteHTTP(w, apperrors.ErrMissingToken)
		return
	}

	snap, err := h.service.Roster(r.Context(), accountID)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RosterResponse{Chats: snap.Filter(r.URL.Query().Get("q"))})
}

func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	accountID, chatID, ok := h.chatRequest(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Chat(r.Context(), chatID, accountID)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) RenameChat(w http.ResponseWriter, r *http.Request) {
	accountID, chatID, ok := h.chatRequest(w, r)
	if !ok {
		return
	}

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteHTTP(w, apperrors.InvalidArg("malformed request body"))
		return
	}

	entry, err := h.service.Rename(r.Context(), chatID, accountID, req.Name)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	accountID, chatID, ok := h.chatRequest(w, r)
	if !ok {
		return
	}

	msgs, err := h.service.ListMessages(r.Context(), chatID, accountID)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{ChatID: chatID, Messages: msgs})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	accountID, chatID, ok := h.chatRequest(w, r)
	if !ok {
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteHTTP(w, apperrors.InvalidArg("malformed request body"))
		return
	}

	msg, err := h.service.Send(r.Context(), chatID, accountID, req.Content)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	accountID, ok := myMiddleware.AccountID(r.Context())
	if !ok {
		apperrors.WriteHTTP(w, apperrors.ErrMissingToken)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := newClient(h.ctx, h.service, h.hub, conn, accountID, h.logger)
	if err := client.start(); err != nil {
		h.logger.Error("could not start websocket session", "account_id", accountID, "err", err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "roster unavailable"))
		client.shutdown()
	}
}

// chatRequest pulls the caller and the {chatID} path parameter, writing the
// error response itself when either is missing.
func (h *Handler) chatRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	accountID, ok := myMiddleware.AccountID(r.Context())
	if !ok {
		apperrors.WriteHTTP(w, apperrors.ErrMissingToken)
		return uuid.Nil, uuid.Nil, false
	}
	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		apperrors.WriteHTTP(w, apperrors.ErrInvalidChatID)
		return uuid.Nil, uuid.Nil, false
	}
	return accountID, chatID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
