package chat

import (
	"cipher-chat/internal/models"
	"cipher-chat/internal/naming"
	"cipher-chat/internal/roster"
	apperrors "cipher-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ---------------------------------------------
// 🌐 REST Models
// ---------------------------------------------

// OpenChatRequest starts (or reopens) a direct chat with the account that
// owns Code.
type OpenChatRequest struct {
	Code string `json:"code"`
}

type OpenChatResponse struct {
	ChatID  uuid.UUID    `json:"chat_id"`
	Created bool         `json:"created"`
	Label   naming.Label `json:"label"`
}

type RenameRequest struct {
	Name string `json:"name"`
}

type SendRequest struct {
	Content string `json:"content"`
}

type RosterResponse struct {
	Chats []roster.Entry `json:"chats"`
}

type MessagesResponse struct {
	ChatID   uuid.UUID        `json:"chat_id"`
	Messages []models.Message `json:"messages"`
}

// ---------------------------------------------
// ⚡ WebSocket Frames
// ---------------------------------------------

const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSend        = "send"

	FrameRoster  = "roster"
	FrameMessage = "message"
	FrameError   = "error"
)

// InboundFrame is what the frontend SENDS over the socket. ChatID is required
// for every type; Content only for "send".
type InboundFrame struct {
	Type    string    `json:"type"`
	ChatID  uuid.UUID `json:"chat_id"`
	Content string    `json:"content,omitempty"`
}

// OutboundFrame is what the server pushes. Exactly one payload is set,
// selected by Type. Roster is always encoded, so an empty roster arrives
// as [].
type OutboundFrame struct {
	Type    string              `json:"type"`
	ChatID  *uuid.UUID          `json:"chat_id,omitempty"`
	Roster  []roster.Entry      `json:"roster"`
	Message *models.Message     `json:"message,omitempty"`
	Error   *apperrors.AppError `json:"error,omitempty"`
}

func rosterFrame(snap roster.Snapshot) OutboundFrame {
	return OutboundFrame{Type: FrameRoster, Roster: snap.Entries()}
}

func messageFrame(msg models.Message) OutboundFrame {
	return OutboundFrame{Type: FrameMessage, ChatID: &msg.ChatID, Message: &msg}
}

func errorFrame(chatID uuid.UUID, err error) OutboundFrame {
	body := &apperrors.AppError{Code: apperrors.CodeOf(err), Message: "internal server error"}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
	} else {
		body.Code = apperrors.CodeInternal
	}

	f := OutboundFrame{Type: FrameError, Error: body}
	if chatID != uuid.Nil {
		f.ChatID = &chatID
	}
	return f
}
