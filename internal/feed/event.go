package feed

import (
	"cipher-chat/internal/models"

	"github.com/google/uuid"
)

type Kind string

const (
	KindMessageInserted    Kind = "message.inserted"
	KindChatCreated        Kind = "chat.created"
	KindChatUpdated        Kind = "chat.updated"
	KindParticipantRenamed Kind = "participant.renamed"
)

// Event is one entry of the change feed. Exactly one payload field is set,
// selected by Kind.
type Event struct {
	Kind    Kind                `json:"kind"`
	Topic   string              `json:"topic"`
	Message *models.Message     `json:"message,omitempty"`
	Chat    *models.ChatView    `json:"chat,omitempty"`
	Summary *models.ChatSummary `json:"summary,omitempty"`
	Rename  *models.Rename      `json:"rename,omitempty"`
}

// ChatTopic carries the messages of one chat.
func ChatTopic(chatID uuid.UUID) string {
	return "chat:" + chatID.String()
}

// AccountTopic carries roster changes relevant to one account.
func AccountTopic(accountID uuid.UUID) string {
	return "account:" + accountID.String()
}

func MessageInserted(msg models.Message) Event {
	return Event{Kind: KindMessageInserted, Topic: ChatTopic(msg.ChatID), Message: &msg}
}

func ChatCreated(view models.ChatView, accountID uuid.UUID) Event {
	cp := view.Clone()
	return Event{Kind: KindChatCreated, Topic: AccountTopic(accountID), Chat: &cp}
}

func ChatUpdated(summary models.ChatSummary, accountID uuid.UUID) Event {
	return Event{Kind: KindChatUpdated, Topic: AccountTopic(accountID), Summary: &summary}
}

// ParticipantRenamed is only ever addressed to the renaming account: custom
// names are private.
func ParticipantRenamed(rename models.Rename) Event {
	return Event{Kind: KindParticipantRenamed, Topic: AccountTopic(rename.AccountID), Rename: &rename}
}
