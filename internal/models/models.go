package models

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------
// 🗄️ Store records
// ---------------------------------------------

type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the public face of an Account. UniqueCode is assigned once at
// registration and never reassigned.
type Profile struct {
	AccountID   uuid.UUID `json:"account_id"`
	UniqueCode  string    `json:"unique_code"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Chat struct {
	ID            uuid.UUID  `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessage   *string    `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// RecencyKey orders roster entries: last activity, or creation for chats
// nobody has written in yet.
func (c Chat) RecencyKey() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

type Participant struct {
	ChatID     uuid.UUID `json:"chat_id"`
	AccountID  uuid.UUID `json:"account_id"`
	CustomName *string   `json:"custom_name,omitempty"` // only visible to AccountID
	JoinedAt   time.Time `json:"joined_at"`
}

type Message struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ---------------------------------------------
// 🔗 Joined views
// ---------------------------------------------

// ParticipantView is a participant row joined with its profile. Profile is nil
// when the profile could not be read.
type ParticipantView struct {
	Participant
	Profile *Profile `json:"profile,omitempty"`
}

type ChatView struct {
	Chat
	Participants []ParticipantView `json:"participants"`
}

// Participant returns the row belonging to accountID, if present.
func (v ChatView) Participant(accountID uuid.UUID) (ParticipantView, bool) {
	for _, p := range v.Participants {
		if p.AccountID == accountID {
			return p, true
		}
	}
	return ParticipantView{}, false
}

// Other returns the first participant that is not accountID.
func (v ChatView) Other(accountID uuid.UUID) (ParticipantView, bool) {
	for _, p := range v.Participants {
		if p.AccountID != accountID {
			return p, true
		}
	}
	return ParticipantView{}, false
}

// Validate checks the direct-chat shape: at most two participants, all
// distinct, all pointing at this chat. Fewer than two is tolerated so that a
// partially readable chat can still be rendered.
func (v ChatView) Validate() error {
	if len(v.Participants) > 2 {
		return ErrTooManyParticipants
	}
	seen := make(map[uuid.UUID]struct{}, len(v.Participants))
	for _, p := range v.Participants {
		if p.ChatID != v.ID {
			return ErrForeignParticipant
		}
		if _, dup := seen[p.AccountID]; dup {
			return ErrDuplicateParticipant
		}
		seen[p.AccountID] = struct{}{}
	}
	return nil
}

// Clone deep-copies the view so snapshots never share mutable pointers.
func (v ChatView) Clone() ChatView {
	out := v
	if v.LastMessage != nil {
		s := *v.LastMessage
		out.LastMessage = &s
	}
	if v.LastMessageAt != nil {
		at := *v.LastMessageAt
		out.LastMessageAt = &at
	}
	out.Participants = make([]ParticipantView, len(v.Participants))
	for i, p := range v.Participants {
		cp := p
		if p.CustomName != nil {
			name := *p.CustomName
			cp.CustomName = &name
		}
		if p.Profile != nil {
			prof := *p.Profile
			cp.Profile = &prof
		}
		out.Participants[i] = cp
	}
	return out
}

// ChatSummary carries the denormalized last-message fields of a chat.
type ChatSummary struct {
	ChatID        uuid.UUID `json:"chat_id"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Rename records a participant changing its private label for a chat. A nil
// CustomName clears the label.
type Rename struct {
	ChatID     uuid.UUID `json:"chat_id"`
	AccountID  uuid.UUID `json:"account_id"`
	CustomName *string   `json:"custom_name"`
}
