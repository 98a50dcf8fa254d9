// Package roster keeps a viewer's chat list ordered by recency. A Snapshot is
// immutable; Apply folds one feed event into a new Snapshot so the merge logic
// stays pure.
package roster

import (
	"slices"
	"strings"
	"time"

	"cipher-chat/internal/feed"
	"cipher-chat/internal/models"
	"cipher-chat/internal/naming"

	"github.com/google/uuid"
)

type Snapshot struct {
	viewer uuid.UUID
	chats  []models.ChatView
}

// Entry is one rendered roster row.
type Entry struct {
	ChatID        uuid.UUID       `json:"chat_id"`
	Label         naming.Label    `json:"label"`
	CustomName    *string         `json:"custom_name,omitempty"`
	LastMessage   *string         `json:"last_message,omitempty"`
	LastMessageAt *time.Time      `json:"last_message_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Chat          models.ChatView `json:"-"`
}

// New builds a snapshot from chats the viewer participates in, most recent
// first. Chats that do not include the viewer are ignored.
func New(viewer uuid.UUID, chats []models.ChatView) Snapshot {
	s := Snapshot{viewer: viewer}
	for _, c := range chats {
		if _, ok := c.Participant(viewer); !ok {
			continue
		}
		s.chats = append(s.chats, c.Clone())
	}
	sortByRecency(s.chats)
	return s
}

func (s Snapshot) Len() int { return len(s.chats) }

// Apply returns the snapshot with ev folded in. Events that do not concern
// this viewer, and redeliveries of events already applied, return s
// unchanged.
func (s Snapshot) Apply(ev feed.Event) Snapshot {
	switch ev.Kind {
	case feed.KindChatCreated:
		return s.chatCreated(ev.Chat)
	case feed.KindChatUpdated:
		return s.chatUpdated(ev.Summary)
	case feed.KindParticipantRenamed:
		return s.participantRenamed(ev.Rename)
	default:
		return s
	}
}

func (s Snapshot) chatCreated(view *models.ChatView) Snapshot {
	if view == nil {
		return s
	}
	if _, ok := view.Participant(s.viewer); !ok {
		return s
	}
	if s.index(view.ID) >= 0 {
		return s
	}

	chats := make([]models.ChatView, 0, len(s.chats)+1)
	chats = append(chats, view.Clone())
	chats = append(chats, s.chats...)
	return Snapshot{viewer: s.viewer, chats: chats}
}

func (s Snapshot) chatUpdated(sum *models.ChatSummary) Snapshot {
	if sum == nil {
		return s
	}
	i := s.index(sum.ChatID)
	if i < 0 {
		return s
	}
	cur := s.chats[i]
	if cur.LastMessageAt != nil && sum.LastMessageAt.Before(*cur.LastMessageAt) {
		return s
	}

	chats := slices.Clone(s.chats)
	patched := cur.Clone()
	text, at := sum.LastMessage, sum.LastMessageAt
	patched.LastMessage = &text
	patched.LastMessageAt = &at
	chats[i] = patched
	sortByRecency(chats)
	return Snapshot{viewer: s.viewer, chats: chats}
}

func (s Snapshot) participantRenamed(r *models.Rename) Snapshot {
	if r == nil || r.AccountID != s.viewer {
		return s
	}
	i := s.index(r.ChatID)
	if i < 0 {
		return s
	}

	chats := slices.Clone(s.chats)
	patched := chats[i].Clone()
	for j := range patched.Participants {
		if patched.Participants[j].AccountID == s.viewer {
			if r.CustomName == nil {
				patched.Participants[j].CustomName = nil
			} else {
				name := *r.CustomName
				patched.Participants[j].CustomName = &name
			}
		}
	}
	chats[i] = patched
	return Snapshot{viewer: s.viewer, chats: chats}
}

// Entries renders the snapshot in order.
func (s Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, s.entry(c))
	}
	return out
}

// Filter keeps entries whose label or last message contains term, case
// insensitively. An empty term keeps everything.
func (s Snapshot) Filter(term string) []Entry {
	term = strings.ToLower(strings.TrimSpace(term))
	entries := s.Entries()
	if term == "" {
		return entries
	}

	out := entries[:0]
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Label.Name), term) ||
			(e.LastMessage != nil && strings.Contains(strings.ToLower(*e.LastMessage), term)) {
			out = append(out, e)
		}
	}
	return out
}

func (s Snapshot) entry(c models.ChatView) Entry {
	return EntryFor(c, s.viewer)
}

// EntryFor renders a single chat as viewer sees it.
func EntryFor(c models.ChatView, viewer uuid.UUID) Entry {
	view := c.Clone()
	e := Entry{
		ChatID:        view.ID,
		Label:         naming.Resolve(view, viewer),
		LastMessage:   view.LastMessage,
		LastMessageAt: view.LastMessageAt,
		CreatedAt:     view.CreatedAt,
		Chat:          view,
	}
	if me, ok := view.Participant(viewer); ok {
		e.CustomName = me.CustomName
	}
	return e
}

func (s Snapshot) index(chatID uuid.UUID) int {
	return slices.IndexFunc(s.chats, func(c models.ChatView) bool { return c.ID == chatID })
}

func sortByRecency(chats []models.ChatView) {
	slices.SortStableFunc(chats, func(a, b models.ChatView) int {
		return b.RecencyKey().Compare(a.RecencyKey())
	})
}
