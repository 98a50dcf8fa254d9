// Package naming computes the label a viewer sees for a direct chat.
//
// Precedence, first non-empty wins: the viewer's own custom name for the
// chat, the other participant's unique code, the other participant's display
// name, then "Unknown". When the other participant is missing from the view
// altogether the label is "Unknown User", which signals a permission or
// consistency fault rather than absent data.
package naming

import (
	"strings"

	"cipher-chat/internal/models"

	"github.com/google/uuid"
)

const (
	FallbackName    = "Unknown"
	UnreadableName  = "Unknown User"
	MaxCustomLength = 64
)

// CodeState tells a caller why Label.Code is empty.
type CodeState string

const (
	CodePresent     CodeState = "present"
	CodeAbsent      CodeState = "absent"
	CodeUnavailable CodeState = "unavailable"
)

type Label struct {
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CodeState CodeState `json:"code_state"`
}

func Resolve(view models.ChatView, viewerID uuid.UUID) Label {
	var custom string
	if me, ok := view.Participant(viewerID); ok && me.CustomName != nil {
		custom = strings.TrimSpace(*me.CustomName)
	}

	other, ok := view.Other(viewerID)
	if !ok {
		return Label{Name: firstNonEmpty(custom, UnreadableName), CodeState: CodeUnavailable}
	}
	if other.Profile == nil {
		return Label{Name: firstNonEmpty(custom, FallbackName), CodeState: CodeUnavailable}
	}

	code := strings.TrimSpace(other.Profile.UniqueCode)
	state := CodePresent
	if code == "" {
		state = CodeAbsent
	}

	return Label{
		Name:      firstNonEmpty(custom, code, strings.TrimSpace(other.Profile.DisplayName), FallbackName),
		Code:      code,
		CodeState: state,
	}
}

// NormalizeCustom trims a requested custom name. Empty clears the name and is
// returned as nil.
func NormalizeCustom(name string) (*string, bool) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) > MaxCustomLength {
		return nil, false
	}
	if name == "" {
		return nil, true
	}
	return &name, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
