package naming

import (
	"strings"
	"testing"

	"cipher-chat/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func directChat(viewer, other uuid.UUID, custom *string, otherProfile *models.Profile) models.ChatView {
	chatID := uuid.New()
	return models.ChatView{
		Chat: models.Chat{ID: chatID},
		Participants: []models.ParticipantView{
			{
				Participant: models.Participant{ChatID: chatID, AccountID: viewer, CustomName: custom},
				Profile:     &models.Profile{AccountID: viewer, UniqueCode: "SELF01", DisplayName: "me"},
			},
			{
				Participant: models.Participant{ChatID: chatID, AccountID: other},
				Profile:     otherProfile,
			},
		},
	}
}

func TestResolve_Precedence(t *testing.T) {
	viewer, other := uuid.New(), uuid.New()

	tests := []struct {
		name    string
		custom  *string
		profile *models.Profile
		want    Label
	}{
		{
			name:    "custom name wins",
			custom:  strPtr("Bob"),
			profile: &models.Profile{UniqueCode: "XJ4Q", DisplayName: "robert"},
			want:    Label{Name: "Bob", Code: "XJ4Q", CodeState: CodePresent},
		},
		{
			name:    "cleared custom name falls back to code",
			profile: &models.Profile{UniqueCode: "XJ4Q", DisplayName: "robert"},
			want:    Label{Name: "XJ4Q", Code: "XJ4Q", CodeState: CodePresent},
		},
		{
			name:    "blank custom name is ignored",
			custom:  strPtr("   "),
			profile: &models.Profile{UniqueCode: "XJ4Q", DisplayName: "robert"},
			want:    Label{Name: "XJ4Q", Code: "XJ4Q", CodeState: CodePresent},
		},
		{
			name:    "no code falls back to display name",
			profile: &models.Profile{DisplayName: "robert"},
			want:    Label{Name: "robert", CodeState: CodeAbsent},
		},
		{
			name:    "nothing resolvable",
			profile: &models.Profile{},
			want:    Label{Name: FallbackName, CodeState: CodeAbsent},
		},
		{
			name: "profile unreadable",
			want: Label{Name: FallbackName, CodeState: CodeUnavailable},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := directChat(viewer, other, tt.custom, tt.profile)
			assert.Equal(t, tt.want, Resolve(view, viewer))
		})
	}
}

func TestResolve_OtherParticipantMissing(t *testing.T) {
	viewer := uuid.New()
	view := directChat(viewer, uuid.New(), nil, nil)
	view.Participants = view.Participants[:1]

	got := Resolve(view, viewer)
	assert.Equal(t, UnreadableName, got.Name)
	assert.Equal(t, CodeUnavailable, got.CodeState)
	assert.Empty(t, got.Code)

	view.Participants[0].CustomName = strPtr("Ally")
	assert.Equal(t, "Ally", Resolve(view, viewer).Name)
}

func TestResolve_CustomNameIsPrivate(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	view := directChat(a, b, nil, &models.Profile{AccountID: b, UniqueCode: "BBBB22", DisplayName: "bee"})
	// b renames its side of the chat
	view.Participants[1].CustomName = strPtr("Ally")

	assert.Equal(t, "BBBB22", Resolve(view, a).Name)
	assert.Equal(t, "Ally", Resolve(view, b).Name)
	assert.Equal(t, "SELF01", Resolve(view, b).Code)
}

func TestNormalizeCustom(t *testing.T) {
	name, ok := NormalizeCustom("  Ally  ")
	require.True(t, ok)
	require.NotNil(t, name)
	assert.Equal(t, "Ally", *name)

	name, ok = NormalizeCustom("   ")
	assert.True(t, ok)
	assert.Nil(t, name)

	_, ok = NormalizeCustom(strings.Repeat("é", MaxCustomLength+1))
	assert.False(t, ok)

	name, ok = NormalizeCustom(strings.Repeat("é", MaxCustomLength))
	assert.True(t, ok)
	assert.NotNil(t, name)
}
