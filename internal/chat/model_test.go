package chat

import (
	"encoding/json"
	"testing"

	"cipher-chat/internal/roster"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterFrame_EmptyRosterIsExplicit(t *testing.T) {
	payload, err := json.Marshal(rosterFrame(roster.New(uuid.New(), nil)))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &raw))
	require.Contains(t, raw, "roster")
	assert.JSONEq(t, `[]`, string(raw["roster"]))
	assert.NotContains(t, raw, "message")
	assert.NotContains(t, raw, "error")
}
