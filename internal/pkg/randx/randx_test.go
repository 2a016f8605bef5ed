package randx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomID_FormatAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		id, err := RoomID()
		require.NoError(t, err)

		assert.Len(t, id, RoomIDLength)
		for _, char := range id {
			assert.True(t, strings.ContainsRune(Base62Chars, char), "unexpected character %q in %q", char, id)
		}

		_, dup := seen[id]
		assert.False(t, dup, "generated duplicate room id %q", id)
		seen[id] = struct{}{}
	}
}

func TestIsValidRoomID(t *testing.T) {
	valid := []string{"general", "tech", "aB3xY9Zq", "team_alpha", "my-room"}
	for _, id := range valid {
		assert.True(t, IsValidRoomID(id), "expected %q to be valid", id)
	}

	invalid := []string{"", "has space", "emoji🙂", "dots.not.ok", strings.Repeat("x", 33)}
	for _, id := range invalid {
		assert.False(t, IsValidRoomID(id), "expected %q to be invalid", id)
	}
}

func TestMessageAndSessionIDs(t *testing.T) {
	assert.NotEqual(t, MessageID(), MessageID())
	assert.NotEqual(t, SessionID(), SessionID())
}
