package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFromStored(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want Kind
	}{
		{"assistant id", AssistantID, KindAssistant},
		{"guest id", "guest_1700000000000_abcd", KindGuest},
		{"uuid", uuid.NewString(), KindRegistered},
		{"arbitrary string treated as registered", "legacy-user-7", KindRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromStored(tt.id).Kind)
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Registered(uuid.NewString(), "agent").Valid())
	assert.False(t, Registered("not-a-uuid", "").Valid())
	assert.True(t, Guest("guest_1700000000000_abcd").Valid())
	assert.False(t, Guest("guest_").Valid())
	assert.False(t, Guest("visitor_123").Valid())
	assert.True(t, Assistant().Valid())
	assert.False(t, Identity{ID: "x", Kind: "robot"}.Valid())
}

func TestNewGuestID(t *testing.T) {
	id := NewGuestID()
	assert.True(t, IsGuestID(id))
	assert.NotEqual(t, id, NewGuestID())
}
