package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the closed set of participant identities. Every
// identity in the system is exactly one of registered, guest or the
// automated responder; code switching on Kind should handle all three.
type Kind string

const (
	KindRegistered Kind = "registered"
	KindGuest      Kind = "guest"
	KindAssistant  Kind = "assistant"
)

// AssistantID is the reserved sender id for automated replies. It is never
// a conversation participant.
const AssistantID = "assistant"

const guestPrefix = "guest_"

// Identity is a resolved participant identity.
type Identity struct {
	ID   string
	Kind Kind
	Role string // only meaningful for registered identities
}

func Registered(id, role string) Identity {
	return Identity{ID: id, Kind: KindRegistered, Role: role}
}

func Guest(id string) Identity {
	return Identity{ID: id, Kind: KindGuest}
}

func Assistant() Identity {
	return Identity{ID: AssistantID, Kind: KindAssistant}
}

func (i Identity) IsGuest() bool {
	return i.Kind == KindGuest
}

func (i Identity) IsAssistant() bool {
	return i.Kind == KindAssistant
}

// Valid reports whether the identity id is well formed for its kind.
// Registered ids are UUIDs, guest ids carry the issued guest_ prefix.
func (i Identity) Valid() bool {
	switch i.Kind {
	case KindRegistered:
		_, err := uuid.Parse(i.ID)
		return err == nil
	case KindGuest:
		return IsGuestID(i.ID)
	case KindAssistant:
		return i.ID == AssistantID
	default:
		return false
	}
}

// IsGuestID reports whether a raw id string is an issued guest id.
func IsGuestID(id string) bool {
	return strings.HasPrefix(id, guestPrefix) && len(id) > len(guestPrefix)
}

// NewGuestID mints a fresh guest id of the form guest_<unixmilli>_<hex>.
func NewGuestID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s%d_%d", guestPrefix, time.Now().UnixMilli(), time.Now().UnixNano()%100000)
	}
	return fmt.Sprintf("%s%d_%s", guestPrefix, time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// FromStored rebuilds an identity from a persisted participant or sender id.
// The stored form keeps no role information.
func FromStored(id string) Identity {
	switch {
	case id == AssistantID:
		return Assistant()
	case IsGuestID(id):
		return Guest(id)
	default:
		return Identity{ID: id, Kind: KindRegistered}
	}
}
