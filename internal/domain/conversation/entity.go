package conversation

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Support status values for support conversations.
const (
	SupportStatusNone     = "none"
	SupportStatusActive   = "active"
	SupportStatusResolved = "resolved"
)

// Conversation represents the conversations table
type Conversation struct {
	ID            uuid.UUID
	Title         sql.NullString
	IsGroup       bool
	IsSupport     bool
	SupportStatus string
	AssignedAgent sql.NullString
	ResolvedAt    sql.NullTime
	Category      sql.NullString

	// Requester contact details for guest-originated support threads.
	RequesterName  sql.NullString
	RequesterEmail sql.NullString

	LastMessageID uuid.NullUUID
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Relationships
	Participants []Participant `gorm:"foreignKey:ConversationID"`
}

// Participant represents the participants table. ParticipantID is an
// identity string: a registered user UUID or an issued guest id.
type Participant struct {
	ConversationID uuid.UUID `gorm:"primaryKey"`
	ParticipantID  string    `gorm:"primaryKey"`
	Kind           string
	JoinedAt       time.Time

	// Per-participant overrides of the thread-level flags.
	Archived bool
	Starred  bool
}

func (Conversation) TableName() string {
	return "conversations"
}

func (Participant) TableName() string {
	return "participants"
}

// HasGuest reports whether any participant is a guest identity.
func (c Conversation) HasGuest() bool {
	for _, p := range c.Participants {
		if p.Kind == "guest" {
			return true
		}
	}
	return false
}

// HasParticipant reports literal membership of an identity id.
func (c Conversation) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p.ParticipantID == id {
			return true
		}
	}
	return false
}
