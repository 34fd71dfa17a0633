package httpdto

import (
	"time"

	"skylearn-chat/internal/domain/conversation"
)

type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participantIds" binding:"required"`
	Title          string   `json:"title,omitempty"`
	IsGroup        bool     `json:"isGroup,omitempty"`
	Category       string   `json:"category,omitempty"`
}

type CreateSupportRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Category string `json:"category,omitempty"`
}

type SupportThreadResponse struct {
	ConversationID string `json:"conversationId"`
	GuestID        string `json:"guestId,omitempty"`
	GuestToken     string `json:"guestToken,omitempty"`
	ExpiresIn      int64  `json:"expiresIn,omitempty"`
}

type ConversationResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title,omitempty"`
	ParticipantIDs []string  `json:"participantIds"`
	IsGroup        bool      `json:"isGroup"`
	IsSupport      bool      `json:"isSupport"`
	SupportStatus  string    `json:"supportStatus,omitempty"`
	AssignedAgent  string    `json:"assignedAgent,omitempty"`
	Category       string    `json:"category,omitempty"`
	RequesterName  string    `json:"requesterName,omitempty"`
	LastMessageID  string    `json:"lastMessageId,omitempty"`
	Archived       bool      `json:"archived"`
	Starred        bool      `json:"starred"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type SendMessageRequest struct {
	Content   string `json:"content"`
	Type      string `json:"type,omitempty"`
	ReplyToID string `json:"replyToId,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	FileMime  string `json:"fileMime,omitempty"`
	FileSize  int64  `json:"fileSize,omitempty"`

	AIEnabled         bool    `json:"aiEnabled,omitempty"`
	AIConfidence      float64 `json:"aiConfidenceThreshold,omitempty"`
	AITone            string  `json:"aiTone,omitempty"`
	AIResponseDelayMs int     `json:"aiResponseDelayMs,omitempty"`
	AIPolicy          string  `json:"aiPolicy,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type ArchiveRequest struct {
	Archived bool `json:"archived"`
}

type StarRequest struct {
	Starred bool `json:"starred"`
}

type AssignAgentRequest struct {
	AgentID string `json:"agentId,omitempty"`
}

type PresignAttachmentRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	FileName       string `json:"fileName" binding:"required"`
	ContentType    string `json:"contentType" binding:"required"`
	SizeBytes      int64  `json:"sizeBytes,omitempty"`
}

type PresignAttachmentResponse struct {
	UploadURL string            `json:"uploadUrl"`
	Key       string            `json:"key"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type CleanupRequest struct {
	RetentionHours int `json:"retentionHours,omitempty"`
}

type CleanupResponse struct {
	RemovedConversations int `json:"removedConversations"`
}

// FromConversation renders a conversation for the given viewer. Archived
// and starred are per-participant flags, so the viewer id picks which row
// they come from.
func FromConversation(c conversation.Conversation, viewerID string) ConversationResponse {
	resp := ConversationResponse{
		ID:            c.ID.String(),
		Title:         c.Title.String,
		IsGroup:       c.IsGroup,
		IsSupport:     c.IsSupport,
		SupportStatus: c.SupportStatus,
		AssignedAgent: c.AssignedAgent.String,
		Category:      c.Category.String,
		RequesterName: c.RequesterName.String,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.LastMessageID.Valid {
		resp.LastMessageID = c.LastMessageID.UUID.String()
	}
	resp.ParticipantIDs = make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		resp.ParticipantIDs = append(resp.ParticipantIDs, p.ParticipantID)
		if p.ParticipantID == viewerID {
			resp.Archived = p.Archived
			resp.Starred = p.Starred
		}
	}
	return resp
}

func FromConversationSlice(items []conversation.Conversation, viewerID string) []ConversationResponse {
	out := make([]ConversationResponse, 0, len(items))
	for _, c := range items {
		out = append(out, FromConversation(c, viewerID))
	}
	return out
}
