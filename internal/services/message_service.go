package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"skylearn-chat/internal/broadcast"
	"skylearn-chat/internal/domain/conversation"
	"skylearn-chat/internal/domain/event"
	"skylearn-chat/internal/domain/identity"
	"skylearn-chat/internal/domain/message"
	"skylearn-chat/internal/llm"
	"skylearn-chat/internal/repository"
	chat_errors "skylearn-chat/pkg/errors"
	"skylearn-chat/pkg/logger"

	"github.com/google/uuid"
)

// NameDirectory resolves display names for registered users. User profile
// storage is an external collaborator; resolution is best-effort and must
// never fail a send.
type NameDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// StatusSource reports current support-team availability. It feeds the
// auto-respond policy gate.
type StatusSource interface {
	TeamStatus(ctx context.Context) (string, error)
}

const historyDepth = 10

type SendInput struct {
	Content   string
	Type      string
	ReplyToID uuid.NullUUID
	FileName  string
	FileMime  string
	FileSize  int64
}

// MessagePayload is the broadcast shape of a message.
type MessagePayload struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversationId"`
	SenderID       string   `json:"senderId"`
	SenderName     string   `json:"senderName,omitempty"`
	Type           string   `json:"type"`
	Content        string   `json:"content"`
	ReplyToID      string   `json:"replyToId,omitempty"`
	FileName       string   `json:"fileName,omitempty"`
	FileMime       string   `json:"fileMime,omitempty"`
	FileSize       int64    `json:"fileSize,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	QuickReplies   []string `json:"quickReplies,omitempty"`
	IsAI           bool     `json:"isAI"`
	Edited         bool     `json:"edited"`
	CreatedAt      string   `json:"createdAt"`
}

// MessageService is the per-message workflow: validate, spam-check,
// persist, audit, update the conversation pointer, broadcast, and
// optionally hand off to the auto-responder.
type MessageService struct {
	convRepo     repository.ConversationRepository
	messageRepo  repository.MessageRepository
	eventRepo    repository.EventLogRepository
	access       *AccessService
	spam         *SpamDetector
	router       *broadcast.Router
	directory    NameDirectory
	status       StatusSource
	orchestrator *AIOrchestrator
	log          *logger.Logger
}

func NewMessageService(
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	eventRepo repository.EventLogRepository,
	access *AccessService,
	spam *SpamDetector,
	router *broadcast.Router,
	directory NameDirectory,
	status StatusSource,
	orchestrator *AIOrchestrator,
	log *logger.Logger,
) *MessageService {
	return &MessageService{
		convRepo:     convRepo,
		messageRepo:  messageRepo,
		eventRepo:    eventRepo,
		access:       access,
		spam:         spam,
		router:       router,
		directory:    directory,
		status:       status,
		orchestrator: orchestrator,
		log:          log,
	}
}

// Send runs the full pipeline for one user message. Message ordering within
// a conversation, as observed by any single reader, matches persistence
// order: the broadcast happens strictly after Create returns.
func (s *MessageService) Send(ctx context.Context, conversationID uuid.UUID, sender identity.Identity, in SendInput, aiCfg *AIConfig) (message.Message, error) {
	if in.Type == "" {
		in.Type = message.TypeText
	}
	if in.Content == "" && in.Type == message.TypeText {
		return message.Message{}, chat_errors.ErrInvalidInput
	}

	ok, err := s.access.CanAccess(ctx, conversationID, sender)
	if err != nil {
		return message.Message{}, err
	}
	if !ok {
		return message.Message{}, chat_errors.ErrForbidden
	}

	res, err := s.spam.Check(ctx, in.Content, sender)
	if err != nil {
		return message.Message{}, err
	}
	if res.IsSpam {
		return message.Message{}, &SpamRejectedError{Reason: res.Reason}
	}

	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return message.Message{}, err
	}

	msg := message.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       sender.ID,
		Type:           in.Type,
		Content:        in.Content,
		ReplyToID:      in.ReplyToID,
		CreatedAt:      time.Now(),
	}
	if in.Type == message.TypeFile || in.Type == message.TypeImage {
		msg.FileName = sql.NullString{String: in.FileName, Valid: in.FileName != ""}
		msg.FileMime = sql.NullString{String: in.FileMime, Valid: in.FileMime != ""}
		msg.FileSize = sql.NullInt64{Int64: in.FileSize, Valid: in.FileSize > 0}
	}
	if name := s.displayName(ctx, conv, sender); name != "" {
		msg.SenderName = sql.NullString{String: name, Valid: true}
	}

	if err := s.messageRepo.Create(ctx, &msg); err != nil {
		return message.Message{}, err
	}

	s.appendAudit(ctx, conv, msg)

	if err := s.convRepo.SetLastMessage(ctx, conversationID, msg.ID); err != nil {
		return message.Message{}, err
	}

	s.router.Publish(conversationID, broadcast.EventNewMessage, ToPayload(msg))
	s.router.PublishToIdentity(conversationID, sender.ID, broadcast.EventMessageStatus, map[string]string{
		"messageId": msg.ID.String(),
		"status":    message.StatusSent,
	})

	if aiCfg != nil && aiCfg.Enabled && s.orchestrator != nil && !sender.IsAssistant() && s.policyAllows(ctx, *aiCfg) {
		s.spawnAutoResponder(conversationID, msg, *aiCfg)
	}

	return msg, nil
}

// SendAutomated persists and broadcasts an orchestrator reply. It bypasses
// access and spam checks: the automated agent is not a participant.
func (s *MessageService) SendAutomated(ctx context.Context, conversationID uuid.UUID, reply *AIReply) (message.Message, error) {
	if reply == nil || reply.Content == "" {
		return message.Message{}, chat_errors.ErrInvalidInput
	}

	msg := message.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       identity.AssistantID,
		SenderName:     sql.NullString{String: "Support Assistant", Valid: true},
		Type:           message.TypeAIResponse,
		Content:        reply.Content,
		Confidence:     sql.NullFloat64{Float64: reply.Confidence, Valid: true},
		CreatedAt:      time.Now(),
	}
	if len(reply.QuickReplies) > 0 {
		if data, err := json.Marshal(reply.QuickReplies); err == nil {
			msg.QuickReplies = sql.NullString{String: string(data), Valid: true}
		}
	}

	if err := s.messageRepo.Create(ctx, &msg); err != nil {
		return message.Message{}, err
	}
	if err := s.convRepo.SetLastMessage(ctx, conversationID, msg.ID); err != nil {
		return message.Message{}, err
	}

	s.router.Publish(conversationID, broadcast.EventNewMessage, ToPayload(msg))
	return msg, nil
}

// policyAllows evaluates the auto-respond policy against live support-team
// availability. An unreachable status store reads as offline, which every
// policy except an unknown one accepts.
func (s *MessageService) policyAllows(ctx context.Context, cfg AIConfig) bool {
	if cfg.Policy == "" || cfg.Policy == PolicyAlways {
		return true
	}
	status := "offline"
	if s.status != nil {
		if current, err := s.status.TeamStatus(ctx); err == nil {
			status = current
		} else if s.log != nil {
			s.log.Warnf("ai: team status lookup failed: %v", err)
		}
	}
	return s.orchestrator.ShouldRespond(status, cfg.Policy)
}

// spawnAutoResponder hands the message to the orchestrator as a detached
// task. Its failure or timeout never affects the completed send, and the
// typing-stop broadcast is emitted exactly once on every branch.
func (s *MessageService) spawnAutoResponder(conversationID uuid.UUID, userMsg message.Message, cfg AIConfig) {
	s.router.Publish(conversationID, broadcast.EventAITypingStart, map[string]string{
		"conversationId": conversationID.String(),
	})

	go func() {
		ctx := context.Background()
		defer s.router.Publish(conversationID, broadcast.EventAITypingStop, map[string]string{
			"conversationId": conversationID.String(),
		})

		history := s.recentHistory(ctx, conversationID)
		reply := s.orchestrator.Respond(ctx, userMsg.Content, history, cfg)
		if reply == nil {
			return
		}
		if _, err := s.SendAutomated(ctx, conversationID, reply); err != nil && s.log != nil {
			s.log.Errorf("ai: failed to persist automated reply for %s: %v", conversationID, err)
		}
	}()
}

func (s *MessageService) recentHistory(ctx context.Context, conversationID uuid.UUID) []llm.Message {
	msgs, err := s.messageRepo.GetConversationMessages(ctx, conversationID, time.Time{}, historyDepth)
	if err != nil {
		if s.log != nil {
			s.log.Warnf("ai: history fetch failed for %s: %v", conversationID, err)
		}
		return nil
	}
	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.SenderID == identity.AssistantID {
			role = "assistant"
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}
	return history
}

// Edit updates message content. Only the original sender may edit.
func (s *MessageService) Edit(ctx context.Context, messageID uuid.UUID, editor identity.Identity, content string) (message.Message, error) {
	if content == "" {
		return message.Message{}, chat_errors.ErrInvalidInput
	}
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	if msg.SenderID != editor.ID {
		return message.Message{}, chat_errors.ErrForbidden
	}

	msg.Content = content
	msg.Edited = true
	msg.EditedAt = sql.NullTime{Time: time.Now(), Valid: true}
	if err := s.messageRepo.Update(ctx, msg); err != nil {
		return message.Message{}, err
	}

	s.router.Publish(msg.ConversationID, broadcast.EventNewMessage, ToPayload(msg))
	return msg, nil
}

// Delete removes one message. Only the original sender may delete.
func (s *MessageService) Delete(ctx context.Context, messageID uuid.UUID, caller identity.Identity) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != caller.ID {
		return chat_errors.ErrForbidden
	}
	return s.messageRepo.Delete(ctx, messageID)
}

// MarkRead records read receipts for every message the reader did not send
// and notifies the room.
func (s *MessageService) MarkRead(ctx context.Context, conversationID uuid.UUID, reader identity.Identity) error {
	ok, err := s.access.CanAccess(ctx, conversationID, reader)
	if err != nil {
		return err
	}
	if !ok {
		return chat_errors.ErrForbidden
	}
	if err := s.messageRepo.MarkRead(ctx, conversationID, reader.ID, time.Now()); err != nil {
		return err
	}
	s.router.Publish(conversationID, broadcast.EventMessagesRead, map[string]string{
		"conversationId": conversationID.String(),
		"readerId":       reader.ID,
	})
	s.publishSeenReceipt(ctx, conversationID, reader)
	return nil
}

// publishSeenReceipt reports the newest message of the thread as seen,
// addressed to its sender. Best-effort: a receipt has no sender waiting on
// it, so lookup failures are swallowed.
func (s *MessageService) publishSeenReceipt(ctx context.Context, conversationID uuid.UUID, reader identity.Identity) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil || !conv.LastMessageID.Valid {
		return
	}
	last, err := s.messageRepo.GetByID(ctx, conv.LastMessageID.UUID)
	if err != nil || last.SenderID == reader.ID {
		return
	}
	s.router.PublishToIdentity(conversationID, last.SenderID, broadcast.EventMessageStatus, map[string]string{
		"messageId": last.ID.String(),
		"status":    message.StatusSeen,
		"readerId":  reader.ID,
	})
}

// History returns conversation messages oldest-first.
func (s *MessageService) History(ctx context.Context, conversationID uuid.UUID, who identity.Identity, before time.Time, limit int) ([]message.Message, error) {
	ok, err := s.access.CanAccess(ctx, conversationID, who)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, chat_errors.ErrForbidden
	}
	if limit <= 0 {
		limit = 50
	}
	return s.messageRepo.GetConversationMessages(ctx, conversationID, before, limit)
}

// displayName resolves the human-readable sender name. Best-effort.
func (s *MessageService) displayName(ctx context.Context, conv conversation.Conversation, sender identity.Identity) string {
	switch sender.Kind {
	case identity.KindGuest:
		if conv.RequesterName.Valid && conv.RequesterName.String != "" {
			return conv.RequesterName.String
		}
		return "Guest"
	case identity.KindAssistant:
		return "Support Assistant"
	default:
		if s.directory == nil {
			return ""
		}
		name, err := s.directory.DisplayName(ctx, sender.ID)
		if err != nil {
			if s.log != nil {
				s.log.Warnf("directory: name lookup failed for %s: %v", sender.ID, err)
			}
			return ""
		}
		return name
	}
}

// appendAudit writes the message_sent event log entry. Audit failure must
// never fail the send.
func (s *MessageService) appendAudit(ctx context.Context, conv conversation.Conversation, msg message.Message) {
	payload := map[string]interface{}{
		"messageId":  msg.ID.String(),
		"senderName": msg.SenderName.String,
	}
	if !conv.IsGroup && len(conv.Participants) == 2 {
		for _, p := range conv.Participants {
			if p.ParticipantID != msg.SenderID {
				payload["receiverId"] = p.ParticipantID
				payload["receiverName"] = s.displayName(ctx, conv, identity.FromStored(p.ParticipantID))
			}
		}
	}
	data, _ := json.Marshal(payload)
	err := s.eventRepo.Append(ctx, &event.ChatEventLog{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		EventType:      event.TypeMessageSent,
		ActorID:        msg.SenderID,
		Payload:        string(data),
		CreatedAt:      time.Now(),
	})
	if err != nil && s.log != nil {
		s.log.Warnf("audit: event log write failed for %s: %v", conv.ID, err)
	}
}

func ToPayload(m message.Message) MessagePayload {
	p := MessagePayload{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		SenderID:       m.SenderID,
		SenderName:     m.SenderName.String,
		Type:           m.Type,
		Content:        m.Content,
		FileName:       m.FileName.String,
		FileMime:       m.FileMime.String,
		FileSize:       m.FileSize.Int64,
		Confidence:     m.Confidence.Float64,
		IsAI:           m.SenderID == identity.AssistantID,
		Edited:         m.Edited,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.ReplyToID.Valid {
		p.ReplyToID = m.ReplyToID.UUID.String()
	}
	if m.QuickReplies.Valid {
		_ = json.Unmarshal([]byte(m.QuickReplies.String), &p.QuickReplies)
	}
	return p
}
