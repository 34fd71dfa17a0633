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
	"skylearn-chat/internal/repository"
	chat_errors "skylearn-chat/pkg/errors"
	"skylearn-chat/pkg/logger"

	"github.com/google/uuid"
)

type ConversationService struct {
	convRepo    repository.ConversationRepository
	messageRepo repository.MessageRepository
	eventRepo   repository.EventLogRepository
	access      *AccessService
	identities  *IdentityService
	router      *broadcast.Router
	log         *logger.Logger
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	eventRepo repository.EventLogRepository,
	access *AccessService,
	identities *IdentityService,
	router *broadcast.Router,
	log *logger.Logger,
) *ConversationService {
	return &ConversationService{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		eventRepo:   eventRepo,
		access:      access,
		identities:  identities,
		router:      router,
		log:         log,
	}
}

type CreateInput struct {
	ParticipantIDs []string
	Title          string
	IsGroup        bool
	Category       string
}

// Create starts a conversation among the creator and the given
// participants. Any guest participant forces the support flag.
func (s *ConversationService) Create(ctx context.Context, creator identity.Identity, in CreateInput) (conversation.Conversation, error) {
	if !creator.Valid() {
		return conversation.Conversation{}, chat_errors.ErrInvalidInput
	}

	ids := in.ParticipantIDs
	found := false
	for _, id := range ids {
		if id == creator.ID {
			found = true
			break
		}
	}
	if !found {
		ids = append([]string{creator.ID}, ids...)
	}
	if len(ids) == 0 {
		return conversation.Conversation{}, chat_errors.ErrInvalidInput
	}

	hasGuest := false
	for _, id := range ids {
		if identity.IsGuestID(id) {
			hasGuest = true
			break
		}
	}

	conv := conversation.Conversation{
		ID:            uuid.New(),
		Title:         sql.NullString{String: in.Title, Valid: in.Title != ""},
		IsGroup:       in.IsGroup || len(ids) > 2,
		IsSupport:     hasGuest,
		SupportStatus: conversation.SupportStatusNone,
		Category:      sql.NullString{String: in.Category, Valid: in.Category != ""},
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if hasGuest {
		conv.SupportStatus = conversation.SupportStatusActive
	}

	if err := s.convRepo.Create(ctx, &conv); err != nil {
		return conversation.Conversation{}, err
	}

	for _, id := range ids {
		kind := string(identity.KindRegistered)
		if identity.IsGuestID(id) {
			kind = string(identity.KindGuest)
		}
		p := &conversation.Participant{
			ConversationID: conv.ID,
			ParticipantID:  id,
			Kind:           kind,
			JoinedAt:       time.Now(),
		}
		if err := s.convRepo.AddParticipant(ctx, p); err != nil {
			return conversation.Conversation{}, err
		}
		conv.Participants = append(conv.Participants, *p)
	}

	// Nobody can have joined the room of a conversation that did not exist a
	// moment ago, so the announcement goes out identity-addressed.
	payload := map[string]string{
		"conversationId": conv.ID.String(),
		"title":          in.Title,
	}
	for _, id := range ids {
		s.router.PublishToIdentity(conv.ID, id, broadcast.EventNewConversation, payload)
	}
	return conv, nil
}

type SupportInput struct {
	RequesterName  string
	RequesterEmail string
	Category       string
}

// SupportThread is the result of opening a support conversation. GuestID
// and GuestToken are set only for unauthenticated requesters.
type SupportThread struct {
	Conversation conversation.Conversation
	GuestID      string
	GuestToken   string
}

// CreateSupport opens a support thread. An anonymous visitor gets a fresh
// guest id plus a short-lived guest token; an authenticated requester joins
// under their own identity.
func (s *ConversationService) CreateSupport(ctx context.Context, requester *identity.Identity, in SupportInput) (SupportThread, error) {
	var thread SupportThread

	participantID := ""
	participantKind := string(identity.KindGuest)
	if requester != nil && !requester.IsGuest() {
		participantID = requester.ID
		participantKind = string(identity.KindRegistered)
	} else {
		thread.GuestID = identity.NewGuestID()
		participantID = thread.GuestID
		token, err := s.identities.MintGuestToken(thread.GuestID)
		if err != nil {
			return SupportThread{}, err
		}
		thread.GuestToken = token
	}

	conv := conversation.Conversation{
		ID:             uuid.New(),
		IsSupport:      true,
		SupportStatus:  conversation.SupportStatusActive,
		Category:       sql.NullString{String: in.Category, Valid: in.Category != ""},
		RequesterName:  sql.NullString{String: in.RequesterName, Valid: in.RequesterName != ""},
		RequesterEmail: sql.NullString{String: in.RequesterEmail, Valid: in.RequesterEmail != ""},
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := s.convRepo.Create(ctx, &conv); err != nil {
		return SupportThread{}, err
	}
	p := &conversation.Participant{
		ConversationID: conv.ID,
		ParticipantID:  participantID,
		Kind:           participantKind,
		JoinedAt:       time.Now(),
	}
	if err := s.convRepo.AddParticipant(ctx, p); err != nil {
		return SupportThread{}, err
	}
	conv.Participants = []conversation.Participant{*p}

	s.appendSupportAudit(ctx, conv, participantID)

	thread.Conversation = conv
	return thread, nil
}

// List returns the caller's conversations. With allSupport set, non-guest
// callers additionally see every support thread, listed or not.
func (s *ConversationService) List(ctx context.Context, who identity.Identity, allSupport bool) ([]conversation.Conversation, error) {
	own, err := s.convRepo.GetForParticipant(ctx, who.ID)
	if err != nil {
		return nil, err
	}
	if !allSupport || who.IsGuest() {
		return own, nil
	}

	support, err := s.convRepo.GetAllSupport(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(own))
	for _, c := range own {
		seen[c.ID] = struct{}{}
	}
	for _, c := range support {
		if _, ok := seen[c.ID]; !ok {
			own = append(own, c)
		}
	}
	return own, nil
}

func (s *ConversationService) GetByID(ctx context.Context, conversationID uuid.UUID, who identity.Identity) (conversation.Conversation, error) {
	ok, err := s.access.CanAccess(ctx, conversationID, who)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if !ok {
		return conversation.Conversation{}, chat_errors.ErrForbidden
	}
	return s.convRepo.GetByID(ctx, conversationID)
}

// SetArchived toggles the caller's archived flag on the thread.
func (s *ConversationService) SetArchived(ctx context.Context, conversationID uuid.UUID, who identity.Identity, archived bool) error {
	return s.convRepo.SetParticipantArchived(ctx, conversationID, who.ID, archived)
}

// SetStarred toggles the caller's starred flag on the thread.
func (s *ConversationService) SetStarred(ctx context.Context, conversationID uuid.UUID, who identity.Identity, starred bool) error {
	return s.convRepo.SetParticipantStarred(ctx, conversationID, who.ID, starred)
}

// Delete applies the thread-deletion rule: a conversation of at most two
// participants is purged together with its messages and logs; a larger one
// only sheds the caller.
func (s *ConversationService) Delete(ctx context.Context, conversationID uuid.UUID, caller identity.Identity) error {
	ok, err := s.access.CanAccess(ctx, conversationID, caller)
	if err != nil {
		return err
	}
	if !ok {
		return chat_errors.ErrForbidden
	}

	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}

	if len(conv.Participants) <= 2 {
		return s.purge(ctx, conversationID)
	}
	return s.convRepo.RemoveParticipant(ctx, conversationID, caller.ID)
}

// AssignAgent attaches a support agent to a thread and marks it active. An
// empty agentID assigns the caller; guests can neither assign nor be
// assigned.
func (s *ConversationService) AssignAgent(ctx context.Context, conversationID uuid.UUID, caller identity.Identity, agentID string) (string, error) {
	if caller.IsGuest() {
		return "", chat_errors.ErrForbidden
	}
	if agentID == "" {
		agentID = caller.ID
	}
	if identity.IsGuestID(agentID) {
		return "", chat_errors.ErrInvalidInput
	}
	if err := s.convRepo.SetSupportStatus(ctx, conversationID, conversation.SupportStatusActive, agentID); err != nil {
		return "", err
	}
	s.publishSupportStatus(conversationID, conversation.SupportStatusActive, agentID)
	return agentID, nil
}

// Resolve closes a support thread.
func (s *ConversationService) Resolve(ctx context.Context, conversationID uuid.UUID, agent identity.Identity) error {
	if agent.IsGuest() {
		return chat_errors.ErrForbidden
	}
	if err := s.convRepo.SetSupportStatus(ctx, conversationID, conversation.SupportStatusResolved, agent.ID); err != nil {
		return err
	}
	s.publishSupportStatus(conversationID, conversation.SupportStatusResolved, agent.ID)
	return nil
}

// Cleanup purges resolved support threads older than the retention cutoff.
// Returns the number of conversations removed.
func (s *ConversationService) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	stale, err := s.convRepo.GetResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, c := range stale {
		if err := s.purge(ctx, c.ID); err != nil {
			if s.log != nil {
				s.log.Errorf("cleanup: failed to purge %s: %v", c.ID, err)
			}
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *ConversationService) purge(ctx context.Context, conversationID uuid.UUID) error {
	if err := s.messageRepo.DeleteByConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := s.eventRepo.DeleteByConversation(ctx, conversationID); err != nil && s.log != nil {
		s.log.Warnf("cleanup: event log purge failed for %s: %v", conversationID, err)
	}
	return s.convRepo.Delete(ctx, conversationID)
}

func (s *ConversationService) publishSupportStatus(conversationID uuid.UUID, status, agentID string) {
	s.router.Publish(conversationID, broadcast.EventSupportStatus, map[string]string{
		"conversationId": conversationID.String(),
		"status":         status,
		"assignedAgent":  agentID,
	})
}

func (s *ConversationService) appendSupportAudit(ctx context.Context, conv conversation.Conversation, actorID string) {
	data, _ := json.Marshal(map[string]string{
		"category":      conv.Category.String,
		"requesterName": conv.RequesterName.String,
	})
	err := s.eventRepo.Append(ctx, &event.ChatEventLog{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		EventType:      event.TypeSupportCreated,
		ActorID:        actorID,
		Payload:        string(data),
		CreatedAt:      time.Now(),
	})
	if err != nil && s.log != nil {
		s.log.Warnf("audit: support event log write failed for %s: %v", conv.ID, err)
	}
}
