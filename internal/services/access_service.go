package services

import (
	"context"
	"errors"

	"skylearn-chat/internal/domain/identity"
	"skylearn-chat/internal/repository"
	chat_errors "skylearn-chat/pkg/errors"

	"github.com/google/uuid"
)

// AccessService decides whether an identity may read or write a
// conversation.
//
// The ruling invariant: guest access is strictly participant-based, while
// registered access to guest-containing (support) conversations is
// role-based and bypasses participant membership. That escalation is what
// lets support staff open any guest thread without being listed in it.
type AccessService struct {
	convRepo repository.ConversationRepository
}

func NewAccessService(convRepo repository.ConversationRepository) *AccessService {
	return &AccessService{convRepo: convRepo}
}

// CanAccess reports whether who may read/write the conversation. Malformed
// ids and unknown conversations deny without error, matching the
// subscription-authorizer convention.
func (s *AccessService) CanAccess(ctx context.Context, conversationID uuid.UUID, who identity.Identity) (bool, error) {
	if conversationID == uuid.Nil || !who.Valid() {
		return false, nil
	}

	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, chat_errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	// A conversation with no participants is a corrupt record; it never
	// grants access.
	if len(conv.Participants) == 0 {
		return false, nil
	}

	if conv.HasGuest() && !who.IsGuest() {
		return true, nil
	}

	return conv.HasParticipant(who.ID), nil
}
