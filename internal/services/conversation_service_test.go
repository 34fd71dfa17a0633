package services

import (
	"context"
	"testing"
	"time"

	"skylearn-chat/internal/broadcast"
	"skylearn-chat/internal/config"
	"skylearn-chat/internal/domain/conversation"
	"skylearn-chat/internal/domain/identity"
	chat_errors "skylearn-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conversationFixture struct {
	svc      *ConversationService
	convRepo *fakeConversationRepo
	msgRepo  *fakeMessageRepo
	events   *fakeEventRepo
	live     *captureLive
}

func newConversationFixture() *conversationFixture {
	convRepo := newFakeConversationRepo()
	msgRepo := newFakeMessageRepo()
	events := &fakeEventRepo{}
	router, live := newCaptureRouter()
	identities := NewIdentityService(&config.Config{
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret",
			AccessTTL:     time.Hour,
			GuestTokenTTL: 10 * time.Minute,
		},
	})
	svc := NewConversationService(convRepo, msgRepo, events, NewAccessService(convRepo), identities, router, nil)
	return &conversationFixture{svc: svc, convRepo: convRepo, msgRepo: msgRepo, events: events, live: live}
}

func TestCreate_PrependsCreatorAndBroadcasts(t *testing.T) {
	fx := newConversationFixture()
	creator := identity.Registered(uuid.NewString(), "")
	other := uuid.NewString()

	conv, err := fx.svc.Create(context.Background(), creator, CreateInput{
		ParticipantIDs: []string{other},
		Title:          "Checkride prep",
	})
	require.NoError(t, err)

	require.Len(t, conv.Participants, 2)
	assert.Equal(t, creator.ID, conv.Participants[0].ParticipantID)
	assert.False(t, conv.IsSupport)
	assert.Equal(t, conversation.SupportStatusNone, conv.SupportStatus)

	// Announced per participant: no connection can be in the room of a
	// conversation that was just created.
	for _, id := range []string{creator.ID, other} {
		got := fx.live.directEvents(id)
		require.Len(t, got, 1)
		assert.Equal(t, broadcast.EventNewConversation, got[0].Event)
		assert.Equal(t, conv.ID.String(), got[0].ConversationID)
	}
	assert.NotContains(t, fx.live.events(), broadcast.EventNewConversation)
}

func TestCreate_GuestParticipantForcesSupport(t *testing.T) {
	fx := newConversationFixture()
	creator := identity.Registered(uuid.NewString(), "")

	conv, err := fx.svc.Create(context.Background(), creator, CreateInput{
		ParticipantIDs: []string{"guest_1700000000000_abcd"},
	})
	require.NoError(t, err)
	assert.True(t, conv.IsSupport)
	assert.Equal(t, conversation.SupportStatusActive, conv.SupportStatus)
}

func TestCreate_ThreeParticipantsBecomeGroup(t *testing.T) {
	fx := newConversationFixture()
	creator := identity.Registered(uuid.NewString(), "")

	conv, err := fx.svc.Create(context.Background(), creator, CreateInput{
		ParticipantIDs: []string{uuid.NewString(), uuid.NewString()},
	})
	require.NoError(t, err)
	assert.True(t, conv.IsGroup)
}

func TestCreateSupport_AnonymousGetsGuestCredentials(t *testing.T) {
	fx := newConversationFixture()

	thread, err := fx.svc.CreateSupport(context.Background(), nil, SupportInput{
		RequesterName: "Jamie",
		Category:      "billing",
	})
	require.NoError(t, err)

	assert.True(t, identity.IsGuestID(thread.GuestID))
	assert.NotEmpty(t, thread.GuestToken)
	assert.True(t, thread.Conversation.IsSupport)
	assert.Equal(t, conversation.SupportStatusActive, thread.Conversation.SupportStatus)
	require.Len(t, thread.Conversation.Participants, 1)
	assert.Equal(t, thread.GuestID, thread.Conversation.Participants[0].ParticipantID)
	require.Len(t, fx.events.events, 1, "thread creation is audited")
}

func TestCreateSupport_AuthenticatedKeepsOwnIdentity(t *testing.T) {
	fx := newConversationFixture()
	requester := identity.Registered(uuid.NewString(), "student")

	thread, err := fx.svc.CreateSupport(context.Background(), &requester, SupportInput{Category: "scheduling"})
	require.NoError(t, err)

	assert.Empty(t, thread.GuestID)
	assert.Empty(t, thread.GuestToken)
	require.Len(t, thread.Conversation.Participants, 1)
	assert.Equal(t, requester.ID, thread.Conversation.Participants[0].ParticipantID)
}

func TestList_AllSupportMergesWithoutDuplicates(t *testing.T) {
	fx := newConversationFixture()
	agent := identity.Registered(uuid.NewString(), "agent")

	own := supportConversation("guest_1700000000000_abcd", agent.ID)
	foreign := supportConversation("guest_1700000000001_ef01")
	fx.convRepo.put(own)
	fx.convRepo.put(foreign)

	items, err := fx.svc.List(context.Background(), agent, true)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// A guest asking for allSupport still only sees their own thread.
	guest := identity.Guest("guest_1700000000000_abcd")
	items, err = fx.svc.List(context.Background(), guest, true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, own.ID, items[0].ID)
}

func TestDelete_SmallConversationIsPurged(t *testing.T) {
	fx := newConversationFixture()
	guest := identity.Guest("guest_1700000000000_abcd")
	conv := supportConversation(guest.ID)
	fx.convRepo.put(conv)

	require.NoError(t, fx.svc.Delete(context.Background(), conv.ID, guest))
	assert.Contains(t, fx.convRepo.deleted, conv.ID)
	assert.Empty(t, fx.convRepo.removed)
}

func TestDelete_LargeConversationShedsCaller(t *testing.T) {
	fx := newConversationFixture()
	caller := identity.Registered(uuid.NewString(), "")
	conv := directConversation(caller.ID, uuid.NewString(), uuid.NewString())
	fx.convRepo.put(conv)

	require.NoError(t, fx.svc.Delete(context.Background(), conv.ID, caller))
	assert.Empty(t, fx.convRepo.deleted)
	assert.Equal(t, []string{caller.ID}, fx.convRepo.removed)
}

func TestAssignAgent_GuestsForbidden(t *testing.T) {
	fx := newConversationFixture()
	conv := supportConversation("guest_1700000000000_abcd")
	fx.convRepo.put(conv)

	_, err := fx.svc.AssignAgent(context.Background(), conv.ID, identity.Guest("guest_1700000000000_abcd"), "")
	assert.ErrorIs(t, err, chat_errors.ErrForbidden)

	agent := identity.Registered(uuid.NewString(), "agent")
	assigned, err := fx.svc.AssignAgent(context.Background(), conv.ID, agent, "")
	require.NoError(t, err)
	assert.Equal(t, agent.ID, assigned)

	got, err := fx.convRepo.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, got.AssignedAgent.String)
	assert.Contains(t, fx.live.events(), broadcast.EventSupportStatus)
}

func TestAssignAgent_ExplicitAgentOverridesCaller(t *testing.T) {
	fx := newConversationFixture()
	conv := supportConversation("guest_1700000000000_abcd")
	fx.convRepo.put(conv)
	caller := identity.Registered(uuid.NewString(), "admin")

	colleague := uuid.NewString()
	assigned, err := fx.svc.AssignAgent(context.Background(), conv.ID, caller, colleague)
	require.NoError(t, err)
	assert.Equal(t, colleague, assigned)

	got, err := fx.convRepo.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, colleague, got.AssignedAgent.String)

	_, err = fx.svc.AssignAgent(context.Background(), conv.ID, caller, "guest_1700000000000_ffff")
	assert.ErrorIs(t, err, chat_errors.ErrInvalidInput)
}

func TestResolve_MarksResolvedAndBroadcasts(t *testing.T) {
	fx := newConversationFixture()
	conv := supportConversation("guest_1700000000000_abcd")
	fx.convRepo.put(conv)
	agent := identity.Registered(uuid.NewString(), "agent")

	require.NoError(t, fx.svc.Resolve(context.Background(), conv.ID, agent))

	got, err := fx.convRepo.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conversation.SupportStatusResolved, got.SupportStatus)
	assert.Contains(t, fx.live.events(), broadcast.EventSupportStatus)
}

func TestCleanup_PurgesStaleResolvedThreads(t *testing.T) {
	fx := newConversationFixture()
	stale1 := supportConversation("guest_1700000000000_abcd")
	stale2 := supportConversation("guest_1700000000001_ef01")
	fx.convRepo.put(stale1)
	fx.convRepo.put(stale2)
	fx.convRepo.resolvedBefore = []conversation.Conversation{stale1, stale2}

	removed, err := fx.svc.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.ElementsMatch(t, []uuid.UUID{stale1.ID, stale2.ID}, fx.convRepo.deleted)
}
