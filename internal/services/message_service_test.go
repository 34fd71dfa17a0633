package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"skylearn-chat/internal/broadcast"
	"skylearn-chat/internal/domain/identity"
	"skylearn-chat/internal/domain/message"
	"skylearn-chat/internal/llm"
	chat_errors "skylearn-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type messageFixture struct {
	svc      *MessageService
	convRepo *fakeConversationRepo
	msgRepo  *fakeMessageRepo
	events   *fakeEventRepo
	live     *captureLive
}

func newMessageFixture(orchestrator *AIOrchestrator) *messageFixture {
	convRepo := newFakeConversationRepo()
	msgRepo := newFakeMessageRepo()
	events := &fakeEventRepo{}
	router, live := newCaptureRouter()
	svc := NewMessageService(
		convRepo, msgRepo, events,
		NewAccessService(convRepo),
		NewSpamDetector(msgRepo),
		router, nil, nil, orchestrator, nil,
	)
	return &messageFixture{svc: svc, convRepo: convRepo, msgRepo: msgRepo, events: events, live: live}
}

func TestSend_PersistsThenBroadcasts(t *testing.T) {
	fx := newMessageFixture(nil)
	sender := identity.Guest("guest_1700000000000_abcd")
	conv := supportConversation(sender.ID)
	fx.convRepo.put(conv)

	msg, err := fx.svc.Send(context.Background(), conv.ID, sender, SendInput{Content: "hello"}, nil)
	require.NoError(t, err)

	stored := fx.msgRepo.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, msg.ID, stored[0].ID)
	assert.Equal(t, sender.ID, stored[0].SenderID)

	require.Len(t, fx.live.frames, 1)
	assert.Equal(t, broadcast.EventNewMessage, fx.live.frames[0].Event)
	assert.Equal(t, conv.ID.String(), fx.live.frames[0].ConversationID)

	// The sender gets a delivery receipt addressed to their own connections.
	receipts := fx.live.directEvents(sender.ID)
	require.Len(t, receipts, 1)
	assert.Equal(t, broadcast.EventMessageStatus, receipts[0].Event)
	payload, ok := receipts[0].Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, msg.ID.String(), payload["messageId"])
	assert.Equal(t, message.StatusSent, payload["status"])

	assert.Equal(t, msg.ID, fx.convRepo.lastMessages[conv.ID])
	require.Len(t, fx.events.events, 1, "every send appends an audit entry")
}

func TestSend_SpamRejectionPersistsNothing(t *testing.T) {
	fx := newMessageFixture(nil)
	sender := identity.Guest("guest_1700000000000_abcd")
	conv := supportConversation(sender.ID)
	fx.convRepo.put(conv)

	_, err := fx.svc.Send(context.Background(), conv.ID, sender, SendInput{Content: "free money for you"}, nil)

	var spam *SpamRejectedError
	require.ErrorAs(t, err, &spam)
	assert.Equal(t, "message contains blocked content", spam.Reason)

	assert.Empty(t, fx.msgRepo.stored())
	assert.Empty(t, fx.live.frames)
	assert.Empty(t, fx.events.events)
}

func TestSend_ForbiddenWithoutAccess(t *testing.T) {
	fx := newMessageFixture(nil)
	conv := directConversation(uuid.NewString(), uuid.NewString())
	fx.convRepo.put(conv)

	outsider := identity.Guest("guest_1700000000000_abcd")
	_, err := fx.svc.Send(context.Background(), conv.ID, outsider, SendInput{Content: "hello"}, nil)
	assert.ErrorIs(t, err, chat_errors.ErrForbidden)
}

func TestSend_EmptyTextRejected(t *testing.T) {
	fx := newMessageFixture(nil)
	sender := identity.Guest("guest_1700000000000_abcd")
	conv := supportConversation(sender.ID)
	fx.convRepo.put(conv)

	_, err := fx.svc.Send(context.Background(), conv.ID, sender, SendInput{}, nil)
	assert.ErrorIs(t, err, chat_errors.ErrInvalidInput)
}

func TestSend_AutoResponderRepliesAndStopsTyping(t *testing.T) {
	gen := &fakeGenerator{
		classification: llm.Classification{Intent: "general", Confidence: 0.9},
		reply:          "happy to help",
	}
	orchestrator := NewAIOrchestrator(gen, time.Second, time.Second, 0, nil)
	fx := newMessageFixture(orchestrator)
	sender := identity.Guest("guest_1700000000000_abcd")
	conv := supportConversation(sender.ID)
	fx.convRepo.put(conv)

	_, err := fx.svc.Send(context.Background(), conv.ID, sender, SendInput{Content: "hello"}, &AIConfig{Enabled: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, e := range fx.live.events() {
			if e == broadcast.EventAITypingStop {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	events := fx.live.events()
	assert.Contains(t, events, broadcast.EventAITypingStart)
	assert.Equal(t, 2, countOf(events, broadcast.EventNewMessage), "user message plus assistant reply")
	assert.Equal(t, 1, countOf(events, broadcast.EventAITypingStop))

	stored := fx.msgRepo.stored()
	require.Len(t, stored, 2)
	assert.Equal(t, identity.AssistantID, stored[1].SenderID)
	assert.Equal(t, "happy to help", stored[1].Content)
}

func TestSend_AutoResponderStopsTypingOnLowConfidence(t *testing.T) {
	gen := &fakeGenerator{
		classification: llm.Classification{Intent: "general", Confidence: 0.1},
	}
	orchestrator := NewAIOrchestrator(gen, time.Second, time.Second, 0, nil)
	fx := newMessageFixture(orchestrator)
	sender := identity.Guest("guest_1700000000000_abcd")
	conv := supportConversation(sender.ID)
	fx.convRepo.put(conv)

	_, err := fx.svc.Send(context.Background(), conv.ID, sender, SendInput{Content: "hello"}, &AIConfig{Enabled: true})
	require.NoError(t, err)

	// The stop marker must arrive even though no reply is produced.
	require.Eventually(t, func() bool {
		for _, e := range fx.live.events() {
			if e == broadcast.EventAITypingStop {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, countOf(fx.live.events(), broadcast.EventNewMessage))
	assert.Len(t, fx.msgRepo.stored(), 1)
}

func TestSend_AutoResponderRespectsPolicy(t *testing.T) {
	gen := &fakeGenerator{
		classification: llm.Classification{Intent: "general", Confidence: 0.9},
		reply:          "happy to help",
	}
	orchestrator := NewAIOrchestrator(gen, time.Second, time.Second, 0, nil)

	tests := []struct {
		name       string
		teamStatus string
		policy     string
		wantReply  bool
	}{
		{"offline policy while team online", "online", PolicyOffline, false},
		{"offline policy while team offline", "offline", PolicyOffline, true},
		{"empty policy always replies", "online", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newMessageFixture(orchestrator)
			fx.svc.status = &fakeStatus{status: tt.teamStatus}
			sender := identity.Guest("guest_1700000000000_abcd")
			conv := supportConversation(sender.ID)
			fx.convRepo.put(conv)

			_, err := fx.svc.Send(context.Background(), conv.ID, sender, SendInput{Content: "hello"}, &AIConfig{Enabled: true, Policy: tt.policy})
			require.NoError(t, err)

			if !tt.wantReply {
				assert.NotContains(t, fx.live.events(), broadcast.EventAITypingStart)
				assert.Len(t, fx.msgRepo.stored(), 1)
				return
			}
			require.Eventually(t, func() bool {
				return len(fx.msgRepo.stored()) == 2
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestSendAutomated_BypassesAccessAndSpam(t *testing.T) {
	fx := newMessageFixture(nil)
	conv := supportConversation("guest_1700000000000_abcd")
	fx.convRepo.put(conv)

	msg, err := fx.svc.SendAutomated(context.Background(), conv.ID, &AIReply{
		Content:      "click here is usually a scam, do not trust it",
		Confidence:   0.8,
		QuickReplies: []string{"More help", "Talk to a person"},
	})
	require.NoError(t, err)
	assert.Equal(t, identity.AssistantID, msg.SenderID)
	assert.True(t, msg.Confidence.Valid)

	payload := ToPayload(msg)
	assert.True(t, payload.IsAI)
	assert.Equal(t, []string{"More help", "Talk to a person"}, payload.QuickReplies)
}

func TestSendAutomated_RejectsEmptyReply(t *testing.T) {
	fx := newMessageFixture(nil)
	_, err := fx.svc.SendAutomated(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, chat_errors.ErrInvalidInput)

	_, err = fx.svc.SendAutomated(context.Background(), uuid.New(), &AIReply{})
	assert.ErrorIs(t, err, chat_errors.ErrInvalidInput)
}

func TestEdit_OnlySenderMayEdit(t *testing.T) {
	fx := newMessageFixture(nil)
	sender := identity.Guest("guest_1700000000000_abcd")
	conv := supportConversation(sender.ID)
	fx.convRepo.put(conv)

	msg, err := fx.svc.Send(context.Background(), conv.ID, sender, SendInput{Content: "orignal"}, nil)
	require.NoError(t, err)

	_, err = fx.svc.Edit(context.Background(), msg.ID, identity.Registered(uuid.NewString(), "agent"), "hijacked")
	assert.ErrorIs(t, err, chat_errors.ErrForbidden)

	edited, err := fx.svc.Edit(context.Background(), msg.ID, sender, "original")
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, "original", edited.Content)
}

func TestDelete_OnlySenderMayDelete(t *testing.T) {
	fx := newMessageFixture(nil)
	sender := identity.Guest("guest_1700000000000_abcd")
	conv := supportConversation(sender.ID)
	fx.convRepo.put(conv)

	msg, err := fx.svc.Send(context.Background(), conv.ID, sender, SendInput{Content: "hello"}, nil)
	require.NoError(t, err)

	err = fx.svc.Delete(context.Background(), msg.ID, identity.Registered(uuid.NewString(), "agent"))
	assert.ErrorIs(t, err, chat_errors.ErrForbidden)

	require.NoError(t, fx.svc.Delete(context.Background(), msg.ID, sender))
	assert.Empty(t, fx.msgRepo.stored())
}

func TestMarkRead_PublishesReceipt(t *testing.T) {
	fx := newMessageFixture(nil)
	sender := identity.Guest("guest_1700000000000_abcd")
	agent := identity.Registered(uuid.NewString(), "agent")
	conv := supportConversation(sender.ID, agent.ID)
	fx.convRepo.put(conv)

	require.NoError(t, fx.svc.MarkRead(context.Background(), conv.ID, agent))
	assert.Contains(t, fx.live.events(), broadcast.EventMessagesRead)
	assert.Len(t, fx.msgRepo.reads, 1)
}

func TestMarkRead_ReportsNewestMessageSeenToItsSender(t *testing.T) {
	fx := newMessageFixture(nil)
	sender := identity.Guest("guest_1700000000000_abcd")
	agent := identity.Registered(uuid.NewString(), "agent")
	conv := supportConversation(sender.ID, agent.ID)
	fx.convRepo.put(conv)

	msg, err := fx.svc.Send(context.Background(), conv.ID, sender, SendInput{Content: "hello"}, nil)
	require.NoError(t, err)

	require.NoError(t, fx.svc.MarkRead(context.Background(), conv.ID, agent))

	var seen []broadcast.Envelope
	for _, env := range fx.live.directEvents(sender.ID) {
		if env.Event == broadcast.EventMessageStatus {
			seen = append(seen, env)
		}
	}
	require.Len(t, seen, 2, "one sent receipt, one seen receipt")
	payload, ok := seen[1].Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, msg.ID.String(), payload["messageId"])
	assert.Equal(t, message.StatusSeen, payload["status"])
	assert.Equal(t, agent.ID, payload["readerId"])

	// Reading your own newest message produces no receipt.
	before := len(fx.live.directEvents(sender.ID))
	require.NoError(t, fx.svc.MarkRead(context.Background(), conv.ID, sender))
	assert.Len(t, fx.live.directEvents(sender.ID), before)
}

func TestSend_RepoFailurePropagates(t *testing.T) {
	fx := newMessageFixture(nil)
	sender := identity.Guest("guest_1700000000000_abcd")
	conv := supportConversation(sender.ID)
	fx.convRepo.put(conv)

	boom := errors.New("connection reset")
	fx.msgRepo.createErr = boom

	_, err := fx.svc.Send(context.Background(), conv.ID, sender, SendInput{Content: "hello"}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, fx.live.frames, "nothing is broadcast when persistence fails")
}

func countOf(events []string, want string) int {
	n := 0
	for _, e := range events {
		if e == want {
			n++
		}
	}
	return n
}
