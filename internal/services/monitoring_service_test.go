package services

import (
	"context"
	"testing"
	"time"

	"skylearn-chat/internal/domain/conversation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_CountsActiveAndWaiting(t *testing.T) {
	convRepo := newFakeConversationRepo()
	msgRepo := newFakeMessageRepo()
	svc := NewMonitoringService(convRepo, msgRepo)

	answered := supportConversation("guest_1700000000000_abcd")
	waiting1 := supportConversation("guest_1700000000001_ef01")
	waiting2 := supportConversation("guest_1700000000002_ef02")
	convRepo.supportUpdatedSince = []conversation.Conversation{answered, waiting1, waiting2}
	msgRepo.firstNonGuest[answered.ID] = answered.CreatedAt.Add(20 * time.Second)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ActiveConversations)
	assert.Equal(t, 2, stats.WaitingUsers)
}

func TestStats_WaitTimesAndHistogram(t *testing.T) {
	convRepo := newFakeConversationRepo()
	msgRepo := newFakeMessageRepo()
	svc := NewMonitoringService(convRepo, msgRepo)

	base := time.Now().Add(-20 * time.Minute)
	mkThread := func(wait time.Duration) conversation.Conversation {
		c := supportConversation("guest_1700000000000_abcd")
		c.CreatedAt = base
		msgRepo.firstNonGuest[c.ID] = base.Add(wait)
		return c
	}

	fast := mkThread(10 * time.Second)
	medium := mkThread(45 * time.Second)
	slow := mkThread(3 * time.Minute)
	unanswered := supportConversation("guest_1700000000003_ef03")
	convRepo.supportCreatedSince = []conversation.Conversation{fast, medium, slow, unanswered}

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.SampledThreads, "unanswered threads do not enter the sample")
	// (10s + 45s + 180s) / 3, truncated to whole seconds.
	assert.Equal(t, int64(78), stats.AvgWaitSeconds)

	assert.Equal(t, 33, stats.WaitHistogram["under30s"])
	assert.Equal(t, 33, stats.WaitHistogram["under60s"])
	assert.Equal(t, 33, stats.WaitHistogram["under5m"])
	assert.Equal(t, 0, stats.WaitHistogram["under30m"])
	assert.Equal(t, 0, stats.WaitHistogram["over30m"])
}

func TestStats_EmptyWindow(t *testing.T) {
	svc := NewMonitoringService(newFakeConversationRepo(), newFakeMessageRepo())

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.ActiveConversations)
	assert.Zero(t, stats.WaitingUsers)
	assert.Zero(t, stats.AvgWaitSeconds)
	assert.Zero(t, stats.SampledThreads)
	for bucket, v := range stats.WaitHistogram {
		assert.Zero(t, v, bucket)
	}
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want string
	}{
		{10 * time.Second, "under30s"},
		{30 * time.Second, "under60s"},
		{59 * time.Second, "under60s"},
		{60 * time.Second, "under5m"},
		{4 * time.Minute, "under5m"},
		{5 * time.Minute, "under30m"},
		{29 * time.Minute, "under30m"},
		{30 * time.Minute, "over30m"},
		{2 * time.Hour, "over30m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bucketFor(tt.wait), tt.wait.String())
	}
}

func TestSessions_ReflectsActiveThreads(t *testing.T) {
	convRepo := newFakeConversationRepo()
	svc := NewMonitoringService(convRepo, newFakeMessageRepo())

	conv := supportConversation("guest_1700000000000_abcd")
	conv.RequesterName.String = "Jamie"
	conv.RequesterName.Valid = true
	conv.Category.String = "billing"
	conv.Category.Valid = true
	convRepo.supportUpdatedSince = []conversation.Conversation{conv}

	sessions, err := svc.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, conv.ID.String(), sessions[0].ConversationID)
	assert.Equal(t, "Jamie", sessions[0].RequesterName)
	assert.Equal(t, "billing", sessions[0].Category)
	assert.Equal(t, conversation.SupportStatusActive, sessions[0].SupportStatus)
}
