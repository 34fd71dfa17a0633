package services

import (
	"context"
	"time"

	"skylearn-chat/internal/domain/conversation"
	"skylearn-chat/internal/repository"
)

const monitoringWindow = 30 * time.Minute

// SupportStats is the live support-queue snapshot for the agent dashboard.
// All numbers are derived from read queries over the trailing window; no
// incremental counters exist.
type SupportStats struct {
	ActiveConversations int            `json:"activeConversations"`
	WaitingUsers        int            `json:"waitingUsers"`
	AvgWaitSeconds      int64          `json:"avgWaitSeconds"`
	WaitHistogram       map[string]int `json:"waitHistogram"`
	SampledThreads      int            `json:"sampledThreads"`
}

// SupportSession describes one live support thread.
type SupportSession struct {
	ConversationID string    `json:"conversationId"`
	RequesterName  string    `json:"requesterName,omitempty"`
	Category       string    `json:"category,omitempty"`
	SupportStatus  string    `json:"supportStatus"`
	AssignedAgent  string    `json:"assignedAgent,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type MonitoringService struct {
	convRepo    repository.ConversationRepository
	messageRepo repository.MessageRepository
	window      time.Duration
	now         func() time.Time
}

func NewMonitoringService(convRepo repository.ConversationRepository, messageRepo repository.MessageRepository) *MonitoringService {
	return &MonitoringService{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		window:      monitoringWindow,
		now:         time.Now,
	}
}

// Stats computes the trailing-window queue statistics.
func (s *MonitoringService) Stats(ctx context.Context) (SupportStats, error) {
	cutoff := s.now().Add(-s.window)

	stats := SupportStats{
		WaitHistogram: map[string]int{
			"under30s": 0,
			"under60s": 0,
			"under5m":  0,
			"under30m": 0,
			"over30m":  0,
		},
	}

	active, err := s.convRepo.GetSupportUpdatedSince(ctx, cutoff)
	if err != nil {
		return SupportStats{}, err
	}
	stats.ActiveConversations = len(active)

	for _, c := range active {
		_, answered, err := s.messageRepo.FirstNonGuestMessageAt(ctx, c.ID)
		if err != nil {
			return SupportStats{}, err
		}
		if !answered {
			stats.WaitingUsers++
		}
	}

	created, err := s.convRepo.GetSupportCreatedSince(ctx, cutoff)
	if err != nil {
		return SupportStats{}, err
	}

	var totalWait time.Duration
	var waits []time.Duration
	for _, c := range created {
		first, answered, err := s.messageRepo.FirstNonGuestMessageAt(ctx, c.ID)
		if err != nil {
			return SupportStats{}, err
		}
		if !answered {
			continue
		}
		wait := first.Sub(c.CreatedAt)
		if wait < 0 {
			wait = 0
		}
		totalWait += wait
		waits = append(waits, wait)
	}

	stats.SampledThreads = len(waits)
	if len(waits) > 0 {
		stats.AvgWaitSeconds = int64((totalWait / time.Duration(len(waits))).Seconds())
		for _, w := range waits {
			stats.WaitHistogram[bucketFor(w)]++
		}
		// Buckets become integer percentages of the sampled population.
		for k, count := range stats.WaitHistogram {
			stats.WaitHistogram[k] = count * 100 / len(waits)
		}
	}

	return stats, nil
}

// Sessions lists the support threads with activity in the window.
func (s *MonitoringService) Sessions(ctx context.Context) ([]SupportSession, error) {
	cutoff := s.now().Add(-s.window)
	active, err := s.convRepo.GetSupportUpdatedSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	sessions := make([]SupportSession, 0, len(active))
	for _, c := range active {
		sessions = append(sessions, toSession(c))
	}
	return sessions, nil
}

func bucketFor(wait time.Duration) string {
	switch {
	case wait < 30*time.Second:
		return "under30s"
	case wait < 60*time.Second:
		return "under60s"
	case wait < 5*time.Minute:
		return "under5m"
	case wait < 30*time.Minute:
		return "under30m"
	default:
		return "over30m"
	}
}

func toSession(c conversation.Conversation) SupportSession {
	return SupportSession{
		ConversationID: c.ID.String(),
		RequesterName:  c.RequesterName.String,
		Category:       c.Category.String,
		SupportStatus:  c.SupportStatus,
		AssignedAgent:  c.AssignedAgent.String,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
