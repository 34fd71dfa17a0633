package services

import (
	"context"
	"strings"
	"time"

	"skylearn-chat/internal/domain/identity"
	"skylearn-chat/internal/repository"
)

// SpamResult is a normal negative result, not an error. Reason is user
// facing.
type SpamResult struct {
	IsSpam bool
	Reason string
}

// SpamRejectedError carries the detector's reason to callers that need an
// error value. A rejected send persists nothing.
type SpamRejectedError struct {
	Reason string
}

func (e *SpamRejectedError) Error() string {
	return e.Reason
}

var defaultBlacklist = []string{
	"buy now",
	"free money",
	"click here",
	"limited offer",
	"casino bonus",
	"crypto giveaway",
}

const (
	rateLimitCount  = 10
	rateLimitWindow = 60 * time.Second
	repetitionDepth = 3
)

// SpamDetector runs three independent checks against a candidate message;
// the first match wins. Rate and repetition consult persisted messages, so
// the detector holds no counters of its own.
type SpamDetector struct {
	messageRepo repository.MessageRepository
	blacklist   []string
	now         func() time.Time
}

func NewSpamDetector(messageRepo repository.MessageRepository) *SpamDetector {
	return &SpamDetector{
		messageRepo: messageRepo,
		blacklist:   defaultBlacklist,
		now:         time.Now,
	}
}

func (d *SpamDetector) Check(ctx context.Context, content string, sender identity.Identity) (SpamResult, error) {
	lowered := strings.ToLower(content)
	for _, term := range d.blacklist {
		if strings.Contains(lowered, term) {
			return SpamResult{IsSpam: true, Reason: "message contains blocked content"}, nil
		}
	}

	count, err := d.messageRepo.CountBySenderSince(ctx, sender.ID, d.now().Add(-rateLimitWindow))
	if err != nil {
		return SpamResult{}, err
	}
	if count >= rateLimitCount {
		return SpamResult{IsSpam: true, Reason: "too many messages, please slow down"}, nil
	}

	recent, err := d.messageRepo.GetRecentBySender(ctx, sender.ID, repetitionDepth)
	if err != nil {
		return SpamResult{}, err
	}
	if len(recent) >= repetitionDepth {
		identical := true
		for _, m := range recent[:repetitionDepth] {
			if m.Content != content {
				identical = false
				break
			}
		}
		if identical {
			return SpamResult{IsSpam: true, Reason: "duplicate message detected"}, nil
		}
	}

	return SpamResult{}, nil
}
