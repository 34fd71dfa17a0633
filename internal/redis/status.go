package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Support availability values. They feed the auto-respond decision table
// and the support_status live event.
const (
	StatusOnline  = "online"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

const (
	teamStatusKey  = "support:status"
	agentKeyFormat = "support:agent:%s:status"
	agentStatusTTL = 5 * time.Minute
)

// StatusStore keeps support-team availability in redis. Agent entries carry
// a TTL so a crashed agent process degrades to offline on its own.
type StatusStore struct {
	client *goredis.Client
}

func NewStatusStore(client *goredis.Client) *StatusStore {
	return &StatusStore{client: client}
}

// SetTeamStatus records overall support availability.
func (s *StatusStore) SetTeamStatus(ctx context.Context, status string) error {
	return s.client.Set(ctx, teamStatusKey, status, 0).Err()
}

// TeamStatus returns overall support availability, defaulting to offline.
func (s *StatusStore) TeamStatus(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, teamStatusKey).Result()
	if err == goredis.Nil {
		return StatusOffline, nil
	}
	if err != nil {
		return StatusOffline, err
	}
	return val, nil
}

// SetAgentStatus records one agent's availability.
func (s *StatusStore) SetAgentStatus(ctx context.Context, agentID, status string) error {
	key := fmt.Sprintf(agentKeyFormat, agentID)
	return s.client.Set(ctx, key, status, agentStatusTTL).Err()
}

// AgentStatus returns one agent's availability, defaulting to offline.
func (s *StatusStore) AgentStatus(ctx context.Context, agentID string) (string, error) {
	key := fmt.Sprintf(agentKeyFormat, agentID)
	val, err := s.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return StatusOffline, nil
	}
	if err != nil {
		return StatusOffline, err
	}
	return val, nil
}
