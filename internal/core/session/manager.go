package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/astra-cc/orchestrator/pkg/logger"
	"github.com/astra-cc/orchestrator/pkg/redis"
	"go.uber.org/zap"
)

const (
	CleanupChannel   = "astra:cc:session:cleanup"
	SessionKeyPrefix = "astra:cc:session:info"
	SessionTTL       = 1 * time.Hour
)

// Info is the cross-process mirror of a live Session, published so every
// orchestrator process can see concurrency counts behind a load balancer
// (spec.md §4.1, SPEC_FULL.md §4.1).
type Info struct {
	CallID    string    `json:"call_id"`
	ProcessID string    `json:"process_id"`
	OrgID     string    `json:"org_id"`
	AgentID   string    `json:"agent_id"`
	StartTime time.Time `json:"start_time"`
}

// CleanupMessage is the payload for cleanup broadcast
type CleanupMessage struct {
	CallID string `json:"call_id"`
}

// Mirror publishes Session existence/cleanup into Redis so every process in
// the fleet observes the same concurrency picture, grounded on the teacher's
// session.Manager.
type Mirror struct {
	redisSvc  redis.ServiceInterface
	processID string
}

func NewMirror(redisSvc redis.ServiceInterface, processID string) *Mirror {
	return &Mirror{
		redisSvc:  redisSvc,
		processID: processID,
	}
}

// Register publishes Session existence for monitoring.
func (m *Mirror) Register(ctx context.Context, info Info) error {
	info.ProcessID = m.processID
	if info.StartTime.IsZero() {
		info.StartTime = time.Now()
	}

	data, _ := json.Marshal(info)
	key := fmt.Sprintf("%s:%s", SessionKeyPrefix, info.CallID)

	err := m.redisSvc.SetValue(ctx, key, string(data), SessionTTL)
	if err == nil {
		logger.Base().Info("session registered in redis", zap.String("call_id", info.CallID), zap.String("process_id", m.processID))
	}
	return err
}

// Unregister removes a Session's Redis mirror entry.
func (m *Mirror) Unregister(ctx context.Context, callID string) error {
	key := fmt.Sprintf("%s:%s", SessionKeyPrefix, callID)
	return m.redisSvc.DelValue(ctx, key)
}

// NotifyCleanup broadcasts a close to every process in the fleet.
func (m *Mirror) NotifyCleanup(ctx context.Context, callID string) error {
	logger.Base().Info("broadcasting session cleanup", zap.String("call_id", callID))
	return m.redisSvc.Publish(ctx, CleanupChannel, CleanupMessage{CallID: callID})
}

// SubscribeToCleanup listens for cleanup broadcasts from other processes.
func (m *Mirror) SubscribeToCleanup(ctx context.Context, handler func(callID string)) error {
	return m.redisSvc.Subscribe(ctx, CleanupChannel, func(payload string) {
		var msg CleanupMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			logger.Base().Error("failed to unmarshal cleanup message", zap.Error(err))
			return
		}
		handler(msg.CallID)
	})
}
