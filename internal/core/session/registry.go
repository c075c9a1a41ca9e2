package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/core/event"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
	"github.com/astra-cc/orchestrator/pkg/logger"

	"go.uber.org/zap"
)

// Registry is the Session Registry (C1): the single authority mapping live
// call ids to Sessions, enforcing tenant isolation and per-organization
// concurrency limits (spec.md §4.1, invariants 1 and 2).
type Registry struct {
	repos  repository.RepositoryManager
	bus    event.EventBus
	mirror *Mirror

	mu       sync.RWMutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
}

// NewRegistry wires the Session Registry to its persistence, cross-process
// mirror and event bus collaborators.
func NewRegistry(repos repository.RepositoryManager, bus event.EventBus, mirror *Mirror) *Registry {
	return &Registry{
		repos:    repos,
		bus:      bus,
		mirror:   mirror,
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (r *Registry) lockFor(callID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[callID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[callID] = l
	}
	return l
}

// Open admits a new Call: validates the Organization and Agent, enforces
// MaxConcurrentCalls, creates the persistent Call row, and installs a
// Session in the in-process registry (spec.md §4.1 "Open").
//
// Returns apperr.NotFound if org/agent do not exist or the agent belongs to a
// different org, apperr.QuotaExceeded if the organization is already at its
// concurrency limit, and apperr.AgentUnavailable if the agent is not idle.
func (r *Registry) Open(ctx context.Context, orgID, agentID, callerID string) (*Session, error) {
	org, err := r.repos.Organizations().GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !org.Active {
		return nil, apperr.Forbidden("organization is not active")
	}

	agent, err := r.repos.Agents().GetByID(ctx, orgID, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != domain.AgentStatusIdle {
		return nil, apperr.AgentUnavailable("agent is not idle")
	}

	active, err := r.repos.Calls().CountActiveByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if int(active) >= org.MaxConcurrentCalls {
		return nil, apperr.QuotaExceeded("organization has reached its concurrent call limit")
	}

	callID := uuid.New().String()
	call := &domain.Call{
		ID:        callID,
		OrgID:     orgID,
		AgentID:   agentID,
		CallerID:  callerID,
		StartedAt: time.Now(),
		Status:    domain.CallStatusActive,
	}
	if err := r.repos.Calls().Create(ctx, call); err != nil {
		return nil, err
	}

	if err := r.repos.Agents().SetStatus(ctx, agentID, domain.AgentStatusActive); err != nil {
		logger.Base().Warn("failed to mark agent active", zap.String("agent_id", agentID), zap.Error(err))
	}

	sess := newSession(ctx, callID, orgID, agentID, callerID)

	r.mu.Lock()
	r.sessions[callID] = sess
	r.mu.Unlock()

	if r.mirror != nil {
		if err := r.mirror.Register(ctx, Info{CallID: callID, OrgID: orgID, AgentID: agentID, StartTime: sess.StartedAt}); err != nil {
			logger.Base().Warn("failed to mirror session to redis", zap.String("call_id", callID), zap.Error(err))
		}
	}

	if r.bus != nil {
		_ = r.bus.Publish(event.SessionOpened, callID, nil)
	}

	logger.Base().Info("session opened", zap.String("call_id", callID), zap.String("org_id", orgID), zap.String("agent_id", agentID))
	return sess, nil
}

// Get returns the live Session for callID, scoped to orgID so a caller from
// one tenant can never observe another tenant's call (spec.md §4.14
// invariant 1: cross-tenant access returns NotFound, never Forbidden).
func (r *Registry) Get(orgID, callID string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[callID]
	r.mu.RUnlock()
	if !ok || sess.OrgID != orgID {
		return nil, apperr.NotFound("session not found")
	}
	return sess, nil
}

// Close ends a Call: marks the persistent Call row ended, releases the
// Session's resources via its registered cleanup hooks, frees the Agent, and
// removes the Session from the in-process and Redis-mirrored registries
// (spec.md §4.1 "Close"). outcome is recorded on the Call's metadata.
func (r *Registry) Close(ctx context.Context, orgID, callID, outcome string) error {
	lock := r.lockFor(callID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	sess, ok := r.sessions[callID]
	if ok && sess.OrgID == orgID {
		delete(r.sessions, callID)
	}
	delete(r.locks, callID)
	r.mu.Unlock()

	if !ok || sess.OrgID != orgID {
		// Already closed (or never existed for this org): spec.md §8 requires
		// a duplicate close(call_id) to be a no-op, not an error, and to emit
		// no second call_ended/call_summary.
		return nil
	}

	sess.close()

	now := time.Now()
	_, err := r.repos.Calls().Update(ctx, orgID, callID, func(c *domain.Call) error {
		c.Status = domain.CallStatusEnded
		c.EndedAt = &now
		if c.Metadata == nil {
			c.Metadata = domain.JSONB{}
		}
		c.Metadata["outcome"] = outcome
		return nil
	})
	if err != nil {
		logger.Base().Error("failed to mark call ended", zap.String("call_id", callID), zap.Error(err))
	}

	if agentErr := r.repos.Agents().SetStatus(ctx, sess.AgentID, domain.AgentStatusIdle); agentErr != nil {
		logger.Base().Warn("failed to release agent", zap.String("agent_id", sess.AgentID), zap.Error(agentErr))
	}

	if r.mirror != nil {
		if mErr := r.mirror.Unregister(ctx, callID); mErr != nil {
			logger.Base().Warn("failed to remove session mirror", zap.String("call_id", callID), zap.Error(mErr))
		}
		_ = r.mirror.NotifyCleanup(ctx, callID)
	}

	if r.bus != nil {
		_ = r.bus.Publish(event.SessionClosed, callID, map[string]interface{}{"outcome": outcome})
	}

	logger.Base().Info("session closed", zap.String("call_id", callID), zap.String("outcome", outcome))
	return err
}

// Count returns the number of live Sessions in this process, used by health
// checks and graceful-shutdown draining.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll forcibly closes every live Session, used during graceful shutdown
// (spec.md SPEC_FULL.md ambient stack, shutdown_grace).
func (r *Registry) CloseAll(ctx context.Context, outcome string) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	orgs := make(map[string]string, len(r.sessions))
	for id, s := range r.sessions {
		ids = append(ids, id)
		orgs[id] = s.OrgID
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.Close(ctx, orgs[id], id, outcome); err != nil {
			logger.Base().Error("error closing session during shutdown", zap.String("call_id", id), zap.Error(err))
		}
	}
}

// HandleRemoteCleanup is the handler passed to Mirror.SubscribeToCleanup: it
// closes any Session this process still holds for a call id that closed on
// another process in the fleet, a belt-and-suspenders guard against a
// missed direct Close call (e.g. the owning process crashed).
func (r *Registry) HandleRemoteCleanup(ctx context.Context, callID string) {
	r.mu.RLock()
	sess, ok := r.sessions[callID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := r.Close(ctx, sess.OrgID, callID, "remote_cleanup"); err != nil {
		logger.Base().Warn("failed to apply remote cleanup", zap.String("call_id", callID), zap.Error(err))
	}
}
