package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

func TestRegistryOpen(t *testing.T) {
	t.Run("success transitions agent to active", func(t *testing.T) {
		repos := newFakeRepoManager()
		orgID, agentID := seedOrgAndAgent(repos, 2)
		reg := NewRegistry(repos, nil, nil)

		sess, err := reg.Open(context.Background(), orgID, agentID, "+15551234567")
		require.NoError(t, err)
		assert.Equal(t, orgID, sess.OrgID)
		assert.Equal(t, agentID, sess.AgentID)
		assert.Equal(t, domain.AgentStatusActive, repos.agts[agentID].Status)
		assert.Equal(t, 1, reg.Count())
	})

	t.Run("quota exceeded at max_concurrent_calls", func(t *testing.T) {
		repos := newFakeRepoManager()
		orgID, agentID := seedOrgAndAgent(repos, 1)
		reg := NewRegistry(repos, nil, nil)

		_, err := reg.Open(context.Background(), orgID, agentID, "+1")
		require.NoError(t, err)

		// second call under a second agent still trips the org-wide cap.
		agent2ID := agentID + "-2"
		repos.agts[agent2ID] = &domain.Agent{ID: agent2ID, OrgID: orgID, Status: domain.AgentStatusIdle}

		_, err = reg.Open(context.Background(), orgID, agent2ID, "+2")
		require.Error(t, err)
		assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
	})

	t.Run("agent unavailable when not idle", func(t *testing.T) {
		repos := newFakeRepoManager()
		orgID, agentID := seedOrgAndAgent(repos, 5)
		repos.agts[agentID].Status = domain.AgentStatusBusy
		reg := NewRegistry(repos, nil, nil)

		_, err := reg.Open(context.Background(), orgID, agentID, "+1")
		require.Error(t, err)
		assert.Equal(t, apperr.KindAgentUnavailable, apperr.KindOf(err))
	})

	t.Run("unknown org returns not found, not forbidden", func(t *testing.T) {
		repos := newFakeRepoManager()
		reg := NewRegistry(repos, nil, nil)

		_, err := reg.Open(context.Background(), "missing-org", "missing-agent", "+1")
		require.Error(t, err)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("cross-tenant agent id returns not found", func(t *testing.T) {
		repos := newFakeRepoManager()
		orgID, _ := seedOrgAndAgent(repos, 5)
		_, otherAgentID := seedOrgAndAgent(repos, 5)
		reg := NewRegistry(repos, nil, nil)

		_, err := reg.Open(context.Background(), orgID, otherAgentID, "+1")
		require.Error(t, err)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestRegistryGetAndClose(t *testing.T) {
	t.Run("get is scoped to the opening org", func(t *testing.T) {
		repos := newFakeRepoManager()
		orgID, agentID := seedOrgAndAgent(repos, 2)
		reg := NewRegistry(repos, nil, nil)

		sess, err := reg.Open(context.Background(), orgID, agentID, "+1")
		require.NoError(t, err)

		_, err = reg.Get("some-other-org", sess.CallID)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

		found, err := reg.Get(orgID, sess.CallID)
		require.NoError(t, err)
		assert.Same(t, sess, found)
	})

	t.Run("close releases the agent and removes the session", func(t *testing.T) {
		repos := newFakeRepoManager()
		orgID, agentID := seedOrgAndAgent(repos, 2)
		reg := NewRegistry(repos, nil, nil)

		sess, err := reg.Open(context.Background(), orgID, agentID, "+1")
		require.NoError(t, err)

		closeHookRan := false
		sess.OnClose(func() { closeHookRan = true })

		require.NoError(t, reg.Close(context.Background(), orgID, sess.CallID, "caller_hangup"))

		assert.True(t, closeHookRan)
		assert.Equal(t, domain.AgentStatusIdle, repos.agts[agentID].Status)
		assert.Equal(t, domain.CallStatusEnded, repos.calls[sess.CallID].Status)
		assert.Equal(t, 0, reg.Count())

		_, err = reg.Get(orgID, sess.CallID)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("duplicate close of an already-closed call is a no-op success", func(t *testing.T) {
		repos := newFakeRepoManager()
		reg := NewRegistry(repos, nil, nil)
		err := reg.Close(context.Background(), "org", "no-such-call", "caller_hangup")
		assert.NoError(t, err)
	})
}

func TestRegistryCloseAll(t *testing.T) {
	repos := newFakeRepoManager()
	orgID, agentID := seedOrgAndAgent(repos, 5)
	agent2ID := agentID + "-2"
	repos.agts[agent2ID] = &domain.Agent{ID: agent2ID, OrgID: orgID, Status: domain.AgentStatusIdle}
	reg := NewRegistry(repos, nil, nil)

	_, err := reg.Open(context.Background(), orgID, agentID, "+1")
	require.NoError(t, err)
	_, err = reg.Open(context.Background(), orgID, agent2ID, "+2")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Count())

	reg.CloseAll(context.Background(), "shutdown")
	assert.Equal(t, 0, reg.Count())
}
