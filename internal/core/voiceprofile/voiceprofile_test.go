package voiceprofile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-cc/orchestrator/internal/core/session"
	"github.com/astra-cc/orchestrator/internal/domain"
)

func openTestSession(t *testing.T, repos *fakeRepoManager) (*session.Registry, *session.Session) {
	t.Helper()
	orgID, agentID := seedOrgAndAgent(repos, 5)
	reg := session.NewRegistry(repos, nil, nil)
	sess, err := reg.Open(context.Background(), orgID, agentID, "+15550001111")
	require.NoError(t, err)
	return reg, sess
}

func fakeEmbedding() []float32 {
	return make([]float32, domain.VoiceProfileDimension)
}

func TestStoreCreatePersistsAndAttaches(t *testing.T) {
	repos := newFakeRepoManager()
	_, sess := openTestSession(t, repos)
	store := New(repos)

	vp, err := store.Create(context.Background(), sess, fakeEmbedding())
	require.NoError(t, err)
	assert.Equal(t, sess.CallID, vp.CallID)
	assert.Equal(t, sess.OrgID, vp.OrgID)
	assert.Same(t, vp, sess.GetVoiceProfile())

	persisted, err := repos.VoiceProfiles().GetByCallID(context.Background(), sess.OrgID, sess.CallID)
	require.NoError(t, err)
	assert.Equal(t, vp.ID, persisted.ID)
}

func TestStoreCreateIsIdempotentPerCall(t *testing.T) {
	repos := newFakeRepoManager()
	_, sess := openTestSession(t, repos)
	store := New(repos)

	first, err := store.Create(context.Background(), sess, fakeEmbedding())
	require.NoError(t, err)

	second, err := store.Create(context.Background(), sess, fakeEmbedding())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestStoreCreateRejectsWrongDimension(t *testing.T) {
	repos := newFakeRepoManager()
	_, sess := openTestSession(t, repos)
	store := New(repos)

	_, err := store.Create(context.Background(), sess, []float32{0.1, 0.2})
	assert.Error(t, err)
	assert.Nil(t, sess.GetVoiceProfile())
}

func TestStoreCreateClearsOnSessionClose(t *testing.T) {
	repos := newFakeRepoManager()
	reg, sess := openTestSession(t, repos)
	store := New(repos)

	_, err := store.Create(context.Background(), sess, fakeEmbedding())
	require.NoError(t, err)
	require.NotNil(t, sess.GetVoiceProfile())

	require.NoError(t, reg.Close(context.Background(), sess.OrgID, sess.CallID, "completed"))
	assert.Nil(t, sess.GetVoiceProfile())
}

func TestLookupReflectsSessionState(t *testing.T) {
	repos := newFakeRepoManager()
	_, sess := openTestSession(t, repos)
	store := New(repos)

	lookup := Lookup(sess)
	_, ok := lookup()
	assert.False(t, ok)

	embedding := fakeEmbedding()
	_, err := store.Create(context.Background(), sess, embedding)
	require.NoError(t, err)

	got, ok := lookup()
	assert.True(t, ok)
	assert.Equal(t, embedding, got)
}
