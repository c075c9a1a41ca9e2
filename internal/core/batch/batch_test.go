package batch

import (
	"context"
	"testing"

	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecordingStore struct {
	recordings map[string]*domain.Recording
	lastReplace domain.Metadata
}

func (f *fakeRecordingStore) ListUnprocessed(ctx context.Context, orgID string, limit int) ([]*domain.Recording, error) {
	var out []*domain.Recording
	for _, r := range f.recordings {
		if r.OrgID == orgID && !r.Processed {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecordingStore) GetRecording(ctx context.Context, orgID, id string) (*domain.Recording, error) {
	r, ok := f.recordings[id]
	if !ok || r.OrgID != orgID {
		return nil, assertErr{}
	}
	return r, nil
}

func (f *fakeRecordingStore) ReplaceMetadata(ctx context.Context, orgID, id string, newMetadata domain.Metadata) (*domain.Recording, error) {
	r, ok := f.recordings[id]
	if !ok || r.OrgID != orgID {
		return nil, assertErr{}
	}
	f.lastReplace = newMetadata
	r.Metadata = newMetadata
	r.Processed = true
	return r, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "not found" }

func TestServiceDelegatesToStore(t *testing.T) {
	store := &fakeRecordingStore{recordings: map[string]*domain.Recording{
		"rec-1": {ID: "rec-1", OrgID: "org-1", Processed: false},
	}}
	svc := New(store)

	recs, err := svc.ListUnprocessed(context.Background(), "org-1", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	rec, err := svc.GetRecording(context.Background(), "org-1", "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", rec.ID)

	updated, err := svc.ReplaceMetadata(context.Background(), "org-1", "rec-1", domain.Metadata{})
	require.NoError(t, err)
	assert.True(t, updated.Processed)
}

func TestServiceGetRecordingRejectsWrongOrg(t *testing.T) {
	store := &fakeRecordingStore{recordings: map[string]*domain.Recording{
		"rec-1": {ID: "rec-1", OrgID: "org-1"},
	}}
	svc := New(store)
	_, err := svc.GetRecording(context.Background(), "org-2", "rec-1")
	assert.Error(t, err)
}
