// Package batch implements the Batch Job Enqueuer & Worker Contract (C13):
// the tenant-scoped surface (`list_unprocessed`, `get_recording`,
// `replace_metadata`, spec.md §4.12) a worker process drains, plus the
// hybrid correction, retranscription-trigger, and advanced-enrichment
// algorithms spec.md §4.12 names. The worker contract itself is implemented
// end to end by cmd/batchworker; this package is the library it calls.
package batch

import (
	"context"

	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/storage"
)

// RecordingStore is the subset of internal/storage.Store the Batch Job
// Enqueuer depends on.
type RecordingStore interface {
	ListUnprocessed(ctx context.Context, orgID string, limit int) ([]*domain.Recording, error)
	GetRecording(ctx context.Context, orgID, id string) (*domain.Recording, error)
	ReplaceMetadata(ctx context.Context, orgID, id string, newMetadata domain.Metadata) (*domain.Recording, error)
}

var _ RecordingStore = (*storage.Store)(nil)

// Service is the Batch Job Enqueuer (C13): the core-side surface a worker
// process polls and writes back through, all tenant-scoped.
type Service struct {
	store RecordingStore
}

// New builds a Service bound to the Recording & Metadata Store.
func New(store RecordingStore) *Service {
	return &Service{store: store}
}

// ListUnprocessed returns Recordings with processed=false for one tenant
// (spec.md §4.12: "list_unprocessed(org, limit)").
func (s *Service) ListUnprocessed(ctx context.Context, orgID string, limit int) ([]*domain.Recording, error) {
	return s.store.ListUnprocessed(ctx, orgID, limit)
}

// GetRecording returns one Recording, tenant-scoped (spec.md §4.12:
// "get_recording(org, id)").
func (s *Service) GetRecording(ctx context.Context, orgID, id string) (*domain.Recording, error) {
	return s.store.GetRecording(ctx, orgID, id)
}

// ReplaceMetadata writes back the worker's enrichment, tenant-scoped
// (spec.md §4.12: "replace_metadata(org, id, new_metadata)").
func (s *Service) ReplaceMetadata(ctx context.Context, orgID, id string, newMetadata domain.Metadata) (*domain.Recording, error) {
	return s.store.ReplaceMetadata(ctx, orgID, id, newMetadata)
}
