// Package storage implements the Recording & Metadata Store (C12): the
// dual local/object-store write of a Call's audio, canonical Metadata, and
// transcript artifact (spec.md §4.11, §6). Generalized from the teacher's
// internal/storage/audio.go local/GCS AudioCacheService split (same
// StorageType enum, same cleanup-ticker idiom for stale temp state), with
// the teacher's WhatsApp-specific RTP-channel capture and ffmpeg channel
// merge dropped: this store receives already-assembled audio bytes from the
// Session rather than raw per-channel RTP packets requiring offline
// merging, so that machinery has no equivalent here (see DESIGN.md).
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
	"github.com/astra-cc/orchestrator/pkg/logger"
)

// Backend names spec.md §4.11's storage backend choices.
const (
	BackendLocal  = "local"
	BackendObject = "object"
	BackendDual   = "dual"
)

// ObjectPutter is the remote half of a dual-write (pkg/objectstore.Client
// satisfies it).
type ObjectPutter interface {
	Put(ctx context.Context, objectPath string, data []byte) error
	Delete(ctx context.Context, objectPath string) error
}

// Artifact is one Call's recording inputs, already assembled by the
// Session's close path.
type Artifact struct {
	ConversationID string
	OrgID          string
	Direction      domain.Direction
	Audio          []byte
	AudioFormat    string
	SampleRate     int
	DurationSeconds float64
	Transcript     []byte // a serialized transcript artifact, opaque to the store
	Metadata       domain.Metadata
}

// Store is the Recording & Metadata Store (C12).
type Store struct {
	backend          string
	localPath        string
	obj              ObjectPutter
	writeRetryWindow time.Duration
	repo             repository.RecordingRepository

	mu      sync.Mutex
	pending []pendingRemoteWrite
	done    chan struct{}
}

type pendingRemoteWrite struct {
	path string
	data []byte
}

// New builds a Store from its configuration, an optional object-store
// client (nil when backend is "local"), and the Recording repository.
func New(cfg config.StorageConfig, obj ObjectPutter, repo repository.RecordingRepository) *Store {
	s := &Store{
		backend:          cfg.Backend,
		localPath:        cfg.LocalPath,
		obj:              obj,
		writeRetryWindow: cfg.WriteRetryWindow,
		repo:             repo,
		done:             make(chan struct{}),
	}
	if s.backend == BackendDual {
		go s.retryLoop()
	}
	return s
}

// Close stops the dual-write retry loop.
func (s *Store) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func audioPath(convID, recID string) string {
	return filepath.Join("recordings", convID, recID+".wav")
}
func metadataPath(convID, recID string) string {
	return filepath.Join("recordings", convID, recID+"_metadata.json")
}
func transcriptPath(convID, recID string) string {
	return filepath.Join("transcripts", convID, recID+"_transcript.json")
}

// Persist writes the audio blob, the canonical Metadata, and the transcript
// artifact for one Call, then creates the Recording row (spec.md §4.11: "the
// Metadata is written after the audio blob, and the writer exposes the
// recording only when both exist. If either write fails, both are deleted").
// The Recording row is the exposure chokepoint: it is created last, and only
// once every artifact write that was attempted succeeded.
func (s *Store) Persist(ctx context.Context, a Artifact) (*domain.Recording, error) {
	recID := uuid.NewString()
	checksum := sha256.Sum256(a.Audio)
	checksumHex := hex.EncodeToString(checksum[:])

	a.Metadata.RecordingID = recID
	a.Metadata.ConversationID = a.ConversationID
	a.Metadata.OrgID = a.OrgID
	a.Metadata.Direction = a.Direction
	a.Metadata.Timestamp = time.Now().UTC().Format(time.RFC3339)
	a.Metadata.Audio = domain.AudioDescriptor{
		Format:          a.AudioFormat,
		SampleRate:      a.SampleRate,
		DurationSeconds: a.DurationSeconds,
		FileSizeBytes:   int64(len(a.Audio)),
		ChecksumSHA256:  checksumHex,
	}
	if !a.Metadata.Processed && a.Metadata.ProcessingMode == "" {
		a.Metadata.ProcessingMode = domain.ProcessingModeOnline
	}

	metadataJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal metadata: %w", err)
	}

	relAudio := audioPath(a.ConversationID, recID)
	relMeta := metadataPath(a.ConversationID, recID)
	relTranscript := transcriptPath(a.ConversationID, recID)

	written, err := s.writeArtifacts(ctx, relAudio, a.Audio, relMeta, metadataJSON, relTranscript, a.Transcript)
	if err != nil {
		s.cleanup(ctx, written)
		return nil, err
	}

	rec := &domain.Recording{
		ID:             recID,
		ConversationID: a.ConversationID,
		OrgID:          a.OrgID,
		Direction:      a.Direction,
		AudioPath:      relAudio,
		MetadataPath:   relMeta,
		ChecksumSHA256: checksumHex,
		Processed:      a.Metadata.Processed,
		ProcessingMode: a.Metadata.ProcessingMode,
		Metadata:       a.Metadata,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		s.cleanup(ctx, written)
		return nil, err
	}
	return rec, nil
}

// writeArtifacts writes audio, then metadata, then the transcript, in that
// order (spec.md §4.11: audio before metadata). It returns every relative
// path it wrote, also when it returns an error, and deletes nothing itself:
// the caller removes those paths on any failure.
func (s *Store) writeArtifacts(ctx context.Context, relAudio string, audio []byte, relMeta string, metadata []byte, relTranscript string, transcript []byte) ([]string, error) {
	var written []string

	if err := s.write(ctx, relAudio, audio); err != nil {
		return written, fmt.Errorf("storage: write audio: %w", err)
	}
	written = append(written, relAudio)

	if err := s.write(ctx, relMeta, metadata); err != nil {
		return written, fmt.Errorf("storage: write metadata: %w", err)
	}
	written = append(written, relMeta)

	if len(transcript) > 0 {
		if err := s.write(ctx, relTranscript, transcript); err != nil {
			return written, fmt.Errorf("storage: write transcript: %w", err)
		}
		written = append(written, relTranscript)
	}

	return written, nil
}

// write persists one artifact to every backend the configuration names. A
// local write failure is always fatal. A remote write failure is fatal only
// when backend is object-only; under dual-write the local copy is
// authoritative and the remote write is retried asynchronously (spec.md
// §4.11: "the remote copy is best-effort with asynchronous retry").
func (s *Store) write(ctx context.Context, relPath string, data []byte) error {
	if s.backend == BackendLocal || s.backend == BackendDual {
		if err := s.writeLocal(relPath, data); err != nil {
			return err
		}
	}

	if s.backend == BackendObject {
		if s.obj == nil {
			return fmt.Errorf("storage: object backend configured without a client")
		}
		if err := s.obj.Put(ctx, relPath, data); err != nil {
			return err
		}
	} else if s.backend == BackendDual && s.obj != nil {
		if err := s.obj.Put(ctx, relPath, data); err != nil {
			logger.Base().Warn("object-store write failed, queued for retry",
				zap.String("path", relPath), zap.Error(err))
			s.enqueueRetry(relPath, data)
		}
	}

	return nil
}

// writeLocal writes to a temp file in the same directory then renames over
// the final path, so a reader never observes a partially written file.
func (s *Store) writeLocal(relPath string, data []byte) error {
	fullPath := filepath.Join(s.localPath, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("storage: create directory: %w", err)
	}

	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: write temp file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("storage: rename into place: %w", err)
	}
	return nil
}

// cleanup deletes every artifact already written when a later step in
// Persist fails (spec.md §4.11: "cleanup on all exit paths").
func (s *Store) cleanup(ctx context.Context, relPaths []string) {
	for _, rel := range relPaths {
		if s.backend == BackendLocal || s.backend == BackendDual {
			_ = os.Remove(filepath.Join(s.localPath, rel))
		}
		if s.obj != nil {
			_ = s.obj.Delete(ctx, rel)
		}
	}
}

func (s *Store) enqueueRetry(path string, data []byte) {
	s.mu.Lock()
	s.pending = append(s.pending, pendingRemoteWrite{path: path, data: data})
	s.mu.Unlock()
}

// retryLoop periodically retries queued remote writes until they succeed or
// the Store is closed.
func (s *Store) retryLoop() {
	ticker := time.NewTicker(s.writeRetryWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.drainRetryQueue()
		case <-s.done:
			return
		}
	}
}

func (s *Store) drainRetryQueue() {
	s.mu.Lock()
	items := s.pending
	s.pending = nil
	s.mu.Unlock()

	var stillPending []pendingRemoteWrite
	for _, item := range items {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := s.obj.Put(ctx, item.path, item.data)
		cancel()
		if err != nil {
			stillPending = append(stillPending, item)
		}
	}

	if len(stillPending) > 0 {
		s.mu.Lock()
		s.pending = append(s.pending, stillPending...)
		s.mu.Unlock()
	}
}

// GetRecording returns one Recording, tenant-scoped (spec.md §4.12:
// "get_recording(org, id)").
func (s *Store) GetRecording(ctx context.Context, orgID, id string) (*domain.Recording, error) {
	return s.repo.GetByID(ctx, orgID, id)
}

// ListUnprocessed returns Recordings awaiting offline enrichment for one
// tenant (spec.md §4.12: "list_unprocessed(org, limit)").
func (s *Store) ListUnprocessed(ctx context.Context, orgID string, limit int) ([]*domain.Recording, error) {
	recs, err := s.repo.ListUnprocessed(ctx, limit)
	if err != nil {
		return nil, err
	}
	scoped := make([]*domain.Recording, 0, len(recs))
	for _, r := range recs {
		if r.OrgID == orgID {
			scoped = append(scoped, r)
		}
	}
	return scoped, nil
}

// ReplaceMetadata overwrites one Recording's Metadata in place, re-writing
// the metadata artifact and the database row together (spec.md §4.12:
// "replace_metadata(org, id, new_metadata)").
func (s *Store) ReplaceMetadata(ctx context.Context, orgID, id string, newMetadata domain.Metadata) (*domain.Recording, error) {
	rec, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	metadataJSON, err := json.Marshal(newMetadata)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal metadata: %w", err)
	}
	if err := s.write(ctx, rec.MetadataPath, metadataJSON); err != nil {
		return nil, apperr.DependencyFailure("replace recording metadata", err)
	}

	return s.repo.Update(ctx, orgID, id, func(r *domain.Recording) error {
		r.Metadata = newMetadata
		r.Processed = newMetadata.Processed
		r.ProcessingMode = newMetadata.ProcessingMode
		return nil
	})
}
