// Command batchworker is the reference consumer of the Batch Job Enqueuer
// contract (spec.md §4.12): it polls every organization for unprocessed
// Recordings, re-runs the hybrid dictionary correction, estimates WER and
// retranscribes through the STT Adapter when the estimate is too high,
// classifies intent, extracts entities and topics, and writes the result
// back through replace_metadata with processed=true and
// processing_mode=offline. It deliberately lives outside the call's hot
// path, the way the teacher keeps one-off maintenance jobs out of
// cmd/server.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/core/batch"
	"github.com/astra-cc/orchestrator/internal/core/event"
	"github.com/astra-cc/orchestrator/internal/core/sentiment"
	"github.com/astra-cc/orchestrator/internal/core/stt"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
	"github.com/astra-cc/orchestrator/internal/storage"
	"github.com/astra-cc/orchestrator/pkg/logger"
	"github.com/astra-cc/orchestrator/pkg/objectstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if _, err := logger.Init(cfg.LogEnv); err != nil {
		logger.Base().Error("failed to initialize zap logger, falling back to std log")
	}
	log := logger.Base()

	repos, err := repository.NewRepositoryManager(repository.DatabaseConfig{DSN: cfg.DatabaseDSN})
	if err != nil {
		log.Fatal("batchworker: connect repository", zap.Error(err))
	}
	defer repos.Close()

	var obj storage.ObjectPutter
	if cfg.Storage.Backend == storage.BackendObject || cfg.Storage.Backend == storage.BackendDual {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := objectstore.New(ctx, cfg.Storage.ObjectBucket)
		cancel()
		if err != nil {
			log.Fatal("batchworker: connect object store", zap.Error(err))
		}
		defer client.Close()
		obj = client
	}

	store := storage.New(cfg.Storage, obj, repos.Recordings())
	defer store.Close()

	bus := event.NewEventBus()
	sttAdapter := stt.New(cfg.Concurrency, cfg.STT.BaseURL, bus)

	svc := batch.New(store)
	w := newWorker(cfg, repos, svc, sttAdapter, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("batchworker: starting", zap.Duration("poll_interval", cfg.Batch.PollInterval))
	w.Run(ctx)
	log.Info("batchworker: stopped")
}

// worker drains every organization's unprocessed Recording backlog on a
// fixed interval, the batch-enrichment analogue of the Webhook Dispatcher's
// (C14) worker-pool loop.
type worker struct {
	cfg        config.Config
	repos      repository.RepositoryManager
	svc        *batch.Service
	stt        *stt.Adapter
	log        *zap.Logger
	lexicon    sentiment.Lexicon
	dictionary map[string]*batch.HybridCorrector
}

func newWorker(cfg config.Config, repos repository.RepositoryManager, svc *batch.Service, sttAdapter *stt.Adapter, log *zap.Logger) *worker {
	return &worker{
		cfg:        cfg,
		repos:      repos,
		svc:        svc,
		stt:        sttAdapter,
		log:        log,
		lexicon:    sentiment.DefaultLexicon(),
		dictionary: make(map[string]*batch.HybridCorrector),
	}
}

// Run polls on cfg.Batch.PollInterval until ctx is cancelled, processing one
// full pass over every organization per tick.
func (w *worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Batch.PollInterval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *worker) tick(ctx context.Context) {
	orgs, err := w.repos.Organizations().List(ctx, false)
	if err != nil {
		w.log.Error("batchworker: list organizations", zap.Error(err))
		return
	}
	for _, org := range orgs {
		if ctx.Err() != nil {
			return
		}
		w.processOrg(ctx, org.ID)
	}
}

func (w *worker) processOrg(ctx context.Context, orgID string) {
	recs, err := w.svc.ListUnprocessed(ctx, orgID, w.cfg.Batch.BatchSize)
	if err != nil {
		w.log.Error("batchworker: list unprocessed", zap.String("org_id", orgID), zap.Error(err))
		return
	}
	if len(recs) == 0 {
		return
	}

	corrector, err := w.correctorFor(ctx, orgID)
	if err != nil {
		w.log.Error("batchworker: load dictionary", zap.String("org_id", orgID), zap.Error(err))
		return
	}

	for _, rec := range recs {
		if err := w.enrich(ctx, rec, corrector); err != nil {
			w.log.Error("batchworker: enrich recording",
				zap.String("org_id", orgID), zap.String("recording_id", rec.ID), zap.Error(err))
		}
	}
}

// correctorFor lazily builds and caches one HybridCorrector per
// organization from its merged global-plus-tenant dictionary (spec.md
// §4.5's "tenant-scoped dictionary plus a global seed list").
func (w *worker) correctorFor(ctx context.Context, orgID string) (*batch.HybridCorrector, error) {
	if c, ok := w.dictionary[orgID]; ok {
		return c, nil
	}
	entries, err := w.repos.Dictionary().ListCorrections(ctx, orgID)
	if err != nil {
		return nil, err
	}
	dictEntries := make([]batch.DictionaryEntry, len(entries))
	for i, e := range entries {
		dictEntries[i] = batch.DictionaryEntry{Misheard: e.Misheard, Canonical: e.Canonical}
	}
	c := batch.NewHybridCorrector(dictEntries)
	w.dictionary[orgID] = c
	return c, nil
}

// enrich runs one Recording through the full offline pipeline spec.md
// §4.12 point 2-3 names and writes the result back via replace_metadata.
func (w *worker) enrich(ctx context.Context, rec *domain.Recording, corrector *batch.HybridCorrector) error {
	meta := rec.Metadata

	correctedText, corrections := corrector.CorrectText(meta.Transcription.Text)
	wer := batch.EstimateWER(meta.Transcription.Text, correctedText)

	if wer > w.cfg.Corrector.OfflineWERThreshold {
		if retext, err := w.retranscribe(ctx, rec); err == nil && retext != "" {
			correctedText, corrections = corrector.CorrectText(retext)
		} else if err != nil {
			w.log.Warn("batchworker: retranscription unavailable, keeping corrected text",
				zap.String("recording_id", rec.ID), zap.Error(err))
		}
	}

	meta.Transcription.CorrectedText = correctedText
	meta.Transcription.CorrectionsMade = append(meta.Transcription.CorrectionsMade, corrections...)
	meta.Transcription.CorrectionMethod = "offline"

	fused := sentiment.Score(w.lexicon, correctedText, nil)
	meta.Sentiment = domain.SentimentBlock{
		Label:      fused.Label,
		Score:      fused.Score,
		Confidence: fused.Confidence,
	}

	intent := batch.ClassifyIntent(correctedText)
	entities := batch.ExtractEntities(correctedText)
	topics := batch.ExtractTopics(correctedText)
	meta.Intent = &intent
	meta.Entities = &entities
	meta.Topics = &topics

	meta.Processed = true
	meta.ProcessingMode = domain.ProcessingModeOffline

	_, err := w.svc.ReplaceMetadata(ctx, rec.OrgID, rec.ID, meta)
	return err
}

// retranscribe reads the Recording's local audio copy and resubmits it to
// the STT Adapter, the offline analogue of the in-call path's initial
// transcription request. It only has a local copy to read when the storage
// backend is local or dual (spec.md's object-only backend has no
// equivalent local read path for the worker, so retranscription is skipped
// and logged for that case).
func (w *worker) retranscribe(ctx context.Context, rec *domain.Recording) (string, error) {
	if w.cfg.Storage.Backend == storage.BackendObject {
		w.log.Info("batchworker: object-only storage, skipping retranscription",
			zap.String("recording_id", rec.ID))
		return "", nil
	}

	audio, err := os.ReadFile(filepath.Join(w.cfg.Storage.LocalPath, rec.AudioPath))
	if err != nil {
		return "", err
	}

	type outcome struct {
		result *stt.Result
		err    error
	}
	done := make(chan outcome, 1)
	w.stt.Submit(ctx, stt.Request{
		CallID:           rec.ConversationID,
		Audio:            audio,
		EnableCorrection: false,
	}, func(res *stt.Result, err error) {
		done <- outcome{result: res, err: err}
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case o := <-done:
		if o.err != nil {
			return "", o.err
		}
		if o.result == nil {
			return "", nil
		}
		return o.result.Text, nil
	}
}
