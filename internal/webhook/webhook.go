// Package webhook implements the Webhook Dispatcher (C14): fan-out of
// lifecycle events to every Organization's active subscriptions, HMAC-signed
// the way the teacher's inbound Wati webhook handler verifies signatures
// (crypto/hmac, sha256, hex), applied here in the outbound direction, with
// durable per-subscription delivery rows (internal/repository's
// WebhookDeliveryRepository) driving spec.md §4.13's up-to-5-attempt
// exponential backoff.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/google/uuid"

	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/metrics"
	"github.com/astra-cc/orchestrator/internal/repository"
	"github.com/astra-cc/orchestrator/pkg/logger"
)

// Dispatcher fans incoming Call lifecycle events out to every Organization's
// matching active webhook subscriptions (spec.md §4.13).
type Dispatcher struct {
	client      *http.Client
	webhooks    repository.WebhookRepository
	deliveries  repository.WebhookDeliveryRepository
	sem         *semaphore.Weighted
	sweepPeriod time.Duration
	queueCap    int
	in          *metrics.Instruments

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // callID -> sentiment_alert limiter
	window   time.Duration
}

// New builds a Dispatcher from the process-wide worker cap and the
// sentiment_alert rate-limit window (spec.md §4.13: "one per call per 30s").
func New(cfg config.WebhookConfig, concurrency config.ConcurrencyConfig, webhooks repository.WebhookRepository, deliveries repository.WebhookDeliveryRepository, in *metrics.Instruments) *Dispatcher {
	return &Dispatcher{
		client:      &http.Client{Timeout: 10 * time.Second},
		webhooks:    webhooks,
		deliveries:  deliveries,
		sem:         semaphore.NewWeighted(int64(concurrency.WebhookWorkersPerProc)),
		sweepPeriod: 1 * time.Second,
		queueCap:    cfg.QueueCap,
		in:          in,
		limiters:    make(map[string]*rate.Limiter),
		window:      cfg.SentimentAlertWindow,
	}
}

// Publish enqueues one event for delivery to every active webhook the
// Organization has subscribed to eventType (spec.md §4.13: closed event set
// call_started, call_ended, turn_completed, interruption,
// transfer_requested, callback_scheduled, sentiment_alert, error).
// sentiment_alert is rate-limited to one per call per configured window
// before a delivery row is even created, so a suppressed alert never
// occupies a worker slot.
func (d *Dispatcher) Publish(ctx context.Context, orgID, callID string, eventType domain.WebhookEventType, data interface{}) error {
	if eventType == domain.WebhookEventSentimentAlert && !d.allowSentimentAlert(callID) {
		return nil
	}

	subs, err := d.webhooks.ListSubscribedTo(ctx, orgID, eventType)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	payload := domain.EventPayload{
		EventType:      eventType,
		ConversationID: callID,
		OrgID:          orgID,
		Data:           data,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	for _, wh := range subs {
		if !wh.Active {
			continue
		}
		if err := d.makeRoom(ctx, wh.ID); err != nil {
			logger.Base().Warn("webhook: failed to check/evict queue depth, enqueuing anyway",
				zap.String("webhook_id", wh.ID), zap.Error(err))
		}
		delivery := &domain.WebhookDelivery{
			ID:            uuid.NewString(),
			WebhookID:     wh.ID,
			OrgID:         orgID,
			EventPayload:  payload,
			NextAttemptAt: time.Now(),
			LastStatus:    domain.DeliveryStatusPending,
		}
		if err := d.deliveries.Create(ctx, delivery); err != nil {
			logger.Base().Error("webhook: enqueue delivery",
				zap.String("webhook_id", wh.ID), zap.Error(err))
		}
	}
	return nil
}

// makeRoom enforces the per-subscription FIFO queue cap (spec.md §4.13: "cap
// 1000; when full, oldest undelivered events are dropped and a
// webhook_dropped counter is incremented"), the same check-depth-then-drop
// pattern the STT Adapter (C5) applies to its per-call queue, ported here
// since deliveries are durable rows rather than an in-memory channel: the
// drop target is the oldest pending row instead of the newest arrival.
func (d *Dispatcher) makeRoom(ctx context.Context, webhookID string) error {
	if d.queueCap <= 0 {
		return nil
	}
	pending, err := d.deliveries.CountPending(ctx, webhookID)
	if err != nil {
		return err
	}
	if pending < int64(d.queueCap) {
		return nil
	}
	if err := d.deliveries.DeleteOldestOnePending(ctx, webhookID); err != nil {
		return err
	}
	logger.Base().Warn("webhook_dropped: subscription queue at capacity, dropped oldest pending delivery",
		zap.String("webhook_id", webhookID), zap.Int("queue_cap", d.queueCap))
	if d.in != nil {
		d.in.WebhooksDropped.Add(ctx, 1)
	}
	return nil
}

// allowSentimentAlert enforces at most one sentiment_alert per call per
// window using a per-call token bucket, cleared lazily (calls are short
// relative to process lifetime, so the limiter map is not actively pruned
// beyond Session teardown calling Forget).
func (d *Dispatcher) allowSentimentAlert(callID string) bool {
	d.mu.Lock()
	lim, ok := d.limiters[callID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(d.window), 1)
		d.limiters[callID] = lim
	}
	d.mu.Unlock()
	return lim.Allow()
}

// Forget drops a call's sentiment_alert limiter once the Call ends.
func (d *Dispatcher) Forget(callID string) {
	d.mu.Lock()
	delete(d.limiters, callID)
	d.mu.Unlock()
}

// Run sweeps due deliveries on sweepPeriod until ctx is cancelled, the
// worker-pool analogue of the TTS Streamer's (C10) per-call run loop but
// fanned across every pending delivery instead of one call's chunks.
func (d *Dispatcher) Run(ctx context.Context, batchSize int) {
	ticker := time.NewTicker(d.sweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep(ctx, batchSize)
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context, batchSize int) {
	due, err := d.deliveries.ListDue(ctx, time.Now(), batchSize)
	if err != nil {
		logger.Base().Error("webhook: list due deliveries", zap.Error(err))
		return
	}
	var wg sync.WaitGroup
	for _, delivery := range due {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func(delivery *domain.WebhookDelivery) {
			defer wg.Done()
			defer d.sem.Release(1)
			d.attempt(ctx, delivery)
		}(delivery)
	}
	wg.Wait()
}

// attempt delivers one WebhookDelivery, advancing it to delivered, a
// backed-off retry, or dead (spec.md §4.13: "up to 5 attempts, exponential
// backoff 1/5/25/125/625s, giving up after the last failure").
func (d *Dispatcher) attempt(ctx context.Context, delivery *domain.WebhookDelivery) {
	wh, err := d.webhooks.GetByID(ctx, delivery.OrgID, delivery.WebhookID)
	if err != nil {
		_ = d.deliveries.MarkDead(ctx, delivery.ID, fmt.Sprintf("webhook subscription gone: %v", err))
		return
	}

	body, err := json.Marshal(delivery.EventPayload)
	if err != nil {
		_ = d.deliveries.MarkDead(ctx, delivery.ID, fmt.Sprintf("marshal payload: %v", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		_ = d.deliveries.MarkDead(ctx, delivery.ID, fmt.Sprintf("build request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sign(wh.Secret, body))

	resp, err := d.client.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_ = d.deliveries.MarkDelivered(ctx, delivery.ID)
			return
		}
		err = fmt.Errorf("webhook responded %d", resp.StatusCode)
	}

	if delivery.AttemptCount+1 >= domain.MaxDeliveryAttempts {
		_ = d.deliveries.MarkDead(ctx, delivery.ID, err.Error())
		return
	}
	backoff := domain.DeliveryBackoff[delivery.AttemptCount]
	_ = d.deliveries.MarkRetry(ctx, delivery.ID, time.Now().Add(backoff), err.Error())
}

// Test records one synthetic event as a pending delivery row for wh and
// attempts it at once instead of waiting for the sweep ticker, for POST
// /webhooks/test/{id}. A failed attempt leaves the row scheduled for retry,
// so the sweep retries it like any other delivery.
func (d *Dispatcher) Test(ctx context.Context, wh *domain.Webhook) error {
	payload := domain.EventPayload{
		EventType:      domain.WebhookEventType("test"),
		ConversationID: "",
		OrgID:          wh.OrgID,
		Data:           map[string]string{"message": "this is a test delivery from the orchestrator"},
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	delivery := &domain.WebhookDelivery{
		ID:            uuid.NewString(),
		WebhookID:     wh.ID,
		OrgID:         wh.OrgID,
		EventPayload:  payload,
		NextAttemptAt: time.Now(),
		LastStatus:    domain.DeliveryStatusPending,
	}
	if err := d.deliveries.Create(ctx, delivery); err != nil {
		return err
	}
	d.attempt(ctx, delivery)
	return nil
}

// sign computes the hex HMAC-SHA256 signature the teacher's inbound Wati
// handler verifies, produced here instead of checked (spec.md §4.13:
// "X-Webhook-Signature: hex(HMAC_SHA256(secret, body))").
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
