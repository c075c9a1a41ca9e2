package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/metrics"
)

type fakeWebhookRepo struct {
	mu       sync.Mutex
	webhooks map[string]*domain.Webhook
}

func newFakeWebhookRepo(whs ...*domain.Webhook) *fakeWebhookRepo {
	r := &fakeWebhookRepo{webhooks: make(map[string]*domain.Webhook)}
	for _, wh := range whs {
		r.webhooks[wh.ID] = wh
	}
	return r
}

func (r *fakeWebhookRepo) Create(ctx context.Context, wh *domain.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[wh.ID] = wh
	return nil
}

func (r *fakeWebhookRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wh, ok := r.webhooks[id]
	if !ok || wh.OrgID != orgID {
		return nil, assertErr{}
	}
	return wh, nil
}

func (r *fakeWebhookRepo) Update(ctx context.Context, orgID, id string, fn func(*domain.Webhook) error) (*domain.Webhook, error) {
	wh, err := r.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(wh); err != nil {
		return nil, err
	}
	return wh, nil
}

func (r *fakeWebhookRepo) Delete(ctx context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.webhooks, id)
	return nil
}

func (r *fakeWebhookRepo) ListSubscribedTo(ctx context.Context, orgID string, event domain.WebhookEventType) ([]*domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Webhook
	for _, wh := range r.webhooks {
		if wh.OrgID != orgID || !wh.Active {
			continue
		}
		for _, e := range wh.Events {
			if e == event {
				out = append(out, wh)
				break
			}
		}
	}
	return out, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "not found" }

type fakeDeliveryRepo struct {
	mu         sync.Mutex
	deliveries map[string]*domain.WebhookDelivery
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{deliveries: make(map[string]*domain.WebhookDelivery)}
}

func (r *fakeDeliveryRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	r.deliveries[d.ID] = d
	return nil
}

func (r *fakeDeliveryRepo) ListDue(ctx context.Context, before time.Time, limit int) ([]*domain.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.WebhookDelivery
	for _, d := range r.deliveries {
		if d.LastStatus == domain.DeliveryStatusPending && !d.NextAttemptAt.After(before) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDeliveryRepo) MarkDelivered(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[id].LastStatus = domain.DeliveryStatusDelivered
	return nil
}

func (r *fakeDeliveryRepo) MarkRetry(ctx context.Context, id string, nextAttemptAt time.Time, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.deliveries[id]
	d.AttemptCount++
	d.NextAttemptAt = nextAttemptAt
	d.LastError = lastErr
	return nil
}

func (r *fakeDeliveryRepo) MarkDead(ctx context.Context, id string, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.deliveries[id]
	d.LastStatus = domain.DeliveryStatusDead
	d.LastError = lastErr
	return nil
}

func (r *fakeDeliveryRepo) CountPending(ctx context.Context, webhookID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, d := range r.deliveries {
		if d.WebhookID == webhookID && d.LastStatus == domain.DeliveryStatusPending {
			n++
		}
	}
	return n, nil
}

func (r *fakeDeliveryRepo) DeleteOldestOnePending(ctx context.Context, webhookID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldestID string
	for id, d := range r.deliveries {
		if d.WebhookID != webhookID || d.LastStatus != domain.DeliveryStatusPending {
			continue
		}
		if oldestID == "" || d.CreatedAt.Before(r.deliveries[oldestID].CreatedAt) {
			oldestID = id
		}
	}
	if oldestID == "" {
		return nil
	}
	delete(r.deliveries, oldestID)
	return nil
}

func testDispatcher(webhooks *fakeWebhookRepo, deliveries *fakeDeliveryRepo) *Dispatcher {
	return New(
		config.WebhookConfig{QueueCap: 1000, MaxAttempts: 5, SentimentAlertWindow: 30 * time.Second},
		config.ConcurrencyConfig{WebhookWorkersPerProc: 4},
		webhooks, deliveries, metrics.Default(),
	)
}

func TestPublishCreatesOneDeliveryPerSubscribedWebhook(t *testing.T) {
	wh := &domain.Webhook{ID: "wh-1", OrgID: "org-1", URL: "http://example.com", Active: true, Events: []domain.WebhookEventType{domain.WebhookEventCallStarted}}
	webhooks := newFakeWebhookRepo(wh)
	deliveries := newFakeDeliveryRepo()
	d := testDispatcher(webhooks, deliveries)

	err := d.Publish(context.Background(), "org-1", "call-1", domain.WebhookEventCallStarted, map[string]string{"x": "y"})
	require.NoError(t, err)
	assert.Len(t, deliveries.deliveries, 1)
}

func TestPublishSkipsUnsubscribedEventType(t *testing.T) {
	wh := &domain.Webhook{ID: "wh-1", OrgID: "org-1", URL: "http://example.com", Active: true, Events: []domain.WebhookEventType{domain.WebhookEventCallEnded}}
	webhooks := newFakeWebhookRepo(wh)
	deliveries := newFakeDeliveryRepo()
	d := testDispatcher(webhooks, deliveries)

	err := d.Publish(context.Background(), "org-1", "call-1", domain.WebhookEventCallStarted, nil)
	require.NoError(t, err)
	assert.Len(t, deliveries.deliveries, 0)
}

func TestPublishRateLimitsSentimentAlertPerCall(t *testing.T) {
	wh := &domain.Webhook{ID: "wh-1", OrgID: "org-1", URL: "http://example.com", Active: true, Events: []domain.WebhookEventType{domain.WebhookEventSentimentAlert}}
	webhooks := newFakeWebhookRepo(wh)
	deliveries := newFakeDeliveryRepo()
	d := testDispatcher(webhooks, deliveries)

	ctx := context.Background()
	require.NoError(t, d.Publish(ctx, "org-1", "call-1", domain.WebhookEventSentimentAlert, nil))
	require.NoError(t, d.Publish(ctx, "org-1", "call-1", domain.WebhookEventSentimentAlert, nil))
	assert.Len(t, deliveries.deliveries, 1)
}

func TestSweepMarksDeliveredOn200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Webhook-Signature"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wh := &domain.Webhook{ID: "wh-1", OrgID: "org-1", URL: server.URL, Secret: "shh", Active: true, Events: []domain.WebhookEventType{domain.WebhookEventCallStarted}}
	webhooks := newFakeWebhookRepo(wh)
	deliveries := newFakeDeliveryRepo()
	d := testDispatcher(webhooks, deliveries)

	ctx := context.Background()
	require.NoError(t, d.Publish(ctx, "org-1", "call-1", domain.WebhookEventCallStarted, nil))
	d.sweep(ctx, 10)

	for _, del := range deliveries.deliveries {
		assert.Equal(t, domain.DeliveryStatusDelivered, del.LastStatus)
	}
}

func TestSweepSchedulesRetryOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	wh := &domain.Webhook{ID: "wh-1", OrgID: "org-1", URL: server.URL, Secret: "shh", Active: true, Events: []domain.WebhookEventType{domain.WebhookEventCallStarted}}
	webhooks := newFakeWebhookRepo(wh)
	deliveries := newFakeDeliveryRepo()
	d := testDispatcher(webhooks, deliveries)

	ctx := context.Background()
	require.NoError(t, d.Publish(ctx, "org-1", "call-1", domain.WebhookEventCallStarted, nil))
	d.sweep(ctx, 10)

	for _, del := range deliveries.deliveries {
		assert.Equal(t, domain.DeliveryStatusPending, del.LastStatus)
		assert.Equal(t, 1, del.AttemptCount)
		assert.True(t, del.NextAttemptAt.After(time.Now()))
	}
}

func TestSweepMarksDeadAfterMaxAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	wh := &domain.Webhook{ID: "wh-1", OrgID: "org-1", URL: server.URL, Secret: "shh", Active: true, Events: []domain.WebhookEventType{domain.WebhookEventCallStarted}}
	webhooks := newFakeWebhookRepo(wh)
	deliveries := newFakeDeliveryRepo()
	d := testDispatcher(webhooks, deliveries)

	ctx := context.Background()
	require.NoError(t, d.Publish(ctx, "org-1", "call-1", domain.WebhookEventCallStarted, nil))

	var deliveryID string
	for id := range deliveries.deliveries {
		deliveryID = id
	}
	deliveries.deliveries[deliveryID].AttemptCount = domain.MaxDeliveryAttempts - 1

	d.sweep(ctx, 10)
	assert.Equal(t, domain.DeliveryStatusDead, deliveries.deliveries[deliveryID].LastStatus)
}

// TestPublishDropsOldestPendingWhenQueueIsAtCapacity exercises spec.md
// §4.13's per-subscription FIFO cap: once a webhook already has queue_cap
// pending deliveries, the next Publish must drop the oldest pending one
// rather than growing the queue past the cap.
func TestPublishDropsOldestPendingWhenQueueIsAtCapacity(t *testing.T) {
	wh := &domain.Webhook{ID: "wh-1", OrgID: "org-1", URL: "http://example.com", Active: true, Events: []domain.WebhookEventType{domain.WebhookEventCallStarted}}
	webhooks := newFakeWebhookRepo(wh)
	deliveries := newFakeDeliveryRepo()
	d := New(
		config.WebhookConfig{QueueCap: 2, MaxAttempts: 5, SentimentAlertWindow: 30 * time.Second},
		config.ConcurrencyConfig{WebhookWorkersPerProc: 4},
		webhooks, deliveries, metrics.Default(),
	)

	ctx := context.Background()
	var firstID string
	for i := 0; i < 2; i++ {
		require.NoError(t, d.Publish(ctx, "org-1", "call-1", domain.WebhookEventCallStarted, nil))
		time.Sleep(time.Millisecond)
	}
	require.Len(t, deliveries.deliveries, 2)
	for id := range deliveries.deliveries {
		firstID = id
		break
	}
	for id, del := range deliveries.deliveries {
		if del.CreatedAt.Before(deliveries.deliveries[firstID].CreatedAt) {
			firstID = id
		}
	}

	require.NoError(t, d.Publish(ctx, "org-1", "call-1", domain.WebhookEventCallStarted, nil))

	assert.Len(t, deliveries.deliveries, 2, "the queue must stay at its cap, not grow past it")
	_, stillThere := deliveries.deliveries[firstID]
	assert.False(t, stillThere, "the oldest pending delivery must have been dropped")
}
