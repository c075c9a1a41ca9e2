package handler

import (
	"context"
	"sync"
	"time"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

type fakeApiTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.ApiToken
}

func newFakeApiTokenRepo() *fakeApiTokenRepo {
	return &fakeApiTokenRepo{tokens: make(map[string]*domain.ApiToken)}
}

func (r *fakeApiTokenRepo) Create(ctx context.Context, tok *domain.ApiToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tok.TokenHash] = tok
	return nil
}

func (r *fakeApiTokenRepo) GetByHash(ctx context.Context, hash string) (*domain.ApiToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[hash]
	if !ok || !tok.Active {
		return nil, apperr.Unauthorized("unknown or revoked token")
	}
	return tok, nil
}

func (r *fakeApiTokenRepo) ListByOrg(ctx context.Context, orgID string) ([]*domain.ApiToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ApiToken
	for _, t := range r.tokens {
		if t.OrgID == orgID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeApiTokenRepo) Revoke(ctx context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.ID == id && t.OrgID == orgID {
			t.Active = false
			return nil
		}
	}
	return apperr.NotFound("api token not found")
}

func (r *fakeApiTokenRepo) TouchLastUsed(ctx context.Context, id string) error { return nil }

type fakeOrgRepo struct {
	mu   sync.Mutex
	orgs map[string]*domain.Organization
}

func newFakeOrgRepo(orgs ...*domain.Organization) *fakeOrgRepo {
	m := make(map[string]*domain.Organization)
	for _, o := range orgs {
		m[o.ID] = o
	}
	return &fakeOrgRepo{orgs: m}
}

func (r *fakeOrgRepo) Create(ctx context.Context, org *domain.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[org.ID] = org
	return nil
}

func (r *fakeOrgRepo) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	org, ok := r.orgs[id]
	if !ok {
		return nil, apperr.NotFound("organization not found")
	}
	return org, nil
}

func (r *fakeOrgRepo) Update(ctx context.Context, id string, fn func(*domain.Organization) error) (*domain.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	org, ok := r.orgs[id]
	if !ok {
		return nil, apperr.NotFound("organization not found")
	}
	if err := fn(org); err != nil {
		return nil, err
	}
	return org, nil
}

func (r *fakeOrgRepo) List(ctx context.Context, includeInactive bool) ([]*domain.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Organization
	for _, o := range r.orgs {
		if includeInactive || o.Active {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeAgentRepo struct {
	mu     sync.Mutex
	agents map[string]*domain.Agent
}

func newFakeAgentRepo(agents ...*domain.Agent) *fakeAgentRepo {
	m := make(map[string]*domain.Agent)
	for _, a := range agents {
		m[a.ID] = a
	}
	return &fakeAgentRepo{agents: m}
}

func (r *fakeAgentRepo) Create(ctx context.Context, req *domain.CreateAgentRequest) (*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent := &domain.Agent{
		ID:               "agent-new",
		OrgID:            req.OrgID,
		Name:             req.Name,
		Status:           domain.AgentStatusIdle,
		ContextProfileID: strPtrOrNil(req.ContextProfileID),
		RuntimeConfig:    req.RuntimeConfig,
	}
	r.agents[agent.ID] = agent
	return agent, nil
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *fakeAgentRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.OrgID != orgID {
		return nil, apperr.NotFound("agent not found")
	}
	return a, nil
}

func (r *fakeAgentRepo) Update(ctx context.Context, orgID, id string, req *domain.UpdateAgentRequest) (*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || a.OrgID != orgID {
		return nil, apperr.NotFound("agent not found")
	}
	if req.Name != nil {
		a.Name = *req.Name
	}
	return a, nil
}

func (r *fakeAgentRepo) ListByOrg(ctx context.Context, orgID string) ([]*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Agent
	for _, a := range r.agents {
		if a.OrgID == orgID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAgentRepo) SetStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.Status = status
	}
	return nil
}

func (r *fakeAgentRepo) CountActiveByOrg(ctx context.Context, orgID string) (int64, error) {
	return 0, nil
}

type fakeQARepo struct {
	mu       sync.Mutex
	criteria []*domain.QACriterion
	evals    []*domain.QAEvaluation
}

func (r *fakeQARepo) ListCriteria(ctx context.Context, orgID string) ([]*domain.QACriterion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.QACriterion
	for _, c := range r.criteria {
		if c.OrgID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeQARepo) CreateEvaluation(ctx context.Context, eval *domain.QAEvaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evals = append(r.evals, eval)
	return nil
}

func (r *fakeQARepo) ListEvaluations(ctx context.Context, orgID, callID string) ([]*domain.QAEvaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.QAEvaluation
	for _, e := range r.evals {
		if e.OrgID != orgID {
			continue
		}
		if callID != "" && e.CallID != callID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type fakeCallRepo struct {
	mu      sync.Mutex
	calls   map[string]*domain.Call
	summary *domain.CallSummary
}

func newFakeCallRepo(calls ...*domain.Call) *fakeCallRepo {
	m := make(map[string]*domain.Call)
	for _, c := range calls {
		m[c.ID] = c
	}
	return &fakeCallRepo{calls: m}
}

func (r *fakeCallRepo) Create(ctx context.Context, call *domain.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[call.ID] = call
	return nil
}

func (r *fakeCallRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok || c.OrgID != orgID {
		return nil, apperr.NotFound("call not found")
	}
	return c, nil
}

func (r *fakeCallRepo) Update(ctx context.Context, orgID, id string, fn func(*domain.Call) error) (*domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok || c.OrgID != orgID {
		return nil, apperr.NotFound("call not found")
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *fakeCallRepo) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Call
	for _, c := range r.calls {
		if c.OrgID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCallRepo) CountActiveByOrg(ctx context.Context, orgID string) (int64, error) {
	return 0, nil
}

func (r *fakeCallRepo) Summary(ctx context.Context, orgID string) (*domain.CallSummary, error) {
	if r.summary != nil {
		return r.summary, nil
	}
	return &domain.CallSummary{}, nil
}

type fakeWebhookRepo struct {
	mu       sync.Mutex
	webhooks map[string]*domain.Webhook
}

func newFakeWebhookRepo(webhooks ...*domain.Webhook) *fakeWebhookRepo {
	m := make(map[string]*domain.Webhook)
	for _, w := range webhooks {
		m[w.ID] = w
	}
	return &fakeWebhookRepo{webhooks: m}
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
		return nil, apperr.NotFound("webhook not found")
	}
	return wh, nil
}

func (r *fakeWebhookRepo) Update(ctx context.Context, orgID, id string, fn func(*domain.Webhook) error) (*domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wh, ok := r.webhooks[id]
	if !ok || wh.OrgID != orgID {
		return nil, apperr.NotFound("webhook not found")
	}
	if err := fn(wh); err != nil {
		return nil, err
	}
	return wh, nil
}

func (r *fakeWebhookRepo) Delete(ctx context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wh, ok := r.webhooks[id]
	if !ok || wh.OrgID != orgID {
		return apperr.NotFound("webhook not found")
	}
	delete(r.webhooks, wh.ID)
	return nil
}

func (r *fakeWebhookRepo) ListSubscribedTo(ctx context.Context, orgID string, event domain.WebhookEventType) ([]*domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Webhook
	for _, wh := range r.webhooks {
		if wh.OrgID != orgID {
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

type fakeWebhookDeliveryRepo struct {
	mu         sync.Mutex
	deliveries []*domain.WebhookDelivery
}

func (r *fakeWebhookDeliveryRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, d)
	return nil
}

func (r *fakeWebhookDeliveryRepo) ListDue(ctx context.Context, before time.Time, limit int) ([]*domain.WebhookDelivery, error) {
	return nil, nil
}

func (r *fakeWebhookDeliveryRepo) MarkDelivered(ctx context.Context, id string) error { return nil }

func (r *fakeWebhookDeliveryRepo) MarkRetry(ctx context.Context, id string, nextAttemptAt time.Time, lastErr string) error {
	return nil
}

func (r *fakeWebhookDeliveryRepo) MarkDead(ctx context.Context, id string, lastErr string) error {
	return nil
}

func (r *fakeWebhookDeliveryRepo) CountPending(ctx context.Context, webhookID string) (int64, error) {
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

func (r *fakeWebhookDeliveryRepo) DeleteOldestOnePending(ctx context.Context, webhookID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	oldest := -1
	for i, d := range r.deliveries {
		if d.WebhookID != webhookID || d.LastStatus != domain.DeliveryStatusPending {
			continue
		}
		if oldest == -1 || d.CreatedAt.Before(r.deliveries[oldest].CreatedAt) {
			oldest = i
		}
	}
	if oldest == -1 {
		return nil
	}
	r.deliveries = append(r.deliveries[:oldest], r.deliveries[oldest+1:]...)
	return nil
}
