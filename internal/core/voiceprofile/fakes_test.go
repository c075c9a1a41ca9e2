package voiceprofile

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
)

// fakeRepoManager is an in-memory repository.RepositoryManager double.
// Organizations/Agents/Calls are functional (needed to open a Session via
// session.Registry); VoiceProfiles is functional (the package under test);
// every other accessor panics if exercised.
type fakeRepoManager struct {
	mu       sync.Mutex
	orgs     map[string]*domain.Organization
	agts     map[string]*domain.Agent
	calls    map[string]*domain.Call
	profiles map[string]*domain.VoiceProfile
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		orgs:     map[string]*domain.Organization{},
		agts:     map[string]*domain.Agent{},
		calls:    map[string]*domain.Call{},
		profiles: map[string]*domain.VoiceProfile{},
	}
}

func (f *fakeRepoManager) Organizations() repository.OrganizationRepository { return &fakeOrgRepo{f} }
func (f *fakeRepoManager) Agents() repository.AgentRepository               { return &fakeAgentRepo{f} }
func (f *fakeRepoManager) Calls() repository.CallRepository                 { return &fakeCallRepo{f} }
func (f *fakeRepoManager) VoiceProfiles() repository.VoiceProfileRepository {
	return &fakeVoiceProfileRepo{f}
}

func (f *fakeRepoManager) ApiTokens() repository.ApiTokenRepository             { panic("not used") }
func (f *fakeRepoManager) ContextProfiles() repository.ContextProfileRepository { panic("not used") }
func (f *fakeRepoManager) Turns() repository.TurnRepository                     { panic("not used") }
func (f *fakeRepoManager) Recordings() repository.RecordingRepository          { panic("not used") }
func (f *fakeRepoManager) CallEvents() repository.CallEventRepository         { panic("not used") }
func (f *fakeRepoManager) Webhooks() repository.WebhookRepository             { panic("not used") }
func (f *fakeRepoManager) WebhookDeliveries() repository.WebhookDeliveryRepository {
	panic("not used")
}
func (f *fakeRepoManager) Dictionary() repository.DictionaryRepository { panic("not used") }
func (f *fakeRepoManager) QA() repository.QARepository                 { panic("not used") }

func (f *fakeRepoManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos repository.RepositoryManager) error) error {
	return fn(ctx, f)
}
func (f *fakeRepoManager) Ping(ctx context.Context) error { return nil }
func (f *fakeRepoManager) Close() error                   { return nil }

type fakeOrgRepo struct{ f *fakeRepoManager }

func (r *fakeOrgRepo) Create(ctx context.Context, org *domain.Organization) error { panic("not used") }

func (r *fakeOrgRepo) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	org, ok := r.f.orgs[id]
	if !ok {
		return nil, apperr.NotFound("organization not found")
	}
	return org, nil
}

func (r *fakeOrgRepo) Update(ctx context.Context, id string, fn func(*domain.Organization) error) (*domain.Organization, error) {
	panic("not used")
}

func (r *fakeOrgRepo) List(ctx context.Context, includeInactive bool) ([]*domain.Organization, error) {
	panic("not used")
}

type fakeAgentRepo struct{ f *fakeRepoManager }

func (r *fakeAgentRepo) Create(ctx context.Context, req *domain.CreateAgentRequest) (*domain.Agent, error) {
	panic("not used")
}

func (r *fakeAgentRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Agent, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	a, ok := r.f.agts[id]
	if !ok || a.OrgID != orgID {
		return nil, apperr.NotFound("agent not found")
	}
	return a, nil
}

func (r *fakeAgentRepo) Update(ctx context.Context, orgID, id string, req *domain.UpdateAgentRequest) (*domain.Agent, error) {
	panic("not used")
}

func (r *fakeAgentRepo) ListByOrg(ctx context.Context, orgID string) ([]*domain.Agent, error) {
	panic("not used")
}

func (r *fakeAgentRepo) SetStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	a, ok := r.f.agts[id]
	if !ok {
		return apperr.NotFound("agent not found")
	}
	a.Status = status
	return nil
}

func (r *fakeAgentRepo) CountActiveByOrg(ctx context.Context, orgID string) (int64, error) {
	panic("not used")
}

type fakeCallRepo struct{ f *fakeRepoManager }

func (r *fakeCallRepo) Create(ctx context.Context, call *domain.Call) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.calls[call.ID] = call
	return nil
}

func (r *fakeCallRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Call, error) {
	panic("not used")
}

func (r *fakeCallRepo) Update(ctx context.Context, orgID, id string, fn func(*domain.Call) error) (*domain.Call, error) {
	panic("not used")
}

func (r *fakeCallRepo) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*domain.Call, error) {
	panic("not used")
}

func (r *fakeCallRepo) CountActiveByOrg(ctx context.Context, orgID string) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var n int64
	for _, c := range r.f.calls {
		if c.OrgID == orgID && c.Status == domain.CallStatusActive {
			n++
		}
	}
	return n, nil
}

func (r *fakeCallRepo) Summary(ctx context.Context, orgID string) (*domain.CallSummary, error) {
	panic("not used")
}

type fakeVoiceProfileRepo struct{ f *fakeRepoManager }

func (r *fakeVoiceProfileRepo) Create(ctx context.Context, vp *domain.VoiceProfile) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, exists := r.f.profiles[vp.CallID]; exists {
		return apperr.InvariantViolation("voice profile already exists for call")
	}
	r.f.profiles[vp.CallID] = vp
	return nil
}

func (r *fakeVoiceProfileRepo) GetByCallID(ctx context.Context, orgID, callID string) (*domain.VoiceProfile, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	vp, ok := r.f.profiles[callID]
	if !ok || vp.OrgID != orgID {
		return nil, apperr.NotFound("voice profile not found")
	}
	return vp, nil
}

func seedOrgAndAgent(f *fakeRepoManager, maxConcurrent int) (orgID, agentID string) {
	orgID = uuid.New().String()
	agentID = uuid.New().String()
	f.orgs[orgID] = &domain.Organization{
		ID: orgID, Name: "acme", Active: true,
		MaxAgents: 5, MaxConcurrentCalls: maxConcurrent,
	}
	f.agts[agentID] = &domain.Agent{
		ID: agentID, OrgID: orgID, Name: "agent-1", Status: domain.AgentStatusIdle,
	}
	return orgID, agentID
}
