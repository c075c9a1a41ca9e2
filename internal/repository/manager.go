package repository

import (
	"context"

	"gorm.io/gorm"
)

// RepositoryManager combines every per-entity repository, grounded on the
// teacher's RepositoryManager, generalized from two hand-rolled accessors to
// the full set of entities this orchestrator persists.
type RepositoryManager interface {
	Organizations() OrganizationRepository
	ApiTokens() ApiTokenRepository
	Agents() AgentRepository
	ContextProfiles() ContextProfileRepository
	Calls() CallRepository
	Turns() TurnRepository
	VoiceProfiles() VoiceProfileRepository
	Recordings() RecordingRepository
	CallEvents() CallEventRepository
	Webhooks() WebhookRepository
	WebhookDeliveries() WebhookDeliveryRepository
	Dictionary() DictionaryRepository
	QA() QARepository

	WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error
	Ping(ctx context.Context) error
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM.
type GormRepositoryManager struct {
	db *gorm.DB

	organizations     *gormOrganizationRepository
	apiTokens         *gormApiTokenRepository
	agents            *gormAgentRepository
	contextProfiles   *gormContextProfileRepository
	calls             *gormCallRepository
	turns             *gormTurnRepository
	voiceProfiles     *gormVoiceProfileRepository
	recordings        *gormRecordingRepository
	callEvents        *gormCallEventRepository
	webhooks          *gormWebhookRepository
	webhookDeliveries *gormWebhookDeliveryRepository
	dictionary        *gormDictionaryRepository
	qa                *gormQARepository
}

// NewGormRepositoryManager wires every per-entity repository to the same
// *gorm.DB (or the transaction handle passed by WithTx).
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:                db,
		organizations:     &gormOrganizationRepository{db: db},
		apiTokens:         &gormApiTokenRepository{db: db},
		agents:            &gormAgentRepository{db: db},
		contextProfiles:   &gormContextProfileRepository{db: db},
		calls:             &gormCallRepository{db: db},
		turns:             &gormTurnRepository{db: db},
		voiceProfiles:     &gormVoiceProfileRepository{db: db},
		recordings:        &gormRecordingRepository{db: db},
		callEvents:        &gormCallEventRepository{db: db},
		webhooks:          &gormWebhookRepository{db: db},
		webhookDeliveries: &gormWebhookDeliveryRepository{db: db},
		dictionary:        &gormDictionaryRepository{db: db},
		qa:                &gormQARepository{db: db},
	}
}

func (m *GormRepositoryManager) Organizations() OrganizationRepository     { return m.organizations }
func (m *GormRepositoryManager) ApiTokens() ApiTokenRepository             { return m.apiTokens }
func (m *GormRepositoryManager) Agents() AgentRepository                   { return m.agents }
func (m *GormRepositoryManager) ContextProfiles() ContextProfileRepository { return m.contextProfiles }
func (m *GormRepositoryManager) Calls() CallRepository                     { return m.calls }
func (m *GormRepositoryManager) Turns() TurnRepository                     { return m.turns }
func (m *GormRepositoryManager) VoiceProfiles() VoiceProfileRepository     { return m.voiceProfiles }
func (m *GormRepositoryManager) Recordings() RecordingRepository           { return m.recordings }
func (m *GormRepositoryManager) CallEvents() CallEventRepository          { return m.callEvents }
func (m *GormRepositoryManager) Webhooks() WebhookRepository              { return m.webhooks }
func (m *GormRepositoryManager) WebhookDeliveries() WebhookDeliveryRepository {
	return m.webhookDeliveries
}
func (m *GormRepositoryManager) Dictionary() DictionaryRepository { return m.dictionary }
func (m *GormRepositoryManager) QA() QARepository                 { return m.qa }

// WithTx runs fn against a RepositoryManager bound to a single transaction.
func (m *GormRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewGormRepositoryManager(tx))
	})
}

// Ping checks the database connection.
func (m *GormRepositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
