package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// CallRepository persists Call rows. Calls are created when a Session opens
// and closed when it ends (spec.md §4.1).
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Call, error)
	Update(ctx context.Context, orgID, id string, fn func(*domain.Call) error) (*domain.Call, error)
	ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*domain.Call, error)
	CountActiveByOrg(ctx context.Context, orgID string) (int64, error)
	Summary(ctx context.Context, orgID string) (*domain.CallSummary, error)
}

type gormCallRepository struct{ db *gorm.DB }

func (r *gormCallRepository) Create(ctx context.Context, call *domain.Call) error {
	if err := r.db.WithContext(ctx).Create(call).Error; err != nil {
		return apperr.DependencyFailure("create call", err)
	}
	return nil
}

func (r *gormCallRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Call, error) {
	var call domain.Call
	if err := r.db.WithContext(ctx).First(&call, "id = ? AND org_id = ?", id, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("call not found")
		}
		return nil, apperr.DependencyFailure("get call", err)
	}
	return &call, nil
}

func (r *gormCallRepository) Update(ctx context.Context, orgID, id string, fn func(*domain.Call) error) (*domain.Call, error) {
	call, err := r.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(call); err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Save(call).Error; err != nil {
		return nil, apperr.DependencyFailure("update call", err)
	}
	return call, nil
}

func (r *gormCallRepository) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*domain.Call, error) {
	var calls []*domain.Call
	q := r.db.WithContext(ctx).Where("org_id = ?", orgID).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&calls).Error; err != nil {
		return nil, apperr.DependencyFailure("list calls", err)
	}
	return calls, nil
}

func (r *gormCallRepository) CountActiveByOrg(ctx context.Context, orgID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Call{}).
		Where("org_id = ? AND status = ?", orgID, domain.CallStatusActive).Count(&count).Error; err != nil {
		return 0, apperr.DependencyFailure("count active calls", err)
	}
	return count, nil
}

// Summary aggregates CallEvent per-stage latencies and Turn sentiment/
// interruption data into the GET /api/v1/calls/metrics/summary response.
func (r *gormCallRepository) Summary(ctx context.Context, orgID string) (*domain.CallSummary, error) {
	var out domain.CallSummary

	if err := r.db.WithContext(ctx).Model(&domain.Call{}).
		Where("org_id = ?", orgID).Count(&out.TotalCalls).Error; err != nil {
		return nil, apperr.DependencyFailure("summary: count calls", err)
	}

	type stageAvg struct {
		Stage string
		Avg   float64
	}
	var stageAvgs []stageAvg
	if err := r.db.WithContext(ctx).Model(&domain.CallEvent{}).
		Select("stage, avg(latency_ms) as avg").
		Where("org_id = ?", orgID).Group("stage").Scan(&stageAvgs).Error; err != nil {
		return nil, apperr.DependencyFailure("summary: stage latency", err)
	}
	var total, totalN float64
	for _, s := range stageAvgs {
		switch s.Stage {
		case "stt":
			out.AvgSTTLatencyMs = s.Avg
		case "llm":
			out.AvgLLMLatencyMs = s.Avg
		case "tts":
			out.AvgTTSLatencyMs = s.Avg
		}
		total += s.Avg
		totalN++
	}
	if totalN > 0 {
		out.AvgTotalLatencyMs = total / totalN
	}

	var turnCount, interruptedCount int64
	if err := r.db.WithContext(ctx).Table("turns").
		Joins("JOIN calls ON calls.id = turns.call_id").
		Where("calls.org_id = ?", orgID).Count(&turnCount).Error; err != nil {
		return nil, apperr.DependencyFailure("summary: turn count", err)
	}
	if err := r.db.WithContext(ctx).Table("turns").
		Joins("JOIN calls ON calls.id = turns.call_id").
		Where("calls.org_id = ? AND turns.was_interrupted = ?", orgID, true).Count(&interruptedCount).Error; err != nil {
		return nil, apperr.DependencyFailure("summary: interruption count", err)
	}
	if turnCount > 0 {
		out.InterruptionRate = float64(interruptedCount) / float64(turnCount)
	}

	var avgSentiment float64
	if err := r.db.WithContext(ctx).Table("turns").
		Joins("JOIN calls ON calls.id = turns.call_id").
		Where("calls.org_id = ? AND turns.sentiment_score IS NOT NULL", orgID).
		Select("avg(turns.sentiment_score)").Scan(&avgSentiment).Error; err != nil {
		return nil, apperr.DependencyFailure("summary: avg sentiment", err)
	}
	out.AvgSentimentScore = avgSentiment

	return &out, nil
}
