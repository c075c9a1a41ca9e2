package domain

import "time"

// QACriterion is one named, weighted dimension a Call's quality is scored
// against (the "qa" table spec.md §6 names; the rubric itself is not
// detailed in spec.md's data model, so it is kept as small as the routes it
// backs require: GET /api/v1/qa/criteria and GET|POST /api/v1/qa/evaluations).
type QACriterion struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrgID       string    `json:"org_id" gorm:"type:varchar(36);not null;index"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	Weight      float64   `json:"weight" gorm:"default:1"`
	Active      bool      `json:"active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (QACriterion) TableName() string { return "qa_criteria" }

// QAEvaluation scores one Call against the Organization's QACriteria.
type QAEvaluation struct {
	ID           string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrgID        string    `json:"org_id" gorm:"type:varchar(36);not null;index"`
	CallID       string    `json:"call_id" gorm:"type:varchar(36);not null;index"`
	EvaluatorID  string    `json:"evaluator_id,omitempty" gorm:"type:varchar(36)"`
	Scores       JSONB     `json:"scores" gorm:"type:jsonb"` // criterion_id -> score (0-1)
	OverallScore float64   `json:"overall_score"`
	Notes        string    `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (QAEvaluation) TableName() string { return "qa_evaluations" }

// CreateQAEvaluationRequest is the POST /api/v1/qa/evaluations body.
type CreateQAEvaluationRequest struct {
	CallID      string  `json:"call_id" validate:"required"`
	EvaluatorID string  `json:"evaluator_id,omitempty"`
	Scores      JSONB   `json:"scores" validate:"required"`
	Notes       string  `json:"notes,omitempty"`
}
