package domain

import "time"

// CriticalWordCategory is one of the closed categories the online corrector
// applies confidence-threshold clarification to (spec.md §4.5).
type CriticalWordCategory string

const (
	CategoryNumbers            CriticalWordCategory = "numbers"
	CategoryDestructiveActions CriticalWordCategory = "destructive_actions"
	CategoryNegations          CriticalWordCategory = "negations"
	CategoryConfirmations      CriticalWordCategory = "confirmations"
)

// CorrectionDictionaryEntry is one misheard->canonical mapping. OrgID is the
// empty string for the global seed list; a non-empty OrgID overlays a
// tenant-specific mapping on top of the seed (spec.md §4.5 "tenant-scoped
// dictionary plus a global seed list").
type CorrectionDictionaryEntry struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrgID     string    `json:"org_id" gorm:"type:varchar(36);index"` // "" = global seed
	Misheard  string    `json:"misheard" gorm:"type:varchar(255);not null"`
	Canonical string    `json:"canonical" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (CorrectionDictionaryEntry) TableName() string { return "correction_dictionary_entries" }

// CriticalWordListEntry is one tenant-overridable critical word within a category.
type CriticalWordListEntry struct {
	ID       string               `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrgID    string               `json:"org_id" gorm:"type:varchar(36);index"` // "" = global default
	Category CriticalWordCategory `json:"category" gorm:"type:varchar(32);not null"`
	Word     string               `json:"word" gorm:"type:varchar(255);not null"`
}

func (CriticalWordListEntry) TableName() string { return "critical_word_list_entries" }
