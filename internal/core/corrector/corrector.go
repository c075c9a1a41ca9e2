// Package corrector implements the Online Corrector (C6): exact dictionary
// substitution plus critical-word clarification, applied under a hard
// per-segment latency budget while the call is live (spec.md §4.5). The
// seed-list loading idiom is grounded on MrWong99-glyphoxa's
// gopkg.in/yaml.v3 decoder usage (entity.LoadCampaignFromReader).
//
// Offline correction (vector nearest-neighbour, phonetic fallback,
// retranscription on high WER) is out of scope here; it belongs to the
// Batch Job Enqueuer's worker (C13).
package corrector

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/core/stt"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
)

// seedFile is the on-disk shape of the global correction seed list shipped
// alongside the binary (spec.md §4.5: "a global seed list").
type seedFile struct {
	Corrections   []seedCorrection   `yaml:"corrections"`
	CriticalWords []seedCriticalWord `yaml:"critical_words"`
}

type seedCorrection struct {
	Misheard  string `yaml:"misheard"`
	Canonical string `yaml:"canonical"`
}

type seedCriticalWord struct {
	Category string `yaml:"category"`
	Word     string `yaml:"word"`
}

type dictionarySnapshot struct {
	corrections   map[string]string
	criticalWords map[domain.CriticalWordCategory]map[string]bool
}

func emptySnapshot() *dictionarySnapshot {
	return &dictionarySnapshot{
		corrections:   make(map[string]string),
		criticalWords: make(map[domain.CriticalWordCategory]map[string]bool),
	}
}

// Cache is the process-wide global seed dictionary. It is read on every
// segment's hot path, so it is swapped atomically rather than locked
// (spec.md §4.5's 20ms budget leaves no room for lock contention).
type Cache struct {
	snapshot atomic.Pointer[dictionarySnapshot]
}

// NewCache builds an empty Cache; call LoadSeed to populate it.
func NewCache() *Cache {
	c := &Cache{}
	c.snapshot.Store(emptySnapshot())
	return c
}

// LoadSeed reads the YAML seed file at path and atomically replaces the
// Cache's snapshot, a copy-on-write reload safe to call while segments are
// being corrected concurrently.
func (c *Cache) LoadSeed(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("corrector: open seed file %q: %w", path, err)
	}
	defer f.Close()

	var sf seedFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		return fmt.Errorf("corrector: decode seed file %q: %w", path, err)
	}

	snap := emptySnapshot()
	for _, entry := range sf.Corrections {
		snap.corrections[normalize(entry.Misheard)] = entry.Canonical
	}
	for _, w := range sf.CriticalWords {
		cat := domain.CriticalWordCategory(w.Category)
		if snap.criticalWords[cat] == nil {
			snap.criticalWords[cat] = make(map[string]bool)
		}
		snap.criticalWords[cat][normalize(w.Word)] = true
	}

	c.snapshot.Store(snap)
	return nil
}

func (c *Cache) current() *dictionarySnapshot {
	snap := c.snapshot.Load()
	if snap == nil {
		return emptySnapshot()
	}
	return snap
}

// SessionDictionary is one Session's merged view of the global seed and its
// tenant's overrides, built once when the Session opens so the per-segment
// hot path never touches the repository (spec.md §4.5: "tenant-scoped
// dictionary plus a global seed list").
type SessionDictionary struct {
	corrections   map[string]string
	criticalWords map[domain.CriticalWordCategory]map[string]bool
}

// BuildSessionDictionary merges cache's current snapshot with orgID's rows
// from the repository. Repository rows win on conflict since they are
// applied last and may reflect a seed correction a tenant has since
// overridden.
func BuildSessionDictionary(ctx context.Context, cache *Cache, repos repository.RepositoryManager, orgID string) (*SessionDictionary, error) {
	snap := cache.current()
	sd := &SessionDictionary{
		corrections:   make(map[string]string, len(snap.corrections)),
		criticalWords: make(map[domain.CriticalWordCategory]map[string]bool, len(snap.criticalWords)),
	}
	for k, v := range snap.corrections {
		sd.corrections[k] = v
	}
	for cat, words := range snap.criticalWords {
		sd.criticalWords[cat] = make(map[string]bool, len(words))
		for w := range words {
			sd.criticalWords[cat][w] = true
		}
	}

	entries, err := repos.Dictionary().ListCorrections(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		sd.corrections[normalize(e.Misheard)] = e.Canonical
	}

	words, err := repos.Dictionary().ListCriticalWords(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, w := range words {
		if sd.criticalWords[w.Category] == nil {
			sd.criticalWords[w.Category] = make(map[string]bool)
		}
		sd.criticalWords[w.Category][normalize(w.Word)] = true
	}

	return sd, nil
}

func (sd *SessionDictionary) categoryOf(word string) (domain.CriticalWordCategory, bool) {
	for cat, words := range sd.criticalWords {
		if words[word] {
			return cat, true
		}
	}
	return "", false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ClarificationStrategy is one of the fixed prompt shapes a ClarificationRequest
// carries (spec.md §4.5).
type ClarificationStrategy string

const (
	StrategyExplicitConfirmation  ClarificationStrategy = "explicit_confirmation"
	StrategyFullRepeat            ClarificationStrategy = "full_repeat"
	StrategyImplicitClarification ClarificationStrategy = "implicit_clarification"
	StrategySpellOut              ClarificationStrategy = "spell_out"
)

// Correction is one misheard->canonical substitution applied to a segment.
type Correction struct {
	Original  string
	Corrected string
}

// Result is the outcome of one Correct call.
type Result struct {
	Words       []stt.Word
	Corrections []Correction

	NeedsClarification     bool
	ClarificationWord      string
	ClarificationCategory  domain.CriticalWordCategory
	Strategy               ClarificationStrategy
	Prompt                 string

	// BudgetExceeded reports that cfg.BudgetMs elapsed before every word
	// could be checked; whatever was corrected or flagged so far still
	// stands, it is just not guaranteed to be exhaustive.
	BudgetExceeded bool
}

// Corrector applies the Online Corrector's two in-scope mechanisms (spec.md
// §4.5) to one transcribed segment.
type Corrector struct {
	cfg config.CorrectorConfig
}

// New builds a Corrector from the configured thresholds and budget.
func New(cfg config.CorrectorConfig) *Corrector {
	return &Corrector{cfg: cfg}
}

// Correct substitutes every exact dictionary match in words, then checks for
// a critical-word clarification trigger, provided clarificationsAsked has not
// already reached max_clarifications_per_call (spec.md §4.5 edge case:
// "exactly at max_clarifications_per_call the next clarifying trigger is
// suppressed and the turn is committed"). Both passes stop early, leaving
// BudgetExceeded set, once cfg.BudgetMs has elapsed; this is enforced by
// elapsed-time checks rather than context cancellation since correction is
// pure in-process computation with nothing to cancel.
func (c *Corrector) Correct(dict *SessionDictionary, words []stt.Word, clarificationsAsked int) *Result {
	start := time.Now()
	budget := time.Duration(c.cfg.BudgetMs) * time.Millisecond

	out := make([]stt.Word, len(words))
	copy(out, words)
	res := &Result{Words: out}

	for i := range out {
		if time.Since(start) > budget {
			res.BudgetExceeded = true
			return res
		}
		key := normalize(out[i].Word)
		if canonical, ok := dict.corrections[key]; ok && canonical != out[i].Word {
			res.Corrections = append(res.Corrections, Correction{Original: out[i].Word, Corrected: canonical})
			out[i].Word = canonical
		}
	}

	if clarificationsAsked >= c.cfg.MaxClarificationsPerCall {
		return res
	}

	for i := range out {
		if time.Since(start) > budget {
			res.BudgetExceeded = true
			return res
		}
		key := normalize(out[i].Word)
		cat, ok := dict.categoryOf(key)
		if !ok || out[i].Confidence >= c.cfg.ClarificationConfidenceThreshold {
			continue
		}
		strat := strategyFor(cat)
		res.NeedsClarification = true
		res.ClarificationWord = out[i].Word
		res.ClarificationCategory = cat
		res.Strategy = strat
		res.Prompt = promptFor(cat, out[i].Word, strat)
		break
	}

	return res
}

func strategyFor(cat domain.CriticalWordCategory) ClarificationStrategy {
	switch cat {
	case domain.CategoryDestructiveActions:
		return StrategyExplicitConfirmation
	case domain.CategoryNumbers:
		return StrategySpellOut
	case domain.CategoryNegations, domain.CategoryConfirmations:
		return StrategyImplicitClarification
	default:
		return StrategyFullRepeat
	}
}

func promptFor(cat domain.CriticalWordCategory, word string, strat ClarificationStrategy) string {
	switch strat {
	case StrategyExplicitConfirmation:
		return fmt.Sprintf("¿Dijiste '%s'? Quiero confirmar antes de proceder.", word)
	case StrategySpellOut:
		return fmt.Sprintf("¿Podrías deletrear %q para confirmarlo?", word)
	case StrategyImplicitClarification:
		return fmt.Sprintf("Disculpa, ¿dijiste %q?", word)
	default:
		return "Disculpa, ¿podrías repetir eso?"
	}
}
