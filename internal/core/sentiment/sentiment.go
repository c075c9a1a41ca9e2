// Package sentiment implements the Sentiment/Context Fuser (C7): a
// lexicon-based lexical sentiment score fused with the Preprocessor
// Gateway's (C3) prosody read, plus rolling-window context detection over
// the last 4 user turns (spec.md §4.6).
package sentiment

import (
	"strings"

	"github.com/astra-cc/orchestrator/internal/core/preprocess"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// Lexicon is a word-score table used for lexical sentiment scoring. Scores
// are in [-1, 1]; a word absent from both maps contributes nothing.
type Lexicon struct {
	Positive map[string]float64
	Negative map[string]float64
	// FrustrationKeywords flag a turn as a frustration signal for context
	// detection independently of its overall sentiment score.
	FrustrationKeywords map[string]bool
	// EscalationKeywords request a human/agent explicitly.
	EscalationKeywords map[string]bool
}

// defaultSpanishLexicon is the built-in, Spanish-tuned default (spec.md
// §4.6: "lexicon-based, Spanish-tuned by default, tenant-configurable").
func defaultSpanishLexicon() Lexicon {
	return Lexicon{
		Positive: map[string]float64{
			"gracias": 0.6, "excelente": 0.9, "perfecto": 0.8, "bien": 0.4,
			"genial": 0.8, "bueno": 0.4, "contento": 0.7, "satisfecho": 0.6,
		},
		Negative: map[string]float64{
			"terrible": -0.9, "pesimo": -0.9, "malo": -0.5, "molesto": -0.6,
			"enojado": -0.8, "furioso": -0.9, "harto": -0.8, "inaceptable": -0.8,
			"nunca": -0.3, "horrible": -0.9, "estafa": -0.9,
		},
		FrustrationKeywords: map[string]bool{
			"molesto": true, "enojado": true, "furioso": true, "harto": true,
			"frustrado": true, "cansado": true, "inaceptable": true,
		},
		EscalationKeywords: map[string]bool{
			"supervisor": true, "humano": true, "persona": true, "gerente": true,
			"agente": true, "representante": true,
		},
	}
}

// Merge overlays org-level overrides (from an Agent's RuntimeConfig JSONB,
// under the "sentiment_lexicon" key) on top of a base Lexicon. Overlay
// entries win on a word collision.
func Merge(base Lexicon, overridePositive, overrideNegative map[string]float64) Lexicon {
	merged := Lexicon{
		Positive:            cloneScores(base.Positive),
		Negative:            cloneScores(base.Negative),
		FrustrationKeywords: base.FrustrationKeywords,
		EscalationKeywords:  base.EscalationKeywords,
	}
	for k, v := range overridePositive {
		merged.Positive[normalize(k)] = v
	}
	for k, v := range overrideNegative {
		merged.Negative[normalize(k)] = v
	}
	return merged
}

func cloneScores(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[normalize(k)] = v
	}
	return out
}

// DefaultLexicon exposes the built-in Spanish lexicon for callers that have
// no tenant override to merge in.
func DefaultLexicon() Lexicon { return defaultSpanishLexicon() }

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Fused is the Sentiment/Context Fuser's output for one Turn (spec.md §4.6:
// "{label, score, confidence}").
type Fused struct {
	Label      domain.SentimentLabel
	Score      float64
	Confidence float64
}

// Score computes the lexical sentiment over text, then fuses it with
// prosody per the composition rule: neutral+{nervous,concerned} promotes to
// frustrated; positive+excited stays positive with a boosted score
// (spec.md §4.6).
func Score(lex Lexicon, text string, prosody *preprocess.ProsodyResult) Fused {
	label, score, hits := lexicalScore(lex, text)
	confidence := confidenceFromHits(hits)

	if prosody == nil {
		return Fused{Label: label, Score: clamp(score), Confidence: confidence}
	}

	switch {
	case label == domain.SentimentNeutral &&
		(prosody.EmotionalTone == preprocess.ToneNervous || prosody.EmotionalTone == preprocess.ToneConcerned):
		label = domain.SentimentFrustrated
		score -= 0.3
	case label == domain.SentimentPositive && prosody.EmotionalTone == preprocess.ToneExcited:
		score += 0.2
	}

	return Fused{Label: label, Score: clamp(score), Confidence: confidence}
}

func lexicalScore(lex Lexicon, text string) (domain.SentimentLabel, float64, int) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return domain.SentimentNeutral, 0, 0
	}

	var total float64
	var hits int
	var wh int
	for _, w := range words {
		key := normalize(strings.Trim(w, ".,!?¿¡;:"))
		if v, ok := lex.Positive[key]; ok {
			total += v
			hits++
		}
		if v, ok := lex.Negative[key]; ok {
			total += v
			hits++
		}
		if isWhWord(key) {
			wh++
		}
	}

	if hits == 0 {
		return domain.SentimentNeutral, 0, 0
	}

	avg := total / float64(hits)
	switch {
	case avg <= -0.7:
		return domain.SentimentAngry, avg, hits
	case avg < 0:
		return domain.SentimentFrustrated, avg, hits
	case avg > 0:
		return domain.SentimentPositive, avg, hits
	default:
		return domain.SentimentNeutral, avg, hits
	}
}

func confidenceFromHits(hits int) float64 {
	switch {
	case hits == 0:
		return 0.3
	case hits >= 3:
		return 0.9
	default:
		return 0.5 + 0.2*float64(hits)
	}
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

var whWords = map[string]bool{
	"que": true, "qué": true, "quien": true, "quién": true, "cual": true,
	"cuál": true, "cuando": true, "cuándo": true, "donde": true, "dónde": true,
	"como": true, "cómo": true, "por qué": true, "porque": true,
}

func isWhWord(w string) bool { return whWords[w] }

// ContextFlags are the rolling-window signals computed over the last 4 user
// turns (spec.md §4.6).
type ContextFlags struct {
	RepeatedQuestion  bool
	UserFrustrated    bool
	EscalationRequest bool
	Confused          bool
}

// UserTurn is the minimal shape context detection needs from a rolling
// history of user turns.
type UserTurn struct {
	Text        string
	IsQuestion  bool
}

// DetectContext computes ContextFlags over turns, which must already be
// trimmed to at most the last 4 user turns (spec.md §4.6).
func DetectContext(lex Lexicon, turns []UserTurn) ContextFlags {
	var flags ContextFlags

	flags.RepeatedQuestion = hasRepeatedQuestion(turns)
	flags.UserFrustrated = countFrustrationKeywords(lex, lastN(turns, 3)) >= 2
	flags.EscalationRequest = hasEscalationKeyword(lex, turns)
	flags.Confused = countWhQuestions(lastN(turns, 4)) >= 3

	return flags
}

func lastN(turns []UserTurn, n int) []UserTurn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// hasRepeatedQuestion reports whether any two questions among turns overlap
// by more than 0.6 Jaccard similarity over their tokens.
func hasRepeatedQuestion(turns []UserTurn) bool {
	var questions [][]string
	for _, t := range turns {
		if t.IsQuestion {
			questions = append(questions, tokenize(t.Text))
		}
	}
	for i := 0; i < len(questions); i++ {
		for j := i + 1; j < len(questions); j++ {
			if jaccard(questions[i], questions[j]) > 0.6 {
				return true
			}
		}
	}
	return false
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.Trim(f, ".,!?¿¡;:"))
	}
	return out
}

func jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	var intersection int
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func countFrustrationKeywords(lex Lexicon, turns []UserTurn) int {
	count := 0
	for _, t := range turns {
		for _, w := range tokenize(t.Text) {
			if lex.FrustrationKeywords[w] {
				count++
			}
		}
	}
	return count
}

func hasEscalationKeyword(lex Lexicon, turns []UserTurn) bool {
	for _, t := range turns {
		for _, w := range tokenize(t.Text) {
			if lex.EscalationKeywords[w] {
				return true
			}
		}
	}
	return false
}

func countWhQuestions(turns []UserTurn) int {
	count := 0
	for _, t := range turns {
		if !t.IsQuestion {
			continue
		}
		for _, w := range tokenize(t.Text) {
			if isWhWord(w) {
				count++
				break
			}
		}
	}
	return count
}
