package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/astra-cc/orchestrator/internal/core/preprocess"
	"github.com/astra-cc/orchestrator/internal/domain"
)

func TestScoreFusesNeutralWithNervousProsodyIntoFrustrated(t *testing.T) {
	lex := DefaultLexicon()
	prosody := &preprocess.ProsodyResult{EmotionalTone: preprocess.ToneNervous}

	fused := Score(lex, "quiero revisar mi cuenta", prosody)

	assert.Equal(t, domain.SentimentFrustrated, fused.Label)
}

func TestScoreKeepsPositiveWithExcitedProsodyAndBoostsScore(t *testing.T) {
	lex := DefaultLexicon()
	prosody := &preprocess.ProsodyResult{EmotionalTone: preprocess.ToneExcited}

	withoutProsody := Score(lex, "gracias, excelente servicio", nil)
	withProsody := Score(lex, "gracias, excelente servicio", prosody)

	assert.Equal(t, domain.SentimentPositive, withProsody.Label)
	assert.Greater(t, withProsody.Score, withoutProsody.Score)
}

func TestScoreDetectsAngryFromStronglyNegativeLexicon(t *testing.T) {
	lex := DefaultLexicon()
	fused := Score(lex, "esto es terrible y pesimo", nil)
	assert.Equal(t, domain.SentimentAngry, fused.Label)
}

func TestScoreWithNoLexiconHitsIsNeutralWithLowConfidence(t *testing.T) {
	lex := DefaultLexicon()
	fused := Score(lex, "necesito revisar el saldo de mi cuenta", nil)
	assert.Equal(t, domain.SentimentNeutral, fused.Label)
	assert.Less(t, fused.Confidence, 0.5)
}

func TestMergeOverridesWinOnCollision(t *testing.T) {
	base := DefaultLexicon()
	merged := Merge(base, map[string]float64{"bien": 0.99}, nil)
	assert.Equal(t, 0.99, merged.Positive["bien"])
}

func TestDetectContextFlagsRepeatedQuestion(t *testing.T) {
	lex := DefaultLexicon()
	turns := []UserTurn{
		{Text: "cual es el saldo de mi cuenta", IsQuestion: true},
		{Text: "cual es el saldo de mi cuenta actual", IsQuestion: true},
	}
	flags := DetectContext(lex, turns)
	assert.True(t, flags.RepeatedQuestion)
}

func TestDetectContextFlagsUserFrustratedAtTwoKeywords(t *testing.T) {
	lex := DefaultLexicon()
	turns := []UserTurn{
		{Text: "estoy muy molesto con esto"},
		{Text: "ya estoy harto de esperar"},
	}
	flags := DetectContext(lex, turns)
	assert.True(t, flags.UserFrustrated)
}

func TestDetectContextFlagsEscalationRequest(t *testing.T) {
	lex := DefaultLexicon()
	turns := []UserTurn{{Text: "quiero hablar con un supervisor"}}
	flags := DetectContext(lex, turns)
	assert.True(t, flags.EscalationRequest)
}

func TestDetectContextFlagsConfusedAtThreeWhQuestions(t *testing.T) {
	lex := DefaultLexicon()
	turns := []UserTurn{
		{Text: "que es esto", IsQuestion: true},
		{Text: "como funciona", IsQuestion: true},
		{Text: "cuando termina", IsQuestion: true},
	}
	flags := DetectContext(lex, turns)
	assert.True(t, flags.Confused)
}

func TestDetectContextDoesNotFlagBelowThresholds(t *testing.T) {
	lex := DefaultLexicon()
	turns := []UserTurn{{Text: "hola buenos dias"}}
	flags := DetectContext(lex, turns)
	assert.False(t, flags.RepeatedQuestion)
	assert.False(t, flags.UserFrustrated)
	assert.False(t, flags.EscalationRequest)
	assert.False(t, flags.Confused)
}
