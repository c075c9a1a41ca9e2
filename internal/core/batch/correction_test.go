package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHybridCorrectorExactMatch(t *testing.T) {
	hc := NewHybridCorrector([]DictionaryEntry{{Misheard: "salgo", Canonical: "saldo"}})
	corrected, method, ok := hc.Correct("salgo")
	require.True(t, ok)
	assert.Equal(t, "saldo", corrected)
	assert.Equal(t, MethodExact, method)
}

func TestHybridCorrectorVectorNearestNeighbour(t *testing.T) {
	hc := NewHybridCorrector([]DictionaryEntry{{Misheard: "cuesta", Canonical: "cuenta"}})
	// "cuestas" is lexically close to "cuesta" (most of their trigrams are
	// shared) but not an exact match, so only the vector stage can find it.
	corrected, method, ok := hc.Correct("cuestas")
	require.True(t, ok)
	assert.Equal(t, "cuenta", corrected)
	assert.Equal(t, MethodVector, method)
}

func TestHybridCorrectorPhoneticFallback(t *testing.T) {
	hc := NewHybridCorrector([]DictionaryEntry{{Misheard: "Smith", Canonical: "Smythe"}})
	corrected, method, ok := hc.Correct("Smyth")
	require.True(t, ok)
	assert.Equal(t, "Smythe", corrected)
	assert.Contains(t, []CorrectionMethod{MethodVector, MethodPhonetic}, method)
}

func TestHybridCorrectorNoMatch(t *testing.T) {
	hc := NewHybridCorrector([]DictionaryEntry{{Misheard: "salgo", Canonical: "saldo"}})
	_, _, ok := hc.Correct("xyzzy")
	assert.False(t, ok)
}

func TestCorrectTextAppliesWordByWord(t *testing.T) {
	hc := NewHybridCorrector([]DictionaryEntry{
		{Misheard: "salgo", Canonical: "saldo"},
		{Misheard: "cuesta", Canonical: "cuenta"},
	})
	corrected, corrections := hc.CorrectText("mi salgo y mi cuesta")
	assert.Equal(t, "mi saldo y mi cuenta", corrected)
	require.Len(t, corrections, 2)
	assert.Equal(t, "salgo", corrections[0].Original)
	assert.Equal(t, "saldo", corrections[0].Corrected)
}

func TestEstimateWERIdenticalTextIsZero(t *testing.T) {
	assert.Equal(t, 0.0, EstimateWER("hola como estas", "hola como estas"))
}

func TestEstimateWERCountsWordLevelEdits(t *testing.T) {
	wer := EstimateWER("quiero cancelar mi cuenta", "quiero cancelar su cuenta")
	assert.InDelta(t, 0.25, wer, 0.001)
}

func TestNeedsRetranscriptionThreshold(t *testing.T) {
	assert.False(t, NeedsRetranscription(0.2))
	assert.True(t, NeedsRetranscription(0.21))
}

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	v := trigramEmbedding("saldo")
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 0.0001)
}

func TestPhoneticCodeGroupsSimilarSoundingWords(t *testing.T) {
	assert.Equal(t, phoneticCode("robert"), phoneticCode("rupert"))
}
