package batch

import (
	"hash/fnv"
	"math"
	"strings"

	"github.com/astra-cc/orchestrator/internal/domain"
)

// embeddingDims is the fixed dimension of the lightweight lexical vectors
// the hybrid corrector's nearest-neighbour step compares. The worker
// contract has no separate embedding service in spec.md §6's external
// interfaces, so these are trigram-hashed bag vectors computed in-process,
// the same "no extra network hop for a pure scoring step" idiom the Online
// Corrector (C6) and Sentiment Fuser (C7) use for their own lookups.
const embeddingDims = 64

// cosineCorrectionThreshold is the maximum cosine distance (1 - similarity)
// spec.md §4.12 accepts for a nearest-neighbour correction ("cosine
// distance ≤ 0.7").
const cosineCorrectionThreshold = 0.7

// DictionaryEntry is the subset of domain.CorrectionDictionaryEntry the
// hybrid corrector needs.
type DictionaryEntry struct {
	Misheard  string
	Canonical string
}

// CorrectionMethod records which stage of the hybrid algorithm produced a
// match (spec.md §4.12 point 1's three stages, in precedence order).
type CorrectionMethod string

const (
	MethodExact    CorrectionMethod = "exact"
	MethodVector   CorrectionMethod = "vector"
	MethodPhonetic CorrectionMethod = "phonetic"
)

// HybridCorrector re-runs the full dictionary correction algorithm offline,
// trying each stage in order and falling through only on a miss (spec.md
// §4.12 point 1: "exact dictionary → vector nearest-neighbour with cosine
// distance ≤ 0.7 → phonetic code equality").
type HybridCorrector struct {
	entries    []DictionaryEntry
	embeddings [][]float64
	phonetics  []string
}

// NewHybridCorrector precomputes the embedding and phonetic code for every
// dictionary entry once, so correcting a transcript's words is pure lookup.
func NewHybridCorrector(entries []DictionaryEntry) *HybridCorrector {
	hc := &HybridCorrector{entries: entries}
	hc.embeddings = make([][]float64, len(entries))
	hc.phonetics = make([]string, len(entries))
	for i, e := range entries {
		hc.embeddings[i] = trigramEmbedding(e.Misheard)
		hc.phonetics[i] = phoneticCode(e.Misheard)
	}
	return hc
}

// Correct returns the canonical replacement for word, if any stage matches.
func (hc *HybridCorrector) Correct(word string) (corrected string, method CorrectionMethod, ok bool) {
	norm := strings.ToLower(strings.TrimSpace(word))
	if norm == "" {
		return "", "", false
	}

	for _, e := range hc.entries {
		if strings.ToLower(e.Misheard) == norm {
			return e.Canonical, MethodExact, true
		}
	}

	if len(hc.entries) > 0 {
		target := trigramEmbedding(norm)
		bestIdx := -1
		bestDist := math.MaxFloat64
		for i, emb := range hc.embeddings {
			dist := 1 - cosineSimilarity(target, emb)
			if dist < bestDist {
				bestDist = dist
				bestIdx = i
			}
		}
		if bestIdx != -1 && bestDist <= cosineCorrectionThreshold {
			return hc.entries[bestIdx].Canonical, MethodVector, true
		}
	}

	code := phoneticCode(norm)
	for i, e := range hc.entries {
		if hc.phonetics[i] == code {
			return e.Canonical, MethodPhonetic, true
		}
	}

	return "", "", false
}

// CorrectText applies Correct word by word and reports every substitution
// made, the same shape the Online Corrector's in-process pass returns
// (domain.Correction).
func (hc *HybridCorrector) CorrectText(text string) (string, []domain.Correction) {
	words := strings.Fields(text)
	var corrections []domain.Correction
	for i, w := range words {
		if corrected, _, ok := hc.Correct(w); ok && !strings.EqualFold(corrected, w) {
			corrections = append(corrections, domain.Correction{Original: w, Corrected: corrected})
			words[i] = corrected
		}
	}
	return strings.Join(words, " "), corrections
}

// trigramEmbedding hashes each overlapping 3-character run of s into one of
// embeddingDims buckets, the same hand-rolled, dependency-free vector shape
// the pack's in-memory vector store builds vectors for before comparing them
// with cosineSimilarity.
func trigramEmbedding(s string) []float64 {
	v := make([]float64, embeddingDims)
	padded := "  " + strings.ToLower(s) + "  "
	for i := 0; i+3 <= len(padded); i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte(padded[i : i+3]))
		v[int(h.Sum32())%embeddingDims]++
	}
	return v
}

// cosineSimilarity is grounded on lookatitude-beluga-ai's
// InMemoryVectorStore.cosineSimilarity (plain dot-product-over-norms loop,
// no linear-algebra dependency).
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// phoneticCode is a small Soundex-like folding: keep the first letter,
// collapse the rest into digit classes for similarly-sounding consonants,
// drop vowels and duplicate digits. No phonetic-matching library appears
// anywhere in the retrieved corpus, so this is a plain hand-rolled
// algorithm in the same spirit as cosineSimilarity above.
func phoneticCode(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	class := func(r byte) byte {
		switch r {
		case 'b', 'f', 'p', 'v':
			return '1'
		case 'c', 'g', 'j', 'k', 'q', 's', 'x', 'z':
			return '2'
		case 'd', 't':
			return '3'
		case 'l':
			return '4'
		case 'm', 'n':
			return '5'
		case 'r':
			return '6'
		default:
			return '0' // vowels and everything else
		}
	}

	code := []byte{s[0]}
	lastClass := class(s[0])
	for i := 1; i < len(s); i++ {
		c := class(s[i])
		if c != '0' && c != lastClass {
			code = append(code, c)
		}
		lastClass = c
	}

	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code[:4])
}

// EstimateWER computes a word-level word error rate between the original
// STT text and the hybrid-corrected text as edit distance over reference
// length (spec.md §4.12 point 2: "Retranscribe if estimated WER > 0.2").
func EstimateWER(reference, hypothesis string) float64 {
	ref := strings.Fields(strings.ToLower(reference))
	hyp := strings.Fields(strings.ToLower(hypothesis))
	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 0
		}
		return 1
	}
	return float64(wordLevenshtein(ref, hyp)) / float64(len(ref))
}

// NeedsRetranscription reports whether wer exceeds spec.md §4.12's 0.2
// threshold.
func NeedsRetranscription(wer float64) bool {
	return wer > 0.2
}

// wordLevenshtein is the classic dynamic-programming edit distance, applied
// over word tokens instead of characters.
func wordLevenshtein(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
			} else {
				curr[j] = 1 + min3(prev[j], curr[j-1], prev[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
