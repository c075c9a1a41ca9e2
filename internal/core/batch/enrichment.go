package batch

import (
	"regexp"
	"sort"
	"strings"

	"github.com/astra-cc/orchestrator/internal/domain"
)

// intentKeywords is a closed keyword-bucket classifier, the same
// normalize-then-lookup idiom the Sentiment/Context Fuser (C7) uses for its
// lexicon, re-targeted from word-level sentiment polarity to utterance-level
// intent. Advanced NLU is explicitly out of scope (spec.md Non-goals); this
// is the offline worker's best-effort classification, not a claim of
// state-of-the-art intent detection.
var intentKeywords = map[string][]string{
	"billing_inquiry":     {"factura", "cobro", "cargo", "pago", "saldo", "cuenta"},
	"cancellation":        {"cancelar", "cancelación", "dar de baja", "terminar"},
	"technical_support":   {"no funciona", "error", "problema", "falla", "internet"},
	"complaint":           {"queja", "molesto", "reclamo", "inaceptable"},
	"information_request": {"información", "horario", "dirección", "cómo"},
}

// ClassifyIntent picks the bucket with the most keyword hits in text,
// reporting the runner-up buckets as secondary intents (spec.md §4.12 point
// 3: "intent classification").
func ClassifyIntent(text string) domain.IntentBlock {
	norm := strings.ToLower(text)

	type hit struct {
		intent string
		count  int
	}
	var hits []hit
	for intent, keywords := range intentKeywords {
		count := 0
		for _, kw := range keywords {
			count += strings.Count(norm, kw)
		}
		if count > 0 {
			hits = append(hits, hit{intent: intent, count: count})
		}
	}
	if len(hits) == 0 {
		return domain.IntentBlock{PrimaryIntent: "unknown", Confidence: 0}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].count > hits[j].count })

	total := 0
	for _, h := range hits {
		total += h.count
	}

	secondary := make([]string, 0, len(hits)-1)
	for _, h := range hits[1:] {
		secondary = append(secondary, h.intent)
	}

	return domain.IntentBlock{
		PrimaryIntent:    hits[0].intent,
		SecondaryIntents: secondary,
		Confidence:       float64(hits[0].count) / float64(total),
	}
}

var (
	emailPattern   = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern   = regexp.MustCompile(`\+?\d{1,3}[\s.\-]?\(?\d{2,4}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}`)
	amountPattern  = regexp.MustCompile(`\$\s?\d+(?:[.,]\d{2})?|\d+(?:[.,]\d{2})?\s?(?:pesos|dólares|usd|mxn)`)
	accountPattern = regexp.MustCompile(`\b\d{6,20}\b`)
	datePattern    = regexp.MustCompile(`\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b|\b\d{4}-\d{2}-\d{2}\b`)
)

// ExtractEntities pulls the closed entity set spec.md §4.12 point 3 names
// (numbers, emails, phones, amounts, dates) out of text with fixed regular
// expressions; no third-party NER library exists anywhere in the retrieved
// corpus for this.
func ExtractEntities(text string) domain.EntitiesBlock {
	emails := dedupe(emailPattern.FindAllString(text, -1))
	phones := dedupe(phonePattern.FindAllString(text, -1))
	amounts := dedupe(amountPattern.FindAllString(text, -1))
	dates := dedupe(datePattern.FindAllString(text, -1))

	accounts := dedupe(accountPattern.FindAllString(text, -1))
	accounts = excludeSubstringsOf(accounts, phones)
	accounts = excludeSubstringsOf(accounts, dates)

	return domain.EntitiesBlock{
		AccountNumbers: accounts,
		Amounts:        amounts,
		Emails:         emails,
		Phones:         phones,
		Dates:          dates,
	}
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

func excludeSubstringsOf(candidates, others []string) []string {
	if len(others) == 0 {
		return candidates
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		excluded := false
		for _, o := range others {
			if strings.Contains(o, c) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, c)
		}
	}
	return out
}

var topicStopwords = map[string]bool{
	"el": true, "la": true, "los": true, "las": true, "de": true, "que": true,
	"y": true, "a": true, "en": true, "un": true, "una": true, "es": true,
	"por": true, "para": true, "con": true, "no": true, "su": true, "se": true,
	"lo": true, "le": true, "mi": true, "yo": true, "me": true, "del": true,
}

// ExtractTopics ranks content words by frequency as keywords and reports a
// coherence score: the share of all content-word occurrences the top
// keywords account for (spec.md §4.12 point 3: "topic/keyword extraction
// with a coherence score"). This is a frequency heuristic, not a topic
// model — no topic-modelling library appears in the retrieved corpus.
func ExtractTopics(text string) domain.TopicsBlock {
	words := strings.Fields(strings.ToLower(text))
	freq := make(map[string]int)
	total := 0
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?¿¡\"'")
		if w == "" || topicStopwords[w] || len(w) < 3 {
			continue
		}
		freq[w]++
		total++
	}
	if total == 0 {
		return domain.TopicsBlock{}
	}

	type kv struct {
		word  string
		count int
	}
	ranked := make([]kv, 0, len(freq))
	for w, c := range freq {
		ranked = append(ranked, kv{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	topN := 5
	if topN > len(ranked) {
		topN = len(ranked)
	}

	keywords := make([]string, topN)
	topCount := 0
	for i := 0; i < topN; i++ {
		keywords[i] = ranked[i].word
		topCount += ranked[i].count
	}

	return domain.TopicsBlock{
		Topics:         keywords,
		Keywords:       keywords,
		CoherenceScore: float64(topCount) / float64(total),
	}
}
