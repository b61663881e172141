package llm

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// stopwords excluded from concept extraction. Lowercase.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "from": {}, "as": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "have": {},
	"has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {},
	"would": {}, "could": {}, "should": {}, "may": {}, "might": {},
	"can": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"it": {}, "its": {}, "they": {}, "them": {}, "their": {}, "which": {},
	"what": {}, "when": {}, "where": {}, "who": {}, "how": {}, "why": {},
	"not": {}, "no": {}, "also": {}, "than": {}, "then": {}, "there": {},
	"into": {}, "about": {}, "more": {}, "most": {}, "other": {}, "some": {},
	"such": {}, "only": {}, "over": {}, "between": {}, "each": {}, "if": {},
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z-]{3,}`)

// ExtractKeyConcepts pulls the most frequent content words out of text,
// skipping stopwords, for use in template generation. Returns at most max
// concepts ordered by descending frequency.
func ExtractKeyConcepts(text string, max int) []string {
	if max <= 0 {
		max = 5
	}
	counts := make(map[string]int)
	for _, w := range wordPattern.FindAllString(text, -1) {
		lw := strings.ToLower(w)
		if _, skip := stopwords[lw]; skip {
			continue
		}
		counts[lw]++
	}

	type freq struct {
		word  string
		count int
	}
	ranked := make([]freq, 0, len(counts))
	for w, c := range counts {
		ranked = append(ranked, freq{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	out := make([]string, 0, max)
	for _, f := range ranked {
		if len(out) >= max {
			break
		}
		out = append(out, titleWord(f.word))
	}
	return out
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

// FallbackAnswer builds a template answer from retrieved context when no
// provider can respond. The caller marks the result degraded.
func FallbackAnswer(question, contextText string) string {
	var b strings.Builder
	b.WriteString("AI answering is temporarily unavailable, so this response was assembled directly from your study materials.\n\n")

	if strings.TrimSpace(contextText) == "" {
		b.WriteString("No relevant material was found for this question. ")
		b.WriteString("Try uploading documents covering the topic, then ask again.")
		return b.String()
	}

	excerpt := contextText
	const maxExcerpt = 1200
	if len(excerpt) > maxExcerpt {
		if cut := strings.LastIndexByte(excerpt[:maxExcerpt], ' '); cut > 0 {
			excerpt = excerpt[:cut]
		} else {
			excerpt = excerpt[:maxExcerpt]
		}
		excerpt += "..."
	}
	fmt.Fprintf(&b, "The most relevant passages for %q:\n\n%s\n\n", question, excerpt)

	if concepts := ExtractKeyConcepts(contextText, 5); len(concepts) > 0 {
		fmt.Fprintf(&b, "Key concepts to review: %s.", strings.Join(concepts, ", "))
	}
	return b.String()
}

// FallbackCard is one template flashcard.
type FallbackCard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
	Type  string `json:"type"`
}

// FallbackFlashcards builds simple definition cards from the key concepts
// of the source text. Returns at most count cards; fewer when the text
// yields fewer concepts.
func FallbackFlashcards(contextText string, count int) []FallbackCard {
	if count <= 0 {
		count = 5
	}
	concepts := ExtractKeyConcepts(contextText, count)
	cards := make([]FallbackCard, 0, len(concepts))
	for _, c := range concepts {
		cards = append(cards, FallbackCard{
			Front: fmt.Sprintf("What do your study materials say about %q?", c),
			Back:  fmt.Sprintf("Review the sections discussing %s. This card was generated without AI assistance; regenerate it later for a richer version.", c),
			Type:  "basic",
		})
	}
	return cards
}
