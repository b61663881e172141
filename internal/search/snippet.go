package search

import (
	"strings"
	"unicode"
)

const snippetWindow = 200

// makeSnippet extracts a short window of text around the densest cluster of
// query terms. When no term occurs in the text the head of the text is
// returned instead.
func makeSnippet(text, query string) string {
	text = strings.TrimSpace(text)
	if len(text) <= snippetWindow {
		return text
	}

	terms := queryTerms(query)
	lower := strings.ToLower(text)

	bestStart, bestScore := 0, 0
	for _, term := range terms {
		idx := 0
		for {
			pos := strings.Index(lower[idx:], term)
			if pos < 0 {
				break
			}
			pos += idx
			start := pos - snippetWindow/4
			if start < 0 {
				start = 0
			}
			if score := windowScore(lower, start, terms); score > bestScore {
				bestStart, bestScore = start, score
			}
			idx = pos + len(term)
		}
	}

	start := alignToWord(text, bestStart)
	end := start + snippetWindow
	if end >= len(text) {
		end = len(text)
	} else {
		end = alignToWord(text, end)
	}

	snippet := strings.TrimSpace(text[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet += "..."
	}
	return snippet
}

// queryTerms splits the query into lowercase terms worth matching.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

// windowScore counts distinct query terms inside text[start:start+window].
func windowScore(lower string, start int, terms []string) int {
	end := start + snippetWindow
	if end > len(lower) {
		end = len(lower)
	}
	window := lower[start:end]
	score := 0
	for _, term := range terms {
		if strings.Contains(window, term) {
			score++
		}
	}
	return score
}

// alignToWord moves pos forward to the next word boundary so snippets do
// not start or end mid-word. pos is clamped to valid byte offsets.
func alignToWord(text string, pos int) int {
	if pos <= 0 {
		return 0
	}
	if pos >= len(text) {
		return len(text)
	}
	for pos < len(text) && !unicode.IsSpace(rune(text[pos])) {
		pos++
	}
	for pos < len(text) && unicode.IsSpace(rune(text[pos])) {
		pos++
	}
	return pos
}
