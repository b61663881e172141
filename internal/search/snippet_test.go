package search

import (
	"strings"
	"testing"
)

func TestMakeSnippet_ShortTextReturnedWhole(t *testing.T) {
	text := "A short chunk of study notes."
	if got := makeSnippet(text, "study"); got != text {
		t.Errorf("Short text should pass through, got %q", got)
	}
}

func TestMakeSnippet_WindowAroundQueryTerm(t *testing.T) {
	text := strings.Repeat("padding words before the target area. ", 20) +
		"The mitochondria is the powerhouse of the cell. " +
		strings.Repeat("padding words after the target area. ", 20)

	snippet := makeSnippet(text, "mitochondria powerhouse")
	if !strings.Contains(snippet, "mitochondria") {
		t.Errorf("Snippet should contain the query term, got %q", snippet)
	}
	if len(snippet) > snippetWindow+40 {
		t.Errorf("Snippet too long: %d chars", len(snippet))
	}
	if !strings.HasPrefix(snippet, "...") {
		t.Errorf("Mid-text snippet should start with an ellipsis, got %q", snippet)
	}
}

func TestMakeSnippet_NoMatchUsesHead(t *testing.T) {
	text := strings.Repeat("unrelated filler content here. ", 30)
	snippet := makeSnippet(text, "quantum entanglement")
	if !strings.HasPrefix(snippet, "unrelated") {
		t.Errorf("No-match snippet should come from the head of the text, got %q", snippet)
	}
	if !strings.HasSuffix(snippet, "...") {
		t.Errorf("Truncated snippet should end with an ellipsis, got %q", snippet)
	}
}

func TestQueryTerms(t *testing.T) {
	terms := queryTerms("What is the Krebs cycle?")
	want := map[string]bool{"what": true, "the": true, "krebs": true, "cycle": true}
	for _, term := range terms {
		if !want[term] {
			t.Errorf("Unexpected term %q", term)
		}
		if len(term) <= 2 {
			t.Errorf("Term %q too short to keep", term)
		}
	}
	// "is" must be dropped.
	for _, term := range terms {
		if term == "is" {
			t.Error("Two-letter terms should be dropped")
		}
	}
}
