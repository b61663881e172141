package chunk

import (
	"strings"
	"testing"
)

// TestSplit_LongDocument tests the chunk layout for a document well past one
// target size.
func TestSplit_LongDocument(t *testing.T) {
	s := NewSplitter(1000, 200)
	text := strings.Repeat("a", 2400)

	pieces := s.Split(text)
	if len(pieces) != 3 {
		t.Fatalf("Expected 3 pieces, got %d", len(pieces))
	}

	// Without sentence boundaries the cuts land exactly on the target.
	wantLens := []int{1000, 1000, 800}
	for i, p := range pieces {
		if p.Index != i {
			t.Errorf("Piece %d index: expected %d, got %d", i, i, p.Index)
		}
		if len(p.Text) != wantLens[i] {
			t.Errorf("Piece %d length: expected %d, got %d", i, wantLens[i], len(p.Text))
		}
	}

	if pieces[0].OverlapLen != 0 {
		t.Errorf("First piece OverlapLen: expected 0, got %d", pieces[0].OverlapLen)
	}
	for _, p := range pieces[1:] {
		if p.OverlapLen != 200 {
			t.Errorf("Piece %d OverlapLen: expected 200, got %d", p.Index, p.OverlapLen)
		}
	}

	// Each piece starts with the last 200 characters of its predecessor.
	for i := 1; i < len(pieces); i++ {
		prev := pieces[i-1].Text
		tail := prev[len(prev)-200:]
		if !strings.HasPrefix(pieces[i].Text, tail) {
			t.Errorf("Piece %d does not start with predecessor's tail", i)
		}
	}
}

// TestSplit_SentenceBoundary verifies the cut prefers a sentence end near
// the target size.
func TestSplit_SentenceBoundary(t *testing.T) {
	s := NewSplitter(100, 20)
	// One sentence ends at offset 90, inside the 20-char tolerance window.
	text := strings.Repeat("b", 89) + ". " + strings.Repeat("c", 200)

	pieces := s.Split(text)
	if len(pieces) < 2 {
		t.Fatalf("Expected at least 2 pieces, got %d", len(pieces))
	}
	if !strings.HasSuffix(pieces[0].Text, ".") {
		t.Errorf("First piece should end at the sentence boundary, got %q", pieces[0].Text[len(pieces[0].Text)-10:])
	}
}

func TestSplit_ShortDocument(t *testing.T) {
	s := NewSplitter(1000, 200)
	pieces := s.Split("Just one small paragraph.")
	if len(pieces) != 1 {
		t.Fatalf("Expected 1 piece, got %d", len(pieces))
	}
	if pieces[0].Index != 0 || pieces[0].OverlapLen != 0 {
		t.Errorf("Single piece should have index 0 and no overlap, got index %d overlap %d",
			pieces[0].Index, pieces[0].OverlapLen)
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	s := NewSplitter(1000, 200)
	if pieces := s.Split(""); pieces != nil {
		t.Errorf("Empty input: expected nil, got %d pieces", len(pieces))
	}
	if pieces := s.Split("   \n\t  "); pieces != nil {
		t.Errorf("Whitespace input: expected nil, got %d pieces", len(pieces))
	}
}

// TestSplit_Deterministic verifies identical input yields identical output.
func TestSplit_Deterministic(t *testing.T) {
	s := NewSplitter(300, 60)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)

	first := s.Split(text)
	second := s.Split(text)
	if len(first) != len(second) {
		t.Fatalf("Piece counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Piece %d differs between runs", i)
		}
	}
}

// TestSplit_PageMarkers verifies [Page N] markers are stripped from piece
// text and carried into the page range.
func TestSplit_PageMarkers(t *testing.T) {
	s := NewSplitter(1000, 200)
	text := "[Page 1]\nFirst page content here.\n\n[Page 2]\nSecond page content here."

	pieces := s.Split(text)
	if len(pieces) != 1 {
		t.Fatalf("Expected 1 piece, got %d", len(pieces))
	}
	if strings.Contains(pieces[0].Text, "[Page") {
		t.Errorf("Piece text still contains page markers: %q", pieces[0].Text)
	}
	if pieces[0].StartPage != 1 || pieces[0].EndPage != 2 {
		t.Errorf("Page range: expected 1-2, got %d-%d", pieces[0].StartPage, pieces[0].EndPage)
	}
}

func TestSplit_NoPageMarkers(t *testing.T) {
	s := NewSplitter(1000, 200)
	pieces := s.Split("Plain text without any markers.")
	if len(pieces) != 1 {
		t.Fatalf("Expected 1 piece, got %d", len(pieces))
	}
	if pieces[0].StartPage != 0 || pieces[0].EndPage != 0 {
		t.Errorf("Page range: expected 0-0, got %d-%d", pieces[0].StartPage, pieces[0].EndPage)
	}
}

// TestSplit_LargeOverlapProgress verifies that an overlap close to the
// target size cannot stall or reverse the scan when a sentence boundary
// lands early in the tolerance window.
func TestSplit_LargeOverlapProgress(t *testing.T) {
	s := NewSplitter(1000, 850)
	// The sentence ends at offset 801, well inside the overlap of the
	// first cut.
	text := strings.Repeat("a", 800) + ". " + strings.Repeat("b", 2000)

	pieces := s.Split(text)
	if len(pieces) < 2 {
		t.Fatalf("Expected multiple pieces, got %d", len(pieces))
	}

	// Every piece past the first must contribute text beyond its overlap,
	// and stitching the non-overlap parts together must reproduce the
	// input exactly.
	var sb strings.Builder
	sb.WriteString(pieces[0].Text)
	for _, p := range pieces[1:] {
		runes := []rune(p.Text)
		if len(runes) <= p.OverlapLen {
			t.Fatalf("Piece %d has no content beyond its overlap (len %d, overlap %d)",
				p.Index, len(runes), p.OverlapLen)
		}
		sb.WriteString(string(runes[p.OverlapLen:]))
	}
	if sb.String() != text {
		t.Errorf("Reassembled text differs from input")
	}
}

// TestSplit_OrdinalContiguity checks indices are exactly 0..N-1 for a range
// of document sizes.
func TestSplit_OrdinalContiguity(t *testing.T) {
	s := NewSplitter(500, 100)
	for _, size := range []int{1, 499, 500, 501, 1200, 5000, 20000} {
		pieces := s.Split(strings.Repeat("x", size))
		for i, p := range pieces {
			if p.Index != i {
				t.Errorf("Size %d: piece at position %d has index %d", size, i, p.Index)
			}
		}
	}
}
