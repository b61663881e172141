// Package chunk splits extracted document text into overlapping,
// sentence-aware segments with stable ordering.
package chunk

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultTargetSize is the preferred chunk length in characters.
	DefaultTargetSize = 1000
	// DefaultOverlap is how many trailing characters of a chunk are
	// repeated at the start of the next one.
	DefaultOverlap = 200
)

// pageMarker matches the [Page N] markers the PDF extractor emits.
var pageMarker = regexp.MustCompile(`\[Page (\d+)\]\n?`)

// Piece is one segment of a split document. Index is 0-based and
// contiguous. OverlapLen counts the leading characters repeated from the
// previous piece; they are context padding, not scoring content.
type Piece struct {
	Index      int
	Text       string
	OverlapLen int
	StartPage  int // 0 when the source carried no page markers
	EndPage    int
}

// Splitter splits text into pieces around TargetSize characters, preferring
// sentence boundaries. Splitting is deterministic: identical input yields an
// identical piece sequence.
type Splitter struct {
	TargetSize int
	Overlap    int
}

// NewSplitter creates a splitter, substituting defaults for non-positive
// values.
func NewSplitter(targetSize, overlap int) *Splitter {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if overlap < 0 || overlap >= targetSize {
		overlap = DefaultOverlap
		if overlap >= targetSize {
			overlap = targetSize / 5
		}
	}
	return &Splitter{TargetSize: targetSize, Overlap: overlap}
}

// Split returns the ordered piece sequence for the text. Empty or
// whitespace-only input yields no pieces.
func (s *Splitter) Split(text string) []Piece {
	body, pages := stripPageMarkers(text)
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	runes := []rune(body)
	// Tolerance for hunting a sentence boundary near the target cut.
	tolerance := s.TargetSize / 5

	var pieces []Piece
	start := 0
	for start < len(runes) {
		end := start + s.TargetSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			if cut := lastSentenceEnd(runes, end-tolerance, end); cut > start {
				end = cut
			}
			// With a large overlap, a sentence cut early in the
			// tolerance window can land inside the overlap and stall
			// or reverse the scan. Take the hard cut instead so every
			// piece starts past the previous one.
			if end-s.Overlap <= start {
				end = start + s.TargetSize
			}
		}

		overlap := 0
		if len(pieces) > 0 {
			overlap = s.Overlap
		}

		piece := Piece{
			Index:      len(pieces),
			Text:       string(runes[start:end]),
			OverlapLen: overlap,
		}
		piece.StartPage, piece.EndPage = pages.rangeFor(start, end)
		pieces = append(pieces, piece)

		if end == len(runes) {
			break
		}
		start = end - s.Overlap
	}

	return pieces
}

// lastSentenceEnd returns the index just past the last sentence terminator
// in runes[lo:hi], or -1 when none exists. A terminator is '.', '!' or '?'
// followed by whitespace or end of range.
func lastSentenceEnd(runes []rune, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	for i := hi - 1; i >= lo; i-- {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				return i + 1
			}
		}
	}
	return -1
}

// pageMap records which page each rune offset of the stripped text belongs
// to, so pieces can carry a page range in their metadata.
type pageMap []pageSpan

type pageSpan struct {
	offset int // rune offset in the stripped text where the page starts
	page   int
}

func (m pageMap) rangeFor(start, end int) (int, int) {
	if len(m) == 0 {
		return 0, 0
	}
	first, last := 0, 0
	for _, span := range m {
		if span.offset <= start {
			first = span.page
		}
		if span.offset < end {
			last = span.page
		}
	}
	return first, last
}

// stripPageMarkers removes [Page N] markers and returns the cleaned text
// plus the offset-to-page mapping.
func stripPageMarkers(text string) (string, pageMap) {
	locs := pageMarker.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text, nil
	}

	var sb strings.Builder
	var pages pageMap
	prev := 0
	removed := 0
	for _, loc := range locs {
		sb.WriteString(text[prev:loc[0]])
		page, _ := strconv.Atoi(text[loc[2]:loc[3]])
		offset := len([]rune(text[:loc[0]])) - removed
		pages = append(pages, pageSpan{offset: offset, page: page})
		removed += len([]rune(text[loc[0]:loc[1]]))
		prev = loc[1]
	}
	sb.WriteString(text[prev:])
	return sb.String(), pages
}
