// Package extract turns raw document bytes into plain text.
//
// PDF input goes through a structured parse first and falls back to a raw
// byte salvage pass; plain text tries a series of encodings. Extraction
// either returns non-empty text or a typed error the pipeline persists as
// the document's error message.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("corrupt document")
	ErrNoText            = errors.New("no text could be extracted")
)

// Extractor extracts plain text from uploaded document bytes.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an extractor. A nil logger disables logging.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract returns the text content of the document. The mime hint decides
// the strategy; unknown types fail with ErrUnsupportedFormat.
func (e *Extractor) Extract(data []byte, mimeHint string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrCorruptDocument)
	}

	switch {
	case isPDF(data, mimeHint):
		return e.extractPDF(data)
	case isPlainText(mimeHint):
		return e.extractPlainText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeHint)
	}
}

func isPDF(data []byte, mimeHint string) bool {
	if strings.Contains(mimeHint, "pdf") {
		return true
	}
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

func isPlainText(mimeHint string) bool {
	return strings.HasPrefix(mimeHint, "text/") || mimeHint == ""
}
