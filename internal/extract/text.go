package extract

import (
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// extractPlainText decodes a text file, trying UTF-8 first, then UTF-16
// when a byte-order mark is present, then a latin-1 transliteration.
func (e *Extractor) extractPlainText(data []byte) (string, error) {
	if text, ok := decodeUTF16(data); ok {
		if strings.TrimSpace(text) == "" {
			return "", ErrNoText
		}
		return text, nil
	}

	if utf8.Valid(data) {
		text := strings.TrimPrefix(string(data), "\uFEFF")
		if strings.TrimSpace(text) == "" {
			return "", ErrNoText
		}
		return text, nil
	}

	// Latin-1 maps every byte to a rune, so this cannot fail; it just may
	// produce mojibake for other single-byte encodings.
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	text := string(runes)
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: undecodable text file", ErrCorruptDocument)
	}
	return text, nil
}

// decodeUTF16 decodes UTF-16 content when a BOM identifies it as such.
func decodeUTF16(data []byte) (string, bool) {
	if len(data) < 2 || len(data)%2 != 0 {
		return "", false
	}

	var bigEndian bool
	switch {
	case data[0] == 0xFE && data[1] == 0xFF:
		bigEndian = true
	case data[0] == 0xFF && data[1] == 0xFE:
		bigEndian = false
	default:
		return "", false
	}

	body := data[2:]
	units := make([]uint16, 0, len(body)/2)
	for i := 0; i+1 < len(body); i += 2 {
		if bigEndian {
			units = append(units, uint16(body[i])<<8|uint16(body[i+1]))
		} else {
			units = append(units, uint16(body[i+1])<<8|uint16(body[i]))
		}
	}

	return string(utf16.Decode(units)), true
}
