package extract

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// pdfPageWorkers bounds the parallel page extraction fanout.
const pdfPageWorkers = 4

// extractPDF runs the structured parse and, when it fails or produces no
// text, salvages printable runs straight from the bytes.
func (e *Extractor) extractPDF(data []byte) (string, error) {
	text, err := e.extractPDFStructured(data)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if err != nil {
		e.logger.Warn("structured pdf parse failed, trying raw salvage", zap.Error(err))
	}

	salvaged := salvageText(data)
	if strings.TrimSpace(salvaged) == "" {
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
		}
		return "", ErrNoText
	}
	return salvaged, nil
}

// extractPDFStructured parses the PDF and extracts each page's text in
// parallel, re-assembling pages in original order. Pages are prefixed with
// a [Page N] marker the chunker later lifts into metadata.
func (e *Extractor) extractPDFStructured(data []byte) (text string, err error) {
	// The pdf package panics on some malformed files; convert to an error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", err
	}

	numPages := pdfReader.NumPage()
	if numPages == 0 {
		return "", ErrNoText
	}

	type pageText struct {
		num  int
		text string
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(pdfPageWorkers)
	pages := make(chan pageText, numPages)

	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			page := pdfReader.Page(pageNum)
			if page.V.IsNull() {
				return nil
			}
			content, err := page.GetPlainText(nil)
			if err != nil {
				// A single bad page is not fatal; skip it.
				e.logger.Warn("failed to extract pdf page",
					zap.Int("page", pageNum), zap.Error(err))
				return nil
			}
			if strings.TrimSpace(content) == "" {
				return nil
			}
			select {
			case pages <- pageText{num: pageNum, text: strings.TrimSpace(content)}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}
	close(pages)

	collected := make([]pageText, 0, numPages)
	for p := range pages {
		collected = append(collected, p)
	}
	if len(collected) == 0 {
		return "", ErrNoText
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].num < collected[j].num })

	var sb strings.Builder
	for i, p := range collected {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Page %d]\n%s", p.num, p.text)
	}
	return sb.String(), nil
}

// salvageText pulls printable runs out of raw bytes. It is the last-resort
// strategy for files the structured parser rejects; output quality is low
// but non-empty text beats a hard failure for scanned or damaged files.
func salvageText(data []byte) string {
	var sb strings.Builder
	var run []rune

	flush := func() {
		// Short runs are almost always binary noise.
		if len(run) >= 8 {
			sb.WriteString(string(run))
			sb.WriteByte('\n')
		}
		run = run[:0]
	}

	for _, b := range data {
		r := rune(b)
		if r == '\n' || r == '\t' || (unicode.IsPrint(r) && r < unicode.MaxASCII) {
			run = append(run, r)
		} else {
			flush()
		}
	}
	flush()

	return strings.TrimSpace(sb.String())
}
