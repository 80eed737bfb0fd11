package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/contexta-datasets/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor. PDFs are read page by
// page so page boundaries survive; docconv handles Word files and serves as
// the PDF fallback.
type DocconvExtractor struct {
	log zerolog.Logger
}

func NewDocconvExtractor(log zerolog.Logger) *DocconvExtractor {
	return &DocconvExtractor{log: log}
}

// ExtractPDF returns the text of each page joined by core.PageMarker.
func (e *DocconvExtractor) ExtractPDF(ctx context.Context, data []byte) (string, error) {
	pages, err := pdfPages(data)
	if err == nil {
		return joinPages(pages), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	e.log.Warn().Err(err).Msg("page-aware pdf extraction failed, falling back to docconv")
	text, _, convErr := docconv.ConvertPDF(bytes.NewReader(data))
	if convErr != nil {
		return "", fmt.Errorf("docconv pdf: %w", convErr)
	}
	return text, nil
}

// ExtractWord converts .docx (or .doc by filename suffix) and joins paragraphs with newlines.
func (e *DocconvExtractor) ExtractWord(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	convert := docconv.ConvertDocx
	if strings.HasSuffix(strings.ToLower(filename), ".doc") {
		convert = docconv.ConvertDoc
	}
	text, _, err := convert(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("docconv word: %w", err)
	}
	return joinParagraphs(text), nil
}

func pdfPages(data []byte) (pages []string, err error) {
	// ledongthuc/pdf panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func joinPages(pages []string) string {
	return strings.Join(pages, core.PageMarker)
}

// joinParagraphs normalises line endings and joins paragraph lines with '\n'.
func joinParagraphs(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
