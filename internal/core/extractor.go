package core

import (
	"context"
)

// DocumentExtractor turns raw document bytes into plain text.
type DocumentExtractor interface {
	// ExtractPDF returns the text of every page joined by a form feed.
	ExtractPDF(ctx context.Context, data []byte) (string, error)
	// ExtractWord returns paragraph texts joined by newlines. The filename
	// hint selects between .docx and legacy .doc decoding.
	ExtractWord(ctx context.Context, data []byte, filename string) (string, error)
}

// PageMarker separates pages in extracted PDF text.
const PageMarker = "\f"
