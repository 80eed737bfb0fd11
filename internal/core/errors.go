package core

import (
	"errors"
	"fmt"

	"github.com/markdave123-py/contexta-datasets/internal/models"
)

var (
	ErrDatasetNotFound   = errors.New("dataset not found")
	ErrDatasetExists     = errors.New("dataset already exists")
	ErrUIDNotFound       = errors.New("uid not found in dataset documents")
	ErrSegmentNotFound   = errors.New("segment not found")
	ErrUpstreamFormat    = errors.New("unexpected data format from upstream")
	ErrDuplicateDocument = errors.New("duplicate document uid")
	ErrEmptyContent      = errors.New("segment content is empty")
	ErrDocumentBusy      = errors.New("document is being re-ingested")
	ErrObjectNotFound    = errors.New("object not found")
)

// FetchError reports that an object or transcript could not be loaded.
// It is the only ingestion error worth retrying.
type FetchError struct {
	Locator  string
	NotFound bool
	Err      error
}

func (e *FetchError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("fetch %q: not found: %v", e.Locator, e.Err)
	}
	return fmt.Sprintf("fetch %q: %v", e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// UnsupportedDocumentTypeError aborts the ingestion of a single document.
type UnsupportedDocumentTypeError struct {
	Type models.DocumentType
}

func (e *UnsupportedDocumentTypeError) Error() string {
	return fmt.Sprintf("document type %q not supported", string(e.Type))
}

// ExtractionError means the fetched bytes could not be decoded to text.
type ExtractionError struct {
	Locator string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %q: %v", e.Locator, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// InvalidSplitOptionError is raised before any fetch happens.
type InvalidSplitOptionError struct {
	Option models.SplitOption
	Reason string
}

func (e *InvalidSplitOptionError) Error() string {
	return fmt.Sprintf("invalid split option (split_type=%q chunk_size=%d chunk_overlap=%d): %s",
		e.Option.SplitType, e.Option.ChunkSize, e.Option.ChunkOverlap, e.Reason)
}

// IsDocumentFatal reports errors that skip one document without failing the
// reconciliation it belongs to.
func IsDocumentFatal(err error) bool {
	var unsupported *UnsupportedDocumentTypeError
	var extraction *ExtractionError
	return errors.As(err, &unsupported) || errors.As(err, &extraction)
}
