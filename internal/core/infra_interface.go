package core

import (
	"context"

	"github.com/markdave123-py/contexta-datasets/internal/models"
)

// DatasetStore defines all persistence operations the services need.
// Implemented by the Postgres client and the in-memory store.
type DatasetStore interface {
	CreateDataset(ctx context.Context, ds *models.Dataset) error
	GetDataset(ctx context.Context, id string) (*models.Dataset, error)
	DeleteDataset(ctx context.Context, id string) error
	SetDatasetStatus(ctx context.Context, id string, status models.DatasetStatus, lastError string) error

	// ApplyChanges removes, upserts and reorders documents atomically. Each
	// saved document has all of its segments replaced. Either every change
	// is visible afterwards or none is.
	ApplyChanges(ctx context.Context, datasetID string, changes models.DocumentChanges) error

	ListSegments(ctx context.Context, datasetID, uid string) ([]models.Segment, error)
	// AppendSegment inserts seg, increments page_size and advances next_ordinal past seg.PageNumber.
	AppendSegment(ctx context.Context, datasetID, uid string, seg models.Segment) error
	UpdateSegment(ctx context.Context, datasetID, uid, segmentID, content string) (*models.Segment, error)
	// DeleteSegment removes the segment and decrements page_size.
	DeleteSegment(ctx context.Context, datasetID, uid, segmentID string) error

	Close() error
}

// ObjectLoader loads raw document bytes from object storage.
type ObjectLoader interface {
	Load(ctx context.Context, locator string) ([]byte, error)
}

// AnnotationLoader loads annotated transcripts by document uid.
type AnnotationLoader interface {
	Load(ctx context.Context, uid string) (string, error)
}

// VectorIndex is the opaque similarity index kept next to the segment store.
type VectorIndex interface {
	Upsert(ctx context.Context, datasetID string, segments []models.Segment) error
	DeleteDocument(ctx context.Context, datasetID, uid string) error
	DeleteSegment(ctx context.Context, datasetID, uid, segmentID string) error
	DeleteDataset(ctx context.Context, datasetID string) error
	Query(ctx context.Context, datasetID, text string, limit int) ([]models.ScoredSegment, error)
}

// StatusNotifier reports dataset status changes to an external webhook.
type StatusNotifier interface {
	UpdateStatus(ctx context.Context, datasetID string, status int) error
}
