package vectorindex

import (
	"context"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

var _ core.VectorIndex = NoopIndex{}

// NoopIndex is used when no embedding provider is configured. Queries return nothing.
type NoopIndex struct{}

func (NoopIndex) Upsert(context.Context, string, []models.Segment) error {
	return nil
}

func (NoopIndex) DeleteDocument(context.Context, string, string) error {
	return nil
}

func (NoopIndex) DeleteSegment(context.Context, string, string, string) error {
	return nil
}

func (NoopIndex) DeleteDataset(context.Context, string) error {
	return nil
}

func (NoopIndex) Query(context.Context, string, string, int) ([]models.ScoredSegment, error) {
	return []models.ScoredSegment{}, nil
}
