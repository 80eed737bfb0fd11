package ingestion_engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

// Pipeline turns one document into indexed segments:
// fetch -> extract -> split -> assign ids -> index. Persisting the result is
// left to the caller so a batch of documents can be committed together.
type Pipeline struct {
	handlers Registry
	index    core.VectorIndex
	log      zerolog.Logger
}

func NewPipeline(handlers Registry, index core.VectorIndex, log zerolog.Logger) *Pipeline {
	return &Pipeline{handlers: handlers, index: index, log: log}
}

// Process derives the segments of doc without touching the store or index.
// The returned document carries the derived content_size, page_size and
// next ordinal.
func (p *Pipeline) Process(ctx context.Context, datasetID string, doc models.Document) (models.Document, []models.Segment, error) {
	opt, err := ParseSplitOption(doc.SplitOption)
	if err != nil {
		return doc, nil, err
	}
	doc.SplitOption = opt

	h, err := p.handlers.Lookup(doc.Type)
	if err != nil {
		return doc, nil, err
	}

	text, err := h.FetchAndExtract(ctx, doc)
	if err != nil {
		return doc, nil, err
	}

	segments := AssignIdentity(datasetID, doc, h.Split(text, opt))
	doc.ContentSize = len(text)
	doc.PageSize = len(segments)
	doc.NextOrdinal = len(segments)

	p.log.Debug().
		Str("dataset_id", datasetID).
		Str("uid", doc.UID).
		Int("segments", len(segments)).
		Int("content_size", doc.ContentSize).
		Msg("document processed")
	return doc, segments, nil
}

// Index replaces the vectors of doc with segments.
func (p *Pipeline) Index(ctx context.Context, datasetID string, doc models.Document, segments []models.Segment) error {
	if err := p.index.DeleteDocument(ctx, datasetID, doc.UID); err != nil {
		return fmt.Errorf("clear vectors for %s: %w", doc.UID, err)
	}
	if err := p.index.Upsert(ctx, datasetID, segments); err != nil {
		return fmt.Errorf("index segments for %s: %w", doc.UID, err)
	}
	return nil
}
