package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-datasets/internal/metrics"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

// SegmentService lists and edits the segments of one document.
type SegmentService struct {
	store   core.DatasetStore
	index   core.VectorIndex
	gate    *ingestion_engine.DocumentGate
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewSegmentService(store core.DatasetStore, index core.VectorIndex, gate *ingestion_engine.DocumentGate, m *metrics.Metrics, log zerolog.Logger) *SegmentService {
	return &SegmentService{store: store, index: index, gate: gate, metrics: m, log: log}
}

// List returns a page of the document's segments in page_number order.
// query filters by case-sensitive substring before paging; totalItems is the
// filtered count.
func (s *SegmentService) List(ctx context.Context, datasetID, uid string, offset, limit int, query string) (*models.SegmentPage, error) {
	segments, err := s.store.ListSegments(ctx, datasetID, uid)
	if err != nil {
		return nil, err
	}

	if query != "" {
		filtered := segments[:0]
		for _, seg := range segments {
			if strings.Contains(seg.Content, query) {
				filtered = append(filtered, seg)
			}
		}
		segments = filtered
	}

	offset = max(offset, 0)
	limit = max(limit, 0)
	total := len(segments)
	start := min(offset, total)
	end := start + min(limit, total-start)

	return &models.SegmentPage{TotalItems: total, Segments: append([]models.Segment{}, segments[start:end]...)}, nil
}

// Add appends a segment at the document's next unused ordinal.
func (s *SegmentService) Add(ctx context.Context, datasetID, uid, content string) (seg *models.Segment, err error) {
	defer func() { s.metrics.RecordMutation("add", err) }()

	if strings.TrimSpace(content) == "" {
		return nil, core.ErrEmptyContent
	}

	release, err := s.enter(datasetID, uid)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.document(ctx, datasetID, uid)
	if err != nil {
		return nil, err
	}

	created := ingestion_engine.NewSegment(datasetID, doc, doc.NextOrdinal, content)
	if err := s.store.AppendSegment(ctx, datasetID, uid, created); err != nil {
		return nil, err
	}
	s.syncIndex(ctx, datasetID, created)
	return &created, nil
}

// Edit replaces a segment's content. Empty content deletes the segment and
// returns a nil segment.
func (s *SegmentService) Edit(ctx context.Context, datasetID, uid, segmentID, content string) (*models.Segment, error) {
	if content == "" {
		return nil, s.Delete(ctx, datasetID, uid, segmentID)
	}

	var err error
	defer func() { s.metrics.RecordMutation("edit", err) }()

	release, err := s.enter(datasetID, uid)
	if err != nil {
		return nil, err
	}
	defer release()

	seg, err := s.store.UpdateSegment(ctx, datasetID, uid, segmentID, content)
	if err != nil {
		return nil, err
	}
	s.syncIndex(ctx, datasetID, *seg)
	return seg, nil
}

// Delete removes a segment. Remaining segments keep their ids.
func (s *SegmentService) Delete(ctx context.Context, datasetID, uid, segmentID string) (err error) {
	defer func() { s.metrics.RecordMutation("delete", err) }()

	release, err := s.enter(datasetID, uid)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.DeleteSegment(ctx, datasetID, uid, segmentID); err != nil {
		return err
	}
	if err := s.index.DeleteSegment(ctx, datasetID, uid, segmentID); err != nil {
		s.log.Warn().Err(err).Str("dataset_id", datasetID).Str("segment_id", segmentID).Msg("vector delete failed")
	}
	return nil
}

func (s *SegmentService) enter(datasetID, uid string) (func(), error) {
	key := ingestion_engine.DocumentKey{DatasetID: datasetID, UID: uid}
	if err := s.gate.EnterMutation(key); err != nil {
		return nil, err
	}
	return func() { s.gate.Leave(key) }, nil
}

func (s *SegmentService) document(ctx context.Context, datasetID, uid string) (models.Document, error) {
	ds, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return models.Document{}, err
	}
	doc, ok := ds.Document(uid)
	if !ok {
		return models.Document{}, core.ErrUIDNotFound
	}
	return doc, nil
}

func (s *SegmentService) syncIndex(ctx context.Context, datasetID string, seg models.Segment) {
	if err := s.index.Upsert(ctx, datasetID, []models.Segment{seg}); err != nil {
		s.log.Warn().Err(err).Str("dataset_id", datasetID).Str("segment_id", seg.SegmentID).Msg("vector sync failed")
	}
}
