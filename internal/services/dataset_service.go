package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

type DatasetService struct {
	store    core.DatasetStore
	index    core.VectorIndex
	ingestor ingestion_engine.Ingestor
	pipeline *ingestion_engine.Pipeline
	locks    *ingestion_engine.KeyedMutex
	log      zerolog.Logger
}

// NewDatasetService wires the service. locks must be shared with the ingestor.
func NewDatasetService(store core.DatasetStore, index core.VectorIndex, ing ingestion_engine.Ingestor, pipeline *ingestion_engine.Pipeline, locks *ingestion_engine.KeyedMutex, log zerolog.Logger) *DatasetService {
	return &DatasetService{store: store, index: index, ingestor: ing, pipeline: pipeline, locks: locks, log: log}
}

// NewDatasetID returns a dashless uuid.
func NewDatasetID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create validates docs, stores an empty pending dataset and schedules its ingestion.
func (s *DatasetService) Create(ctx context.Context, docs []models.Document) (*models.Dataset, error) {
	docs, err := ingestion_engine.NormalizeDocuments(docs)
	if err != nil {
		return nil, err
	}

	ds := &models.Dataset{ID: NewDatasetID(), Status: models.DatasetStatusPending}
	if err := s.store.CreateDataset(ctx, ds); err != nil {
		return nil, err
	}
	if err := s.ingestor.Enqueue(ctx, ingestion_engine.Job{DatasetID: ds.ID, Documents: docs}); err != nil {
		return nil, fmt.Errorf("schedule ingestion: %w", err)
	}

	s.log.Info().Str("dataset_id", ds.ID).Int("documents", len(docs)).Msg("dataset created")
	ds.Documents = docs
	return ds, nil
}

func (s *DatasetService) Get(ctx context.Context, id string) (*models.Dataset, error) {
	return s.store.GetDataset(ctx, id)
}

// Update schedules a reconciliation of id against docs.
func (s *DatasetService) Update(ctx context.Context, id string, docs []models.Document) error {
	docs, err := ingestion_engine.NormalizeDocuments(docs)
	if err != nil {
		return err
	}
	if _, err := s.store.GetDataset(ctx, id); err != nil {
		return err
	}
	if err := s.ingestor.Enqueue(ctx, ingestion_engine.Job{DatasetID: id, Documents: docs}); err != nil {
		return fmt.Errorf("schedule ingestion: %w", err)
	}
	s.log.Info().Str("dataset_id", id).Int("documents", len(docs)).Msg("dataset update scheduled")
	return nil
}

// Preview runs the pipeline for document uid of docs without persisting and
// returns at most n segments.
func (s *DatasetService) Preview(ctx context.Context, id, uid string, docs []models.Document, n int) ([]models.Segment, error) {
	docs, err := ingestion_engine.NormalizeDocuments(docs)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetDataset(ctx, id); err != nil {
		return nil, err
	}

	var target *models.Document
	for i := range docs {
		if docs[i].UID == uid {
			target = &docs[i]
			break
		}
	}
	if target == nil {
		return nil, core.ErrUIDNotFound
	}

	_, segments, err := s.pipeline.Process(ctx, id, *target)
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(segments) > n {
		segments = segments[:n]
	}
	return segments, nil
}

// Delete removes the dataset once no reconciliation is running for it.
func (s *DatasetService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.store.DeleteDataset(ctx, id); err != nil {
		return err
	}
	if err := s.index.DeleteDataset(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("dataset_id", id).Msg("vector cleanup failed")
	}
	s.log.Info().Str("dataset_id", id).Msg("dataset deleted")
	return nil
}

// Query ranks the dataset's segments against content.
func (s *DatasetService) Query(ctx context.Context, id, content string, limit int) ([]models.ScoredSegment, error) {
	if _, err := s.store.GetDataset(ctx, id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, core.ErrEmptyContent
	}
	return s.index.Query(ctx, id, content, limit)
}
