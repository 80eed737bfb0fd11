// Package vectorindex keeps segment embeddings next to the segment store.
package vectorindex

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

var _ core.VectorIndex = (*PgVectorIndex)(nil)

// PgVectorIndex stores one embedding per segment in segment_vectors and
// ranks by cosine distance.
type PgVectorIndex struct {
	db       *sql.DB
	embedder core.EmbeddingProvider
}

func NewPgVectorIndex(db *sql.DB, embedder core.EmbeddingProvider) *PgVectorIndex {
	return &PgVectorIndex{db: db, embedder: embedder}
}

func (x *PgVectorIndex) Upsert(ctx context.Context, datasetID string, segments []models.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Content
	}
	vecs, err := x.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed segments: %w", err)
	}
	if len(vecs) != len(segments) {
		return fmt.Errorf("%w: %d embeddings for %d segments", core.ErrUpstreamFormat, len(vecs), len(segments))
	}

	tx, err := x.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO segment_vectors (dataset_id, document_uid, segment_id, page_number, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dataset_id, document_uid, segment_id) DO UPDATE SET
			page_number = EXCLUDED.page_number,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range segments {
		s := &segments[i]
		if _, err := stmt.ExecContext(ctx,
			datasetID, s.DocumentUID, s.SegmentID, s.PageNumber, s.Content, pgvector.NewVector(vecs[i]),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert vector %s: %w", s.SegmentID, err)
		}
	}
	return tx.Commit()
}

func (x *PgVectorIndex) DeleteDocument(ctx context.Context, datasetID, uid string) error {
	_, err := x.db.ExecContext(ctx,
		`DELETE FROM segment_vectors WHERE dataset_id = $1 AND document_uid = $2`, datasetID, uid)
	return err
}

func (x *PgVectorIndex) DeleteSegment(ctx context.Context, datasetID, uid, segmentID string) error {
	_, err := x.db.ExecContext(ctx,
		`DELETE FROM segment_vectors WHERE dataset_id = $1 AND document_uid = $2 AND segment_id = $3`,
		datasetID, uid, segmentID)
	return err
}

func (x *PgVectorIndex) DeleteDataset(ctx context.Context, datasetID string) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM segment_vectors WHERE dataset_id = $1`, datasetID)
	return err
}

// Query returns the limit segments closest to text, best first.
func (x *PgVectorIndex) Query(ctx context.Context, datasetID, text string, limit int) ([]models.ScoredSegment, error) {
	if limit <= 0 {
		return []models.ScoredSegment{}, nil
	}

	vecs, err := x.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: %d embeddings for one query", core.ErrUpstreamFormat, len(vecs))
	}

	const q = `
		SELECT document_uid, segment_id, page_number, content, embedding <=> $2 AS distance
		FROM segment_vectors
		WHERE dataset_id = $1
		ORDER BY distance ASC
		LIMIT $3
	`
	rows, err := x.db.QueryContext(ctx, q, datasetID, pgvector.NewVector(vecs[0]), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ScoredSegment{}
	for rows.Next() {
		var (
			s        models.ScoredSegment
			distance float64
		)
		if err := rows.Scan(&s.DocumentUID, &s.SegmentID, &s.PageNumber, &s.Content, &distance); err != nil {
			return nil, err
		}
		s.DatasetID = datasetID
		s.Score = 1 - distance
		out = append(out, s)
	}
	return out, rows.Err()
}
