package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/contexta-datasets/internal/config"
	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

const pgUniqueViolation = "23505"

var _ core.DatasetStore = (*DatabaseClient)(nil)

// DatabaseClient is the Postgres DatasetStore.
type DatabaseClient struct {
	db *sql.DB
}

// Open connects to DATABASE_URL through the pgx stdlib driver and pings it.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// NewDatabaseClient opens the database, bootstraps the schema and returns the store.
func NewDatabaseClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*DatabaseClient, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := EnsureBootstrapped(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &DatabaseClient{db: db}, nil
}

// DB exposes the pool so the vector index can share it.
func (c *DatabaseClient) DB() *sql.DB { return c.db }

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Datasets

func (c *DatabaseClient) CreateDataset(ctx context.Context, ds *models.Dataset) error {
	if ds == nil {
		return errors.New("nil dataset")
	}
	const q = `
		INSERT INTO datasets (id, status, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING created_at, updated_at
	`
	err := c.db.QueryRowContext(ctx, q, ds.ID, string(ds.Status), ds.LastError).Scan(&ds.CreatedAt, &ds.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", core.ErrDatasetExists, ds.ID)
	}
	return err
}

func (c *DatabaseClient) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	const q = `
		SELECT id, status, last_error, created_at, updated_at
		FROM datasets WHERE id = $1
	`
	var (
		ds     models.Dataset
		status string
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(&ds.ID, &status, &ds.LastError, &ds.CreatedAt, &ds.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrDatasetNotFound
	}
	if err != nil {
		return nil, err
	}
	ds.Status = models.DatasetStatus(status)

	const qd = `
		SELECT uid, url, type, split_type, chunk_size, chunk_overlap, content_size, page_size, next_ordinal
		FROM documents
		WHERE dataset_id = $1
		ORDER BY position ASC, uid ASC
	`
	rows, err := c.db.QueryContext(ctx, qd, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ds.Documents = []models.Document{}
	for rows.Next() {
		var (
			d       models.Document
			docType string
		)
		if err := rows.Scan(
			&d.UID, &d.URL, &docType, &d.SplitOption.SplitType, &d.SplitOption.ChunkSize, &d.SplitOption.ChunkOverlap,
			&d.ContentSize, &d.PageSize, &d.NextOrdinal,
		); err != nil {
			return nil, err
		}
		d.Type = models.DocumentType(docType)
		ds.Documents = append(ds.Documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// DeleteDataset removes the dataset; documents, segments and vectors cascade.
func (c *DatabaseClient) DeleteDataset(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, core.ErrDatasetNotFound)
}

func (c *DatabaseClient) SetDatasetStatus(ctx context.Context, id string, status models.DatasetStatus, lastError string) error {
	const q = `
		UPDATE datasets
		SET status = $2, last_error = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, string(status), lastError)
	if err != nil {
		return err
	}
	return expectRow(res, core.ErrDatasetNotFound)
}

// Documents

// ApplyChanges runs the whole document rewrite in one transaction.
func (c *DatabaseClient) ApplyChanges(ctx context.Context, datasetID string, changes models.DocumentChanges) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM datasets WHERE id = $1 FOR UPDATE`, datasetID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrDatasetNotFound
		}
		if err != nil {
			return err
		}

		for _, uid := range changes.Remove {
			res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE dataset_id = $1 AND uid = $2`, datasetID, uid)
			if err != nil {
				return fmt.Errorf("remove document %s: %w", uid, err)
			}
			if err := expectRow(res, core.ErrUIDNotFound); err != nil {
				return fmt.Errorf("remove document %s: %w", uid, err)
			}
		}

		for _, w := range changes.Save {
			if err := saveDocument(ctx, tx, datasetID, w.Document, w.Segments); err != nil {
				return err
			}
		}

		for pos, uid := range changes.Order {
			if _, err := tx.ExecContext(ctx,
				`UPDATE documents SET position = $3 WHERE dataset_id = $1 AND uid = $2`, datasetID, uid, pos,
			); err != nil {
				return fmt.Errorf("reorder documents: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE datasets SET updated_at = now() WHERE id = $1`, datasetID)
		return err
	})
}

// saveDocument upserts doc and replaces its segments.
func saveDocument(ctx context.Context, tx *sql.Tx, datasetID string, doc models.Document, segments []models.Segment) error {
	const qDoc = `
		INSERT INTO documents
			(dataset_id, uid, url, type, split_type, chunk_size, chunk_overlap, content_size, page_size, next_ordinal, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM documents WHERE dataset_id = $1))
		ON CONFLICT (dataset_id, uid) DO UPDATE SET
			url = EXCLUDED.url,
			type = EXCLUDED.type,
			split_type = EXCLUDED.split_type,
			chunk_size = EXCLUDED.chunk_size,
			chunk_overlap = EXCLUDED.chunk_overlap,
			content_size = EXCLUDED.content_size,
			page_size = EXCLUDED.page_size,
			next_ordinal = EXCLUDED.next_ordinal
	`
	if _, err := tx.ExecContext(ctx, qDoc,
		datasetID, doc.UID, doc.URL, string(doc.Type), doc.SplitOption.SplitType, doc.SplitOption.ChunkSize,
		doc.SplitOption.ChunkOverlap, doc.ContentSize, doc.PageSize, doc.NextOrdinal,
	); err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.UID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM segments WHERE dataset_id = $1 AND document_uid = $2`, datasetID, doc.UID,
	); err != nil {
		return fmt.Errorf("clear segments of %s: %w", doc.UID, err)
	}
	return insertSegments(ctx, tx, datasetID, doc.UID, segments)
}

// Segments

func (c *DatabaseClient) ListSegments(ctx context.Context, datasetID, uid string) ([]models.Segment, error) {
	if err := c.checkDocument(ctx, c.db, datasetID, uid); err != nil {
		return nil, err
	}

	const q = `
		SELECT segment_id, page_number, content, metadata
		FROM segments
		WHERE dataset_id = $1 AND document_uid = $2
		ORDER BY page_number ASC
	`
	rows, err := c.db.QueryContext(ctx, q, datasetID, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Segment{}
	for rows.Next() {
		seg, err := scanSegment(rows, datasetID, uid)
		if err != nil {
			return nil, err
		}
		out = append(out, *seg)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) AppendSegment(ctx context.Context, datasetID, uid string, seg models.Segment) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if err := c.checkDocument(ctx, tx, datasetID, uid); err != nil {
			return err
		}
		if err := insertSegments(ctx, tx, datasetID, uid, []models.Segment{seg}); err != nil {
			return err
		}
		const q = `
			UPDATE documents
			SET page_size = page_size + 1, next_ordinal = GREATEST(next_ordinal, $3 + 1)
			WHERE dataset_id = $1 AND uid = $2
		`
		_, err := tx.ExecContext(ctx, q, datasetID, uid, seg.PageNumber)
		return err
	})
}

func (c *DatabaseClient) UpdateSegment(ctx context.Context, datasetID, uid, segmentID, content string) (*models.Segment, error) {
	var out *models.Segment
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		if err := c.checkDocument(ctx, tx, datasetID, uid); err != nil {
			return err
		}
		const q = `
			UPDATE segments SET content = $4
			WHERE dataset_id = $1 AND document_uid = $2 AND segment_id = $3
			RETURNING segment_id, page_number, content, metadata
		`
		seg, err := scanSegment(tx.QueryRowContext(ctx, q, datasetID, uid, segmentID, content), datasetID, uid)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrSegmentNotFound
		}
		out = seg
		return err
	})
	return out, err
}

func (c *DatabaseClient) DeleteSegment(ctx context.Context, datasetID, uid, segmentID string) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if err := c.checkDocument(ctx, tx, datasetID, uid); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM segments WHERE dataset_id = $1 AND document_uid = $2 AND segment_id = $3`,
			datasetID, uid, segmentID)
		if err != nil {
			return err
		}
		if err := expectRow(res, core.ErrSegmentNotFound); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET page_size = GREATEST(page_size - 1, 0) WHERE dataset_id = $1 AND uid = $2`,
			datasetID, uid)
		return err
	})
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// checkDocument distinguishes a missing dataset from a missing document.
func (c *DatabaseClient) checkDocument(ctx context.Context, q queryer, datasetID, uid string) error {
	const query = `
		SELECT
			EXISTS (SELECT 1 FROM datasets WHERE id = $1),
			EXISTS (SELECT 1 FROM documents WHERE dataset_id = $1 AND uid = $2)
	`
	var dsOK, docOK bool
	if err := q.QueryRowContext(ctx, query, datasetID, uid).Scan(&dsOK, &docOK); err != nil {
		return err
	}
	switch {
	case !dsOK:
		return core.ErrDatasetNotFound
	case !docOK:
		return core.ErrUIDNotFound
	}
	return nil
}

func insertSegments(ctx context.Context, tx *sql.Tx, datasetID, uid string, segments []models.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	const q = `
		INSERT INTO segments (dataset_id, document_uid, segment_id, page_number, content, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range segments {
		s := &segments[i]
		meta, err := json.Marshal(s.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", s.SegmentID, err)
		}
		if _, err := stmt.ExecContext(ctx, datasetID, uid, s.SegmentID, s.PageNumber, s.Content, meta); err != nil {
			return fmt.Errorf("insert segment %s: %w", s.SegmentID, err)
		}
	}
	return nil
}

func scanSegment(row rowScanner, datasetID, uid string) (*models.Segment, error) {
	var (
		s    models.Segment
		meta []byte
	)
	if err := row.Scan(&s.SegmentID, &s.PageNumber, &s.Content, &meta); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", s.SegmentID, err)
		}
	}
	s.DatasetID = datasetID
	s.DocumentUID = uid
	return &s, nil
}

func (c *DatabaseClient) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
