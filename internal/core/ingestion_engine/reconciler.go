package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/metrics"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

// Effects summarises what a reconciliation did, by document uid.
type Effects struct {
	Added      []string          `json:"added"`
	Reingested []string          `json:"reingested"`
	Unchanged  []string          `json:"unchanged"`
	Removed    []string          `json:"removed"`
	Skipped    []SkippedDocument `json:"skipped,omitempty"`
}

// SkippedDocument is a document whose type or content could not be processed.
type SkippedDocument struct {
	UID    string `json:"uid"`
	Reason string `json:"reason"`
}

// NormalizeDocuments applies split option defaults and rejects duplicate
// uids. It runs before anything is fetched.
func NormalizeDocuments(docs []models.Document) ([]models.Document, error) {
	seen := make(map[string]struct{}, len(docs))
	out := make([]models.Document, len(docs))
	for i, d := range docs {
		if _, dup := seen[d.UID]; dup {
			return nil, fmt.Errorf("%w: %s", core.ErrDuplicateDocument, d.UID)
		}
		seen[d.UID] = struct{}{}

		opt, err := ParseSplitOption(d.SplitOption)
		if err != nil {
			return nil, err
		}
		d.SplitOption = opt
		out[i] = d
	}
	return out, nil
}

// Reconciler brings a dataset's stored documents in line with a desired list,
// touching only documents whose source changed.
type Reconciler struct {
	pipeline    *Pipeline
	store       core.DatasetStore
	index       core.VectorIndex
	gate        *DocumentGate
	parallelism int
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

func NewReconciler(pipeline *Pipeline, store core.DatasetStore, index core.VectorIndex, gate *DocumentGate, parallelism int, m *metrics.Metrics, log zerolog.Logger) *Reconciler {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Reconciler{
		pipeline: pipeline, store: store, index: index, gate: gate,
		parallelism: parallelism, metrics: m, log: log,
	}
}

type ingestOp struct {
	doc      models.Document
	existing bool

	// filled in by the process phase
	processed models.Document
	segments  []models.Segment
	skipped   string
}

// Reconcile diffs the stored documents of datasetID against desired in three
// phases. Changed documents are processed in parallel first; a FetchError
// there aborts the run before anything is written. Their vectors are then
// replaced, and finally all removals, saves and the new order are committed
// to the store in one ApplyChanges call. Unsupported or undecodable documents
// are skipped and reported.
func (r *Reconciler) Reconcile(ctx context.Context, datasetID string, desired []models.Document) (Effects, error) {
	start := time.Now()
	defer r.metrics.ObserveReconcile(start)

	var eff Effects

	desired, err := NormalizeDocuments(desired)
	if err != nil {
		return eff, err
	}

	ds, err := r.store.GetDataset(ctx, datasetID)
	if err != nil {
		return eff, err
	}

	previous := make(map[string]models.Document, len(ds.Documents))
	for _, d := range ds.Documents {
		previous[d.UID] = d
	}
	wanted := make(map[string]struct{}, len(desired))

	var ops []*ingestOp
	for _, d := range desired {
		wanted[d.UID] = struct{}{}
		prev, ok := previous[d.UID]
		switch {
		case !ok:
			ops = append(ops, &ingestOp{doc: d})
		case prev.SameSource(d):
			eff.Unchanged = append(eff.Unchanged, d.UID)
		default:
			ops = append(ops, &ingestOp{doc: d, existing: true})
		}
	}
	var removed []string
	for _, d := range ds.Documents {
		if _, ok := wanted[d.UID]; !ok {
			removed = append(removed, d.UID)
		}
	}

	// Mutations on every touched document wait or fail busy until the commit.
	keys := make([]DocumentKey, 0, len(ops)+len(removed))
	for _, op := range ops {
		keys = append(keys, DocumentKey{DatasetID: datasetID, UID: op.doc.UID})
	}
	for _, uid := range removed {
		keys = append(keys, DocumentKey{DatasetID: datasetID, UID: uid})
	}
	for _, k := range keys {
		r.gate.EnterIngest(k)
	}
	defer func() {
		for _, k := range keys {
			r.gate.Leave(k)
		}
	}()

	if err := r.process(ctx, datasetID, ops); err != nil {
		return eff, err
	}

	for _, uid := range removed {
		if err := r.index.DeleteDocument(ctx, datasetID, uid); err != nil {
			r.log.Warn().Err(err).Str("dataset_id", datasetID).Str("uid", uid).Msg("vector cleanup failed")
		}
	}

	changes := models.DocumentChanges{Remove: removed}
	saved := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		if op.skipped != "" {
			continue
		}
		if err := r.pipeline.Index(ctx, datasetID, op.processed, op.segments); err != nil {
			return eff, err
		}
		changes.Save = append(changes.Save, models.DocumentWrite{Document: op.processed, Segments: op.segments})
		saved[op.doc.UID] = struct{}{}
	}

	// Skipped documents that were stored before keep their previous segments.
	for _, d := range desired {
		_, stored := previous[d.UID]
		if _, ok := saved[d.UID]; ok || stored {
			changes.Order = append(changes.Order, d.UID)
		}
	}
	if err := r.store.ApplyChanges(ctx, datasetID, changes); err != nil {
		return eff, fmt.Errorf("commit documents: %w", err)
	}

	eff.Removed = removed
	for _, op := range ops {
		switch {
		case op.skipped != "":
			eff.Skipped = append(eff.Skipped, SkippedDocument{UID: op.doc.UID, Reason: op.skipped})
		case op.existing:
			eff.Reingested = append(eff.Reingested, op.doc.UID)
		default:
			eff.Added = append(eff.Added, op.doc.UID)
		}
		if op.skipped == "" {
			r.metrics.RecordDocument(string(op.doc.Type), "ok", len(op.segments))
		}
	}

	r.log.Info().
		Str("dataset_id", datasetID).
		Int("added", len(eff.Added)).
		Int("reingested", len(eff.Reingested)).
		Int("unchanged", len(eff.Unchanged)).
		Int("removed", len(eff.Removed)).
		Int("skipped", len(eff.Skipped)).
		Msg("dataset reconciled")
	return eff, nil
}

// process runs the pipeline for every op with bounded parallelism. Document
// fatal errors mark the op skipped; any other error cancels the rest.
func (r *Reconciler) process(ctx context.Context, datasetID string, ops []*ingestOp) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for _, op := range ops {
		g.Go(func() error {
			doc, segments, err := r.pipeline.Process(gctx, datasetID, op.doc)
			switch {
			case err == nil:
				op.processed, op.segments = doc, segments
			case core.IsDocumentFatal(err):
				r.log.Warn().Err(err).Str("dataset_id", datasetID).Str("uid", op.doc.UID).Msg("skipping document")
				r.metrics.RecordDocument(string(op.doc.Type), "skipped", 0)
				op.skipped = err.Error()
			default:
				r.metrics.RecordDocument(string(op.doc.Type), "error", 0)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
