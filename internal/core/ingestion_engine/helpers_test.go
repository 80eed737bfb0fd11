package ingestion_engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-datasets/internal/core/coretest"
	db "github.com/markdave123-py/contexta-datasets/internal/core/database"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

type engine struct {
	objects     *coretest.Objects
	annotations *coretest.Annotations
	index       *coretest.Index
	store       *db.MemoryStore
	gate        *DocumentGate
	pipeline    *Pipeline
	reconciler  *Reconciler
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	e := &engine{
		objects:     coretest.NewObjects(),
		annotations: coretest.NewAnnotations(),
		index:       coretest.NewIndex(),
		store:       db.NewMemoryStore(),
		gate:        NewDocumentGate(),
	}
	handlers := NewRegistry(e.objects, e.annotations, coretest.TextExtractor{}, NewCharacterSplitter())
	e.pipeline = NewPipeline(handlers, e.index, zerolog.Nop())
	e.reconciler = NewReconciler(e.pipeline, e.store, e.index, e.gate, 4, nil, zerolog.Nop())
	return e
}

func (e *engine) createDataset(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.store.CreateDataset(context.Background(), &models.Dataset{ID: id, Status: models.DatasetStatusPending}))
}

func (e *engine) segments(t *testing.T, datasetID, uid string) []models.Segment {
	t.Helper()
	segs, err := e.store.ListSegments(context.Background(), datasetID, uid)
	require.NoError(t, err)
	return segs
}

func (e *engine) document(t *testing.T, datasetID, uid string) models.Document {
	t.Helper()
	ds, err := e.store.GetDataset(context.Background(), datasetID)
	require.NoError(t, err)
	doc, ok := ds.Document(uid)
	require.True(t, ok, "document %s not stored", uid)
	return doc
}

func (e *engine) documentUIDs(t *testing.T, datasetID string) []string {
	t.Helper()
	ds, err := e.store.GetDataset(context.Background(), datasetID)
	require.NoError(t, err)
	var uids []string
	for _, d := range ds.Documents {
		uids = append(uids, d.UID)
	}
	return uids
}

func pdfDoc(uid, url string, size int) models.Document {
	return models.Document{
		UID: uid, URL: url, Type: models.DocumentTypePDF,
		SplitOption: models.SplitOption{ChunkSize: size},
	}
}

func contents(segs []models.Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Content
	}
	return out
}
