package services

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/core/coretest"
	db "github.com/markdave123-py/contexta-datasets/internal/core/database"
	"github.com/markdave123-py/contexta-datasets/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

// queueRecorder is an Ingestor that only records jobs.
type queueRecorder struct {
	mu   sync.Mutex
	jobs []ingestion_engine.Job
}

func (q *queueRecorder) Start(context.Context, int) {}

func (q *queueRecorder) Enqueue(_ context.Context, job ingestion_engine.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *queueRecorder) ProcessOne(context.Context, ingestion_engine.Job) error { return nil }

type fixture struct {
	store    *db.MemoryStore
	index    *coretest.Index
	objects  *coretest.Objects
	gate     *ingestion_engine.DocumentGate
	queue    *queueRecorder
	datasets *DatasetService
	segments *SegmentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   db.NewMemoryStore(),
		index:   coretest.NewIndex(),
		objects: coretest.NewObjects(),
		gate:    ingestion_engine.NewDocumentGate(),
		queue:   &queueRecorder{},
	}
	handlers := ingestion_engine.NewRegistry(f.objects, coretest.NewAnnotations(), coretest.TextExtractor{}, ingestion_engine.NewCharacterSplitter())
	pipeline := ingestion_engine.NewPipeline(handlers, f.index, zerolog.Nop())
	f.datasets = NewDatasetService(f.store, f.index, f.queue, pipeline, ingestion_engine.NewKeyedMutex(), zerolog.Nop())
	f.segments = NewSegmentService(f.store, f.index, f.gate, nil, zerolog.Nop())
	return f
}

// seed stores dataset d1 with document u1 holding the given segment contents.
func (f *fixture) seed(t *testing.T, contents ...string) models.Document {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.CreateDataset(ctx, &models.Dataset{ID: "d1"}))

	doc := models.Document{
		UID: "u1", URL: "url", Type: models.DocumentTypePDF,
		SplitOption: models.SplitOption{SplitType: models.SplitTypeCharacter, ChunkSize: 100},
		PageSize:    len(contents), NextOrdinal: len(contents),
	}
	segs := ingestion_engine.AssignIdentity("d1", doc, contents)
	require.NoError(t, f.store.ApplyChanges(ctx, "d1", models.DocumentChanges{Save: []models.DocumentWrite{{Document: doc, Segments: segs}}}))
	require.NoError(t, f.index.Upsert(ctx, "d1", segs))
	return doc
}

func pageContents(p *models.SegmentPage) []string {
	out := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		out[i] = s.Content
	}
	return out
}

func TestDatasetService_CreateSchedulesJob(t *testing.T) {
	f := newFixture(t)
	docs := []models.Document{{UID: "a", URL: "a.pdf", Type: models.DocumentTypePDF}}

	ds, err := f.datasets.Create(context.Background(), docs)
	require.NoError(t, err)
	assert.Len(t, ds.ID, 32)
	assert.NotContains(t, ds.ID, "-")
	assert.Equal(t, models.DatasetStatusPending, ds.Status)

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, ds.ID, f.queue.jobs[0].DatasetID)
	assert.Equal(t, 100, f.queue.jobs[0].Documents[0].SplitOption.ChunkSize)
}

func TestDatasetService_CreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.datasets.Create(ctx, []models.Document{{UID: "a"}, {UID: "a"}})
	assert.ErrorIs(t, err, core.ErrDuplicateDocument)

	_, err = f.datasets.Create(ctx, []models.Document{{UID: "a", SplitOption: models.SplitOption{ChunkSize: 4, ChunkOverlap: 9}}})
	var invalid *core.InvalidSplitOptionError
	assert.ErrorAs(t, err, &invalid)

	assert.Empty(t, f.queue.jobs)
}

func TestDatasetService_UpdateUnknownDataset(t *testing.T) {
	f := newFixture(t)
	err := f.datasets.Update(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)
}

func TestDatasetService_Preview(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "x")
	f.objects.Put("p.pdf", "one two three four five six")
	ctx := context.Background()

	docs := []models.Document{{UID: "p", URL: "p.pdf", Type: models.DocumentTypePDF, SplitOption: models.SplitOption{ChunkSize: 7}}}
	segs, err := f.datasets.Preview(ctx, "d1", "p", docs, 2)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "one two", segs[0].Content)
	assert.Equal(t, "d1-p.pdf-1", segs[1].SegmentID)

	_, err = f.store.ListSegments(ctx, "d1", "p")
	assert.ErrorIs(t, err, core.ErrUIDNotFound, "preview must not persist")

	_, err = f.datasets.Preview(ctx, "d1", "other", docs, 2)
	assert.ErrorIs(t, err, core.ErrUIDNotFound)
}

func TestDatasetService_Delete(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", "b")
	ctx := context.Background()

	require.NoError(t, f.datasets.Delete(ctx, "d1"))
	assert.Zero(t, f.index.Len("d1"))

	_, err := f.datasets.Get(ctx, "d1")
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)
	assert.ErrorIs(t, f.datasets.Delete(ctx, "d1"), core.ErrDatasetNotFound)
}

func TestDatasetService_Query(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "apples", "pears", "apple pie")
	ctx := context.Background()

	hits, err := f.datasets.Query(ctx, "d1", "apple", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = f.datasets.Query(ctx, "d1", "  ", 1)
	assert.ErrorIs(t, err, core.ErrEmptyContent)

	_, err = f.datasets.Query(ctx, "nope", "apple", 1)
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)
}

func TestSegmentService_ListPagination(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s0", "s1", "s2", "s3", "s4")
	ctx := context.Background()

	tests := []struct {
		name   string
		offset int
		limit  int
		want   []string
	}{
		{"first page", 0, 2, []string{"s0", "s1"}},
		{"middle", 2, 2, []string{"s2", "s3"}},
		{"tail", 4, 10, []string{"s4"}},
		{"past end", 9, 2, []string{}},
		{"negative offset", -3, 1, []string{"s0"}},
		{"negative limit", 0, -1, []string{}},
		{"max int limit", 1, math.MaxInt, []string{"s1", "s2", "s3", "s4"}},
		{"max int offset", math.MaxInt, math.MaxInt, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.segments.List(ctx, "d1", "u1", tt.offset, tt.limit, "")
			require.NoError(t, err)
			assert.Equal(t, 5, page.TotalItems)
			assert.Equal(t, tt.want, pageContents(page))
		})
	}
}

func TestSegmentService_ListQuery(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Apple tart", "apple pie", "pear", "apple jam")
	ctx := context.Background()

	page, err := f.segments.List(ctx, "d1", "u1", 1, 10, "apple")
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalItems, "filter is case-sensitive")
	assert.Equal(t, []string{"apple jam"}, pageContents(page))
}

func TestSegmentService_ListErrors(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a")
	ctx := context.Background()

	_, err := f.segments.List(ctx, "nope", "u1", 0, 10, "")
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)
	_, err = f.segments.List(ctx, "d1", "nope", 0, 10, "")
	assert.ErrorIs(t, err, core.ErrUIDNotFound)
}

func TestSegmentService_AddUsesNextOrdinal(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", "b", "c")
	ctx := context.Background()

	require.NoError(t, f.segments.Delete(ctx, "d1", "u1", "d1-url-2"))

	seg, err := f.segments.Add(ctx, "d1", "u1", "appended")
	require.NoError(t, err)
	assert.Equal(t, "d1-url-3", seg.SegmentID, "deleted ordinals are never reused")
	assert.Equal(t, 3, seg.PageNumber)
	assert.Equal(t, "d1-url-3", seg.Metadata["urn"])

	ds, err := f.store.GetDataset(ctx, "d1")
	require.NoError(t, err)
	doc, _ := ds.Document("u1")
	assert.Equal(t, 3, doc.PageSize)

	_, err = f.segments.Add(ctx, "d1", "u1", " ")
	assert.ErrorIs(t, err, core.ErrEmptyContent)
	_, err = f.segments.Add(ctx, "d1", "missing", "x")
	assert.ErrorIs(t, err, core.ErrUIDNotFound)
}

func TestSegmentService_EditInPlace(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", "b")
	ctx := context.Background()

	seg, err := f.segments.Edit(ctx, "d1", "u1", "d1-url-1", "bee")
	require.NoError(t, err)
	assert.Equal(t, "d1-url-1", seg.SegmentID)
	assert.Equal(t, 1, seg.PageNumber)

	page, err := f.segments.List(ctx, "d1", "u1", 0, 10, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bee"}, pageContents(page))

	_, err = f.segments.Edit(ctx, "d1", "u1", "d1-url-9", "x")
	assert.ErrorIs(t, err, core.ErrSegmentNotFound)
}

func TestSegmentService_EditWhitespaceReplaces(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", "b", "c")
	ctx := context.Background()

	seg, err := f.segments.Edit(ctx, "d1", "u1", "d1-url-1", "   ")
	require.NoError(t, err)
	require.NotNil(t, seg)
	assert.Equal(t, "d1-url-1", seg.SegmentID)

	page, err := f.segments.List(ctx, "d1", "u1", 0, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, []string{"a", "   ", "c"}, pageContents(page))
}

func TestSegmentService_EditEmptyDeletes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", "b", "c")
	ctx := context.Background()

	seg, err := f.segments.Edit(ctx, "d1", "u1", "d1-url-1", "")
	require.NoError(t, err)
	assert.Nil(t, seg)

	page, err := f.segments.List(ctx, "d1", "u1", 0, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalItems)
	assert.Equal(t, "d1-url-0", page.Segments[0].SegmentID)
	assert.Equal(t, "d1-url-2", page.Segments[1].SegmentID, "no renumbering")
	assert.Equal(t, 2, f.index.Len("d1"))
}

func TestSegmentService_BusyDocument(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a")
	ctx := context.Background()

	key := ingestion_engine.DocumentKey{DatasetID: "d1", UID: "u1"}
	f.gate.EnterIngest(key)
	defer f.gate.Leave(key)

	_, err := f.segments.Add(ctx, "d1", "u1", "x")
	assert.ErrorIs(t, err, core.ErrDocumentBusy)
	_, err = f.segments.Edit(ctx, "d1", "u1", "d1-url-0", "x")
	assert.ErrorIs(t, err, core.ErrDocumentBusy)
	assert.ErrorIs(t, f.segments.Delete(ctx, "d1", "u1", "d1-url-0"), core.ErrDocumentBusy)
}
