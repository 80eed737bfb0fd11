package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

func seg(id string, page int, content string) models.Segment {
	return models.Segment{SegmentID: id, PageNumber: page, Content: content, Metadata: map[string]any{"urn": id}}
}

func save(doc models.Document, segs ...models.Segment) models.DocumentChanges {
	return models.DocumentChanges{Save: []models.DocumentWrite{{Document: doc, Segments: segs}}}
}

func documentUIDs(t *testing.T, s *MemoryStore) []string {
	t.Helper()
	ds, err := s.GetDataset(context.Background(), "d1")
	require.NoError(t, err)
	var uids []string
	for _, d := range ds.Documents {
		uids = append(uids, d.UID)
	}
	return uids
}

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateDataset(ctx, &models.Dataset{ID: "d1", Status: models.DatasetStatusPending}))

	doc := models.Document{UID: "u1", URL: "url", Type: models.DocumentTypePDF, PageSize: 2, NextOrdinal: 2}
	require.NoError(t, s.ApplyChanges(ctx, "d1", save(doc, seg("d1-url-1", 1, "b"), seg("d1-url-0", 0, "a"))))
	return s
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	s := seededStore(t)
	err := s.CreateDataset(context.Background(), &models.Dataset{ID: "d1"})
	assert.ErrorIs(t, err, core.ErrDatasetExists)
}

func TestMemoryStore_ListSegmentsSortedByPage(t *testing.T) {
	s := seededStore(t)
	segs, err := s.ListSegments(context.Background(), "d1", "u1")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "d1-url-0", segs[0].SegmentID)
	assert.Equal(t, "d1-url-1", segs[1].SegmentID)
}

func TestMemoryStore_ListSegmentsErrors(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	_, err := s.ListSegments(ctx, "missing", "u1")
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)

	_, err = s.ListSegments(ctx, "d1", "missing")
	assert.ErrorIs(t, err, core.ErrUIDNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	segs, err := s.ListSegments(ctx, "d1", "u1")
	require.NoError(t, err)
	segs[0].Content = "mutated"
	segs[0].Metadata["urn"] = "mutated"

	again, err := s.ListSegments(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Content)
	assert.Equal(t, "d1-url-0", again[0].Metadata["urn"])
}

func TestMemoryStore_AppendAdvancesOrdinal(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendSegment(ctx, "d1", "u1", seg("d1-url-2", 2, "c")))

	ds, err := s.GetDataset(ctx, "d1")
	require.NoError(t, err)
	doc, ok := ds.Document("u1")
	require.True(t, ok)
	assert.Equal(t, 3, doc.PageSize)
	assert.Equal(t, 3, doc.NextOrdinal)
}

func TestMemoryStore_DeleteSegmentKeepsOrdinal(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	require.NoError(t, s.DeleteSegment(ctx, "d1", "u1", "d1-url-1"))
	assert.ErrorIs(t, s.DeleteSegment(ctx, "d1", "u1", "d1-url-1"), core.ErrSegmentNotFound)

	ds, err := s.GetDataset(ctx, "d1")
	require.NoError(t, err)
	doc, _ := ds.Document("u1")
	assert.Equal(t, 1, doc.PageSize)
	assert.Equal(t, 2, doc.NextOrdinal)
}

func TestMemoryStore_UpdateSegment(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	got, err := s.UpdateSegment(ctx, "d1", "u1", "d1-url-0", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Content)
	assert.Equal(t, 0, got.PageNumber)

	_, err = s.UpdateSegment(ctx, "d1", "u1", "nope", "x")
	assert.ErrorIs(t, err, core.ErrSegmentNotFound)
}

func TestMemoryStore_RemoveDocumentCascades(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyChanges(ctx, "d1", models.DocumentChanges{Remove: []string{"u1"}}))
	_, err := s.ListSegments(ctx, "d1", "u1")
	assert.ErrorIs(t, err, core.ErrUIDNotFound)
}

func TestMemoryStore_ApplyChangesOrder(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	changes := models.DocumentChanges{
		Save: []models.DocumentWrite{
			{Document: models.Document{UID: "u2"}},
			{Document: models.Document{UID: "u3"}},
		},
		Order: []string{"u3", "u1", "u2"},
	}
	require.NoError(t, s.ApplyChanges(ctx, "d1", changes))
	assert.Equal(t, []string{"u3", "u1", "u2"}, documentUIDs(t, s))
}

func TestMemoryStore_ApplyChangesIsAllOrNothing(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	changes := models.DocumentChanges{
		Remove: []string{"u1", "missing"},
		Save:   []models.DocumentWrite{{Document: models.Document{UID: "u2"}}},
		Order:  []string{"u2"},
	}
	assert.ErrorIs(t, s.ApplyChanges(ctx, "d1", changes), core.ErrUIDNotFound)

	assert.Equal(t, []string{"u1"}, documentUIDs(t, s))
	segs, err := s.ListSegments(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.Len(t, segs, 2)
}

func TestMemoryStore_ApplyChangesUnknownDataset(t *testing.T) {
	s := NewMemoryStore()
	err := s.ApplyChanges(context.Background(), "nope", models.DocumentChanges{})
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)
}

func TestMemoryStore_DeleteDataset(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	require.NoError(t, s.DeleteDataset(ctx, "d1"))
	_, err := s.GetDataset(ctx, "d1")
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)
	assert.ErrorIs(t, s.DeleteDataset(ctx, "d1"), core.ErrDatasetNotFound)
	assert.ErrorIs(t, s.SetDatasetStatus(ctx, "d1", models.DatasetStatusReady, ""), core.ErrDatasetNotFound)
}
