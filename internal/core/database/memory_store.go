package db

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

var _ core.DatasetStore = (*MemoryStore)(nil)

type memoryDataset struct {
	dataset   models.Dataset
	documents []models.Document
	segments  map[string][]models.Segment // by document uid
}

// MemoryStore is a DatasetStore kept in process memory. Every read returns copies.
type MemoryStore struct {
	mu       sync.RWMutex
	datasets map[string]*memoryDataset
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{datasets: make(map[string]*memoryDataset), now: time.Now}
}

func (m *MemoryStore) CreateDataset(_ context.Context, ds *models.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.datasets[ds.ID]; ok {
		return fmt.Errorf("%w: %s", core.ErrDatasetExists, ds.ID)
	}
	now := m.now()
	ds.CreatedAt, ds.UpdatedAt = now, now

	rec := &memoryDataset{dataset: *ds, segments: make(map[string][]models.Segment)}
	rec.dataset.Documents = nil
	m.datasets[ds.ID] = rec
	return nil
}

func (m *MemoryStore) GetDataset(_ context.Context, id string) (*models.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.datasets[id]
	if !ok {
		return nil, core.ErrDatasetNotFound
	}
	ds := rec.dataset
	ds.Documents = append([]models.Document{}, rec.documents...)
	return &ds, nil
}

func (m *MemoryStore) DeleteDataset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.datasets[id]; !ok {
		return core.ErrDatasetNotFound
	}
	delete(m.datasets, id)
	return nil
}

func (m *MemoryStore) SetDatasetStatus(_ context.Context, id string, status models.DatasetStatus, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.datasets[id]
	if !ok {
		return core.ErrDatasetNotFound
	}
	rec.dataset.Status = status
	rec.dataset.LastError = lastError
	rec.dataset.UpdatedAt = m.now()
	return nil
}

// ApplyChanges validates every removal before touching anything, so a
// failure leaves the dataset as it was.
func (m *MemoryStore) ApplyChanges(_ context.Context, datasetID string, changes models.DocumentChanges) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.datasets[datasetID]
	if !ok {
		return core.ErrDatasetNotFound
	}
	for _, uid := range changes.Remove {
		if rec.indexOf(uid) < 0 {
			return fmt.Errorf("%w: %s", core.ErrUIDNotFound, uid)
		}
	}

	for _, uid := range changes.Remove {
		i := rec.indexOf(uid)
		if i < 0 {
			continue
		}
		rec.documents = append(rec.documents[:i], rec.documents[i+1:]...)
		delete(rec.segments, uid)
	}

	for _, w := range changes.Save {
		if i := rec.indexOf(w.Document.UID); i >= 0 {
			rec.documents[i] = w.Document
		} else {
			rec.documents = append(rec.documents, w.Document)
		}
		copied := make([]models.Segment, len(w.Segments))
		for i, s := range w.Segments {
			copied[i] = copySegment(s)
		}
		rec.segments[w.Document.UID] = copied
	}

	if len(changes.Order) > 0 {
		rank := make(map[string]int, len(changes.Order))
		for i, uid := range changes.Order {
			rank[uid] = i
		}
		sort.SliceStable(rec.documents, func(i, j int) bool {
			ri, iok := rank[rec.documents[i].UID]
			rj, jok := rank[rec.documents[j].UID]
			if iok != jok {
				return iok
			}
			return ri < rj
		})
	}

	rec.dataset.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) ListSegments(_ context.Context, datasetID, uid string) ([]models.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.document(datasetID, uid)
	if err != nil {
		return nil, err
	}
	out := make([]models.Segment, 0, len(rec.segments[uid]))
	for _, s := range rec.segments[uid] {
		out = append(out, copySegment(s))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

func (m *MemoryStore) AppendSegment(_ context.Context, datasetID, uid string, seg models.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.document(datasetID, uid)
	if err != nil {
		return err
	}
	rec.segments[uid] = append(rec.segments[uid], copySegment(seg))

	d := &rec.documents[rec.indexOf(uid)]
	d.PageSize++
	if seg.PageNumber >= d.NextOrdinal {
		d.NextOrdinal = seg.PageNumber + 1
	}
	return nil
}

func (m *MemoryStore) UpdateSegment(_ context.Context, datasetID, uid, segmentID, content string) (*models.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.document(datasetID, uid)
	if err != nil {
		return nil, err
	}
	for i := range rec.segments[uid] {
		s := &rec.segments[uid][i]
		if s.SegmentID == segmentID {
			s.Content = content
			out := copySegment(*s)
			return &out, nil
		}
	}
	return nil, core.ErrSegmentNotFound
}

func (m *MemoryStore) DeleteSegment(_ context.Context, datasetID, uid, segmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.document(datasetID, uid)
	if err != nil {
		return err
	}
	segs := rec.segments[uid]
	for i := range segs {
		if segs[i].SegmentID == segmentID {
			rec.segments[uid] = append(segs[:i], segs[i+1:]...)
			d := &rec.documents[rec.indexOf(uid)]
			if d.PageSize > 0 {
				d.PageSize--
			}
			return nil
		}
	}
	return core.ErrSegmentNotFound
}

func (m *MemoryStore) Close() error { return nil }

// document must be called with m.mu held.
func (m *MemoryStore) document(datasetID, uid string) (*memoryDataset, error) {
	rec, ok := m.datasets[datasetID]
	if !ok {
		return nil, core.ErrDatasetNotFound
	}
	if rec.indexOf(uid) < 0 {
		return nil, core.ErrUIDNotFound
	}
	return rec, nil
}

func (r *memoryDataset) indexOf(uid string) int {
	for i, d := range r.documents {
		if d.UID == uid {
			return i
		}
	}
	return -1
}

func copySegment(s models.Segment) models.Segment {
	s.Metadata = maps.Clone(s.Metadata)
	return s
}
