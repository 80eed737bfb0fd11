// Package coretest provides in-memory fakes of the core collaborator
// interfaces for tests.
package coretest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

// Objects is an ObjectLoader over a map. Missing keys return ErrObjectNotFound.
type Objects struct {
	mu    sync.Mutex
	data  map[string][]byte
	errs  map[string]error
	calls map[string]int
}

func NewObjects() *Objects {
	return &Objects{data: map[string][]byte{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (o *Objects) Put(locator, content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.data[locator] = []byte(content)
}

// Fail makes every Load of locator return err until cleared with Fail(locator, nil).
func (o *Objects) Fail(locator string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err == nil {
		delete(o.errs, locator)
		return
	}
	o.errs[locator] = err
}

func (o *Objects) Load(_ context.Context, locator string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[locator]++
	if err, ok := o.errs[locator]; ok {
		return nil, err
	}
	data, ok := o.data[locator]
	if !ok {
		return nil, &core.FetchError{Locator: locator, NotFound: true, Err: core.ErrObjectNotFound}
	}
	return append([]byte(nil), data...), nil
}

// Calls returns how many times locator was loaded.
func (o *Objects) Calls(locator string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[locator]
}

// TotalCalls returns the number of loads across all locators.
func (o *Objects) TotalCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		n += c
	}
	return n
}

// Annotations is an AnnotationLoader over a map.
type Annotations struct {
	mu    sync.Mutex
	data  map[string]string
	calls int
}

func NewAnnotations() *Annotations {
	return &Annotations{data: map[string]string{}}
}

func (a *Annotations) Put(uid, transcript string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[uid] = transcript
}

func (a *Annotations) Load(_ context.Context, uid string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	text, ok := a.data[uid]
	if !ok {
		return "", &core.FetchError{Locator: uid, NotFound: true, Err: core.ErrObjectNotFound}
	}
	return text, nil
}

func (a *Annotations) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// ErrUndecodable is returned by TextExtractor for content starting with "!corrupt".
var ErrUndecodable = errors.New("undecodable content")

// TextExtractor treats object bytes as already extracted text, so fixtures
// can use "\f" to mark PDF pages.
type TextExtractor struct{}

func (TextExtractor) ExtractPDF(_ context.Context, data []byte) (string, error) {
	return decode(data)
}

func (TextExtractor) ExtractWord(_ context.Context, data []byte, _ string) (string, error) {
	return decode(data)
}

func decode(data []byte) (string, error) {
	s := string(data)
	if strings.HasPrefix(s, "!corrupt") {
		return "", ErrUndecodable
	}
	return s, nil
}

// Notification is one recorded webhook call.
type Notification struct {
	DatasetID string
	Status    int
}

// Notifier records status updates.
type Notifier struct {
	mu    sync.Mutex
	calls []Notification
}

func (n *Notifier) UpdateStatus(_ context.Context, datasetID string, status int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, Notification{DatasetID: datasetID, Status: status})
	return nil
}

func (n *Notifier) Calls() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.calls...)
}

// Index is a VectorIndex that keeps segments in memory and scores by
// substring match.
type Index struct {
	mu       sync.Mutex
	segments map[string]map[string]models.Segment // dataset -> segment id -> segment
	Err      error
}

func NewIndex() *Index {
	return &Index{segments: map[string]map[string]models.Segment{}}
}

func (x *Index) Upsert(_ context.Context, datasetID string, segments []models.Segment) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.Err != nil {
		return x.Err
	}
	if x.segments[datasetID] == nil {
		x.segments[datasetID] = map[string]models.Segment{}
	}
	for _, s := range segments {
		x.segments[datasetID][s.DocumentUID+"/"+s.SegmentID] = s
	}
	return nil
}

func (x *Index) DeleteDocument(_ context.Context, datasetID, uid string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.Err != nil {
		return x.Err
	}
	for k, s := range x.segments[datasetID] {
		if s.DocumentUID == uid {
			delete(x.segments[datasetID], k)
		}
	}
	return nil
}

func (x *Index) DeleteSegment(_ context.Context, datasetID, uid, segmentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.Err != nil {
		return x.Err
	}
	delete(x.segments[datasetID], uid+"/"+segmentID)
	return nil
}

func (x *Index) DeleteDataset(_ context.Context, datasetID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.Err != nil {
		return x.Err
	}
	delete(x.segments, datasetID)
	return nil
}

func (x *Index) Query(_ context.Context, datasetID, text string, limit int) ([]models.ScoredSegment, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.Err != nil {
		return nil, x.Err
	}
	var out []models.ScoredSegment
	for _, s := range x.segments[datasetID] {
		if strings.Contains(s.Content, text) {
			out = append(out, models.ScoredSegment{Segment: s, Score: 1})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentID < out[j].SegmentID })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of indexed segments of datasetID.
func (x *Index) Len(datasetID string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.segments[datasetID])
}
