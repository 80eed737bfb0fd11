package models

import (
	"time"
)

// DocumentType tags how a document is fetched, extracted and split.
type DocumentType string

const (
	DocumentTypePDF       DocumentType = "pdf"
	DocumentTypeWord      DocumentType = "word"
	DocumentTypeAnnotated DocumentType = "annotated_data"
)

// Split types accepted in SplitOption.SplitType.
const (
	SplitTypeCharacter = "character"
	SplitTypePage      = "page"
)

// Default window used when a document carries no split option.
const (
	DefaultChunkSize    = 100
	DefaultChunkOverlap = 0
)

// DatasetStatus tracks the background reconciliation of a dataset.
type DatasetStatus string

const (
	DatasetStatusPending    DatasetStatus = "pending"
	DatasetStatusProcessing DatasetStatus = "processing"
	DatasetStatusReady      DatasetStatus = "ready"
	DatasetStatusFailed     DatasetStatus = "failed"
)

// SplitOption controls the chunk window of a document.
type SplitOption struct {
	SplitType    string `json:"split_type,omitempty"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

// Dataset is a collection of documents and their derived segments.
type Dataset struct {
	ID        string        `db:"id" json:"id"`
	Documents []Document    `json:"documents"`
	Status    DatasetStatus `db:"status" json:"status"`
	LastError string        `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// Document is owned by exactly one dataset.
type Document struct {
	UID         string       `db:"uid" json:"uid"`
	URL         string       `db:"url" json:"url"`
	Type        DocumentType `db:"type" json:"type"`
	SplitOption SplitOption  `json:"split_option"`
	ContentSize int          `db:"content_size" json:"content_size"`
	PageSize    int          `db:"page_size" json:"page_size"`

	// NextOrdinal is the next segment ordinal that has never been assigned.
	NextOrdinal int `db:"next_ordinal" json:"-"`
}

// Locator is the identifier used to fetch the document and to build segment ids.
func (d Document) Locator() string {
	if d.Type == DocumentTypeAnnotated {
		return d.UID
	}
	return d.URL
}

// SameSource reports whether o would produce the same segments as d.
func (d Document) SameSource(o Document) bool {
	return d.URL == o.URL && d.Type == o.Type && d.SplitOption == o.SplitOption
}

// Document returns the dataset document with the given uid.
func (ds *Dataset) Document(uid string) (Document, bool) {
	for _, d := range ds.Documents {
		if d.UID == uid {
			return d, true
		}
	}
	return Document{}, false
}

// Segment is an addressable chunk of a document's extracted text.
type Segment struct {
	SegmentID   string         `db:"segment_id" json:"segment_id"`
	DatasetID   string         `db:"dataset_id" json:"-"`
	DocumentUID string         `db:"document_uid" json:"-"`
	Content     string         `db:"content" json:"content"`
	PageNumber  int            `db:"page_number" json:"page_number"`
	Metadata    map[string]any `db:"metadata" json:"metadata"`
}

// SegmentPage is one page of a segment listing.
type SegmentPage struct {
	TotalItems int       `json:"totalItems"`
	Segments   []Segment `json:"segments"`
}

// ScoredSegment is a vector index hit.
type ScoredSegment struct {
	Segment
	Score float64 `json:"score"`
}

// Code is the numeric status sent to the status webhook.
func (s DatasetStatus) Code() int {
	switch s {
	case DatasetStatusReady:
		return 0
	case DatasetStatusProcessing:
		return 1
	case DatasetStatusFailed:
		return 2
	default:
		return 3
	}
}

// DocumentWrite is a document upsert together with its full segment list.
type DocumentWrite struct {
	Document Document
	Segments []Segment
}

// DocumentChanges rewrites a dataset's documents in one step.
type DocumentChanges struct {
	Remove []string
	Save   []DocumentWrite
	// Order lists the final document order by uid. Stored uids missing
	// from it keep their relative order after the listed ones.
	Order []string
}
