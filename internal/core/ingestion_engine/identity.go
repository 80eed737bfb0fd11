package ingestion_engine

import (
	"fmt"

	"github.com/markdave123-py/contexta-datasets/internal/models"
)

// SegmentID builds the externally addressable id of a segment. The format is
// part of the public API: clients address segments by it for edit and delete.
func SegmentID(datasetID, locator string, ordinal int) string {
	return fmt.Sprintf("%s-%s-%d", datasetID, locator, ordinal)
}

// AssignIdentity numbers chunks from zero and derives their ids. It is a pure
// function of its inputs.
func AssignIdentity(datasetID string, doc models.Document, chunks []string) []models.Segment {
	segments := make([]models.Segment, len(chunks))
	for i, content := range chunks {
		segments[i] = NewSegment(datasetID, doc, i, content)
	}
	return segments
}

// NewSegment builds the segment at ordinal with its default metadata.
func NewSegment(datasetID string, doc models.Document, ordinal int, content string) models.Segment {
	id := SegmentID(datasetID, doc.Locator(), ordinal)
	return models.Segment{
		SegmentID:   id,
		DatasetID:   datasetID,
		DocumentUID: doc.UID,
		Content:     content,
		PageNumber:  ordinal,
		Metadata: map[string]any{
			"source":      doc.Locator(),
			"page_number": ordinal,
			"urn":         id,
		},
	}
}
