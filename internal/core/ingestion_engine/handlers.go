package ingestion_engine

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

// Handler is the per document type capability set of the pipeline.
type Handler interface {
	FetchAndExtract(ctx context.Context, doc models.Document) (string, error)
	Split(text string, opt models.SplitOption) []string
}

// Registry maps document types to their handler.
type Registry map[models.DocumentType]Handler

// NewRegistry wires the three built-in handlers around one shared splitter.
func NewRegistry(objects core.ObjectLoader, annotations core.AnnotationLoader, extractor core.DocumentExtractor, splitter CharacterSplitter) Registry {
	return Registry{
		models.DocumentTypePDF:       &pdfHandler{objects: objects, extractor: extractor, splitter: splitter},
		models.DocumentTypeWord:      &wordHandler{objects: objects, extractor: extractor, splitter: splitter},
		models.DocumentTypeAnnotated: &annotatedHandler{annotations: annotations},
	}
}

// Lookup returns the handler for t or an UnsupportedDocumentTypeError.
func (r Registry) Lookup(t models.DocumentType) (Handler, error) {
	h, ok := r[t]
	if !ok {
		return nil, &core.UnsupportedDocumentTypeError{Type: t}
	}
	return h, nil
}

type pdfHandler struct {
	objects   core.ObjectLoader
	extractor core.DocumentExtractor
	splitter  CharacterSplitter
}

func (h *pdfHandler) FetchAndExtract(ctx context.Context, doc models.Document) (string, error) {
	data, err := loadObject(ctx, h.objects, doc.URL)
	if err != nil {
		return "", err
	}
	text, err := h.extractor.ExtractPDF(ctx, data)
	if err != nil {
		return "", &core.ExtractionError{Locator: doc.URL, Err: err}
	}
	return text, nil
}

// Split windows every page separately so no chunk straddles a page break.
func (h *pdfHandler) Split(text string, opt models.SplitOption) []string {
	var chunks []string
	for _, page := range strings.Split(text, core.PageMarker) {
		if opt.SplitType == models.SplitTypePage {
			if page = strings.TrimSpace(page); page != "" {
				chunks = append(chunks, page)
			}
			continue
		}
		chunks = append(chunks, h.splitter.Split(page, opt.ChunkSize, opt.ChunkOverlap)...)
	}
	return chunks
}

type wordHandler struct {
	objects   core.ObjectLoader
	extractor core.DocumentExtractor
	splitter  CharacterSplitter
}

func (h *wordHandler) FetchAndExtract(ctx context.Context, doc models.Document) (string, error) {
	data, err := loadObject(ctx, h.objects, doc.URL)
	if err != nil {
		return "", err
	}
	text, err := h.extractor.ExtractWord(ctx, data, path.Base(doc.URL))
	if err != nil {
		return "", &core.ExtractionError{Locator: doc.URL, Err: err}
	}
	return text, nil
}

func (h *wordHandler) Split(text string, opt models.SplitOption) []string {
	return h.splitter.Split(text, opt.ChunkSize, opt.ChunkOverlap)
}

type annotatedHandler struct {
	annotations core.AnnotationLoader
}

func (h *annotatedHandler) FetchAndExtract(ctx context.Context, doc models.Document) (string, error) {
	text, err := h.annotations.Load(ctx, doc.UID)
	if err != nil {
		return "", asFetchError(doc.UID, err)
	}
	return text, nil
}

// Split keeps a transcript whole.
func (h *annotatedHandler) Split(text string, _ models.SplitOption) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []string{text}
}

func loadObject(ctx context.Context, objects core.ObjectLoader, locator string) ([]byte, error) {
	data, err := objects.Load(ctx, locator)
	if err != nil {
		return nil, asFetchError(locator, err)
	}
	return data, nil
}

// asFetchError keeps the loader's FetchError if it already returned one.
func asFetchError(locator string, err error) error {
	var fe *core.FetchError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, core.ErrUpstreamFormat) {
		return err
	}
	return &core.FetchError{Locator: locator, NotFound: errors.Is(err, core.ErrObjectNotFound), Err: err}
}
