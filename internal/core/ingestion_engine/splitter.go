package ingestion_engine

import (
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/models"
)

// CharacterSplitter windows text into chunks of at most ChunkSize runes,
// breaking only at Separator. A single piece longer than the window is
// emitted on its own rather than cut.
type CharacterSplitter struct {
	Separator string
}

// NewCharacterSplitter returns a splitter breaking on single spaces.
func NewCharacterSplitter() CharacterSplitter {
	return CharacterSplitter{Separator: " "}
}

// Split splits text with the given window. overlap must be smaller than size.
func (s CharacterSplitter) Split(text string, size, overlap int) []string {
	sep := s.Separator
	if sep == "" {
		sep = " "
	}

	var pieces []string
	for _, p := range strings.Split(text, sep) {
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return mergePieces(pieces, sep, size, overlap)
}

// mergePieces greedily joins pieces while the joined length fits in size,
// carrying a tail of at most overlap runes into the next chunk.
func mergePieces(pieces []string, sep string, size, overlap int) []string {
	sepLen := utf8.RuneCountInString(sep)
	joinCost := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var (
		chunks  []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n+joinCost(len(current)) > size && len(current) > 0 {
			if c := joinChunk(current, sep); c != "" {
				chunks = append(chunks, c)
			}
			for total > overlap || (total > 0 && total+n+joinCost(len(current)) > size) {
				total -= utf8.RuneCountInString(current[0]) + joinCost(len(current)-1)
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n + joinCost(len(current)-1)
	}
	if c := joinChunk(current, sep); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

func joinChunk(pieces []string, sep string) string {
	return strings.TrimSpace(strings.Join(pieces, sep))
}

// ParseSplitOption applies defaults and validates the window. It must run
// before any fetch so invalid options never cost a download.
func ParseSplitOption(opt models.SplitOption) (models.SplitOption, error) {
	if opt.SplitType == "" {
		opt.SplitType = models.SplitTypeCharacter
	}
	switch opt.SplitType {
	case models.SplitTypeCharacter, models.SplitTypePage:
	default:
		return opt, &core.InvalidSplitOptionError{Option: opt, Reason: "unknown split_type"}
	}
	if opt.ChunkSize < 0 || opt.ChunkOverlap < 0 {
		return opt, &core.InvalidSplitOptionError{Option: opt, Reason: "chunk_size and chunk_overlap must not be negative"}
	}
	if opt.ChunkSize == 0 {
		opt.ChunkSize = models.DefaultChunkSize
	}
	if opt.ChunkOverlap >= opt.ChunkSize {
		return opt, &core.InvalidSplitOptionError{Option: opt, Reason: "chunk_overlap must be smaller than chunk_size"}
	}
	return opt, nil
}
