package text

import (
	"errors"
	"fmt"
	"iter"
	"unicode"

	"ragpipe/internal/domain"
)

type Boundary string

const (
	BoundaryParagraph Boundary = "paragraph"
	BoundarySentence  Boundary = "sentence"
	BoundaryNone      Boundary = "none"
)

type Config struct {
	// TargetSize is the nominal chunk length in characters.
	TargetSize int
	// Overlap is how many trailing characters of a chunk are repeated at the
	// start of the next one.
	Overlap int
	// Tolerance is how far before TargetSize a natural boundary may end a
	// chunk. It never exceeds Overlap so every non-final chunk stays within
	// [TargetSize-Overlap, TargetSize].
	Tolerance int
	Boundary  Boundary
}

func (c Config) Validate() error {
	if c.TargetSize <= 0 {
		return errors.New("segmenter: target size must be greater than zero")
	}
	if c.Overlap < 0 {
		return errors.New("segmenter: overlap cannot be negative")
	}
	if c.Overlap >= c.TargetSize {
		return fmt.Errorf("segmenter: overlap %d must be smaller than target size %d", c.Overlap, c.TargetSize)
	}
	if c.Tolerance < 0 || c.Tolerance > c.Overlap {
		return fmt.Errorf("segmenter: tolerance %d must be between 0 and overlap %d", c.Tolerance, c.Overlap)
	}
	switch c.Boundary {
	case BoundaryParagraph, BoundarySentence, BoundaryNone, "":
	default:
		return fmt.Errorf("segmenter: unknown boundary policy %q", c.Boundary)
	}
	return nil
}

type boundaryFunc func(r []rune, p int) bool

// Segmenter splits document text into overlapping chunks, preferring natural
// boundaries (paragraph, line, sentence, word) near the end of each chunk.
type Segmenter struct {
	cfg    Config
	levels []boundaryFunc
}

func NewSegmenter(cfg Config) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Boundary == "" {
		cfg.Boundary = BoundaryParagraph
	}
	s := &Segmenter{cfg: cfg}
	switch cfg.Boundary {
	case BoundaryParagraph:
		s.levels = []boundaryFunc{isParagraphBreak, isLineBreak, isSentenceEnd, isWordBreak}
	case BoundarySentence:
		s.levels = []boundaryFunc{isSentenceEnd, isWordBreak}
	}
	return s, nil
}

func (s *Segmenter) Config() Config {
	return s.cfg
}

// Segment returns the chunks of doc as a lazy sequence. Each range over the
// sequence starts again from the beginning of the document. An empty
// document yields nothing.
func (s *Segmenter) Segment(doc domain.Document) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		r := []rune(doc.Text)
		n := len(r)
		if n == 0 {
			return
		}
		start := 0
		for pos := 0; ; pos++ {
			if n-start <= s.cfg.TargetSize {
				yield(s.chunk(doc.ID, pos, r, start, n))
				return
			}
			cut := s.cutPoint(r, start)
			if !yield(s.chunk(doc.ID, pos, r, start, cut)) {
				return
			}
			start = cut - s.cfg.Overlap
		}
	}
}

func (s *Segmenter) chunk(docID string, pos int, r []rune, start, end int) domain.Chunk {
	return domain.Chunk{
		ID:         domain.ChunkID(docID, pos),
		DocumentID: docID,
		Position:   pos,
		Start:      start,
		End:        end,
		Text:       string(r[start:end]),
	}
}

// cutPoint picks the end of the chunk starting at start. The caller
// guarantees that more than TargetSize characters remain.
func (s *Segmenter) cutPoint(r []rune, start int) int {
	hard := start + s.cfg.TargetSize
	lo := hard - s.cfg.Tolerance
	// the next chunk must start after this one
	if minCut := start + s.cfg.Overlap + 1; lo < minCut {
		lo = minCut
	}
	if lo >= hard {
		return hard
	}
	for _, isBoundary := range s.levels {
		for p := hard; p >= lo; p-- {
			if isBoundary(r, p) {
				return p
			}
		}
	}
	return hard
}

// Boundary predicates test whether a cut between r[p-1] and r[p] falls on
// the given kind of boundary.

func isParagraphBreak(r []rune, p int) bool {
	return p >= 2 && r[p-1] == '\n' && r[p-2] == '\n'
}

func isLineBreak(r []rune, p int) bool {
	return p >= 1 && r[p-1] == '\n'
}

func isSentenceEnd(r []rune, p int) bool {
	if p < 1 || p >= len(r) {
		return false
	}
	switch r[p-1] {
	case '.', '!', '?':
		return unicode.IsSpace(r[p])
	}
	return false
}

func isWordBreak(r []rune, p int) bool {
	return p >= 1 && unicode.IsSpace(r[p-1])
}
