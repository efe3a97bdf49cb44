package text

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// ErrEmptyDocument is returned when the input contains no words after trimming.
var ErrEmptyDocument = errors.New("document has no words")

// Chunk is one bounded-size, ordered slice of a document. Indexes are 0-based,
// dense, and unique within a document; concatenating all chunks in index order
// (with the separator they were packed with) preserves the document's word
// sequence exactly.
type Chunk struct {
	Index int
	Text  string
	Words int
}

// Policy controls how a document is split.
type Policy struct {
	// MaxChunkWords is the packing ceiling. A single paragraph or sentence
	// that alone exceeds it becomes its own oversized chunk instead of being
	// truncated.
	MaxChunkWords int

	// MinChunkWords is the floor chunks are packed toward. The final chunk
	// may fall short, as may a chunk that cannot be topped up without
	// crossing the ceiling.
	MinChunkWords int

	// LargeDocWords is the fallback threshold: a document above it that still
	// packed into a single chunk is re-split on sentence boundaries.
	LargeDocWords int
}

// Separator is the join convention used between packed units. The aggregator
// reuses it so chunk boundaries in the output match the input.
const Separator = "\n\n"

var (
	paragraphRe = regexp.MustCompile(`\n[ \t]*\n+`)
	// Sentence-terminal punctuation (optionally followed by closing quotes or
	// brackets) and the whitespace after it. A boundary only counts when the
	// next rune is an uppercase letter, checked separately since RE2 has no
	// lookahead.
	sentenceEndRe = regexp.MustCompile(`[.!?]["')\]]*\s+`)
)

// WordCount reports the number of whitespace-delimited words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Split breaks a document into ordered chunks. Paragraph-boundary packing is
// attempted first; when the document has fewer than two paragraphs, or a
// document above the large-document threshold still fits a single chunk, it
// falls back to sentence-boundary packing.
func Split(input string, pol Policy) ([]Chunk, error) {
	total := WordCount(input)
	if total == 0 {
		return nil, ErrEmptyDocument
	}

	paragraphs := splitParagraphs(input)

	var chunks []Chunk
	if len(paragraphs) >= 2 {
		chunks = pack(paragraphs, pol)
	}

	needFallback := len(paragraphs) < 2 ||
		(len(chunks) == 1 && total > pol.LargeDocWords && pol.LargeDocWords > 0)

	if needFallback {
		sentences := splitSentences(input)
		if len(sentences) >= 2 {
			chunks = pack(sentences, pol)
		} else if len(chunks) == 0 {
			// No usable boundaries at all: the whole document is one chunk.
			chunks = pack([]string{strings.TrimSpace(input)}, pol)
		}
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks, nil
}

func splitParagraphs(input string) []string {
	var out []string
	for _, p := range paragraphRe.Split(input, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(input string) []string {
	input = strings.TrimSpace(input)

	var out []string
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(input, -1) {
		rest := input[loc[1]:]
		if rest == "" {
			continue
		}
		first := []rune(rest)[0]
		if !unicode.IsUpper(first) {
			continue
		}
		s := strings.TrimSpace(input[last:loc[1]])
		if s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(input[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// pack greedily bins consecutive units into chunks of at most MaxChunkWords.
// Only a unit that alone exceeds the ceiling may produce an oversized chunk,
// and it is emitted on its own. A below-floor chunk in the middle of the
// document is repaired by shifting trailing units out of its predecessor when
// both chunks stay inside the bounds; when no arrangement of the units
// satisfies both bounds, the short chunk stands rather than overshooting the
// ceiling.
func pack(units []string, pol Policy) []Chunk {
	type bin struct {
		units []string
		words int
	}
	var bins []bin
	var cur bin

	flush := func() {
		if cur.words > 0 {
			bins = append(bins, cur)
			cur = bin{}
		}
	}

	for _, u := range units {
		w := WordCount(u)
		if w == 0 {
			continue
		}

		if w > pol.MaxChunkWords {
			flush()
			bins = append(bins, bin{units: []string{u}, words: w})
			continue
		}

		if cur.words+w > pol.MaxChunkWords {
			flush()
		}
		cur.units = append(cur.units, u)
		cur.words += w
	}
	flush()

	// Floor repair. Greedy packing strands a short bin when the unit after it
	// would have overflowed, so pulling from the successor never fits; pull
	// trailing units from the predecessor instead, stopping before either bin
	// leaves the bounds. The final bin may stay short.
	for i := 1; i < len(bins)-1; i++ {
		prev := &bins[i-1]
		for bins[i].words < pol.MinChunkWords && len(prev.units) > 1 {
			last := prev.units[len(prev.units)-1]
			w := WordCount(last)
			if bins[i].words+w > pol.MaxChunkWords || prev.words-w < pol.MinChunkWords {
				break
			}
			prev.units = prev.units[:len(prev.units)-1]
			prev.words -= w
			bins[i].units = append([]string{last}, bins[i].units...)
			bins[i].words += w
		}
	}

	chunks := make([]Chunk, 0, len(bins))
	for _, b := range bins {
		chunks = append(chunks, Chunk{Text: strings.Join(b.units, Separator), Words: b.words})
	}
	return chunks
}
