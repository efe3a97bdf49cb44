package pipeline

import (
	"strings"

	"redraft/internal/text"
)

// FailedChunkPlaceholder replaces the output of a failed chunk in the
// aggregated document. Failed chunks are marked, never silently dropped.
const FailedChunkPlaceholder = "[transformation unavailable for this section]"

// ChunkStats summarizes one chunk's outcome for callers.
type ChunkStats struct {
	Index          int     `json:"index"`
	InputWords     int     `json:"input_words"`
	OutputWords    int     `json:"output_words"`
	ExpansionRatio float64 `json:"expansion_ratio"`
	Attempts       int     `json:"attempts"`
	Succeeded      bool    `json:"succeeded"`
	Error          string  `json:"error,omitempty"`
}

// Statistics aggregates a whole job's outcome.
type Statistics struct {
	TotalInputWords  int          `json:"total_input_words"`
	TotalOutputWords int          `json:"total_output_words"`
	ExpansionRatio   float64      `json:"expansion_ratio"`
	Chunks           []ChunkStats `json:"chunks"`
	RetriedChunks    int          `json:"retried_chunks"`
	FatalFailures    int          `json:"fatal_failures"`
}

// Aggregate merges ordered chunk results into the final document and its
// statistics. It is deterministic: the same results always produce
// byte-identical output. Results must already be in index order, which the
// orchestrator guarantees.
func Aggregate(results []Result) (string, Statistics) {
	stats := Statistics{Chunks: make([]ChunkStats, 0, len(results))}
	parts := make([]string, 0, len(results))

	for _, r := range results {
		cs := ChunkStats{
			Index:          r.Index,
			InputWords:     r.InputWords,
			OutputWords:    r.OutputWords,
			ExpansionRatio: r.ExpansionRatio,
			Attempts:       len(r.Attempts),
			Succeeded:      r.Succeeded,
			Error:          r.Error,
		}
		stats.Chunks = append(stats.Chunks, cs)
		stats.TotalInputWords += r.InputWords

		if r.Succeeded {
			parts = append(parts, r.Text)
			stats.TotalOutputWords += r.OutputWords
		} else {
			parts = append(parts, FailedChunkPlaceholder)
			stats.FatalFailures++
		}
		if r.Retried() {
			stats.RetriedChunks++
		}
	}

	if stats.TotalInputWords > 0 {
		stats.ExpansionRatio = float64(stats.TotalOutputWords) / float64(stats.TotalInputWords)
	}

	return strings.Join(parts, text.Separator), stats
}
