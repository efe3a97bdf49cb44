package transform

import (
	"time"

	"redraft/internal/pipeline"
	"redraft/internal/provider"
	"redraft/internal/text"
)

// JobState is the per-job state machine:
// Queued → Chunking → Processing → Aggregating →
// {Completed, PartiallyFailed, Failed}; Cancelled is a distinct terminal
// state reachable from any non-terminal state.
type JobState string

const (
	StateQueued          JobState = "queued"
	StateChunking        JobState = "chunking"
	StateProcessing      JobState = "processing"
	StateAggregating     JobState = "aggregating"
	StateCompleted       JobState = "completed"
	StatePartiallyFailed JobState = "partially_failed"
	StateFailed          JobState = "failed"
	StateCancelled       JobState = "cancelled"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StatePartiallyFailed, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Job is the whole-document unit of work. The document text and instructions
// are immutable once submitted; results grow in chunk index order as the
// orchestrator progresses.
type Job struct {
	ID           string          `json:"id"`
	Provider     string          `json:"provider"`
	Text         string          `json:"-"`
	Instructions string          `json:"-"`
	Params       provider.Params `json:"params"`

	State   JobState            `json:"state"`
	Chunks  []text.Chunk        `json:"-"`
	Results []pipeline.Result   `json:"-"`
	Final   string              `json:"-"`
	Stats   pipeline.Statistics `json:"stats"`
	Error   string              `json:"error,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// Status is the caller-facing job snapshot.
type Status struct {
	ID              string   `json:"id"`
	State           JobState `json:"state"`
	CompletedChunks int      `json:"completed_chunks"`
	TotalChunks     int      `json:"total_chunks"`
	PartialPreview  string   `json:"partial_preview,omitempty"`
}

// Result is the terminal job output.
type Result struct {
	FinalText  string              `json:"final_text"`
	Statistics pipeline.Statistics `json:"statistics"`
}
