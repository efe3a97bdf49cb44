package transform

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"redraft/internal/pipeline"
)

// ArchivedJob is the persisted record of a terminal job. The document text is
// not archived; only the outcome and its statistics.
type ArchivedJob struct {
	ID            string          `json:"id"`
	Provider      string          `json:"provider"`
	State         string          `json:"state"`
	Error         string          `json:"error,omitempty"`
	Stats         json.RawMessage `json:"stats"`
	InputWords    int             `json:"input_words"`
	OutputWords   int             `json:"output_words"`
	FatalFailures int             `json:"fatal_failures"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   time.Time       `json:"completed_at"`
}

func archiveFrom(job *Job) *ArchivedJob {
	stats, _ := json.Marshal(job.Stats)
	return &ArchivedJob{
		ID:            job.ID,
		Provider:      job.Provider,
		State:         string(job.State),
		Error:         job.Error,
		Stats:         stats,
		InputWords:    job.Stats.TotalInputWords,
		OutputWords:   job.Stats.TotalOutputWords,
		FatalFailures: job.Stats.FatalFailures,
		CreatedAt:     job.CreatedAt,
		CompletedAt:   job.CompletedAt,
	}
}

// Stats recovers the statistics stored with the archived job.
func (a *ArchivedJob) Statistics() (pipeline.Statistics, error) {
	var stats pipeline.Statistics
	if len(a.Stats) == 0 {
		return stats, nil
	}
	err := json.Unmarshal(a.Stats, &stats)
	return stats, err
}

type Repository interface {
	Save(ctx context.Context, job *ArchivedJob) error
	Get(ctx context.Context, id string) (*ArchivedJob, error)
	List(ctx context.Context) ([]ArchivedJob, error)
	Count(ctx context.Context) (int, error)
	CountByState(ctx context.Context) (map[string]int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, job *ArchivedJob) error {
	query := `INSERT INTO transform_jobs (id, provider, state, error, stats, input_words, output_words, fatal_failures, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, error = EXCLUDED.error, stats = EXCLUDED.stats, completed_at = EXCLUDED.completed_at`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Provider, job.State, job.Error, []byte(job.Stats),
		job.InputWords, job.OutputWords, job.FatalFailures, job.CreatedAt, job.CompletedAt)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*ArchivedJob, error) {
	j := &ArchivedJob{}
	var stats []byte
	query := `SELECT id, provider, state, error, stats, input_words, output_words, fatal_failures, created_at, completed_at FROM transform_jobs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&j.ID, &j.Provider, &j.State, &j.Error, &stats,
		&j.InputWords, &j.OutputWords, &j.FatalFailures, &j.CreatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.Stats = json.RawMessage(stats)
	return j, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]ArchivedJob, error) {
	query := `SELECT id, provider, state, error, stats, input_words, output_words, fatal_failures, created_at, completed_at FROM transform_jobs ORDER BY completed_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ArchivedJob
	for rows.Next() {
		var j ArchivedJob
		var stats []byte
		if err := rows.Scan(&j.ID, &j.Provider, &j.State, &j.Error, &stats,
			&j.InputWords, &j.OutputWords, &j.FatalFailures, &j.CreatedAt, &j.CompletedAt); err != nil {
			return nil, err
		}
		j.Stats = json.RawMessage(stats)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM transform_jobs`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountByState(ctx context.Context) (map[string]int, error) {
	query := `SELECT state, COUNT(*) FROM transform_jobs GROUP BY state`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}
