package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	targets, err := json.Marshal(job.Targets)
	if err != nil {
		return fmt.Errorf("encode targets: %w", err)
	}
	columns := job.Columns
	if columns == nil {
		columns = []string{}
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, targets, item_limit, columns, state, progress, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, targets, job.ItemLimit, columns, job.State, job.Progress, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	var targets []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, targets, item_limit, columns, state, progress, record_count, result_location,
		        error_message, started_at, completed_at, created_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &targets, &j.ItemLimit, &j.Columns, &j.State, &j.Progress, &j.RecordCount,
		&j.ResultLocation, &j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := json.Unmarshal(targets, &j.Targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	return &j, nil
}

var validTransitions = map[models.JobState][]models.JobState{
	models.JobStateQueued:  {models.JobStateRunning, models.JobStateError},
	models.JobStateRunning: {models.JobStateDone, models.JobStateError},
}

func (s *PostgresStore) UpdateJobState(ctx context.Context, id uuid.UUID, state models.JobState, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	// Fetch current state
	var current models.JobState
	err := s.pool.QueryRow(ctx, `SELECT state FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job state: %w", err)
	}

	valid := false
	for _, a := range validTransitions[current] {
		if a == state {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, state)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET state = $2, updated_at = $3`
	args := []any{id, state, now}
	argIdx := 4

	if state == models.JobStateRunning {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if state.Terminal() {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.ResultLocation != nil {
		query += fmt.Sprintf(", result_location = $%d", argIdx)
		args = append(args, *params.ResultLocation)
		argIdx++
	}
	if params.RecordCount != nil {
		query += fmt.Sprintf(", record_count = $%d", argIdx)
		args = append(args, *params.RecordCount)
		argIdx++
	}
	if params.Progress != nil {
		query += fmt.Sprintf(", progress = GREATEST(progress, $%d)", argIdx)
		args = append(args, *params.Progress)
	}

	query += ` WHERE id = $1`

	_, err = s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job state: %w", err)
	}
	return nil
}

// UpdateJobProgress raises the stored progress; it never lowers it.
func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, percent int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET progress = GREATEST(progress, $2), updated_at = NOW() WHERE id = $1`, id, percent)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Result tables ---

func (s *PostgresStore) SaveResult(ctx context.Context, jobID uuid.UUID, columns []string, rowCount int, data []byte) (time.Time, error) {
	var created time.Time
	err := s.pool.QueryRow(ctx,
		`INSERT INTO result_tables (job_id, columns, row_count, data, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING created_at`,
		jobID, columns, rowCount, data,
	).Scan(&created)
	if err != nil {
		if isDuplicateKeyError(err) {
			return time.Time{}, ErrDuplicateKey
		}
		return time.Time{}, fmt.Errorf("save result: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetResult(ctx context.Context, jobID uuid.UUID) ([]byte, time.Time, error) {
	var data []byte
	var created time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT data, created_at FROM result_tables WHERE job_id = $1`, jobID,
	).Scan(&data, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("get result: %w", err)
	}
	return data, created, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
