package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kiranshivaraju/reelscraper/internal/store"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("reelscraper_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newQueuedJob() *models.Job {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Job{
		ID:        uuid.New(),
		Targets:   []models.Target{models.UserTarget("natgeo"), models.HashtagTarget("sunset")},
		ItemLimit: 5,
		Columns:   []string{models.ColumnLikes},
		State:     models.JobStateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- Job Tests ---

func TestJob_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newQueuedJob()
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateQueued, got.State)
	assert.Equal(t, job.Targets, got.Targets)
	assert.Equal(t, []string{models.ColumnLikes}, got.Columns)
	assert.Equal(t, 5, got.ItemLimit)
	assert.Zero(t, got.Progress)
	assert.Nil(t, got.StartedAt)
}

func TestJob_CreateDuplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newQueuedJob()
	require.NoError(t, s.CreateJob(ctx, job))
	assert.ErrorIs(t, s.CreateJob(ctx, job), store.ErrDuplicateKey)
}

func TestJob_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_UpdateStateLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newQueuedJob()
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.UpdateJobState(ctx, job.ID, models.JobStateRunning))
	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateRunning, got.State)
	assert.NotNil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, s.UpdateJobState(ctx, job.ID, models.JobStateDone,
		store.WithProgress(100),
		store.WithRecordCount(7),
		store.WithResultLocation("/tmp/out.csv")))
	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateDone, got.State)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 7, got.RecordCount)
	assert.Equal(t, "/tmp/out.csv", got.ResultLocation)
	assert.NotNil(t, got.CompletedAt)
}

func TestJob_UpdateStateToErrorWithMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newQueuedJob()
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.UpdateJobState(ctx, job.ID, models.JobStateRunning))
	require.NoError(t, s.UpdateJobState(ctx, job.ID, models.JobStateError, store.WithErrorMessage("no results")))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateError, got.State)
	assert.Equal(t, "no results", got.ErrorMessage)
}

func TestJob_UpdateStateInvalidTransition(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newQueuedJob()
	require.NoError(t, s.CreateJob(ctx, job))

	err := s.UpdateJobState(ctx, job.ID, models.JobStateDone) // queued -> done is invalid
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	require.NoError(t, s.UpdateJobState(ctx, job.ID, models.JobStateError))
	err = s.UpdateJobState(ctx, job.ID, models.JobStateRunning) // terminal
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestJob_UpdateStateNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.UpdateJobState(context.Background(), uuid.New(), models.JobStateRunning)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_UpdateProgressNeverDecreases(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newQueuedJob()
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, 50))
	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, 33))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)

	assert.ErrorIs(t, s.UpdateJobProgress(ctx, uuid.New(), 10), store.ErrNotFound)
}

// --- Result Tests ---

func TestResult_SaveAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newQueuedJob()
	require.NoError(t, s.CreateJob(ctx, job))

	data := []byte("url,title\nhttps://example.test/reel/1/,natgeo\n")
	created, err := s.SaveResult(ctx, job.ID, []string{"url", "title"}, 1, data)
	require.NoError(t, err)
	assert.False(t, created.IsZero())

	got, at, err := s.GetResult(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.WithinDuration(t, created, at, time.Millisecond)

	_, err = s.SaveResult(ctx, job.ID, []string{"url"}, 0, []byte("url\n"))
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestResult_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, _, err := s.GetResult(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Ping Test ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.Ping(context.Background())
	assert.NoError(t, err)
}
