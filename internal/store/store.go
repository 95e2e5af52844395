package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job state transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobState(ctx context.Context, id uuid.UUID, state models.JobState, opts ...JobUpdateOption) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, percent int) error

	SaveResult(ctx context.Context, jobID uuid.UUID, columns []string, rowCount int, data []byte) (time.Time, error)
	GetResult(ctx context.Context, jobID uuid.UUID) ([]byte, time.Time, error)
}

type jobUpdateParams struct {
	ErrorMessage   *string
	ResultLocation *string
	RecordCount    *int
	Progress       *int
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithResultLocation(loc string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ResultLocation = &loc
	}
}

func WithRecordCount(n int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.RecordCount = &n
	}
}

func WithProgress(percent int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Progress = &percent
	}
}
