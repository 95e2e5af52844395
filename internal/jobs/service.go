package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/reelscraper/internal/progress"
	"github.com/kiranshivaraju/reelscraper/internal/sink"
	"github.com/kiranshivaraju/reelscraper/internal/store"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

// ErrNotReady is returned when a result is requested for a job that is not
// done.
var ErrNotReady = errors.New("job result not ready")

// Service is the read side used by request handlers.
type Service struct {
	tracker progress.Tracker
	store   JobStore
	sink    sink.Sink
}

// NewService returns a Service. js may be nil.
func NewService(tracker progress.Tracker, js JobStore, out sink.Sink) *Service {
	return &Service{tracker: tracker, store: js, sink: out}
}

// Progress returns the job's latest progress record. The tracker is
// consulted first; the job store answers for jobs the tracker has expired.
func (s *Service) Progress(ctx context.Context, id uuid.UUID) (models.Progress, error) {
	p, found, err := s.tracker.Get(ctx, id)
	if err != nil {
		return models.Progress{}, fmt.Errorf("reading progress: %w", err)
	}
	if found {
		return p, nil
	}
	if s.store == nil {
		return models.Progress{}, ErrJobNotFound
	}
	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Progress{}, ErrJobNotFound
	}
	if err != nil {
		return models.Progress{}, fmt.Errorf("loading job: %w", err)
	}
	return job.Snapshot(), nil
}

// Result returns the job's table. Anything other than state done is
// ErrNotReady; a done job whose table is gone is sink.ErrResultMissing.
func (s *Service) Result(ctx context.Context, id uuid.UUID) (*sink.Artifact, error) {
	p, err := s.Progress(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.State != models.JobStateDone {
		return nil, ErrNotReady
	}
	return s.sink.Open(ctx, id)
}

// Ping reports whether the progress backend and job store are reachable.
func (s *Service) Ping(ctx context.Context) map[string]error {
	checks := map[string]error{}
	if p, ok := s.tracker.(interface{ Ping(context.Context) error }); ok {
		checks["progress"] = p.Ping(ctx)
	}
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		checks["database"] = p.Ping(ctx)
	}
	return checks
}
