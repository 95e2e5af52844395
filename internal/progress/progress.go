// Package progress is the shared job progress map. Each job writes only its
// own entry and every write replaces the whole record.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/reelscraper/internal/cache"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

// Tracker stores the latest progress record per job.
type Tracker interface {
	Put(ctx context.Context, p models.Progress) error
	Get(ctx context.Context, jobID uuid.UUID) (models.Progress, bool, error)
}

// MemoryTracker keeps records in process memory. With a TTL, entries of
// finished jobs are dropped once they have not been written for that long;
// entries of queued and running jobs are kept.
type MemoryTracker struct {
	mu        sync.RWMutex
	entries   map[uuid.UUID]memoryEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type memoryEntry struct {
	progress models.Progress
	written  time.Time
}

// MemoryOption configures a MemoryTracker.
type MemoryOption func(*MemoryTracker)

// WithTTL evicts finished jobs ttl after their last write. Zero keeps
// everything.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryTracker) { m.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryTracker) { m.now = now }
}

// NewMemoryTracker returns an empty MemoryTracker.
func NewMemoryTracker(opts ...MemoryOption) *MemoryTracker {
	m := &MemoryTracker{entries: make(map[uuid.UUID]memoryEntry), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.lastSweep = m.now()
	return m
}

func (m *MemoryTracker) Put(_ context.Context, p models.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.entries[p.JobID] = memoryEntry{progress: p, written: now}
	if m.ttl > 0 && now.Sub(m.lastSweep) >= m.ttl {
		m.sweep(now)
	}
	return nil
}

func (m *MemoryTracker) Get(_ context.Context, jobID uuid.UUID) (models.Progress, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[jobID]
	if !ok || m.expired(e, m.now()) {
		return models.Progress{}, false, nil
	}
	return e.progress, true, nil
}

// Len returns the number of entries held, expired or not.
func (m *MemoryTracker) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryTracker) expired(e memoryEntry, now time.Time) bool {
	return m.ttl > 0 && e.progress.State.Terminal() && now.Sub(e.written) >= m.ttl
}

// sweep drops expired entries. Callers hold mu.
func (m *MemoryTracker) sweep(now time.Time) {
	for id, e := range m.entries {
		if m.expired(e, now) {
			delete(m.entries, id)
		}
	}
	m.lastSweep = now
}

// RedisTracker keeps records in redis so several server replicas can answer
// progress queries for jobs running elsewhere.
type RedisTracker struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewRedisTracker returns a tracker whose entries expire after ttl.
func NewRedisTracker(c cache.Cache, ttl time.Duration) *RedisTracker {
	return &RedisTracker{cache: c, ttl: ttl}
}

func (r *RedisTracker) Put(ctx context.Context, p models.Progress) error {
	return r.cache.SetProgress(ctx, p, r.ttl)
}

// Ping checks the redis connection.
func (r *RedisTracker) Ping(ctx context.Context) error {
	return r.cache.Ping(ctx)
}

func (r *RedisTracker) Get(ctx context.Context, jobID uuid.UUID) (models.Progress, bool, error) {
	return r.cache.GetProgress(ctx, jobID)
}

// Recorder persists running progress durably.
type Recorder interface {
	UpdateJobProgress(ctx context.Context, jobID uuid.UUID, percent int) error
}

// Mirrored writes running progress through to a Recorder after the
// underlying tracker accepted it. Recorder failures are logged only.
type Mirrored struct {
	Tracker
	rec Recorder
}

// NewMirrored wraps t.
func NewMirrored(t Tracker, rec Recorder) *Mirrored {
	return &Mirrored{Tracker: t, rec: rec}
}

func (m *Mirrored) Put(ctx context.Context, p models.Progress) error {
	if err := m.Tracker.Put(ctx, p); err != nil {
		return err
	}
	if p.State != models.JobStateRunning {
		return nil
	}
	if err := m.rec.UpdateJobProgress(ctx, p.JobID, p.Percent); err != nil {
		slog.Warn("recording progress failed", "job_id", p.JobID, "progress", p.Percent, "error", err)
	}
	return nil
}

// Ping forwards to the wrapped tracker when it supports health checks.
func (m *Mirrored) Ping(ctx context.Context) error {
	if p, ok := m.Tracker.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
