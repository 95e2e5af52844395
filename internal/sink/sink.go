package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/reelscraper/internal/store"
)

// ErrResultMissing is returned when a job's table cannot be found.
var ErrResultMissing = errors.New("result missing")

// Artifact is a persisted table ready for download.
type Artifact struct {
	Data    []byte
	ModTime time.Time
}

// Filename is the time-addressed download name.
func (a *Artifact) Filename() string {
	return fmt.Sprintf("reels_%d.csv", a.ModTime.UnixNano())
}

// Sink persists result tables addressed solely by job ID.
type Sink interface {
	Write(ctx context.Context, jobID uuid.UUID, t *Table) (string, error)
	Open(ctx context.Context, jobID uuid.UUID) (*Artifact, error)
}

// FileSink writes <Dir>/<job_id>.csv.
type FileSink struct {
	Dir string
}

// NewFileSink returns a FileSink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

func (s *FileSink) path(jobID uuid.UUID) string {
	return filepath.Join(s.Dir, jobID.String()+".csv")
}

// Write implements Sink. The file is written under a temporary name and
// renamed so readers never see a partial table.
func (s *FileSink) Write(ctx context.Context, jobID uuid.UUID, t *Table) (string, error) {
	data, err := t.CSV()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", s.Dir, err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".tmp-"+jobID.String()+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create result file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write result file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close result file: %w", err)
	}
	path := s.path(jobID)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move result file into place: %w", err)
	}
	return path, nil
}

// Open implements Sink.
func (s *FileSink) Open(ctx context.Context, jobID uuid.UUID) (*Artifact, error) {
	path := s.path(jobID)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrResultMissing
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &Artifact{Data: data, ModTime: info.ModTime()}, nil
}

// ResultStore is the durable table storage PostgresSink writes to.
type ResultStore interface {
	SaveResult(ctx context.Context, jobID uuid.UUID, columns []string, rowCount int, data []byte) (time.Time, error)
	GetResult(ctx context.Context, jobID uuid.UUID) ([]byte, time.Time, error)
}

// PostgresSink keeps tables in the result_tables relation.
type PostgresSink struct {
	store ResultStore
}

// NewPostgresSink returns a sink backed by rs.
func NewPostgresSink(rs ResultStore) *PostgresSink {
	return &PostgresSink{store: rs}
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, jobID uuid.UUID, t *Table) (string, error) {
	data, err := t.CSV()
	if err != nil {
		return "", err
	}
	if _, err := s.store.SaveResult(ctx, jobID, t.Columns, len(t.Rows), data); err != nil {
		return "", fmt.Errorf("saving result table: %w", err)
	}
	return "result_tables/" + jobID.String(), nil
}

// Open implements Sink.
func (s *PostgresSink) Open(ctx context.Context, jobID uuid.UUID) (*Artifact, error) {
	data, created, err := s.store.GetResult(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrResultMissing
	}
	if err != nil {
		return nil, fmt.Errorf("loading result table: %w", err)
	}
	return &Artifact{Data: data, ModTime: created}, nil
}
