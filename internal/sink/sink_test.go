package sink_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/reelscraper/internal/sink"
	"github.com/kiranshivaraju/reelscraper/internal/store"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

func sampleTable() *sink.Table {
	return sink.BuildTable([]models.Record{{URL: "https://x.test/reel/1/", Title: "alice"}}, []string{"likes"})
}

func TestFileSink_WriteOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := sink.NewFileSink(dir)
	ctx := context.Background()
	id := uuid.New()

	loc, err := s.Write(ctx, id, sampleTable())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, id.String()+".csv"), loc)

	art, err := s.Open(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, string(art.Data), "url,title,caption,posted_at,likes\n")
	assert.Regexp(t, `^reels_\d+\.csv$`, art.Filename())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileSink_OpenMissing(t *testing.T) {
	s := sink.NewFileSink(t.TempDir())
	_, err := s.Open(context.Background(), uuid.New())
	assert.ErrorIs(t, err, sink.ErrResultMissing)
}

func TestFileSink_WriteRaggedTableLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	s := sink.NewFileSink(dir)
	_, err := s.Write(context.Background(), uuid.New(), &sink.Table{Columns: []string{"a"}, Rows: [][]string{{"1", "2"}}})
	assert.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// --- PostgresSink with a stub ResultStore ---

type stubResults struct {
	data    map[uuid.UUID][]byte
	cols    []string
	rows    int
	saveErr error
}

func (s *stubResults) SaveResult(_ context.Context, id uuid.UUID, columns []string, rowCount int, data []byte) (time.Time, error) {
	if s.saveErr != nil {
		return time.Time{}, s.saveErr
	}
	s.data[id] = data
	s.cols, s.rows = columns, rowCount
	return time.Unix(1700000000, 0), nil
}

func (s *stubResults) GetResult(_ context.Context, id uuid.UUID) ([]byte, time.Time, error) {
	d, ok := s.data[id]
	if !ok {
		return nil, time.Time{}, store.ErrNotFound
	}
	return d, time.Unix(1700000000, 0), nil
}

func TestPostgresSink_WriteOpen(t *testing.T) {
	rs := &stubResults{data: map[uuid.UUID][]byte{}}
	s := sink.NewPostgresSink(rs)
	ctx := context.Background()
	id := uuid.New()

	loc, err := s.Write(ctx, id, sampleTable())
	require.NoError(t, err)
	assert.Equal(t, "result_tables/"+id.String(), loc)
	assert.Equal(t, []string{"url", "title", "caption", "posted_at", "likes"}, rs.cols)
	assert.Equal(t, 1, rs.rows)

	art, err := s.Open(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "reels_1700000000000000000.csv", art.Filename())
}

func TestPostgresSink_OpenMissing(t *testing.T) {
	s := sink.NewPostgresSink(&stubResults{data: map[uuid.UUID][]byte{}})
	_, err := s.Open(context.Background(), uuid.New())
	assert.ErrorIs(t, err, sink.ErrResultMissing)
}

func TestPostgresSink_WriteError(t *testing.T) {
	s := sink.NewPostgresSink(&stubResults{data: map[uuid.UUID][]byte{}, saveErr: errors.New("db down")})
	_, err := s.Write(context.Background(), uuid.New(), sampleTable())
	assert.ErrorContains(t, err, "db down")
}
