package sink_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/reelscraper/internal/sink"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

func TestColumns(t *testing.T) {
	core := []string{"url", "title", "caption", "posted_at"}
	tests := []struct {
		name      string
		requested []string
		want      []string
	}{
		{"none", nil, core},
		{"request order kept", []string{"video_view_count", "likes"}, append(append([]string{}, core...), "video_view_count", "likes")},
		{"core names dropped", []string{"caption", "comments", "url"}, append(append([]string{}, core...), "comments")},
		{"repeats dropped", []string{"likes", "likes", "comments", "likes"}, append(append([]string{}, core...), "likes", "comments")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, sink.Columns(tt.requested)); diff != "" {
				t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildTable_RowShape(t *testing.T) {
	records := []models.Record{
		{URL: "https://x.test/reel/1/", Title: "alice", Caption: "first caption", PostedAt: "2024-01-01T00:00:00Z", Likes: "12300"},
		{URL: "https://x.test/reel/2/", Title: "alice"},
	}
	tbl := sink.BuildTable(records, []string{"comments", "likes"})

	want := &sink.Table{
		Columns: []string{"url", "title", "caption", "posted_at", "comments", "likes"},
		Rows: [][]string{
			{"https://x.test/reel/1/", "alice", "first caption", "2024-01-01T00:00:00Z", "", "12300"},
			{"https://x.test/reel/2/", "alice", "", "", "", ""},
		},
	}
	if diff := cmp.Diff(want, tbl); diff != "" {
		t.Errorf("BuildTable() mismatch (-want +got):\n%s", diff)
	}
	for _, row := range tbl.Rows {
		assert.Len(t, row, len(tbl.Columns))
	}
}

func TestBuildTable_ThreeRecordsCoreOnly(t *testing.T) {
	records := make([]models.Record, 3)
	for i := range records {
		records[i] = models.Record{URL: "u", Title: "alice"}
	}
	tbl := sink.BuildTable(records, nil)
	assert.Equal(t, []string{"url", "title", "caption", "posted_at"}, tbl.Columns)
	assert.Len(t, tbl.Rows, 3)
}

func TestWriteCSV_ReadBack(t *testing.T) {
	tbl := sink.BuildTable([]models.Record{{URL: "u1", Title: "#sunset", Caption: "a, \"quoted\"\nline"}}, nil)
	data, err := tbl.CSV()
	require.NoError(t, err)

	got, err := sink.ReadCSV(bytes.NewReader(data))
	require.NoError(t, err)
	if diff := cmp.Diff(tbl, got); diff != "" {
		t.Errorf("ReadCSV() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSV_RejectsRaggedRow(t *testing.T) {
	tbl := &sink.Table{Columns: []string{"url", "title"}, Rows: [][]string{{"only-one"}}}
	_, err := tbl.CSV()
	assert.ErrorContains(t, err, "row 0 has 1 values, want 2")
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := sink.ReadCSV(bytes.NewReader(nil))
	assert.Error(t, err)
}
