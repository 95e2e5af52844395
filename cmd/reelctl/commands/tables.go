package commands

import (
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kiranshivaraju/reelscraper/internal/sink"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func renderResult(w io.Writer, res *sink.Table) {
	t := newTable(w)
	header := table.Row{}
	for _, c := range res.Columns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for _, row := range res.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = v
		}
		t.AppendRow(r)
	}
	t.AppendFooter(table.Row{"records", strconv.Itoa(len(res.Rows))})
	t.Render()
}

func renderProgress(w io.Writer, p models.Progress) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Job", "Status", "Progress", "Reason"})
	t.AppendRow(table.Row{p.JobID.String(), string(p.State), strconv.Itoa(p.Percent) + "%", p.Reason})
	t.Render()
}
