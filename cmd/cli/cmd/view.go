package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"jobwatch/internal/jobs"
	"jobwatch/internal/watcher"
	"jobwatch/pkg/api"
)

// terminalView prints watcher updates as they happen. Status lines are only
// printed when they change.
type terminalView struct {
	out        io.Writer
	hideStatus bool
	lastStatus []string
}

func (v *terminalView) RenderStatus(rec *jobs.Record, lines []string) {
	if v.hideStatus || slices.Equal(lines, v.lastStatus) {
		return
	}
	v.lastStatus = slices.Clone(lines)

	bucket := jobs.BucketNotFound
	label := "unknown"
	if rec != nil {
		bucket = jobs.BucketOf(rec.Status)
		label = jobs.DecoratedLabel(rec, true)
	}
	fmt.Fprintf(v.out, "%s %s\n", statusIcon(bucket), strings.Join(append([]string{label}, lines...), " · "))
}

func (v *terminalView) AppendLogLines(lines []api.LogLine) {
	for _, l := range lines {
		text := strings.TrimSuffix(l.Line, "\n")
		if l.IsError {
			fmt.Fprintf(v.out, "%s%6d%s %s%s%s\n", colorDim, l.LinePos, colorReset, colorRed, text, colorReset)
			continue
		}
		fmt.Fprintf(v.out, "%s%6d%s %s\n", colorDim, l.LinePos, colorReset, text)
	}
}

func (v *terminalView) ShowLogMessage(text string) {
	fmt.Fprintf(v.out, "%s%s%s\n", colorDim, text, colorReset)
}

func (v *terminalView) ClearLogs() {}

// tableView prints the batch table each time a row changes.
type tableView struct {
	out      io.Writer
	lastRows []watcher.Row
	lastLine string
}

func (v *tableView) RenderRows(rows []watcher.Row) {
	if slices.Equal(rows, v.lastRows) {
		return
	}
	v.lastRows = slices.Clone(rows)

	tw := tabwriter.NewWriter(v.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tSTATUS\tACTION")
	for _, r := range rows {
		label := r.Label
		if label == "" {
			label = "…"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Index, r.Name, colorizeStatus(jobs.BucketOf(r.Status), label), r.Action.Label())
	}
	tw.Flush()
}

func (v *tableView) RenderSummary(summary jobs.BatchSummary) {
	line := summary.String()
	if line == "" || line == v.lastLine {
		return
	}
	v.lastLine = line
	fmt.Fprintf(v.out, "%s%s%s\n", colorBold, line, colorReset)
}
