package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"video-transcriber/internal/domain"
	"video-transcriber/internal/jobs"
)

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	return tw
}

// renderResults lists the artifacts of the session's batch, the failed file
// if any, and a saved summary document.
func renderResults(events []jobs.Event, session domain.Session) string {
	tw := newTable(table.Row{"File", "Result", "Output", "Size"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Size", Align: text.AlignRight, AlignFooter: text.AlignRight},
	})

	var rows int
	var total int64
	addFile := func(name, result, path string) {
		size := ""
		if info, err := os.Stat(path); err == nil {
			total += info.Size()
			size = humanize.Bytes(uint64(info.Size()))
		}
		tw.AppendRow(table.Row{name, result, path, size})
		rows++
	}

	for _, event := range events {
		if event.BatchID != "" && event.BatchID != session.BatchID {
			continue
		}
		switch event.Type {
		case jobs.EventTypeArtifact:
			addFile(event.File, "saved", event.Path)
		case jobs.EventTypeError:
			if event.File != "" {
				tw.AppendRow(table.Row{event.File, "failed", event.Message, ""})
				rows++
			}
		}
	}
	if session.SummaryFile != "" {
		addFile(filepath.Base(session.SummaryFile), "summary", session.SummaryFile)
	}
	if rows == 0 {
		return "No files written."
	}

	if total > 0 {
		tw.AppendFooter(table.Row{"", "", "Total", humanize.Bytes(uint64(total))})
	}
	return tw.Render()
}

// renderDiagnostics shows one row per check with its hint folded into the detail.
func renderDiagnostics(report domain.DiagnosticReport) string {
	tw := newTable(table.Row{"Check", "Target", "Status", "Detail"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Status", Align: text.AlignCenter},
	})

	for _, item := range report.Items {
		detail := item.Message
		if item.Hint != "" {
			detail += " (" + item.Hint + ")"
		}
		tw.AppendRow(table.Row{item.Name, item.Target, strings.ToUpper(string(item.Status)), detail})
	}
	return tw.Render()
}
