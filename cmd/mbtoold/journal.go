package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Anik1199/DualBootPatcher/internal/journal"
)

// printJournal renders the newest limit entries. The daemon holds the
// database lock while running, so this only works when it is stopped.
func printJournal(w io.Writer, path string, limit int) error {
	j, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("%w (is mbtoold running?)", err)
	}
	defer j.Close()

	entries, err := j.Recent(limit)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Time", "UID", "Request", "Target", "Outcome", "Error", "ms"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.ID,
			e.Time.Local().Format(time.DateTime),
			e.PeerUID,
			e.Request,
			target(e),
			e.Outcome,
			e.Error,
			e.DurationMs,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func target(e *journal.Entry) string {
	s := strings.Join(e.Paths, " -> ")
	if e.Handle != nil {
		if s != "" {
			s += " "
		}
		s += fmt.Sprintf("#%d", *e.Handle)
	}
	return s
}
