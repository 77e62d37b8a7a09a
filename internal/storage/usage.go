// Package storage reports filesystem usage for the directories mbtool
// writes to, so users can tell whether a payload or ROM will fit before
// staging or installing it.
package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
)

// Usage describes the filesystem holding one configured directory.
type Usage struct {
	Label       string  `json:"label"`
	Path        string  `json:"path"`
	Exists      bool    `json:"exists"`
	Total       uint64  `json:"total_bytes"`
	Free        uint64  `json:"free_bytes"`
	Used        uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
	Error       string  `json:"error,omitempty"`
}

// Target names a directory to measure.
type Target struct {
	Label string
	Path  string
}

// Collect measures each target. A directory that does not exist yet is
// measured at its nearest existing ancestor, which is where it would be
// created. Failures are recorded per target and logged, never returned.
func Collect(ctx context.Context, targets []Target, logger *slog.Logger) []Usage {
	out := make([]Usage, 0, len(targets))
	for _, t := range targets {
		u := Usage{Label: t.Label, Path: t.Path}
		if ctx.Err() != nil {
			u.Error = ctx.Err().Error()
			out = append(out, u)
			continue
		}

		measured, exists := nearestExisting(t.Path)
		u.Exists = exists
		info, err := disk.UsageWithContext(ctx, measured)
		if err != nil {
			logger.Warn("failed to collect disk usage",
				slog.String("path", t.Path),
				slog.String("error", err.Error()),
			)
			u.Error = err.Error()
		} else {
			u.Total = info.Total
			u.Free = info.Free
			u.Used = info.Used
			u.UsedPercent = info.UsedPercent
		}
		out = append(out, u)
	}
	return out
}

func nearestExisting(path string) (string, bool) {
	p := filepath.Clean(path)
	exists := true
	for {
		if _, err := os.Stat(p); err == nil || !errors.Is(err, os.ErrNotExist) {
			return p, exists
		}
		exists = false
		parent := filepath.Dir(p)
		if parent == p {
			return p, false
		}
		p = parent
	}
}
