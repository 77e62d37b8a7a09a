package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// cachePrefixes are the transient names removed from the cache directory:
// extraction scratch files, old app-private staging roots and previously
// copied archives.
var cachePrefixes = []string{"DualBootPatcherAndroid", "tmp", "data-"}

// tempMarker marks transient entries inside staged directories.
const tempMarker = "tmp"

// CleanupFailure records one entry that could not be removed.
type CleanupFailure struct {
	Path string
	Err  error
}

// CleanupReport is the result of a best-effort cleanup pass.
type CleanupReport struct {
	Removed  []string
	Failures []CleanupFailure
}

// Err joins every failure, or returns nil.
func (r CleanupReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.Err))
	}
	return errors.Join(errs...)
}

func (r *CleanupReport) remove(path string) {
	if err := os.RemoveAll(path); err != nil {
		r.Failures = append(r.Failures, CleanupFailure{Path: path, Err: err})
		return
	}
	r.Removed = append(r.Removed, path)
}

// cleanup removes transient cache entries and temp entries one level below
// each staged directory. Nothing here is fatal.
func (m *Manager) cleanup() CleanupReport {
	var report CleanupReport

	entries, err := os.ReadDir(m.opts.CacheDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		report.Failures = append(report.Failures, CleanupFailure{Path: m.opts.CacheDir, Err: err})
	}
	for _, e := range entries {
		name := e.Name()
		if name == LockFileName || !hasAnyPrefix(name, cachePrefixes) {
			continue
		}
		report.remove(filepath.Join(m.opts.CacheDir, name))
	}

	dirs, err := os.ReadDir(m.opts.FilesDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		report.Failures = append(report.Failures, CleanupFailure{Path: m.opts.FilesDir, Err: err})
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(m.opts.FilesDir, d.Name())
		children, err := os.ReadDir(dir)
		if err != nil {
			report.Failures = append(report.Failures, CleanupFailure{Path: dir, Err: err})
			continue
		}
		for _, c := range children {
			if strings.Contains(c.Name(), tempMarker) {
				report.remove(filepath.Join(dir, c.Name()))
			}
		}
	}

	return report
}

// clearDir removes every entry under dir, creating dir if it is missing.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
