// Package staging prepares the versioned, extracted copy of the patcher
// payload on local storage.
//
// A Manager owns two directories: a cache directory holding the transient
// archive copy, and a files directory holding the extracted payload under
// data-<version>. Ensure is single-flight: an in-process mutex serializes
// callers within one process and a file lock in the cache directory
// serializes processes.
//
// Usage:
//
//	m := staging.New(staging.Options{
//	    CacheDir: "/var/cache/mbtool",
//	    FilesDir: "/var/lib/mbtool/files",
//	    Assets:   os.DirFS("/usr/share/mbtool"),
//	    Version:  version.Version,
//	}, logger)
//	defer m.Close()
//	dir, err := m.Ensure(ctx)
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/Anik1199/DualBootPatcher/internal/archive"
	"github.com/Anik1199/DualBootPatcher/internal/version"
)

const (
	// ArchiveTemplate names the bundled archive for a version token.
	ArchiveTemplate = "data-%s.tar.xz"
	// TargetTemplate names the extracted payload directory.
	TargetTemplate = "data-%s"
	// LockFileName is the cross-process lock in the cache directory.
	LockFileName = "data-staging.lock"

	lockRetryDelay = 100 * time.Millisecond
)

// Phase identifies the staging step that failed.
type Phase string

const (
	PhaseLock    Phase = "lock"
	PhaseCopy    Phase = "copy"
	PhaseClear   Phase = "clear"
	PhaseExtract Phase = "extract"
)

// StagingError reports a failed staging attempt. Partial state may remain
// on disk; the next Ensure starts over.
type StagingError struct {
	Phase Phase
	Err   error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("staging %s failed: %v", e.Phase, e.Err)
}

func (e *StagingError) Unwrap() error {
	return e.Err
}

// Options configures a Manager.
type Options struct {
	CacheDir string
	FilesDir string
	// Assets holds the bundled archives, looked up by ArchiveTemplate.
	Assets fs.FS
	// Version is the application version; only its release token is used.
	Version string
	// Extractor defaults to archive.TarExtractor.
	Extractor archive.Extractor
}

// Manager stages the payload for one version.
type Manager struct {
	opts   Options
	token  string
	lock   *flock.Flock
	logger *slog.Logger

	mu sync.Mutex
}

// VersionToken returns the token used in staged names for appVersion.
func VersionToken(appVersion string) string {
	return version.Token(appVersion)
}

// New creates a Manager. Nothing touches the disk until Ensure.
func New(opts Options, logger *slog.Logger) *Manager {
	if opts.Extractor == nil {
		opts.Extractor = archive.TarExtractor{}
	}
	return &Manager{
		opts:   opts,
		token:  VersionToken(opts.Version),
		lock:   flock.New(filepath.Join(opts.CacheDir, LockFileName)),
		logger: logger.With(slog.String("component", "staging")),
	}
}

// Token returns the version token in use.
func (m *Manager) Token() string {
	return m.token
}

// TargetDir is the directory the payload is extracted to.
func (m *Manager) TargetDir() string {
	return filepath.Join(m.opts.FilesDir, fmt.Sprintf(TargetTemplate, m.token))
}

// ArchivePath is where the bundled archive is copied before extraction.
func (m *Manager) ArchivePath() string {
	return filepath.Join(m.opts.CacheDir, m.archiveName())
}

func (m *Manager) archiveName() string {
	return fmt.Sprintf(ArchiveTemplate, m.token)
}

// Staged reports whether the target directory exists. It takes no locks
// and changes nothing.
func (m *Manager) Staged() bool {
	info, err := os.Stat(m.TargetDir())
	return err == nil && info.IsDir()
}

// Ensure makes sure the payload for the current version is extracted and
// returns its directory. Transient files are cleaned up on every call; a
// failure there is logged and never aborts staging.
func (m *Manager) Ensure(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.opts.CacheDir, 0o755); err != nil {
		return "", &StagingError{Phase: PhaseLock, Err: err}
	}
	if _, err := m.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return "", &StagingError{Phase: PhaseLock, Err: err}
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			m.logger.Warn("failed to release staging lock", slog.String("error", err.Error()))
		}
	}()

	if report := m.cleanup(); report.Err() != nil {
		m.logger.Warn("cleanup incomplete",
			slog.Int("removed", len(report.Removed)),
			slog.Int("failed", len(report.Failures)),
			slog.String("error", report.Err().Error()),
		)
	} else if len(report.Removed) > 0 {
		m.logger.Debug("removed transient files", slog.Int("removed", len(report.Removed)))
	}

	target := m.TargetDir()
	if m.Staged() {
		m.logger.Debug("payload already staged", slog.String("path", target))
		return target, nil
	}

	m.logger.Info("staging payload",
		slog.String("version", m.token),
		slog.String("target", target),
	)
	start := time.Now()

	archivePath := m.ArchivePath()
	if err := m.copyAsset(archivePath); err != nil {
		return "", &StagingError{Phase: PhaseCopy, Err: err}
	}

	if err := clearDir(m.opts.FilesDir); err != nil {
		return "", &StagingError{Phase: PhaseClear, Err: err}
	}

	if err := m.opts.Extractor.Extract(ctx, archivePath, m.opts.FilesDir); err != nil {
		return "", &StagingError{Phase: PhaseExtract, Err: err}
	}

	if err := os.Remove(archivePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("failed to remove cached archive",
			slog.String("path", archivePath),
			slog.String("error", err.Error()),
		)
	}

	if !m.Staged() {
		return "", &StagingError{
			Phase: PhaseExtract,
			Err:   fmt.Errorf("archive did not contain %s", filepath.Base(target)),
		}
	}

	m.logger.Info("payload staged",
		slog.String("path", target),
		slog.Duration("duration", time.Since(start)),
	)
	return target, nil
}

// copyAsset copies the bundled archive into the cache directory through a
// temp file, so a crash never leaves a truncated archive under its final
// name.
func (m *Manager) copyAsset(dest string) error {
	if m.opts.Assets == nil {
		return errors.New("no asset source configured")
	}
	src, err := m.opts.Assets.Open(m.archiveName())
	if err != nil {
		return fmt.Errorf("open asset: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(m.opts.CacheDir, "tmp-asset-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return fmt.Errorf("copy asset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}

// Close releases the lock file handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lock.Close()
}
