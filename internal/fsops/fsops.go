// Package fsops implements the filesystem operations the daemon performs on
// behalf of clients.
package fsops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/sys/unix"
)

// ErrModeNotAllowed is returned for modes carrying bits other than the
// nine permission bits (setuid, setgid, sticky, file type).
var ErrModeNotAllowed = errors.New("mode contains bits other than permissions")

const copyChunk = 128 * 1024

// CopyContents copies the bytes of source into target, creating target
// with mode 0666 (before umask) or truncating it if it exists. Only file
// contents are copied; ownership, mode and labels of an existing target are
// left untouched.
func CopyContents(ctx context.Context, source, target string) error {
	in, err := os.OpenFile(source, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}

	buf := make([]byte, copyChunk)
	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			return err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return rerr
		}
	}
	return out.Close()
}

// ValidMode reports whether mode only holds permission bits.
func ValidMode(mode uint32) bool {
	return mode&^uint32(fs.ModePerm) == 0
}

// Chmod sets the permission bits of path. Modes with setuid, setgid or
// sticky bits are refused with ErrModeNotAllowed.
func Chmod(path string, mode uint32) error {
	if !ValidMode(mode) {
		return fmt.Errorf("chmod %s %#o: %w", path, mode, ErrModeNotAllowed)
	}
	return os.Chmod(path, fs.FileMode(mode))
}

type inode struct {
	dev uint64
	ino uint64
}

// DirectorySize returns the total size of regular files under root.
// Entries directly below root whose names appear in exclusions are skipped
// with everything beneath them. A file reachable through several hard
// links is counted once. Symlinks are not followed.
func DirectorySize(ctx context.Context, root string, exclusions []string) (uint64, error) {
	seen := make(map[inode]struct{})
	var total uint64

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root && filepath.Dir(path) == filepath.Clean(root) && slices.Contains(exclusions, d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			return &fs.PathError{Op: "lstat", Path: path, Err: err}
		}
		key := inode{dev: uint64(st.Dev), ino: uint64(st.Ino)}
		if _, dup := seen[key]; dup {
			return nil
		}
		seen[key] = struct{}{}
		total += uint64(st.Size)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ErrorText extracts the OS-level description of err, such as "no such
// file or directory", falling back to the full error text.
func ErrorText(err error) string {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno.Error()
	}
	return err.Error()
}
