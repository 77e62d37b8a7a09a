// Package archive extracts the compressed tar archives that carry the
// patcher payload.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for entries that would land outside the
// destination directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// Extractor unpacks an archive file into a directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) error
}

// TarExtractor is the Extractor for tar archives with optional stream
// compression chosen by file suffix.
type TarExtractor struct{}

// Extract implements Extractor.
func (TarExtractor) Extract(ctx context.Context, archivePath, destDir string) error {
	return Extract(ctx, archivePath, destDir)
}

// Extract unpacks archivePath into destDir, which is created if needed.
// Directories, regular files, symlinks and hard links are restored; other
// entry types are skipped.
func Extract(ctx context.Context, archivePath, destDir string) error {
	c, err := DetectCompression(archivePath)
	if err != nil {
		return err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	r, done, err := decompress(f, c)
	if err != nil {
		return err
	}
	defer done()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	return extractTar(ctx, tar.NewReader(r), destDir)
}

func extractTar(ctx context.Context, tr *tar.Reader, destDir string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %v", ErrUnsafePath, err)
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		mode := fs.FileMode(hdr.Mode).Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0o700); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := writeFile(tr, target, mode); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}

		case tar.TypeSymlink:
			if err := checkLinkTarget(destDir, target, hdr.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}

		case tar.TypeLink:
			source, err := safeJoin(destDir, hdr.Linkname)
			if err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return err
			}
		}
	}
}

func writeFile(r io.Reader, target string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// OpenFile only applies mode to new files and is subject to umask.
	return os.Chmod(target, mode)
}

// safeJoin resolves name below dir, refusing absolute names and names
// that climb out with "..".
func safeJoin(dir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

// checkLinkTarget refuses symlinks that point outside dir.
func checkLinkTarget(dir, link, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, link, linkname)
	}
	resolved := filepath.Join(filepath.Dir(link), linkname)
	rel, err := filepath.Rel(dir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, link, linkname)
	}
	return nil
}
