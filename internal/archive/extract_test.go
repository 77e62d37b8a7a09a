package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

type entry struct {
	name     string
	typ      byte
	body     string
	linkname string
	mode     int64
}

func buildTar(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typ,
			Mode:     e.mode,
			Size:     int64(len(e.body)),
			Linkname: e.linkname,
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		if e.typ != tar.TypeReg {
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if e.typ == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func compress(t *testing.T, c Compression, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch c {
	case CompressionNone:
		return data
	case CompressionXZ:
		w, err = xz.NewWriter(&buf)
	case CompressionZstd:
		w, err = zstd.NewWriter(&buf)
	case CompressionLZ4:
		w = lz4.NewWriter(&buf)
	case CompressionGzip:
		w = gzip.NewWriter(&buf)
	}
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

var payload = []entry{
	{name: "bin/", typ: tar.TypeDir, mode: 0o755},
	{name: "bin/mbtool", typ: tar.TypeReg, body: "#!/sbin/sh\n", mode: 0o755},
	{name: "scripts/update-binary", typ: tar.TypeReg, body: "script"},
	{name: "scripts/current", typ: tar.TypeSymlink, linkname: "update-binary"},
	{name: "bin/mbtool-hard", typ: tar.TypeLink, linkname: "bin/mbtool"},
}

func TestExtract_Compressions(t *testing.T) {
	raw := buildTar(t, payload)
	tests := []struct {
		file string
		c    Compression
	}{
		{"data-9.3.0.tar.xz", CompressionXZ},
		{"data-9.3.0.tar.zst", CompressionZstd},
		{"data-9.3.0.tar.lz4", CompressionLZ4},
		{"data-9.3.0.tar.gz", CompressionGzip},
		{"data-9.3.0.tar", CompressionNone},
	}
	for _, tt := range tests {
		t.Run(tt.c.String(), func(t *testing.T) {
			dir := t.TempDir()
			archivePath := filepath.Join(dir, tt.file)
			if err := os.WriteFile(archivePath, compress(t, tt.c, raw), 0o644); err != nil {
				t.Fatal(err)
			}
			dest := filepath.Join(dir, "out")

			if err := Extract(context.Background(), archivePath, dest); err != nil {
				t.Fatalf("Extract failed: %v", err)
			}

			got, err := os.ReadFile(filepath.Join(dest, "bin", "mbtool"))
			if err != nil || string(got) != "#!/sbin/sh\n" {
				t.Fatalf("unexpected mbtool contents %q (%v)", got, err)
			}
			info, err := os.Stat(filepath.Join(dest, "bin", "mbtool"))
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0o755 {
				t.Errorf("expected mode 0755, got %o", info.Mode().Perm())
			}
			link, err := os.Readlink(filepath.Join(dest, "scripts", "current"))
			if err != nil || link != "update-binary" {
				t.Errorf("unexpected symlink %q (%v)", link, err)
			}
			hard, err := os.ReadFile(filepath.Join(dest, "bin", "mbtool-hard"))
			if err != nil || string(hard) != "#!/sbin/sh\n" {
				t.Errorf("unexpected hard link contents %q (%v)", hard, err)
			}
		})
	}
}

func TestExtract_UnsafePaths(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry
	}{
		{"parent traversal", []entry{{name: "../evil", typ: tar.TypeReg, body: "x"}}},
		{"nested traversal", []entry{{name: "a/../../evil", typ: tar.TypeReg, body: "x"}}},
		{"absolute path", []entry{{name: "/etc/evil", typ: tar.TypeReg, body: "x"}}},
		{"absolute symlink", []entry{{name: "link", typ: tar.TypeSymlink, linkname: "/etc/passwd"}}},
		{"escaping symlink", []entry{{name: "a/link", typ: tar.TypeSymlink, linkname: "../../outside"}}},
		{"escaping hard link", []entry{{name: "link", typ: tar.TypeLink, linkname: "../outside"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			archivePath := filepath.Join(dir, "bad.tar")
			if err := os.WriteFile(archivePath, buildTar(t, tt.entries), 0o644); err != nil {
				t.Fatal(err)
			}
			err := Extract(context.Background(), archivePath, filepath.Join(dir, "out"))
			if !errors.Is(err, ErrUnsafePath) {
				t.Fatalf("expected ErrUnsafePath, got %v", err)
			}
		})
	}
}

func TestExtract_CorruptArchive(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "data.tar.xz")
	if err := os.WriteFile(archivePath, []byte("not an xz stream"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Extract(context.Background(), archivePath, filepath.Join(dir, "out")); err == nil {
		t.Fatal("expected error for corrupt archive")
	}
}

func TestDetectCompression(t *testing.T) {
	if _, err := DetectCompression("data.zip"); err == nil {
		t.Error("expected error for unknown suffix")
	}
	c, err := DetectCompression("DATA-1.0.TAR.XZ")
	if err != nil || c != CompressionXZ {
		t.Errorf("expected xz, got %s (%v)", c, err)
	}
}
