package archive

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Compression identifies the stream compression wrapped around a tar
// archive.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionXZ
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// String returns the human-readable name of a compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionXZ:
		return "xz"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionGzip:
		return "gzip"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

var suffixes = []struct {
	suffix string
	c      Compression
}{
	{".tar.xz", CompressionXZ},
	{".txz", CompressionXZ},
	{".tar.zst", CompressionZstd},
	{".tar.lz4", CompressionLZ4},
	{".tar.gz", CompressionGzip},
	{".tgz", CompressionGzip},
	{".tar", CompressionNone},
}

// DetectCompression picks the compression from the archive file name.
func DetectCompression(name string) (Compression, error) {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.c, nil
		}
	}
	return 0, fmt.Errorf("unrecognized archive type: %q", name)
}

// decompress wraps r with the decompressor for c. The returned closer
// releases decoder resources and must be called when reading is done.
func decompress(r io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case CompressionNone:
		return r, func() {}, nil

	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz reader: %w", err)
		}
		return xr, func() {}, nil

	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader: %w", err)
		}
		return zr, zr.Close, nil

	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil

	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gr, func() { gr.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression: %s", c)
	}
}
