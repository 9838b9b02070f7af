package snapshot

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/colibridb/colibri"
	"github.com/colibridb/colibri/internal/fs"
	"github.com/colibridb/colibri/resource"
)

// Compression selects how the snapshot body is compressed.
type Compression uint8

const (
	// CompressionNone stores the body uncompressed.
	CompressionNone Compression = iota
	// CompressionZstd compresses the body with zstd.
	CompressionZstd
	// CompressionLZ4 compresses the body with lz4.
	CompressionLZ4
)

// writer wraps w with the codec. finish must be called after the body is
// written to flush compressor state.
func (c Compression) writer(w io.Writer) (io.Writer, func() error, error) {
	switch c {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, err
		}
		return zw, zw.Close, nil
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		return lw, lw.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown compression codec: %d", c)
	}
}

// reader wraps r with the codec's decompressor.
func (c Compression) reader(r io.Reader) (io.Reader, error) {
	switch c {
	case CompressionNone:
		return r, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case CompressionLZ4:
		return lz4.NewReader(r), nil
	default:
		return nil, fmt.Errorf("unknown compression codec: %d", c)
	}
}

type options struct {
	fsys        fs.FileSystem
	compression Compression
	rc          *resource.Controller
	logger      *colibri.Logger
}

// Option configures snapshot serialization and parsing.
type Option func(*options)

// WithFileSystem overrides the file system. Defaults to the local one.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) { o.fsys = fsys }
}

// WithCompression selects the body compression codec.
func WithCompression(c Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithThrottle rate-limits snapshot file IO through the controller so
// backups do not starve foreground writes.
func WithThrottle(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *colibri.Logger) Option {
	return func(o *options) { o.logger = l }
}

func applyOptions(opts []Option) *options {
	o := &options{
		fsys:   fs.Default,
		logger: colibri.NoopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) newRateLimitedWriter(ctx context.Context, w io.Writer) io.Writer {
	return resource.NewRateLimitedWriter(ctx, w, o.rc)
}

func (o *options) newRateLimitedReader(ctx context.Context, r io.Reader) io.Reader {
	return resource.NewRateLimitedReader(ctx, r, o.rc)
}
