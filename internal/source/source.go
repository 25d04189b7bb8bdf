// Package source opens container input streams and transparently unwraps
// compressed dumps. Streams are consumed forward only.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Stdin is the path which selects standard input.
const Stdin = "-"

var (
	// ErrOpen is returned when the input stream cannot be established.
	ErrOpen = errors.New("source: couldn't open")
	// ErrUnknownCompression is returned for unsupported codec names.
	ErrUnknownCompression = errors.New("source: unknown compression")
)

// Compression is the codec wrapping an input stream.
type Compression byte

// Supported codecs.
const (
	Auto Compression = iota
	None
	Snappy
	Gzip
	Zstd
	XZ
	LZ4
	unknownCompression
)

var compressionNames = [...]string{"auto", "none", "snappy", "gzip", "zstd", "xz", "lz4"}

func (c Compression) String() string {
	if c < unknownCompression {
		return compressionNames[c]
	}
	return fmt.Sprintf("compression(%d)", byte(c))
}

// ParseCompression parses a codec name.
func ParseCompression(s string) (Compression, error) {
	for i, name := range compressionNames {
		if s == name {
			return Compression(i), nil
		}
	}
	return Auto, fmt.Errorf("%w %q", ErrUnknownCompression, s)
}

var magics = []struct {
	c     Compression
	magic []byte
}{
	{Snappy, []byte("\xff\x06\x00\x00sNaPpY")},
	{Gzip, []byte{0x1f, 0x8b}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{XZ, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{LZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
}

// Detect peeks at the head of r and returns the codec it is wrapped in.
// Streams that match no known codec are reported as None.
func Detect(r *bufio.Reader) Compression {
	for _, m := range magics {
		head, _ := r.Peek(len(m.magic))
		if bytes.Equal(head, m.magic) {
			return m.c
		}
	}
	return None
}

// Stream is an opened, possibly decompressed, input.
type Stream struct {
	io.Reader

	Name        string
	Compression Compression

	closers []io.Closer
}

// Open opens path, or reads stdin when path is Stdin, and unwraps it
// according to c. Auto detects the codec from the leading bytes. Stdin is
// never closed by the returned stream.
func Open(path string, stdin io.Reader, c Compression) (*Stream, error) {
	if path == Stdin {
		return Wrap(stdin, "<stdin>", c)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrOpen, path, err)
	}

	s, err := Wrap(f, path, c)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.closers = append(s.closers, f)
	return s, nil
}

// Wrap unwraps r according to c. The returned stream does not close r.
func Wrap(r io.Reader, name string, c Compression) (*Stream, error) {
	br := bufio.NewReader(r)
	if c == Auto {
		c = Detect(br)
	}

	s := &Stream{Name: name, Compression: c}
	switch c {
	case None:
		s.Reader = br
	case Snappy:
		s.Reader = snappy.NewReader(br)
	case Gzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("source: %s: %w", name, err)
		}
		s.Reader = zr
		s.closers = append(s.closers, zr)
	case Zstd:
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("source: %s: %w", name, err)
		}
		s.Reader = zr
		s.closers = append(s.closers, closerFunc(func() error { zr.Close(); return nil }))
	case XZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("source: %s: %w", name, err)
		}
		s.Reader = xr
	case LZ4:
		s.Reader = lz4.NewReader(br)
	default:
		return nil, fmt.Errorf("%w %s", ErrUnknownCompression, c)
	}
	return s, nil
}

// Close releases the decompressors and the underlying file, if any.
func (s *Stream) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
