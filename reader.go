package psf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/zeebo/blake3"
)

// ReaderOptions define decoder specific options.
type ReaderOptions struct {
	// MaxCount is the maximum number of entries accepted in the header.
	// Default: 256.
	MaxCount int

	// MaxKeySize is the maximum key length in bytes, including the NUL terminator.
	// Default: 256.
	MaxKeySize int

	// MinDataSize is the minimum size of a raw value buffer.
	// Default: 64.
	MinDataSize int

	// MaxValueSize is the maximum on-disk size of a single value.
	// Default: 1MiB.
	MaxValueSize int

	// Strict enables cross-checking of the header and entry offsets against
	// the positions computed while reading.
	Strict bool

	// Logger receives debug output about table positions.
	// Default: discard.
	Logger *slog.Logger
}

func (o *ReaderOptions) norm() *ReaderOptions {
	var oo ReaderOptions
	if o != nil {
		oo = *o
	}

	if oo.MaxCount < 1 {
		oo.MaxCount = DefaultMaxCount
	}
	if oo.MaxKeySize < 2 {
		oo.MaxKeySize = DefaultMaxKeySize
	}
	if oo.MinDataSize < 4 {
		oo.MinDataSize = DefaultMinDataSize
	}
	if oo.MaxValueSize < 1 {
		oo.MaxValueSize = DefaultMaxValueSize
	}
	if oo.Logger == nil {
		oo.Logger = slog.New(slog.DiscardHandler)
	}

	return &oo
}

// Decoder reads a container sequentially from a stream. It never seeks.
type Decoder struct {
	r *bufio.Reader
	o *ReaderOptions
	h *blake3.Hasher

	hdr Header
	off int64  // bytes consumed
	tmp []byte // scratch buffer
}

// NewDecoder wraps a reader and returns a Decoder.
func NewDecoder(r io.Reader, o *ReaderOptions) *Decoder {
	o = o.norm()

	size := 4096
	if o.MaxKeySize > size {
		size = o.MaxKeySize
	}
	return &Decoder{
		r:   bufio.NewReaderSize(r, size),
		o:   o,
		h:   blake3.New(),
		tmp: make([]byte, headerSize),
	}
}

// Decode is a shortcut for NewDecoder(r, o).Decode().
func Decode(r io.Reader, o *ReaderOptions) ([]Record, error) {
	return NewDecoder(r, o).Decode()
}

// Header returns the header read by Decode.
func (d *Decoder) Header() Header { return d.hdr }

// Offset returns the number of bytes consumed from the stream.
func (d *Decoder) Offset() int64 { return d.off }

// Sum returns the BLAKE3-256 digest of all bytes consumed so far.
func (d *Decoder) Sum() []byte { return d.h.Sum(nil) }

// Decode reads the whole container and returns the records in entry order.
// The first error aborts decoding; no partial result is returned.
func (d *Decoder) Decode() ([]Record, error) {
	if err := d.readHeader(); err != nil {
		return nil, err
	}

	entries, err := d.readEntries()
	if err != nil {
		return nil, err
	}

	keys, total, err := d.readKeys(entries)
	if err != nil {
		return nil, err
	}

	pad := KeyPadding(total)
	if d.o.Strict {
		if want := int64(d.hdr.KeysStart) + int64(total+pad); int64(d.hdr.DataStart) != want {
			return nil, fmt.Errorf("%w: data start %d, expected %d", ErrMalformedEntry, d.hdr.DataStart, want)
		}
	}
	if err := d.skip(int64(pad)); err != nil {
		return nil, d.wrap(err, "key padding")
	}

	records := make([]Record, len(entries))
	if err := d.readValues(entries, func(i int, raw []byte) {
		records[i] = Record{
			Key:   keys[i],
			Value: Render(entries[i], raw),
			Entry: entries[i],
		}
	}); err != nil {
		return nil, err
	}
	return records, nil
}

func (d *Decoder) readHeader() error {
	if err := d.read(d.tmp[:headerSize]); err != nil {
		return d.wrap(err, "header")
	}

	d.hdr = Header{
		Magic:     binary.LittleEndian.Uint32(d.tmp[0:]),
		Version:   binary.LittleEndian.Uint32(d.tmp[4:]),
		KeysStart: binary.LittleEndian.Uint32(d.tmp[8:]),
		DataStart: binary.LittleEndian.Uint32(d.tmp[12:]),
		Count:     binary.LittleEndian.Uint32(d.tmp[16:]),
	}
	if d.hdr.Magic != Signature {
		return ErrBadSignature
	}

	d.o.Logger.Debug("read header",
		"version", fmt.Sprintf("0x%08x", d.hdr.Version),
		"keys_start", d.hdr.KeysStart,
		"data_start", d.hdr.DataStart,
		"count", d.hdr.Count,
	)
	return nil
}

func (d *Decoder) readEntries() ([]Entry, error) {
	if d.hdr.Count > uint32(d.o.MaxCount) {
		return nil, fmt.Errorf("%w: entry count %d exceeds %d", ErrMalformedEntry, d.hdr.Count, d.o.MaxCount)
	}
	if d.o.Strict {
		if want := uint32(headerSize + entrySize*d.hdr.Count); d.hdr.KeysStart != want {
			return nil, fmt.Errorf("%w: keys start %d, expected %d", ErrMalformedEntry, d.hdr.KeysStart, want)
		}
	}

	entries := make([]Entry, int(d.hdr.Count))
	for i := range entries {
		if err := d.read(d.tmp[:entrySize]); err != nil {
			return nil, d.wrap(err, fmt.Sprintf("entry %d", i))
		}

		e := Entry{
			KeyOffset:  binary.LittleEndian.Uint16(d.tmp[0:]),
			Format:     DataFormat(binary.LittleEndian.Uint16(d.tmp[2:])),
			DataLen:    binary.LittleEndian.Uint32(d.tmp[4:]),
			DataMaxLen: binary.LittleEndian.Uint32(d.tmp[8:]),
			DataOffset: binary.LittleEndian.Uint32(d.tmp[12:]),
		}
		if _, err := e.Padding(); err != nil {
			return nil, fmt.Errorf("%w (entry %d)", err, i)
		}
		if e.DataMaxLen > uint32(d.o.MaxValueSize) {
			return nil, fmt.Errorf("%w: entry %d value size %d exceeds %d", ErrMalformedEntry, i, e.DataMaxLen, d.o.MaxValueSize)
		}
		entries[i] = e
	}
	return entries, nil
}

// readKeys reads one NUL-terminated key per entry and returns the keys
// together with the number of bytes consumed, terminators included.
func (d *Decoder) readKeys(entries []Entry) ([]string, int, error) {
	keys := make([]string, len(entries))
	total := 0

	for i, e := range entries {
		d.o.Logger.Debug("read key", "index", i, "offset", d.off)

		if d.o.Strict && int(e.KeyOffset) != total {
			return nil, 0, fmt.Errorf("%w: entry %d key offset %d, expected %d", ErrMalformedEntry, i, e.KeyOffset, total)
		}

		line, err := d.r.ReadSlice(0)
		d.consumed(line)
		if len(line) > d.o.MaxKeySize || err == bufio.ErrBufferFull {
			return nil, 0, fmt.Errorf("%w: key %d exceeds %d bytes", ErrUnexpectedEOF, i, d.o.MaxKeySize)
		} else if err != nil {
			return nil, 0, d.wrap(err, fmt.Sprintf("key %d", i))
		}

		keys[i] = string(line[:len(line)-1])
		total += len(line)
	}

	d.o.Logger.Debug("read key table", "bytes", total, "offset", d.off)
	return keys, total, nil
}

// readValues reads the raw value of each entry and passes it to fn. Raw
// buffers are only valid for the duration of the call.
func (d *Decoder) readValues(entries []Entry, fn func(int, []byte)) error {
	var offset uint32
	for i, e := range entries {
		d.o.Logger.Debug("read value", "index", i, "format", e.Format, "offset", d.off)

		if d.o.Strict && e.DataOffset != offset {
			return fmt.Errorf("%w: entry %d data offset %d, expected %d", ErrMalformedEntry, i, e.DataOffset, offset)
		}

		size := int(e.DataLen)
		if size < d.o.MinDataSize {
			size = d.o.MinDataSize
		}

		raw := fetchBuffer(size)
		if err := d.read(raw[:e.DataLen]); err != nil {
			releaseBuffer(raw)
			return d.wrap(err, fmt.Sprintf("value %d", i))
		}
		fn(i, raw)
		releaseBuffer(raw)

		if err := d.skip(int64(e.DataMaxLen - e.DataLen)); err != nil {
			return d.wrap(err, fmt.Sprintf("value %d padding", i))
		}
		offset += e.DataMaxLen
	}
	return nil
}

func (d *Decoder) read(p []byte) error {
	n, err := io.ReadFull(d.r, p)
	d.consumed(p[:n])
	return err
}

func (d *Decoder) skip(n int64) error {
	if n == 0 {
		return nil
	}
	m, err := io.CopyN(d.h, d.r, n)
	d.off += m
	return err
}

func (d *Decoder) consumed(p []byte) {
	_, _ = d.h.Write(p)
	d.off += int64(len(p))
}

func (d *Decoder) wrap(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = ErrUnexpectedEOF
	}
	return fmt.Errorf("%w (%s, offset %d)", err, what, d.off)
}

// --------------------------------------------------------------------

var bufPool sync.Pool

// fetchBuffer returns a zeroed buffer of sz bytes.
func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			p = p[:sz]
			clear(p)
			return p
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}
