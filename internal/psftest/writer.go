// Package psftest builds PSF containers for tests and benchmarks.
package psftest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bsm/psf"
)

var errClosed = errors.New("psftest: is closed")

// WriterOptions define writer specific options.
type WriterOptions struct {
	// Version is stored in the header.
	// Default: 0x00000101.
	Version uint32

	// Alignment is the boundary each value is padded to.
	// Default: 4.
	Alignment int
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.Version == 0 {
		oo.Version = 0x0101
	}
	if oo.Alignment < 1 {
		oo.Alignment = 4
	}

	return &oo
}

// Writer instances can write a container. Entries are buffered and the
// whole container is written on Close.
type Writer struct {
	w io.Writer
	o *WriterOptions

	entries []psf.Entry
	keys    []byte
	values  []byte
	closed  bool
}

// NewWriter wraps a writer and returns a Writer.
func NewWriter(w io.Writer, o *WriterOptions) *Writer {
	return &Writer{w: w, o: o.norm()}
}

// Append appends an entry, padding the value to the configured alignment.
func (w *Writer) Append(key string, format psf.DataFormat, value []byte) error {
	maxLen := len(value)
	if rem := maxLen % w.o.Alignment; rem != 0 {
		maxLen += w.o.Alignment - rem
	}
	return w.AppendPadded(key, format, value, maxLen)
}

// AppendPadded appends an entry occupying maxLen bytes in the value table.
func (w *Writer) AppendPadded(key string, format psf.DataFormat, value []byte, maxLen int) error {
	if w.closed {
		return errClosed
	}
	if maxLen < len(value) {
		return fmt.Errorf("psftest: max len %d < value len %d", maxLen, len(value))
	}

	w.entries = append(w.entries, psf.Entry{
		KeyOffset:  uint16(len(w.keys)),
		Format:     format,
		DataLen:    uint32(len(value)),
		DataMaxLen: uint32(maxLen),
		DataOffset: uint32(len(w.values)),
	})

	w.keys = append(w.keys, key...)
	w.keys = append(w.keys, 0)
	w.values = append(w.values, value...)
	w.values = append(w.values, make([]byte, maxLen-len(value))...)
	return nil
}

// Close writes the container.
func (w *Writer) Close() error {
	if w.closed {
		return errClosed
	}
	w.closed = true

	keysStart := 20 + 16*len(w.entries)
	keyTable := append(w.keys, make([]byte, psf.KeyPadding(len(w.keys)))...)

	hdr := psf.Header{
		Magic:     psf.Signature,
		Version:   w.o.Version,
		KeysStart: uint32(keysStart),
		DataStart: uint32(keysStart + len(keyTable)),
		Count:     uint32(len(w.entries)),
	}
	if err := binary.Write(w.w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	if err := binary.Write(w.w, binary.LittleEndian, w.entries); err != nil {
		return err
	}
	if _, err := w.w.Write(keyTable); err != nil {
		return err
	}
	_, err := w.w.Write(w.values)
	return err
}

// --------------------------------------------------------------------

// Int32 encodes v as an integer value.
func Int32(v int32) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v))
}

// Text encodes s as a NUL-terminated text value.
func Text(s string) []byte {
	return append([]byte(s), 0)
}

// ParamSFO returns a container resembling a PS3 game PARAM.SFO.
func ParamSFO() []byte {
	buf := new(bytes.Buffer)
	w := NewWriter(buf, nil)
	_ = w.Append("APP_VER", psf.FormatUTF8, Text("01.00"))
	_ = w.Append("ATTRIBUTE", psf.FormatInteger, Int32(32))
	_ = w.Append("BOOTABLE", psf.FormatInteger, Int32(1))
	_ = w.Append("CATEGORY", psf.FormatUTF8, Text("DG"))
	_ = w.AppendPadded("LICENSE", psf.FormatUTF8, Text("Library programs (c)SONY COMPUTER ENTERTAINMENT INC."), 512)
	_ = w.Append("PARENTAL_LEVEL", psf.FormatInteger, Int32(5))
	_ = w.Append("PS3_SYSTEM_VER", psf.FormatUTF8, Text("03.5500"))
	_ = w.Append("RESOLUTION", psf.FormatInteger, Int32(63))
	_ = w.Append("SAVEDATA_PARAMS", psf.FormatSpecial, []byte{
		0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c,
	})
	_ = w.Append("SOUND_FORMAT", psf.FormatInteger, Int32(1))
	_ = w.AppendPadded("TITLE", psf.FormatUTF8, Text("Example Game"), 128)
	_ = w.AppendPadded("TITLE_ID", psf.FormatUTF8, Text("BLUS12345"), 16)
	_ = w.Append("VERSION", psf.FormatUTF8, Text("01.00"))
	_ = w.Close()
	return buf.Bytes()
}
