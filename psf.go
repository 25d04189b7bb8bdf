package psf

import (
	"errors"
	"fmt"
)

// Signature is the container magic, the bytes "\x00PSF" read as a little-endian uint32.
const Signature uint32 = 0x46535000

const (
	headerSize = 20 // magic, version, keys start, data start, count
	entrySize  = 16 // key offset, format, data len, data max len, data offset
)

// Default limits.
const (
	DefaultMaxCount     = 256
	DefaultMaxKeySize   = 256
	DefaultMinDataSize  = 64
	DefaultMaxValueSize = 1 << 20
)

var (
	// ErrUnexpectedEOF is returned when the stream ends before a field was fully read.
	ErrUnexpectedEOF = errors.New("psf: unexpected end of file")
	// ErrBadSignature is returned when the header magic does not match Signature.
	ErrBadSignature = errors.New("psf: incorrect signature")
	// ErrMalformedEntry is returned when header or entry fields are inconsistent.
	ErrMalformedEntry = errors.New("psf: malformed entry")
)

// --------------------------------------------------------------------

// DataFormat is the type tag of an entry value.
type DataFormat uint16

// Supported data formats.
const (
	FormatSpecial DataFormat = 0x0004
	FormatUTF8    DataFormat = 0x0204
	FormatInteger DataFormat = 0x0404
)

func (f DataFormat) String() string {
	switch f {
	case FormatSpecial:
		return "special"
	case FormatUTF8:
		return "utf8"
	case FormatInteger:
		return "integer"
	}
	return fmt.Sprintf("unknown(0x%04x)", uint16(f))
}

// IsValid returns true if the format is known.
func (f DataFormat) IsValid() bool {
	return f == FormatSpecial || f == FormatUTF8 || f == FormatInteger
}

// Header is the fixed container header.
type Header struct {
	Magic     uint32
	Version   uint32
	KeysStart uint32 // informational, never followed
	DataStart uint32 // informational, never followed
	Count     uint32
}

// Entry describes a single record.
type Entry struct {
	KeyOffset  uint16
	Format     DataFormat
	DataLen    uint32 // meaningful value bytes
	DataMaxLen uint32 // on-disk value size, including padding
	DataOffset uint32
}

// Padding returns the number of padding bytes following the value.
func (e Entry) Padding() (uint32, error) {
	if e.DataMaxLen < e.DataLen {
		return 0, fmt.Errorf("%w: data max len %d < data len %d", ErrMalformedEntry, e.DataMaxLen, e.DataLen)
	}
	return e.DataMaxLen - e.DataLen, nil
}

// Record is a decoded key with its rendered value.
type Record struct {
	Key   string
	Value string
	Entry Entry
}

// KeyPadding returns the number of zero bytes which align a key table of
// total bytes to a 4-byte boundary.
func KeyPadding(total int) int {
	return (4 - total%4) % 4
}
