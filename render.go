package psf

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

const (
	maxSpecialDump = 16
	invalidType    = "[invalid type]"
	truncated      = "..."
)

// Render converts a raw value into its display text according to the
// entry format. Unknown formats render as "[invalid type]".
func Render(e Entry, raw []byte) string {
	n := int(e.DataLen)
	if n > len(raw) {
		n = len(raw)
	}

	switch e.Format {
	case FormatInteger:
		var num [4]byte
		copy(num[:], raw)
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(num[:]))), 10)
	case FormatUTF8:
		text := raw[:n]
		if i := bytes.IndexByte(text, 0); i > -1 {
			text = text[:i]
		}
		return string(text)
	case FormatSpecial:
		return renderSpecial(raw[:n])
	}
	return invalidType
}

// renderSpecial dumps up to the first 16 bytes as space separated hex pairs.
func renderSpecial(p []byte) string {
	dump := p
	if len(dump) > maxSpecialDump {
		dump = dump[:maxSpecialDump]
	}

	buf := make([]byte, 0, 3*len(dump)+len(truncated))
	for i, c := range dump {
		if i != 0 {
			buf = append(buf, ' ')
		}
		buf = hex.AppendEncode(buf, []byte{c})
	}
	if len(p) > maxSpecialDump {
		buf = append(buf, ' ')
		buf = append(buf, truncated...)
	}
	return string(buf)
}
