package psf_test

import (
	"bytes"
	"io"
	"log/slog"
	"testing/iotest"

	"github.com/bsm/psf"
	"github.com/bsm/psf/internal/psftest"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/zeebo/blake3"
)

var _ = Describe("Decoder", func() {
	var data []byte

	keysOf := func(records []psf.Record) []string {
		keys := make([]string, 0, len(records))
		for _, rec := range records {
			keys = append(keys, rec.Key)
		}
		return keys
	}

	BeforeEach(func() {
		data = psftest.ParamSFO()
	})

	It("should decode", func() {
		dec := psf.NewDecoder(bytes.NewReader(data), nil)
		records, err := dec.Decode()
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(13))
		Expect(dec.Header()).To(Equal(psf.Header{
			Magic:     psf.Signature,
			Version:   0x0101,
			KeysStart: 20 + 16*13,
			DataStart: 20 + 16*13 + 140,
			Count:     13,
		}))

		Expect(keysOf(records)).To(Equal([]string{
			"APP_VER", "ATTRIBUTE", "BOOTABLE", "CATEGORY", "LICENSE",
			"PARENTAL_LEVEL", "PS3_SYSTEM_VER", "RESOLUTION", "SAVEDATA_PARAMS",
			"SOUND_FORMAT", "TITLE", "TITLE_ID", "VERSION",
		}))

		Expect(records[0]).To(Equal(psf.Record{
			Key:   "APP_VER",
			Value: "01.00",
			Entry: psf.Entry{KeyOffset: 0, Format: psf.FormatUTF8, DataLen: 6, DataMaxLen: 8, DataOffset: 0},
		}))
		Expect(records[1].Value).To(Equal("32"))
		Expect(records[3].Value).To(Equal("DG"))
		Expect(records[4].Value).To(Equal("Library programs (c)SONY COMPUTER ENTERTAINMENT INC."))
		Expect(records[4].Entry.DataMaxLen).To(Equal(uint32(512)))
		Expect(records[6].Value).To(Equal("03.5500"))
		Expect(records[8].Value).To(Equal("40 00 00 00 00 00 00 00 01 02 03 04 05 06 07 08 ..."))
		Expect(records[10].Value).To(Equal("Example Game"))
		Expect(records[11].Value).To(Equal("BLUS12345"))
	})

	It("should consume the whole container", func() {
		dec := psf.NewDecoder(bytes.NewReader(data), nil)
		_, err := dec.Decode()
		Expect(err).NotTo(HaveOccurred())
		Expect(dec.Offset()).To(Equal(int64(len(data))))

		sum := blake3.Sum256(data)
		Expect(dec.Sum()).To(Equal(sum[:]))
	})

	It("should not read beyond the value table", func() {
		r := bytes.NewReader(append(append([]byte(nil), data...), "trailing"...))
		dec := psf.NewDecoder(r, nil)
		_, err := dec.Decode()
		Expect(err).NotTo(HaveOccurred())
		Expect(dec.Offset()).To(Equal(int64(len(data))))
	})

	It("should decode from slow readers", func() {
		records, err := psf.Decode(iotest.OneByteReader(bytes.NewReader(data)), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(13))
	})

	It("should decode a single integer", func() {
		data := []byte{
			0x00, 'P', 'S', 'F', // magic
			0x01, 0x00, 0x00, 0x00, // version
			0x24, 0x00, 0x00, 0x00, // keys start
			0x2c, 0x00, 0x00, 0x00, // data start
			0x01, 0x00, 0x00, 0x00, // count
			0x00, 0x00, 0x04, 0x04, // key offset, format
			0x04, 0x00, 0x00, 0x00, // data len
			0x04, 0x00, 0x00, 0x00, // data max len
			0x00, 0x00, 0x00, 0x00, // data offset
			'S', 'I', 'Z', 'E', 0x00, // key
			0x00, 0x00, 0x00, // key padding
			0x2a, 0x00, 0x00, 0x00, // value
		}

		records, err := psf.Decode(bytes.NewReader(data), &psf.ReaderOptions{Strict: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].Key).To(Equal("SIZE"))
		Expect(records[0].Value).To(Equal("42"))

		buf := new(bytes.Buffer)
		Expect(psf.WriteRecords(buf, records)).To(Succeed())
		Expect(buf.String()).To(Equal("SIZE                 42\n"))
	})

	It("should decode empty containers", func() {
		data := seedContainer(func(*psftest.Writer) {})
		Expect(data).To(HaveLen(20))

		records, err := psf.Decode(bytes.NewReader(data), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
	})

	It("should round-trip values", func() {
		data := seedContainer(func(w *psftest.Writer) {
			Expect(w.Append("A", psf.FormatInteger, psftest.Int32(-7))).To(Succeed())
			Expect(w.Append("BB", psf.FormatUTF8, psftest.Text("hello, world"))).To(Succeed())
			Expect(w.Append("CCC", psf.FormatSpecial, []byte{0xde, 0xad, 0xbe})).To(Succeed())
			Expect(w.Append("DDDD", psf.FormatUTF8, psftest.Text(""))).To(Succeed())
			Expect(w.AppendPadded("E", psf.FormatInteger, psftest.Int32(1<<30), 64)).To(Succeed())
		})

		records, err := psf.Decode(bytes.NewReader(data), &psf.ReaderOptions{Strict: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(keysOf(records)).To(Equal([]string{"A", "BB", "CCC", "DDDD", "E"}))

		values := make([]string, 0, len(records))
		for _, rec := range records {
			values = append(values, rec.Value)
		}
		Expect(values).To(Equal([]string{"-7", "hello, world", "de ad be", "", "1073741824"}))
	})

	It("should render unknown formats without aborting", func() {
		data := seedContainer(func(w *psftest.Writer) {
			Expect(w.Append("BEFORE", psf.FormatInteger, psftest.Int32(1))).To(Succeed())
			Expect(w.Append("ODD", psf.DataFormat(0x9999), []byte{1, 2, 3, 4, 5})).To(Succeed())
			Expect(w.Append("AFTER", psf.FormatUTF8, psftest.Text("ok"))).To(Succeed())
		})

		records, err := psf.Decode(bytes.NewReader(data), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(3))
		Expect(records[0].Value).To(Equal("1"))
		Expect(records[1].Value).To(Equal("[invalid type]"))
		Expect(records[2].Value).To(Equal("ok"))
	})

	It("should reject bad signatures", func() {
		data := patch32(data, 0, 0x46535001)

		dec := psf.NewDecoder(bytes.NewReader(data), nil)
		records, err := dec.Decode()
		Expect(err).To(MatchError(psf.ErrBadSignature))
		Expect(records).To(BeNil())
		Expect(dec.Offset()).To(Equal(int64(20)))
	})

	It("should fail on truncated input at any position", func() {
		for n := 0; n < len(data); n++ {
			records, err := psf.Decode(bytes.NewReader(data[:n]), nil)
			Expect(err).To(MatchError(psf.ErrUnexpectedEOF), "for %d", n)
			Expect(records).To(BeNil(), "for %d", n)
		}
	})

	It("should include the position in EOF errors", func() {
		_, err := psf.Decode(bytes.NewReader(data[:10]), nil)
		Expect(err).To(MatchError("psf: unexpected end of file (header, offset 10)"))

		_, err = psf.Decode(bytes.NewReader(data[:40]), nil)
		Expect(err).To(MatchError("psf: unexpected end of file (entry 1, offset 40)"))
	})

	It("should propagate read errors", func() {
		r := io.MultiReader(bytes.NewReader(data[:30]), iotest.ErrReader(io.ErrClosedPipe))
		_, err := psf.Decode(r, nil)
		Expect(err).To(MatchError(io.ErrClosedPipe))
		Expect(err).NotTo(MatchError(psf.ErrUnexpectedEOF))
	})

	It("should limit the number of entries", func() {
		_, err := psf.Decode(bytes.NewReader(patch32(data, 16, 257)), nil)
		Expect(err).To(MatchError(psf.ErrMalformedEntry))

		_, err = psf.Decode(bytes.NewReader(patch32(data, 16, 0xffffffff)), nil)
		Expect(err).To(MatchError(psf.ErrMalformedEntry))

		_, err = psf.Decode(bytes.NewReader(data), &psf.ReaderOptions{MaxCount: 12})
		Expect(err).To(MatchError("psf: malformed entry: entry count 13 exceeds 12"))
	})

	It("should reject values exceeding their max length", func() {
		// entry 2 (BOOTABLE) data max len
		_, err := psf.Decode(bytes.NewReader(patch32(data, entryField(2, 8), 2)), nil)
		Expect(err).To(MatchError(psf.ErrMalformedEntry))
		Expect(err).To(MatchError("psf: malformed entry: data max len 2 < data len 4 (entry 2)"))
	})

	It("should limit value sizes", func() {
		_, err := psf.Decode(bytes.NewReader(data), &psf.ReaderOptions{MaxValueSize: 256})
		Expect(err).To(MatchError("psf: malformed entry: entry 4 value size 512 exceeds 256"))
	})

	It("should limit key sizes", func() {
		_, err := psf.Decode(bytes.NewReader(data), &psf.ReaderOptions{MaxKeySize: 10})
		Expect(err).To(MatchError(psf.ErrUnexpectedEOF))
		Expect(err).To(MatchError("psf: unexpected end of file: key 5 exceeds 10 bytes"))

		_, err = psf.Decode(bytes.NewReader(data), &psf.ReaderOptions{MaxKeySize: 16})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should ignore offsets by default", func() {
		data := patch32(data, 8, 1)                // keys start
		data = patch32(data, 12, 2)                // data start
		data = patch32(data, entryField(3, 12), 3) // data offset

		records, err := psf.Decode(bytes.NewReader(data), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(13))
	})

	Describe("strict", func() {
		opts := &psf.ReaderOptions{Strict: true}

		It("should accept consistent offsets", func() {
			records, err := psf.Decode(bytes.NewReader(data), opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(13))
		})

		It("should check keys start", func() {
			_, err := psf.Decode(bytes.NewReader(patch32(data, 8, 1)), opts)
			Expect(err).To(MatchError("psf: malformed entry: keys start 1, expected 228"))
		})

		It("should check data start", func() {
			_, err := psf.Decode(bytes.NewReader(patch32(data, 12, 2)), opts)
			Expect(err).To(MatchError("psf: malformed entry: data start 2, expected 368"))
		})

		It("should check key offsets", func() {
			// key offset and format share the first word of an entry
			_, err := psf.Decode(bytes.NewReader(patch32(data, entryField(1, 0), 0x04040001)), opts)
			Expect(err).To(MatchError("psf: malformed entry: entry 1 key offset 1, expected 8"))
		})

		It("should check data offsets", func() {
			_, err := psf.Decode(bytes.NewReader(patch32(data, entryField(3, 12), 3)), opts)
			Expect(err).To(MatchError("psf: malformed entry: entry 3 data offset 3, expected 16"))
		})
	})

	It("should log positions", func() {
		buf := new(bytes.Buffer)
		logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		_, err := psf.Decode(bytes.NewReader(data), &psf.ReaderOptions{Logger: logger})
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring(`msg="read header" version=0x00000101 keys_start=228 data_start=368 count=13`))
		Expect(buf.String()).To(ContainSubstring(`msg="read key" index=0 offset=228`))
		Expect(buf.String()).To(ContainSubstring(`msg="read key table" bytes=137 offset=365`))
		Expect(buf.String()).To(ContainSubstring(`msg="read value" index=0 format=utf8 offset=368`))
	})
})
