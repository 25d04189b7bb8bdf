package psf

import (
	"bufio"
	"fmt"
	"io"
)

// KeyWidth is the minimum width keys are padded to when printed.
const KeyWidth = 20

// WriteRecords writes one line per record, in order, as the key padded to
// KeyWidth, a space and the rendered value.
func WriteRecords(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := fmt.Fprintf(bw, "%-*s %s\n", KeyWidth, rec.Key, rec.Value); err != nil {
			return err
		}
	}
	return bw.Flush()
}
