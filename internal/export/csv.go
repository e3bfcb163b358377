// Package export renders records as CSV and XLSX. Both formats carry
// exactly the name and length_m columns and are produced even when there
// are no records.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// Header is the fixed column order of every export.
var Header = []string{"name", "length_m"}

// WriteCSV writes records with Header first. A nil length is an empty cell.
func WriteCSV(w io.Writer, records []crawler.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write([]string{r.Name, FormatLength(r.LengthM)}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// CSV returns the CSV export as bytes.
func CSV(records []crawler.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatLength renders a length in its shortest exact decimal form.
func FormatLength(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
