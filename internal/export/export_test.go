package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

func length(v float64) *float64 { return &v }

func sampleRecords() []crawler.Record {
	return []crawler.Record{
		{Name: "Azzam 180m luxury yacht", LengthM: length(180)},
		{Name: "Sloop, \"Blue\"", LengthM: length(45.5)},
		{Name: "Untitled"},
	}
}

func TestCSVWritesHeaderAndRows(t *testing.T) {
	t.Parallel()

	got, err := CSV(sampleRecords())
	require.NoError(t, err)
	require.Equal(t, "name,length_m\nAzzam 180m luxury yacht,180\n\"Sloop, \"\"Blue\"\"\",45.5\nUntitled,\n", string(got))
}

func TestCSVEmptyStillHasHeader(t *testing.T) {
	t.Parallel()

	got, err := CSV(nil)
	require.NoError(t, err)
	require.Equal(t, "name,length_m\n", string(got))
}

func TestXLSXRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := XLSX(sampleRecords())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, []string{"name", "length_m"}, rows[0])
	require.Equal(t, []string{"Azzam 180m luxury yacht", "180"}, rows[1])
	require.Equal(t, []string{"Sloop, \"Blue\"", "45.5"}, rows[2])
	require.Equal(t, "Untitled", rows[3][0])
}

func TestXLSXEmpty(t *testing.T) {
	t.Parallel()

	data, err := XLSX(nil)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"name", "length_m"}}, rows)
}

func TestFormatLength(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", FormatLength(nil))
	require.Equal(t, "12", FormatLength(length(12)))
	require.Equal(t, "162.5", FormatLength(length(162.5)))
}
