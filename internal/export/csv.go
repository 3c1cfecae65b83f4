package export

import (
	"encoding/csv"
	"io"
)

// WriteCSV writes a header row and one record per row.
func WriteCSV[T any](w io.Writer, cols []Column[T], rows []T, f Formatter) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Header
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	record := make([]string, len(cols))
	for _, row := range rows {
		for i, c := range cols {
			record[i] = f.cell(c.Value(row), c.Currency)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
