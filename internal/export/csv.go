// Package export serializes the merged tidy table as delimited text.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ukaqn/air-quality-timeseries/internal/airquality"
)

var header = []string{"timestamp", "site", "pollutant", "value", "is_gap"}

// WriteCSV writes one row per TidyRow in input order: RFC3339 UTC timestamp,
// site code, pollutant code, value (empty cell when gap), is_gap flag.
func WriteCSV(w io.Writer, rows []airquality.TidyRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		value := ""
		if !row.IsGap && row.Value != nil {
			value = strconv.FormatFloat(*row.Value, 'f', -1, 64)
		}
		record := []string{
			row.Timestamp.UTC().Format(time.RFC3339),
			row.Site,
			string(row.Pollutant),
			value,
			strconv.FormatBool(row.IsGap),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table previously written by WriteCSV, preserving row
// order. It exists so exports can be re-ingested and round-tripped in tests.
func ReadCSV(r io.Reader) ([]airquality.TidyRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv: missing header row")
	}

	rows := make([]airquality.TidyRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("csv: bad timestamp %q: %w", rec[0], err)
		}
		isGap, err := strconv.ParseBool(rec[4])
		if err != nil {
			return nil, fmt.Errorf("csv: bad is_gap %q: %w", rec[4], err)
		}

		row := airquality.TidyRow{
			Timestamp: ts.UTC(),
			Site:      rec[1],
			Pollutant: airquality.PollutantKind(rec[2]),
			IsGap:     isGap,
		}
		if !isGap {
			v, err := strconv.ParseFloat(rec[3], 64)
			if err != nil {
				return nil, fmt.Errorf("csv: bad value %q: %w", rec[3], err)
			}
			row.Value = &v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
