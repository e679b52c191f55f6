package geobbox

// CSV dataset output.

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// CSVHeader is the header row of the dataset CSV.
var CSVHeader = []string{"image_path", "xmin", "ymin", "xmax", "ymax", "label"}

// CSVRow is a single dataset row.
type CSVRow struct {
	ImagePath              string
	XMin, YMin, XMax, YMax float64
	Label                  string
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (r CSVRow) record() []string {
	return []string{r.ImagePath, formatCoord(r.XMin), formatCoord(r.YMin), formatCoord(r.XMax),
		formatCoord(r.YMax), r.Label}
}

// parseCSVRow parses a record with the CSVHeader layout.
func parseCSVRow(record []string) (CSVRow, error) {
	if len(record) != len(CSVHeader) {
		return CSVRow{}, fmt.Errorf("%d fields, want %d: %w", len(record), len(CSVHeader), ErrCSVSchema)
	}
	row := CSVRow{ImagePath: record[0], Label: record[5]}
	coords := []*float64{&row.XMin, &row.YMin, &row.XMax, &row.YMax}
	for i, p := range coords {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return CSVRow{}, fmt.Errorf("column %s: %v: %w", CSVHeader[i+1], err, ErrCSVSchema)
		}
		*p = v
	}
	return row, nil
}

// ReadCSV reads all rows of the dataset CSV at path.
func ReadCSV(path string) (rows []CSVRow, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeWithErrCheck(f, &err)

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("%q: %v: %w", path, err, ErrCSVSchema)
	}
	if !equalStrings(header, CSVHeader) {
		return nil, fmt.Errorf("%q: header %v: %w", path, header, ErrCSVSchema)
	}

	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%q: %v: %w", path, err, ErrCSVSchema)
		}
		row, err := parseCSVRow(record)
		if err != nil {
			return nil, fmt.Errorf("%q line %d: %w", path, line, err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// MergeStats summarises a MergeCSV call.
type MergeStats struct {
	Existing   int // Rows kept from the existing file.
	Added      int // New rows appended.
	Duplicates int // Rows dropped as exact duplicates.
}

// MergeRows appends added to existing, dropping every row equal to an earlier one.
func MergeRows(existing, added []CSVRow) ([]CSVRow, MergeStats) {
	var stats MergeStats
	seen := make(map[CSVRow]struct{}, len(existing)+len(added))
	merged := make([]CSVRow, 0, len(existing)+len(added))

	for i, rows := range [][]CSVRow{existing, added} {
		for _, row := range rows {
			if _, dup := seen[row]; dup {
				stats.Duplicates++
				continue
			}
			seen[row] = struct{}{}
			merged = append(merged, row)
			if i == 0 {
				stats.Existing++
			} else {
				stats.Added++
			}
		}
	}

	return merged, stats
}

// MergeCSV merges rows into the dataset CSV at path, creating it if needed. Existing rows come
// first; exact duplicates are dropped. The file is replaced atomically.
func MergeCSV(path string, rows []CSVRow) (MergeStats, error) {
	existing, err := ReadCSV(path)
	if err != nil && !os.IsNotExist(err) {
		return MergeStats{}, err
	}

	merged, stats := MergeRows(existing, rows)
	if err := writeCSVAtomic(path, merged); err != nil {
		return MergeStats{}, fmt.Errorf("cannot write %q: %v", path, err)
	}
	return stats, nil
}

// writeCSVAtomic writes the header and rows to a temporary file next to path and renames it.
func writeCSVAtomic(path string, rows []CSVRow) (err error) {
	dir, file := filepath.Split(path)
	tmpPath := filepath.Join(dir, "."+file+"."+uuid.NewString()+".tmp")

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if err = writeCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func writeCSV(w io.Writer, rows []CSVRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
