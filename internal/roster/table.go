package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is a raw header + rows grid as read from a roster file.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Empty reports whether the table carries neither header nor rows.
func (t Table) Empty() bool {
	return len(t.Columns) == 0 && len(t.Rows) == 0
}

func (t Table) index(names ...string) int {
	for _, name := range names {
		want := normalizeHeader(name)
		for i, col := range t.Columns {
			if normalizeHeader(col) == want {
				return i
			}
		}
	}
	return -1
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func normalizeHeader(raw string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
}

func newTable(records [][]string) Table {
	if len(records) == 0 {
		return Table{}
	}
	header := make([]string, len(records[0]))
	for i, col := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
	}
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blankRow(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return Table{Columns: header, Rows: rows}
}

func blankRow(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ReadCSV decodes a delimited roster file into a raw grid. Column names vary between
// exports, so rows stay untyped until Normalize resolves them. A zero delimiter means comma.
func ReadCSV(r io.Reader, delim rune) (Table, error) {
	reader := csv.NewReader(r)
	if delim != 0 {
		reader.Comma = delim
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read csv roster: %w", err)
	}
	return newTable(records), nil
}

// ReadXLSX reads one sheet of a spreadsheet roster; an empty sheet name selects the first sheet.
func ReadXLSX(r io.Reader, sheet string) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("open xlsx roster: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return Table{}, fmt.Errorf("read xlsx sheet %q: %w", sheet, err)
	}
	return newTable(records), nil
}

// ReadTable picks the reader from the file extension: .xlsx uses the first sheet,
// .csv and .txt are comma separated and .tsv is tab separated.
func ReadTable(filename string, r io.Reader) (Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(r, "")
	case ".tsv":
		return ReadCSV(r, '\t')
	case ".csv", ".txt", "":
		return ReadCSV(r, ',')
	default:
		return Table{}, &DataFormatError{Table: filename, Reason: "unsupported roster extension " + filepath.Ext(filename)}
	}
}
