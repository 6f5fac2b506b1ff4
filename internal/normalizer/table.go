package normalizer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNotTabular is returned when a file parses but yields no usable table.
	ErrNotTabular = errors.New("file contains no tabular data")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Table is a parsed spreadsheet: one header row and the data rows below it,
// every row padded or truncated to the header width.
type Table struct {
	Headers []string
	Rows    [][]string
}

// ReadTable parses an uploaded CSV or XLSX payload into a Table.
func ReadTable(filename string, payload []byte) (Table, error) {
	if len(payload) == 0 {
		return Table{}, fmt.Errorf("%w: file is empty", ErrNotTabular)
	}

	var (
		records [][]string
		err     error
	)
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		records, err = readCSV(payload)
	case ".xlsx":
		records, err = readExcel(payload)
	default:
		return Table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Table{}, err
	}

	return buildTable(records)
}

func readCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func readExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: xlsx file has no sheets", ErrNotTabular)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

func buildTable(records [][]string) (Table, error) {
	var headerRow []string
	var dataRows [][]string

	for _, row := range records {
		if isEmptyRow(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}

	if headerRow == nil {
		return Table{}, fmt.Errorf("%w: no header row detected", ErrNotTabular)
	}
	if len(dataRows) == 0 {
		return Table{}, fmt.Errorf("%w: no data rows below header", ErrNotTabular)
	}

	headers := make([]string, len(headerRow))
	for i, value := range headerRow {
		headers[i] = strings.TrimSpace(value)
	}

	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return Table{Headers: headers, Rows: dataRows}, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
