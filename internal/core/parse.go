package core

// parse.go turns uploaded bytes into RawRows.
//
// Delimited text is read with encoding/csv; the delimiter is sniffed from the
// header line (comma, semicolon or tab). Spreadsheets (.xlsx) are read from
// their first sheet. In both cases:
//
//   - The first non-blank line is the header; names are matched case-insensitively
//   - Extra columns are ignored, values are whitespace-trimmed
//   - Blank lines are skipped but still count toward line numbers, so a RawRow's
//     Number is the line a user sees in a spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Column names expected in the header row.
const (
	ColumnState     = "state"
	ColumnCategory  = "category"
	ColumnStatistic = "statistic"
	ColumnValue     = "value"
	ColumnYear      = "year"
)

// RequiredColumns lists the required fields in the order they are checked.
var RequiredColumns = []string{ColumnState, ColumnCategory, ColumnStatistic, ColumnValue, ColumnYear}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseError reports a file that could not be read as a table.
type ParseError struct {
	Line    int // 0 if the problem is not tied to a line
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid csv: line %d: %s", e.Line, e.Message)
	}
	return "invalid csv: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Failure converts the error into a csv_parsing ValidationFailure.
func (e *ParseError) Failure() ValidationFailure {
	return ValidationFailure{
		RowNumber: e.Line,
		Category:  CategoryCSVParsing,
		Message:   e.Error(),
	}
}

// ParsedTable is the result of parsing an upload.
type ParsedTable struct {
	Headers []string // Lower-cased header names in file order
	Rows    []RawRow
}

// HasColumn reports whether the header contains column.
func (t *ParsedTable) HasColumn(column string) bool {
	for _, h := range t.Headers {
		if h == column {
			return true
		}
	}
	return false
}

type lineRecord struct {
	line   int
	fields []string
}

// ParseTable parses an uploaded file into rows. Files with an .xlsx extension
// are read as spreadsheets; everything else is treated as delimited text.
func ParseTable(fileName string, data []byte) (*ParsedTable, error) {
	var (
		records []lineRecord
		err     error
	)
	if strings.EqualFold(filepath.Ext(fileName), ".xlsx") {
		records, err = readSpreadsheet(data)
	} else {
		records, err = readDelimited(data)
	}
	if err != nil {
		return nil, err
	}
	return buildTable(records)
}

func readDelimited(data []byte) ([]lineRecord, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, &ParseError{Message: "file is not valid UTF-8 (encoding error)"}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1

	var records []lineRecord
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, &ParseError{Line: csvErr.Line, Message: csvErr.Err.Error(), Err: err}
			}
			return nil, &ParseError{Message: err.Error(), Err: err}
		}
		line, _ := r.FieldPos(0)
		records = append(records, lineRecord{line: line, fields: fields})
	}
	return records, nil
}

func readSpreadsheet(data []byte) ([]lineRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Message: "failed to open xlsx", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Message: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Message: "failed to read rows from xlsx", Err: err}
	}

	records := make([]lineRecord, 0, len(rows))
	for i, row := range rows {
		records = append(records, lineRecord{line: i + 1, fields: row})
	}
	return records, nil
}

// sniffDelimiter picks the most frequent candidate delimiter on the first line.
func sniffDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	best, bestCount := ',', bytes.Count(first, []byte{','})
	for _, c := range []rune{';', '\t'} {
		if n := bytes.Count(first, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

func buildTable(records []lineRecord) (*ParsedTable, error) {
	headerAt := -1
	for i, rec := range records {
		if !isBlankRecord(rec.fields) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, &ParseError{Message: "empty file: missing header row"}
	}

	headerRec := records[headerAt]
	headers := make([]string, len(headerRec.fields))
	for i, h := range headerRec.fields {
		headers[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	table := &ParsedTable{Headers: headers}
	if !hasAnyRequired(table) {
		return nil, &ParseError{
			Line:    headerRec.line,
			Message: fmt.Sprintf("header row not found (expected: %s)", strings.Join(RequiredColumns, ", ")),
		}
	}

	for _, rec := range records[headerAt+1:] {
		if isBlankRecord(rec.fields) {
			continue
		}
		values := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if _, dup := values[h]; dup {
				continue
			}
			if i < len(rec.fields) {
				values[h] = strings.TrimSpace(rec.fields[i])
			}
		}
		table.Rows = append(table.Rows, RawRow{Number: rec.line, Values: values})
	}

	return table, nil
}

func hasAnyRequired(t *ParsedTable) bool {
	for _, col := range RequiredColumns {
		if t.HasColumn(col) {
			return true
		}
	}
	return false
}

func isBlankRecord(fields []string) bool {
	for _, v := range fields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
