// Package export reads a True Colours export directory.
//
// An export is a directory of pipe-delimited ".csv" files with a header row.
// Every file becomes a Table keyed by its basename. The questionnaire response
// table additionally has three embedded-JSON columns decoded into typed
// payloads (see ResponseRow).
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/trdsync/internal/diag"
)

// Table basenames the reconciliation depends on.
const (
	PatientTable  = "patient.csv"
	ResponseTable = "questionnaireresponse.csv"
)

// Delimiter separates columns in every export table.
const Delimiter = '|'

// ErrMissingTable is returned when a required table is absent from the export.
var ErrMissingTable = errors.New("export table not found")

// Row is one table row keyed by column name.
type Row map[string]string

// Table is an ordered list of rows.
type Table []Row

// Export is a parsed export directory.
type Export struct {
	// Tables holds every parsed file keyed by basename, values as raw strings.
	Tables map[string]Table

	responses    []ResponseRow
	hasResponses bool
}

// Parse reads every *.csv file in dir.
//
// Malformed JSON in the questionnaire response table is recorded on sink and
// the affected payload is left nil; it never aborts parsing. Only I/O failures
// (missing directory, unreadable file, unreadable CSV) are returned as errors.
func Parse(dir string, sink *diag.Sink) (*Export, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("export directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("export directory: not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading export directory %s: %w", dir, err)
	}

	tables := make(map[string]Table)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".csv" {
			continue
		}
		table, err := ReadTable(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		tables[entry.Name()] = table
	}

	return FromTables(tables, sink), nil
}

// FromTables builds an Export from already-read tables, decoding the embedded
// JSON columns of the response table.
func FromTables(tables map[string]Table, sink *diag.Sink) *Export {
	if sink == nil {
		sink = diag.Discard()
	}
	exp := &Export{Tables: tables}

	raw, ok := tables[ResponseTable]
	if !ok {
		return exp
	}
	exp.hasResponses = true
	exp.responses = make([]ResponseRow, 0, len(raw))
	for i, row := range raw {
		exp.responses = append(exp.responses, DecodeResponseRow(i, row, func(column string, err error, value string) {
			sink.Warnf(diag.KindDecode, "%s:%s", ResponseTable, decodeWarning(i, column, err, value))
		}))
	}
	return exp
}

// Patients returns the patient table.
func (e *Export) Patients() (Table, error) {
	t, ok := e.Tables[PatientTable]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTable, PatientTable)
	}
	return t, nil
}

// Responses returns the decoded questionnaire response rows in file order.
func (e *Export) Responses() ([]ResponseRow, error) {
	if !e.hasResponses {
		return nil, fmt.Errorf("%w: %s", ErrMissingTable, ResponseTable)
	}
	return e.responses, nil
}

// TableNames returns the parsed table basenames, sorted.
func (e *Export) TableNames() []string {
	names := make([]string, 0, len(e.Tables))
	for name := range e.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadTable reads one pipe-delimited file with a header row.
// Short rows are padded with empty values; extra trailing values are dropped.
func ReadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	table, err := readTable(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return table, nil
}

func readTable(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	table := Table{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(Row, len(header))
		for i, column := range header {
			if i < len(record) {
				row[column] = record[i]
			} else {
				row[column] = ""
			}
		}
		table = append(table, row)
	}
	return table, nil
}

func decodeWarning(line int, column string, err error, value string) string {
	if value == "" {
		return fmt.Sprintf("L%d:%s - %v[Empty]", line, column, err)
	}
	return fmt.Sprintf("L%d:%s - %v | %s", line, column, err, value)
}
