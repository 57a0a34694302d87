// Package auditlog keeps an append-only CSV record of import runs.
package auditlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the log.
const (
	ActionParse = "parse"
	ActionMatch = "match"
)

// Entry is one run of one file.
type Entry struct {
	Timestamp time.Time
	BatchID   uuid.UUID
	Action    string
	File      string
	Format    string
	Rows      int
	Valid     int
	Invalid   int
	Matched   int
	Error     string
}

// Header is the CSV header for import-log.csv.
const Header = "timestamp,batch_id,action,file,format,rows,valid,invalid,matched,error"

// FileName is the log file created inside the audit directory.
const FileName = "import-log.csv"

const (
	numFields    = 10
	colTimestamp = 0
	colBatchID   = 1
	colAction    = 2
	colFile      = 3
	colFormat    = 4
	colRows      = 5
	colValid     = 6
	colInvalid   = 7
	colMatched   = 8
	colError     = 9
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
	if e.BatchID != uuid.Nil {
		row[colBatchID] = e.BatchID.String()
	}
	row[colAction] = e.Action
	row[colFile] = e.File
	row[colFormat] = e.Format
	row[colRows] = strconv.Itoa(e.Rows)
	row[colValid] = strconv.Itoa(e.Valid)
	row[colInvalid] = strconv.Itoa(e.Invalid)
	row[colMatched] = strconv.Itoa(e.Matched)
	row[colError] = e.Error
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	var batch uuid.UUID
	if s := record[colBatchID]; s != "" {
		if batch, err = uuid.Parse(s); err != nil {
			return Entry{}, fmt.Errorf("parsing batch_id %q: %w", s, err)
		}
	}

	counts := make([]int, 4)
	for i, col := range []int{colRows, colValid, colInvalid, colMatched} {
		if counts[i], err = strconv.Atoi(record[col]); err != nil {
			return Entry{}, fmt.Errorf("parsing column %d %q: %w", col+1, record[col], err)
		}
	}

	return Entry{
		Timestamp: ts,
		BatchID:   batch,
		Action:    record[colAction],
		File:      record[colFile],
		Format:    record[colFormat],
		Rows:      counts[0],
		Valid:     counts[1],
		Invalid:   counts[2],
		Matched:   counts[3],
		Error:     record[colError],
	}, nil
}

// Append writes entries to <dir>/import-log.csv, creating the directory,
// file and header if needed.
func Append(dir string, entries []Entry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating audit dir: %w", err)
	}

	path := filepath.Join(dir, FileName)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <dir>/import-log.csv, or nil if the file
// does not exist.
func Read(dir string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading import log CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	entries := make([]Entry, 0, len(records)-1)
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
