// Package export writes parsed import rows for downstream review tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cleared-dev/txnimport/internal/model"
)

// Header is the CSV header written by WriteCSV.
const Header = "batch_id,row_index,validation_status,date,amount,payee,notes,category,status,check_number,fitid,errors,match_transaction_id,match_transfer_id,match_source_account,match_date_difference,match_confidence"

const (
	numFields      = 17
	colBatch       = 0
	colRowIndex    = 1
	colValidation  = 2
	colDate        = 3
	colAmount      = 4
	colPayee       = 5
	colNotes       = 6
	colCategory    = 7
	colStatus      = 8
	colCheckNumber = 9
	colFITID       = 10
	colErrors      = 11
	colMatchTxn    = 12
	colMatchXfer   = 13
	colMatchSource = 14
	colMatchDays   = 15
	colMatchConf   = 16
)

// Output formats accepted by Write.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Batch is one imported file's rows.
type Batch struct {
	ID     uuid.UUID         `json:"batchId"`
	Format string            `json:"format"`
	File   string            `json:"file"`
	Rows   []model.ImportRow `json:"rows"`
}

// Write encodes b as format ("csv" or "json").
func Write(w io.Writer, format string, b Batch) error {
	switch strings.ToLower(format) {
	case FormatCSV, "":
		return WriteCSV(w, b)
	case FormatJSON:
		return WriteJSON(w, b)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// WriteAll encodes several batches as one document: a single CSV table or
// a JSON array of batches.
func WriteAll(w io.Writer, format string, batches []Batch) error {
	switch strings.ToLower(format) {
	case FormatCSV, "":
		return WriteCSV(w, batches...)
	case FormatJSON:
		if batches == nil {
			batches = []Batch{}
		}
		for i := range batches {
			if batches[i].Rows == nil {
				batches[i].Rows = []model.ImportRow{}
			}
		}
		return encodeJSON(w, batches)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// WriteCSV writes one line per row of every batch under a single header.
func WriteCSV(w io.Writer, batches ...Batch) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	line := 1
	for _, b := range batches {
		for _, row := range b.Rows {
			line++
			if err := cw.Write(MarshalRow(b.ID, row)); err != nil {
				return fmt.Errorf("writing row %d: %w", line, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalRow converts an ImportRow to a CSV record.
func MarshalRow(batch uuid.UUID, row model.ImportRow) []string {
	rec := make([]string, numFields)
	rec[colBatch] = batch.String()
	rec[colRowIndex] = strconv.Itoa(row.RowIndex)
	rec[colValidation] = string(row.Status)

	n := row.Normalized
	rec[colDate] = n.Date
	if n.HasAmount() {
		rec[colAmount] = n.Amount.StringFixed(2)
	}
	rec[colPayee] = n.Payee
	rec[colNotes] = n.Notes
	rec[colCategory] = n.Category
	rec[colStatus] = string(n.Status)
	rec[colCheckNumber] = n.CheckNumber
	rec[colFITID] = n.FITID

	if len(row.Errors) > 0 {
		msgs := make([]string, len(row.Errors))
		for i, fe := range row.Errors {
			msgs[i] = fe.Error()
		}
		rec[colErrors] = strings.Join(msgs, "; ")
	}

	if m := row.TransferTargetMatch; m != nil {
		rec[colMatchTxn] = m.ExistingTransactionID
		rec[colMatchXfer] = m.ExistingTransferID
		rec[colMatchSource] = m.SourceAccountName
		if rec[colMatchSource] == "" {
			rec[colMatchSource] = m.SourceAccountID
		}
		rec[colMatchDays] = strconv.Itoa(m.DateDifference)
		rec[colMatchConf] = string(m.Confidence)
	}
	return rec
}

// WriteJSON writes b as an indented JSON document.
func WriteJSON(w io.Writer, b Batch) error {
	if b.Rows == nil {
		b.Rows = []model.ImportRow{}
	}
	return encodeJSON(w, b)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding rows: %w", err)
	}
	return nil
}
