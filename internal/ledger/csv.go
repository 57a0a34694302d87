package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/txnimport/internal/model"
)

const (
	legFields        = 7
	colLegID         = 0
	colTransferID    = 1
	colAccountID     = 2
	colDate          = 3
	colAmount        = 4
	colSourceAccount = 5
	colImportedAt    = 6
)

var legHeader = []string{"id", "transfer_id", "account_id", "date", "amount", "source_account_id", "imported_at"}

const accountFields = 2

var accountHeader = []string{"id", "name"}

// Account is an id and display name.
type Account struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ReadLegs reads a transfer-legs CSV. The first record is the header.
func ReadLegs(r io.Reader) ([]model.TransferLeg, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = legFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading transfer legs CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var legs []model.TransferLeg
	for i, rec := range records[1:] {
		leg, err := UnmarshalLeg(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// WriteLegs writes a transfer-legs CSV.
func WriteLegs(w io.Writer, legs []model.TransferLeg) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(legHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, leg := range legs {
		if err := cw.Write(MarshalLeg(leg)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalLeg converts a TransferLeg to a CSV row.
func MarshalLeg(leg model.TransferLeg) []string {
	row := make([]string, legFields)
	row[colLegID] = leg.ID
	row[colTransferID] = leg.TransferID
	row[colAccountID] = leg.AccountID
	row[colDate] = leg.Date.Format(time.DateOnly)
	row[colAmount] = leg.Amount.StringFixed(2)
	row[colSourceAccount] = leg.SourceAccountID
	if leg.ImportedAt != nil {
		row[colImportedAt] = leg.ImportedAt.UTC().Format(time.RFC3339)
	}
	return row
}

// UnmarshalLeg converts a CSV row to a TransferLeg. An empty imported_at
// means the leg is unreconciled.
func UnmarshalLeg(record []string) (model.TransferLeg, error) {
	if len(record) != legFields {
		return model.TransferLeg{}, fmt.Errorf("expected %d fields, got %d", legFields, len(record))
	}

	date, err := time.Parse(time.DateOnly, record[colDate])
	if err != nil {
		return model.TransferLeg{}, fmt.Errorf("parsing date %q: %w", record[colDate], err)
	}
	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return model.TransferLeg{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}

	leg := model.TransferLeg{
		ID:              record[colLegID],
		TransferID:      record[colTransferID],
		AccountID:       record[colAccountID],
		Date:            date,
		Amount:          amount,
		SourceAccountID: record[colSourceAccount],
	}
	if s := record[colImportedAt]; s != "" {
		at, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return model.TransferLeg{}, fmt.Errorf("parsing imported_at %q: %w", s, err)
		}
		leg.ImportedAt = &at
	}
	return leg, nil
}

// ReadAccounts reads an accounts CSV (id, name). The first record is the header.
func ReadAccounts(r io.Reader) ([]Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = accountFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	accounts := make([]Account, 0, len(records)-1)
	for _, rec := range records[1:] {
		accounts = append(accounts, Account{ID: rec[0], Name: rec[1]})
	}
	return accounts, nil
}

// WriteAccounts writes an accounts CSV.
func WriteAccounts(w io.Writer, accounts []Account) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(accountHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, a := range accounts {
		if err := cw.Write([]string{a.ID, a.Name}); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
