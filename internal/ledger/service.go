// Package ledger holds a CSV snapshot of existing transfer legs and account
// names for the transfer-target matcher.
package ledger

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cleared-dev/txnimport/internal/model"
)

// Snapshot is an in-memory view of transfer legs and account names.
type Snapshot struct {
	legs  []model.TransferLeg
	names map[string]string
}

// NewSnapshot creates a Snapshot from legs and accounts.
func NewSnapshot(legs []model.TransferLeg, accounts []Account) *Snapshot {
	names := make(map[string]string, len(accounts))
	for _, a := range accounts {
		names[a.ID] = a.Name
	}
	return &Snapshot{legs: legs, names: names}
}

// Load reads the legs CSV at legsPath and, when accountsPath is not empty,
// the accounts CSV. Accounts from the file replace same-id entries in extra.
func Load(legsPath, accountsPath string, extra []Account) (*Snapshot, error) {
	legs, err := LoadLegs(legsPath)
	if err != nil {
		return nil, err
	}
	accounts := append([]Account(nil), extra...)
	if accountsPath != "" {
		fromFile, err := LoadAccounts(accountsPath)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, fromFile...)
	}
	return NewSnapshot(legs, accounts), nil
}

// LoadLegs reads a transfer-legs CSV file.
func LoadLegs(path string) ([]model.TransferLeg, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transfer legs: %w", err)
	}
	defer f.Close()

	legs, err := ReadLegs(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return legs, nil
}

// LoadAccounts reads an accounts CSV file.
func LoadAccounts(path string) ([]Account, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening accounts: %w", err)
	}
	defer f.Close()

	accounts, err := ReadAccounts(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return accounts, nil
}

// Legs returns every leg in the snapshot.
func (s *Snapshot) Legs() []model.TransferLeg {
	return s.legs
}

// UnreconciledLegs returns the legs of accountID with no import timestamp,
// in file order.
func (s *Snapshot) UnreconciledLegs(_ context.Context, accountID string) ([]model.TransferLeg, error) {
	var out []model.TransferLeg
	for _, leg := range s.legs {
		if leg.AccountID == accountID && leg.Unreconciled() {
			out = append(out, leg)
		}
	}
	return out, nil
}

// AccountName returns the display name of id.
func (s *Snapshot) AccountName(id string) (string, bool) {
	name, ok := s.names[id]
	return name, ok
}

// MarkImported stamps the legs matched by rows with at and returns how many
// legs changed. Legs already stamped keep their original time.
func (s *Snapshot) MarkImported(rows []model.ImportRow, at time.Time) int {
	matched := make(map[string]bool)
	for _, row := range rows {
		if row.TransferTargetMatch != nil {
			matched[row.TransferTargetMatch.ExistingTransactionID] = true
		}
	}

	n := 0
	for i := range s.legs {
		leg := &s.legs[i]
		if matched[leg.ID] && leg.Unreconciled() {
			stamp := at
			leg.ImportedAt = &stamp
			n++
		}
	}
	return n
}

// SaveLegs writes the legs back to path.
func (s *Snapshot) SaveLegs(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating transfer legs file: %w", err)
	}
	defer f.Close()

	if err := WriteLegs(f, s.legs); err != nil {
		return fmt.Errorf("writing transfer legs: %w", err)
	}
	return nil
}
