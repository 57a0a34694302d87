package model

import (
	"github.com/shopspring/decimal"
)

// TxnStatus is the two-state cleared indicator of a normalized transaction.
type TxnStatus string

const (
	TxnCleared TxnStatus = "cleared"
	TxnPending TxnStatus = "pending"
)

// NormalizedTransaction is the canonical, partially populated transaction a
// parser extracts from one source record. Absent fields stay at their zero
// value; parsers never invent defaults for them.
//
// Date is YYYY-MM-DD. Amount is signed, positive meaning money entering the
// account.
type NormalizedTransaction struct {
	Date        string           `json:"date,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Payee       string           `json:"payee,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	Category    string           `json:"category,omitempty"`
	Status      TxnStatus        `json:"status,omitempty"`
	CheckNumber string           `json:"checkNumber,omitempty"`
	FITID       string           `json:"fitid,omitempty"`

	// TransferAccountID is set when the user has explicitly tagged the row
	// as a transfer to another account.
	TransferAccountID string `json:"transferAccountId,omitempty"`
}

// HasAmount reports whether an amount was extracted.
func (t NormalizedTransaction) HasAmount() bool { return t.Amount != nil }

// SetAmount stores a copy of d.
func (t *NormalizedTransaction) SetAmount(d decimal.Decimal) {
	t.Amount = &d
}
