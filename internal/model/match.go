package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Confidence grades a transfer-target match by date proximity.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// TransferTargetMatch is evidence that an imported row duplicates an existing
// transfer leg in the target account.
type TransferTargetMatch struct {
	ExistingTransactionID string     `json:"existingTransactionId"`
	ExistingTransferID    string     `json:"existingTransferId"`
	SourceAccountID       string     `json:"sourceAccountId"`
	SourceAccountName     string     `json:"sourceAccountName"`
	DateDifference        int        `json:"dateDifference"`
	Confidence            Confidence `json:"confidence"`
}

// TransferLeg is an existing transaction in the target account that forms one
// side of a transfer. ImportedAt is nil until an external import reconciles it.
type TransferLeg struct {
	ID              string
	TransferID      string
	AccountID       string
	Date            time.Time
	Amount          decimal.Decimal
	SourceAccountID string
	ImportedAt      *time.Time
}

// Unreconciled reports whether no import has claimed the leg yet.
func (l TransferLeg) Unreconciled() bool { return l.ImportedAt == nil }
