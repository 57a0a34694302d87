// Package reconcile detects imported rows that duplicate an existing,
// not yet reconciled transfer leg in the target account.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/txnimport/internal/logger"
	"github.com/cleared-dev/txnimport/internal/model"
)

// MaxDayDifference is the widest date gap, in days, that still matches.
const MaxDayDifference = 3

// AmountTolerance absorbs rounding noise between the two legs.
var AmountTolerance = decimal.New(1, -2)

// LegSource lists the transfer legs of an account that no import has
// claimed yet.
type LegSource interface {
	UnreconciledLegs(ctx context.Context, accountID string) ([]model.TransferLeg, error)
}

// AccountNames resolves account ids to display names.
type AccountNames interface {
	AccountName(id string) (string, bool)
}

// Summary counts the outcome of one matching pass.
type Summary struct {
	Checked      int
	Matched      int
	ByConfidence map[model.Confidence]int
}

// Matcher reconciles import batches against a LegSource.
type Matcher struct {
	legs  LegSource
	names AccountNames
}

// NewMatcher creates a Matcher. names may be nil.
func NewMatcher(legs LegSource, names AccountNames) *Matcher {
	return &Matcher{legs: legs, names: names}
}

// Match loads the unreconciled legs of accountID and annotates rows in place.
func (m *Matcher) Match(ctx context.Context, rows []model.ImportRow, accountID string) (Summary, error) {
	legs, err := m.legs.UnreconciledLegs(ctx, accountID)
	if err != nil {
		return Summary{}, fmt.Errorf("loading transfer legs for %s: %w", accountID, err)
	}
	return MatchLegs(ctx, rows, accountID, legs, m.names), nil
}

// MatchLegs compares each eligible row with the unreconciled legs of
// accountID in order and attaches the first leg within MaxDayDifference days
// whose amount is within AmountTolerance. Rows that are invalid, already
// matched or tagged as a transfer by the user are left untouched.
func MatchLegs(ctx context.Context, rows []model.ImportRow, accountID string, legs []model.TransferLeg, names AccountNames) Summary {
	log := logger.FromContext(ctx)
	sum := Summary{ByConfidence: make(map[model.Confidence]int)}

	candidates := make([]model.TransferLeg, 0, len(legs))
	for _, leg := range legs {
		if !leg.Unreconciled() {
			continue
		}
		if leg.AccountID != "" && accountID != "" && leg.AccountID != accountID {
			continue
		}
		candidates = append(candidates, leg)
	}

	for i := range rows {
		row := &rows[i]
		if !eligible(row) {
			continue
		}
		date, err := time.Parse(time.DateOnly, row.Normalized.Date)
		if err != nil {
			continue
		}
		sum.Checked++

		for _, leg := range candidates {
			days := DaysBetween(date, leg.Date)
			if days > MaxDayDifference {
				continue
			}
			if row.Normalized.Amount.Sub(leg.Amount).Abs().GreaterThan(AmountTolerance) {
				continue
			}

			match := &model.TransferTargetMatch{
				ExistingTransactionID: leg.ID,
				ExistingTransferID:    leg.TransferID,
				SourceAccountID:       leg.SourceAccountID,
				DateDifference:        days,
				Confidence:            ConfidenceFor(days),
			}
			if names != nil {
				match.SourceAccountName, _ = names.AccountName(leg.SourceAccountID)
			}
			row.TransferTargetMatch = match
			row.Status = model.StatusTransferMatch
			sum.Matched++
			sum.ByConfidence[match.Confidence]++

			log.Debug().
				Int("row", row.RowIndex).
				Str("leg", leg.ID).
				Int("days", days).
				Str("confidence", string(match.Confidence)).
				Msg("transfer target matched")
			break
		}
	}

	log.Info().
		Str("account", accountID).
		Int("legs", len(candidates)).
		Int("checked", sum.Checked).
		Int("matched", sum.Matched).
		Msg("transfer matching finished")
	return sum
}

func eligible(row *model.ImportRow) bool {
	if row.Status != model.StatusValid {
		return false
	}
	if row.Normalized.TransferAccountID != "" {
		return false
	}
	return row.Normalized.HasAmount()
}

// ConfidenceFor grades a match by its date gap.
func ConfidenceFor(days int) model.Confidence {
	switch {
	case days == 0:
		return model.ConfidenceHigh
	case days <= 1:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// DaysBetween returns the absolute number of calendar days between a and b,
// each taken in its own location.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}
