package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/txnimport/internal/model"
)

type staticLegs struct {
	legs  []model.TransferLeg
	err   error
	asked string
}

func (s *staticLegs) UnreconciledLegs(_ context.Context, accountID string) ([]model.TransferLeg, error) {
	s.asked = accountID
	return s.legs, s.err
}

type names map[string]string

func (n names) AccountName(id string) (string, bool) {
	name, ok := n[id]
	return name, ok
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func validRow(i int, date, amount string) model.ImportRow {
	row := model.NewRow(i, nil)
	row.Normalized.Date = date
	row.Normalized.SetAmount(decimal.RequireFromString(amount))
	row.Finalize()
	return row
}

func leg(id, date, amount string) model.TransferLeg {
	return model.TransferLeg{
		ID:              id,
		TransferID:      "tr-" + id,
		AccountID:       "checking",
		Date:            day(date),
		Amount:          decimal.RequireFromString(amount),
		SourceAccountID: "savings",
	}
}

func TestMatchLegs_OneDayApartIsMedium(t *testing.T) {
	rows := []model.ImportRow{validRow(0, "2024-03-11", "-200.00")}
	legs := []model.TransferLeg{leg("t1", "2024-03-10", "-200.00")}

	sum := MatchLegs(context.Background(), rows, "checking", legs, names{"savings": "Savings"})

	require.NotNil(t, rows[0].TransferTargetMatch)
	m := rows[0].TransferTargetMatch
	assert.Equal(t, model.StatusTransferMatch, rows[0].Status)
	assert.Equal(t, 1, m.DateDifference)
	assert.Equal(t, model.ConfidenceMedium, m.Confidence)
	assert.Equal(t, "t1", m.ExistingTransactionID)
	assert.Equal(t, "tr-t1", m.ExistingTransferID)
	assert.Equal(t, "savings", m.SourceAccountID)
	assert.Equal(t, "Savings", m.SourceAccountName)
	assert.Equal(t, Summary{Checked: 1, Matched: 1, ByConfidence: map[model.Confidence]int{model.ConfidenceMedium: 1}}, sum)
}

func TestMatchLegs_Confidence(t *testing.T) {
	tests := []struct {
		rowDate string
		amount  string
		want    model.Confidence
		matched bool
	}{
		{"2024-03-10", "-200.00", model.ConfidenceHigh, true},
		{"2024-03-10", "-200.01", model.ConfidenceHigh, true},
		{"2024-03-10", "-199.99", model.ConfidenceHigh, true},
		{"2024-03-09", "-200.00", model.ConfidenceMedium, true},
		{"2024-03-12", "-200.00", model.ConfidenceLow, true},
		{"2024-03-13", "-200.00", model.ConfidenceLow, true},
		{"2024-03-07", "-200.00", model.ConfidenceLow, true},
		{"2024-03-14", "-200.00", "", false},
		{"2024-03-06", "-200.00", "", false},
		{"2024-03-10", "-200.02", "", false},
		{"2024-03-10", "200.00", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.rowDate+" "+tt.amount, func(t *testing.T) {
			rows := []model.ImportRow{validRow(0, tt.rowDate, tt.amount)}
			MatchLegs(context.Background(), rows, "checking", []model.TransferLeg{leg("t1", "2024-03-10", "-200.00")}, nil)
			if !tt.matched {
				assert.Nil(t, rows[0].TransferTargetMatch)
				assert.Equal(t, model.StatusValid, rows[0].Status)
				return
			}
			require.NotNil(t, rows[0].TransferTargetMatch)
			assert.Equal(t, tt.want, rows[0].TransferTargetMatch.Confidence)
			assert.Empty(t, rows[0].TransferTargetMatch.SourceAccountName)
		})
	}
}

func TestMatchLegs_FourDaysNeverMatches(t *testing.T) {
	for _, amount := range []string{"-200.00", "0", "-1", "999999"} {
		rows := []model.ImportRow{validRow(0, "2024-03-14", amount)}
		MatchLegs(context.Background(), rows, "checking", []model.TransferLeg{leg("t1", "2024-03-10", amount)}, nil)
		assert.Nil(t, rows[0].TransferTargetMatch, amount)
	}
}

func TestMatchLegs_FirstMatchWins(t *testing.T) {
	rows := []model.ImportRow{validRow(0, "2024-03-10", "-50")}
	legs := []model.TransferLeg{
		leg("far", "2024-03-12", "-50"),
		leg("exact", "2024-03-10", "-50"),
	}
	MatchLegs(context.Background(), rows, "checking", legs, nil)
	require.NotNil(t, rows[0].TransferTargetMatch)
	assert.Equal(t, "far", rows[0].TransferTargetMatch.ExistingTransactionID)
	assert.Equal(t, model.ConfidenceLow, rows[0].TransferTargetMatch.Confidence)
}

func TestMatchLegs_SkipsIneligible(t *testing.T) {
	invalid := model.NewRow(0, nil)
	invalid.Normalized.SetAmount(decimal.RequireFromString("-200"))
	invalid.AddError(model.FieldError{Field: "date", Message: "unparsable date"})

	tagged := validRow(1, "2024-03-10", "-200")
	tagged.Normalized.TransferAccountID = "savings"

	noAmount := model.NewRow(2, nil)
	noAmount.Normalized.Date = "2024-03-10"
	noAmount.Finalize()

	rows := []model.ImportRow{invalid, tagged, noAmount}
	sum := MatchLegs(context.Background(), rows, "checking", []model.TransferLeg{leg("t1", "2024-03-10", "-200")}, nil)

	assert.Equal(t, 0, sum.Checked)
	assert.Equal(t, 0, sum.Matched)
	for _, row := range rows {
		assert.Nil(t, row.TransferTargetMatch)
	}
	assert.Equal(t, model.StatusInvalid, rows[0].Status)
	assert.Equal(t, model.StatusValid, rows[1].Status)
}

func TestMatchLegs_SkipsReconciledAndOtherAccountLegs(t *testing.T) {
	imported := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	done := leg("done", "2024-03-10", "-200")
	done.ImportedAt = &imported
	other := leg("other", "2024-03-10", "-200")
	other.AccountID = "brokerage"

	rows := []model.ImportRow{validRow(0, "2024-03-10", "-200")}
	sum := MatchLegs(context.Background(), rows, "checking", []model.TransferLeg{done, other}, nil)
	assert.Nil(t, rows[0].TransferTargetMatch)
	assert.Equal(t, 1, sum.Checked)
	assert.Equal(t, 0, sum.Matched)
}

func TestMatchLegs_Idempotent(t *testing.T) {
	rows := []model.ImportRow{
		validRow(0, "2024-03-10", "-200"),
		validRow(1, "2024-03-11", "75"),
	}
	legs := []model.TransferLeg{leg("t1", "2024-03-10", "-200")}

	first := MatchLegs(context.Background(), rows, "checking", legs, nil)
	require.Equal(t, 1, first.Matched)
	before := *rows[0].TransferTargetMatch

	// A second leg that would also fit must not replace the first match.
	legs = append([]model.TransferLeg{leg("t2", "2024-03-10", "-200")}, legs...)
	second := MatchLegs(context.Background(), rows, "checking", legs, nil)

	assert.Equal(t, 0, second.Matched)
	assert.Equal(t, 1, second.Checked)
	assert.Equal(t, before, *rows[0].TransferTargetMatch)
	assert.Equal(t, model.StatusTransferMatch, rows[0].Status)
}

func TestMatchLegs_SameLegMatchesSeveralRows(t *testing.T) {
	rows := []model.ImportRow{
		validRow(0, "2024-03-10", "-200"),
		validRow(1, "2024-03-10", "-200"),
	}
	sum := MatchLegs(context.Background(), rows, "checking", []model.TransferLeg{leg("t1", "2024-03-10", "-200")}, nil)
	assert.Equal(t, 2, sum.Matched)
}

func TestMatcher_Match(t *testing.T) {
	src := &staticLegs{legs: []model.TransferLeg{leg("t1", "2024-03-10", "-200.00")}}
	m := NewMatcher(src, names{"savings": "Savings"})

	rows := []model.ImportRow{validRow(0, "2024-03-10", "-200")}
	sum, err := m.Match(context.Background(), rows, "checking")
	require.NoError(t, err)
	assert.Equal(t, "checking", src.asked)
	assert.Equal(t, 1, sum.ByConfidence[model.ConfidenceHigh])
	assert.Equal(t, "Savings", rows[0].TransferTargetMatch.SourceAccountName)
}

func TestMatcher_MatchSourceError(t *testing.T) {
	boom := errors.New("boom")
	m := NewMatcher(&staticLegs{err: boom}, nil)
	_, err := m.Match(context.Background(), nil, "checking")
	assert.ErrorIs(t, err, boom)
}

func TestDaysBetween(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, 0, DaysBetween(day("2024-03-10"), time.Date(2024, 3, 10, 23, 30, 0, 0, est)))
	assert.Equal(t, 1, DaysBetween(day("2024-03-10"), day("2024-03-11")))
	assert.Equal(t, 1, DaysBetween(day("2024-03-11"), day("2024-03-10")))
	assert.Equal(t, 2, DaysBetween(day("2024-02-28"), day("2024-03-01")))
	assert.Equal(t, 366, DaysBetween(day("2024-01-01"), day("2025-01-01")))
}

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, model.ConfidenceHigh, ConfidenceFor(0))
	assert.Equal(t, model.ConfidenceMedium, ConfidenceFor(1))
	assert.Equal(t, model.ConfidenceLow, ConfidenceFor(2))
	assert.Equal(t, model.ConfidenceLow, ConfidenceFor(3))
}
