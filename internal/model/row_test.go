package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestImportRowFinalize(t *testing.T) {
	r := NewRow(0, nil)
	assert.Equal(t, StatusPending, r.Status)
	assert.NotNil(t, r.RawData)

	r.Finalize()
	assert.Equal(t, StatusValid, r.Status)
	assert.Empty(t, r.Errors)
}

func TestImportRowAddError(t *testing.T) {
	r := NewRow(3, map[string]string{"date": "nope"})
	r.AddError(FieldError{Field: "date", Code: "invalid_date", Message: "unparsable date", Value: "nope"})
	r.Finalize()

	assert.Equal(t, StatusInvalid, r.Status)
	assert.Len(t, r.Errors, 1)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
	assert.Equal(t, "date: unparsable date (nope)", r.Errors[0].Error())
}

func TestAddErrorAlwaysInvalidates(t *testing.T) {
	r := NewRow(0, nil)
	r.AddError(FieldError{Field: "amount", Code: "invalid_amount", Message: "bad", Severity: "info"})
	assert.Equal(t, StatusInvalid, r.Status)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)

	r = NewRow(1, nil)
	r.Errors = append(r.Errors, FieldError{Field: "date", Message: "missing"})
	r.Finalize()
	assert.Equal(t, StatusInvalid, r.Status)
}

func TestFinalizeKeepsTransferMatch(t *testing.T) {
	r := NewRow(0, nil)
	r.Status = StatusTransferMatch
	r.Finalize()
	assert.Equal(t, StatusTransferMatch, r.Status)
}

func TestSetAmountCopies(t *testing.T) {
	var txn NormalizedTransaction
	assert.False(t, txn.HasAmount())

	d := decimal.RequireFromString("-12.50")
	txn.SetAmount(d)
	d = decimal.Zero
	assert.True(t, txn.HasAmount())
	assert.Equal(t, "-12.50", txn.Amount.StringFixed(2))
}

func TestColumnMapping(t *testing.T) {
	m := ColumnMapping{Date: "Posted", Debit: "Out", Credit: "In"}
	assert.True(t, m.UsesDebitCredit())
	assert.Equal(t, map[string]string{"date": "Posted", "debit": "Out", "credit": "In"}, m.Columns())

	m.Amount = "Amount"
	assert.False(t, m.UsesDebitCredit())
}
