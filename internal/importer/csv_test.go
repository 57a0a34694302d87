package importer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/model"
)

func parseCSV(t *testing.T, opts Options, name, data string, m *model.ColumnMapping) ([]model.ImportRow, error) {
	t.Helper()
	p := &CSVParser{Options: opts}
	f := File{Name: name, Data: []byte(data), Mapping: m}
	require.NoError(t, p.ValidateFile(f))
	return p.ParseFile(context.Background(), f)
}

func TestCSVParser_DebitCredit(t *testing.T) {
	data := "Date,Description,Debit,Credit\n" +
		"01/15/2024,Grocery,50.00,\n" +
		"01/16/2024,Payroll,,120.00\n"

	rows, err := parseCSV(t, Options{}, "bank.csv", data, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"-50.00", "120.00"}, amounts(rows))
	assert.Equal(t, "2024-01-15", rows[0].Normalized.Date)
	assert.Equal(t, "2024-01-16", rows[1].Normalized.Date)
	assert.Equal(t, "Grocery", rows[0].Normalized.Payee)
	assert.Equal(t, model.StatusValid, rows[0].Status)
	assert.Equal(t, model.TxnPending, rows[0].Normalized.Status)
	assert.Equal(t, "50.00", rows[0].RawData["Debit"])
}

func TestCSVParser_DebitCreditEdgeCases(t *testing.T) {
	data := "Date,Payee,Withdrawal,Deposit\n" +
		"01/01/2024,Both,30.00,100.00\n" +
		"01/02/2024,Zero,0.00,0\n" +
		"01/03/2024,Blank,,\n" +
		"01/04/2024,Signed,-12.00,\n"

	rows, err := parseCSV(t, Options{}, "bank.csv", data, nil)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "Both", rows[0].Normalized.Payee)
	assert.Equal(t, []string{"70.00", "-12.00"}, amounts(rows))
	// Net debit and credit is unusual but not an error.
	assert.Equal(t, model.StatusValid, rows[0].Status)
	assert.Empty(t, rows[0].Errors)
	// Excluded rows leave gaps; indexes refer to the source position.
	assert.Equal(t, 0, rows[0].RowIndex)
	assert.Equal(t, 3, rows[1].RowIndex)
}

func TestCSVParser_SignedAmountIsLiteral(t *testing.T) {
	data := "Posting Date,Description,Amount,Check or Slip #\n" +
		"01/03/2025,GITHUB *PRO SUBSCRIPTION,-4.00,\n" +
		"01/05/2025,ACME CONSULTING INVOICE 1042,3500.00,\n" +
		"01/07/2025,CHECK 1234,-250.00,1234\n"

	rows, err := parseCSV(t, Options{}, "chase.CSV", data, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"-4.00", "3500.00", "-250.00"}, amounts(rows))
	assert.Equal(t, "1234", rows[2].Normalized.CheckNumber)
}

func TestCSVParser_RowErrorsDoNotAbort(t *testing.T) {
	data := "Date,Payee,Amount\n" +
		"NOTADATE,A,-4.00\n" +
		"01/03/2025,B,NOTANUMBER\n" +
		",C,\n" +
		"01/04/2025,D,1.00\n"

	rows, err := parseCSV(t, Options{}, "bank.csv", data, nil)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, model.StatusInvalid, rows[0].Status)
	require.Len(t, rows[0].Errors, 1)
	assert.Equal(t, "date", rows[0].Errors[0].Field)
	assert.Equal(t, importerr.CodeInvalidDate, rows[0].Errors[0].Code)
	assert.Equal(t, "NOTADATE", rows[0].Errors[0].Value)
	assert.Equal(t, "-4.00", rows[0].Normalized.Amount.StringFixed(2))

	assert.Equal(t, importerr.CodeInvalidAmount, rows[1].Errors[0].Code)
	assert.Equal(t, "2025-01-03", rows[1].Normalized.Date)
	assert.False(t, rows[1].Normalized.HasAmount())

	require.Len(t, rows[2].Errors, 2)
	assert.Equal(t, importerr.CodeMissingDate, rows[2].Errors[0].Code)
	assert.Equal(t, importerr.CodeMissingAmount, rows[2].Errors[1].Code)

	assert.Equal(t, model.StatusValid, rows[3].Status)
	assert.Empty(t, rows[3].Errors)
}

func TestCSVParser_BalanceMarkersExcluded(t *testing.T) {
	data := "Date,Description,Amount\n" +
		"01/01/2024,Beginning Balance,1000.00\n" +
		"01/02/2024,Coffee,-3.00\n" +
		"01/31/2024,Ending balance,997.00\n"

	rows, err := parseCSV(t, Options{}, "bank.csv", data, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Coffee", rows[0].Normalized.Payee)
}

func TestCSVParser_BalanceMerchantsKept(t *testing.T) {
	data := "Date,Description,Amount\n" +
		"01/01/2024,Opening Balance as of 01/01/2024,1000.00\n" +
		"01/03/2024,NEW BALANCE #123 BOSTON MA,-89.99\n" +
		"01/04/2024,Total Balance Fitness,-40.00\n" +
		"01/05/2024,Balance Forward,960.00\n"

	rows, err := parseCSV(t, Options{}, "bank.csv", data, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "NEW BALANCE #123 BOSTON MA", rows[0].Normalized.Payee)
	assert.Equal(t, "Total Balance Fitness", rows[1].Normalized.Payee)
	assert.Equal(t, []string{"-89.99", "-40.00"}, amounts(rows))
}

func TestIsBalanceMarker(t *testing.T) {
	cols := columns{idx: map[string]int{"payee": 0, "notes": 1}, auto: true}
	tests := []struct {
		payee, notes string
		want         bool
	}{
		{"Beginning Balance", "", true},
		{"ENDING LEDGER BALANCE", "", true},
		{"", "Previous statement balance", true},
		{"Balance brought forward", "", true},
		{"New Balance Athletics", "", false},
		{"Check 1001", "new balance shoes", false},
		{"Balance Transfer", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.payee+tt.notes, func(t *testing.T) {
			assert.Equal(t, tt.want, isBalanceMarker([]string{tt.payee, tt.notes}, cols))
		})
	}

	// Without payee or notes columns nothing is treated as a marker.
	assert.False(t, isBalanceMarker([]string{"Beginning Balance"}, columns{idx: map[string]int{}}))
}

func TestCSVParser_MappingKeepsBalanceRows(t *testing.T) {
	data := "When,What,How Much\n" +
		"01/01/2024,Beginning Balance,1000.00\n" +
		"01/02/2024,Coffee,-3.00\n"

	m := &model.ColumnMapping{Date: "When", Payee: "What", Amount: "How Much"}
	rows, err := parseCSV(t, Options{}, "bank.csv", data, m)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Beginning Balance", rows[0].Normalized.Payee)
	assert.Equal(t, []string{"1000.00", "-3.00"}, amounts(rows))
}

func TestCSVParser_MappingOverridesDetection(t *testing.T) {
	data := "Date,Amount,Out,In\n" +
		"01/02/2024,999,10.00,\n"

	m := &model.ColumnMapping{Debit: "Out", Credit: "In"}
	rows, err := parseCSV(t, Options{}, "bank.csv", data, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"-10.00"}, amounts(rows))
	assert.Equal(t, "2024-01-02", rows[0].Normalized.Date)
}

func TestCSVParser_MappingMissingColumn(t *testing.T) {
	m := &model.ColumnMapping{Date: "Booked", Amount: "Amount"}
	_, err := parseCSV(t, Options{}, "bank.csv", "Date,Amount\n01/02/2024,1\n", m)
	require.Error(t, err)
	assert.ErrorIs(t, err, importerr.ErrParse)
	assert.Equal(t, importerr.CodeMissingColumns, importerr.CodeOf(err))
}

func TestCSVParser_SemicolonDayFirst(t *testing.T) {
	data := "Date;Payee;Amount;Status\n" +
		"03.04.2024;Bäckerei;-1.234,50;gebucht\n" +
		"04.04.2024;Miete;-800,00;posted\n"
	rows, err := parseCSV(t, Options{DateOrder: OrderDMY}, "de.csv", data, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-03", rows[0].Normalized.Date)
	assert.Equal(t, []string{"-1234.50", "-800.00"}, amounts(rows))
	assert.Equal(t, model.TxnPending, rows[0].Normalized.Status)
	assert.Equal(t, model.TxnCleared, rows[1].Normalized.Status)
}

func TestCSVParser_PreambleAndTSV(t *testing.T) {
	data := "Account: 1234\tChecking\n" +
		"Statement Date:\t02/29/2024\n" +
		"\n" +
		"Transaction Date\tMerchant\tAmount\tCategory\n" +
		"2024-02-01\tSTARBUCKS   #123\t-5.75\tDining\n"

	rows, err := parseCSV(t, Options{}, "export.tsv", data, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "STARBUCKS #123", rows[0].Normalized.Payee)
	assert.Equal(t, "Dining", rows[0].Normalized.Category)
}

func TestCSVParser_StatementDatePreamble(t *testing.T) {
	data := "Statement Date:,01/31/2024\n" +
		"Account Number:,****1234\n" +
		"Date,Description,Amount\n" +
		"01/15/2024,Coffee Shop,-4.50\n" +
		"01/16/2024,Payroll,1200.00\n"

	rows, err := parseCSV(t, Options{}, "bank.csv", data, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, model.StatusValid, row.Status)
		assert.Empty(t, row.Errors)
	}
	assert.Equal(t, "Coffee Shop", rows[0].Normalized.Payee)
	assert.Equal(t, []string{"-4.50", "1200.00"}, amounts(rows))
}

func TestCSVParser_PayeeCap(t *testing.T) {
	data := "Date,Payee,Amount\n01/02/2024,ABCDEFGHIJ,1\n"
	rows, err := parseCSV(t, Options{PayeeMaxLength: 4}, "bank.csv", data, nil)
	require.NoError(t, err)
	assert.Equal(t, "ABCD", rows[0].Normalized.Payee)
}

func TestCSVParser_ParallelKeepsOrder(t *testing.T) {
	data := "Date,Payee,Amount\n"
	for i := 1; i <= 28; i++ {
		data += fmt.Sprintf("02/%02d/2024,P,1\n", i)
	}
	rows, err := parseCSV(t, Options{Workers: 8}, "bank.csv", data, nil)
	require.NoError(t, err)
	require.Len(t, rows, 28)
	for i, row := range rows {
		assert.Equal(t, i, row.RowIndex)
		assert.Equal(t, fmt.Sprintf("2024-02-%02d", i+1), row.Normalized.Date)
	}
}

func TestCSVParser_Structural(t *testing.T) {
	p := &CSVParser{}
	_, err := p.ParseFile(context.Background(), File{Name: "a.csv", Data: []byte("Date,Amount\n")})
	assert.Equal(t, importerr.CodeNoRecords, importerr.CodeOf(err))

	_, err = p.ParseFile(context.Background(), File{Name: "a.csv", Data: []byte("\n\n")})
	assert.Equal(t, importerr.CodeNoHeader, importerr.CodeOf(err))
}

func TestQuickBooksCSVParser(t *testing.T) {
	data := "Acme LLC\n" +
		"Transaction Detail by Account\n" +
		"\n" +
		",Txn Date,Transaction Type,Num,Name,Memo/Description,Split,Clr,Amount\n" +
		"Checking,,,,,,,,\n" +
		",01/05/2024,Check,1001,Office Depot,Paper,Office Supplies,R,-45.10\n" +
		",01/06/2024,Deposit,,Client A,Invoice 7,Sales,,1500.00\n" +
		"Total for Checking,,,,,,,,1454.90\n"

	p := &QuickBooksCSVParser{}
	f := File{Name: "qb.csv", Data: []byte(data)}
	assert.True(t, p.Sniff(f))

	rows, err := p.ParseFile(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0].Normalized
	assert.Equal(t, "2024-01-05", first.Date)
	assert.Equal(t, "-45.10", first.Amount.StringFixed(2))
	assert.Equal(t, "Office Depot", first.Payee)
	assert.Equal(t, "Paper", first.Notes)
	assert.Equal(t, "Office Supplies", first.Category)
	assert.Equal(t, "1001", first.CheckNumber)
	assert.Equal(t, model.TxnCleared, first.Status)
	assert.Equal(t, model.TxnPending, rows[1].Normalized.Status)
}

func TestQuickBooksCSVParser_NameFirstReport(t *testing.T) {
	data := "Name,Date,Transaction Type,Num,Amount\n" +
		"Total Wine & More,01/05/2024,Check,101,-45.00\n" +
		"Net Lease Partners,01/06/2024,Check,102,-900.00\n" +
		"Total for Checking,,,,-945.00\n" +
		"Net Income,,,,-945.00\n"

	p := &QuickBooksCSVParser{}
	f := File{Name: "qb.csv", Data: []byte(data)}
	require.True(t, p.Sniff(f))

	rows, err := p.ParseFile(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Total Wine & More", rows[0].Normalized.Payee)
	assert.Equal(t, "101", rows[0].Normalized.CheckNumber)
	assert.Equal(t, "Net Lease Partners", rows[1].Normalized.Payee)
	assert.Equal(t, []string{"-45.00", "-900.00"}, amounts(rows))
}

func TestQuickBooksCSVParser_MissingColumns(t *testing.T) {
	data := "Txn Type,Num,Name,Split\nCheck,1001,Office Depot,Supplies\n"

	p := &QuickBooksCSVParser{}
	f := File{Name: "qb.csv", Data: []byte(data)}
	assert.True(t, p.Sniff(f))

	_, err := p.ParseFile(context.Background(), f)
	require.Error(t, err)
	assert.ErrorIs(t, err, importerr.ErrParse)
	assert.Equal(t, importerr.CodeMissingColumns, importerr.CodeOf(err))
	assert.Contains(t, err.Error(), "Txn Type, Num, Name, Split")
}

func TestQuickBooksCSVParser_NotSniffedForBankCSV(t *testing.T) {
	p := &QuickBooksCSVParser{}
	assert.False(t, p.Sniff(File{Name: "b.csv", Data: []byte("Date,Description,Amount\n")}))
}

func TestXLSXParser(t *testing.T) {
	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	cells := [][]any{
		{"Date", "Description", "Debit", "Credit"},
		{"01/15/2024", "Grocery", "50.00", ""},
		{"01/16/2024", "Payroll", "", "120.00"},
	}
	for i, row := range cells {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow(sheet, cell, &row))
	}
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	p := &XLSXParser{}
	f := File{Name: "statement.xlsx", Data: buf.Bytes()}
	require.NoError(t, p.ValidateFile(f))

	rows, err := p.ParseFile(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []string{"-50.00", "120.00"}, amounts(rows))
	assert.Equal(t, "2024-01-16", rows[1].Normalized.Date)
}

func TestXLSXParser_NotAWorkbook(t *testing.T) {
	p := &XLSXParser{}
	_, err := p.ParseFile(context.Background(), File{Name: "x.xlsx", Data: []byte("not a zip")})
	assert.Equal(t, importerr.CodeMalformedFile, importerr.CodeOf(err))
}
