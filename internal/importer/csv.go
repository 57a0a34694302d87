package importer

import (
	"context"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/model"
)

const csvMaxSize = 10 << 20

// csvSynonyms drives heuristic header matching for generic bank CSVs.
var csvSynonyms = []fieldSynonyms{
	{"date", []string{"date", "transaction date", "posted date", "posting date", "post date", "trans date", "txn date", "booking date", "value date"}},
	{"amount", []string{"amount", "transaction amount", "amt", "net amount", "amount usd", "value"}},
	{"debit", []string{"debit", "debits", "debit amount", "withdrawal", "withdrawals", "withdrawal amount", "paid out", "money out", "outflow"}},
	{"credit", []string{"credit", "credits", "credit amount", "deposit", "deposits", "deposit amount", "paid in", "money in", "inflow"}},
	{"payee", []string{"payee", "payee name", "merchant", "merchant name", "name", "vendor", "counterparty", "description", "transaction description", "details"}},
	{"notes", []string{"memo", "notes", "note", "comment", "comments", "description", "details", "additional information", "reference"}},
	{"category", []string{"category", "category name", "classification"}},
	{"status", []string{"status", "cleared", "cleared status", "state"}},
	{"checkNumber", []string{"check number", "check no", "check", "cheque number", "cheque no", "check or slip", "num"}},
	{"fitid", []string{"transaction id", "fitid", "id", "reference number", "ref number", "confirmation number"}},
}

// CSVParser parses delimited bank exports (comma, tab, semicolon or pipe).
type CSVParser struct {
	Options
}

// Format returns the parser name.
func (p *CSVParser) Format() string { return "csv" }

// SupportedFormats returns the accepted extensions.
func (p *CSVParser) SupportedFormats() []string { return []string{".csv", ".tsv", ".txt"} }

// ValidateFile checks extension, emptiness and size.
func (p *CSVParser) ValidateFile(f File) error {
	return validateFile(f, p.Format(), p.SupportedFormats(), p.maxSize(p.Format(), csvMaxSize))
}

// ParseFile sniffs the delimiter, locates the header and normalizes each row.
func (p *CSVParser) ParseFile(ctx context.Context, f File) ([]model.ImportRow, error) {
	text := DecodeText(f.Data)
	delim := SniffDelimiter(text)
	if f.Ext() == ".tsv" {
		delim = '\t'
	}
	records, err := readDelimited(text, delim)
	if err != nil {
		return nil, importerr.ParseWrap(importerr.CodeMalformedFile, err, "reading %s", f.Name)
	}
	return p.engine(f.Mapping).parse(ctx, records)
}

func (p *CSVParser) engine(mapping *model.ColumnMapping) *delimited {
	return &delimited{
		format: p.Format(),
		opts:   p.Options,
		resolve: func(headers []string) (columns, error) {
			detected := detectColumns(headers, csvSynonyms, false)
			if mapping != nil {
				return applyMapping(headers, detected, *mapping)
			}
			return detected, nil
		},
		exclude: isBalanceMarker,
	}
}
