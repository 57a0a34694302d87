package importer

import (
	"context"
	"strings"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/model"
)

// quickBooksKeywords are matched against QuickBooks report headers as whole
// words, so "Txn Date" and "Transaction Date" both resolve to date.
var quickBooksKeywords = []fieldSynonyms{
	{"date", []string{"txn date", "transaction date", "date"}},
	{"amount", []string{"amount", "amt"}},
	{"debit", []string{"debit", "payment", "withdrawal"}},
	{"credit", []string{"credit", "deposit"}},
	{"payee", []string{"name", "payee", "vendor", "customer"}},
	{"notes", []string{"memo description", "memo", "description"}},
	{"category", []string{"split", "account full name", "account", "category"}},
	{"status", []string{"clr", "cleared"}},
	{"checkNumber", []string{"num", "ref no", "check no"}},
	{"type", []string{"transaction type", "txn type", "type"}},
}

// QuickBooksCSVParser handles CSV reports exported from QuickBooks, which
// carry report titles above the header and subtotal rows between sections.
type QuickBooksCSVParser struct {
	Options
}

// Format returns the parser name.
func (p *QuickBooksCSVParser) Format() string { return "quickbooks-csv" }

// SupportedFormats returns the accepted extensions.
func (p *QuickBooksCSVParser) SupportedFormats() []string { return []string{".csv"} }

// ValidateFile checks extension, emptiness and size.
func (p *QuickBooksCSVParser) ValidateFile(f File) error {
	return validateFile(f, p.Format(), p.SupportedFormats(), p.maxSize(p.Format(), csvMaxSize))
}

// Sniff looks for QuickBooks-only header names near the top of the file.
func (p *QuickBooksCSVParser) Sniff(f File) bool {
	head := f.Data
	if len(head) > 8192 {
		head = head[:8192]
	}
	text := DecodeText(head)
	records, _ := readDelimited(text, SniffDelimiter(text))
	for i, rec := range records {
		if i >= headerScanDepth {
			break
		}
		names := make(map[string]bool, len(rec))
		for _, h := range rec {
			names[NormalizeHeader(h)] = true
		}
		if names["transaction type"] || names["txn date"] || names["txn type"] ||
			(names["num"] && names["split"]) || (names["clr"] && names["split"]) {
			return true
		}
	}
	return false
}

// ParseFile requires a date column and at least one of amount, debit or
// credit; otherwise the whole file is rejected.
func (p *QuickBooksCSVParser) ParseFile(ctx context.Context, f File) ([]model.ImportRow, error) {
	text := DecodeText(f.Data)
	records, err := readDelimited(text, SniffDelimiter(text))
	if err != nil {
		return nil, importerr.ParseWrap(importerr.CodeMalformedFile, err, "reading %s", f.Name)
	}

	eng := &delimited{
		format: p.Format(),
		opts:   p.Options,
		resolve: func(headers []string) (columns, error) {
			cols := detectColumns(headers, quickBooksKeywords, true)
			if f.Mapping != nil {
				var err error
				if cols, err = applyMapping(headers, cols, *f.Mapping); err != nil {
					return columns{}, err
				}
			}
			if !cols.has("date") || !cols.hasAmount() {
				return columns{}, importerr.Parse(importerr.CodeMissingColumns,
					"QuickBooks CSV needs a date column and an amount, debit or credit column; header was [%s]",
					strings.Join(headers, ", "))
			}
			return cols, nil
		},
		exclude: isQuickBooksSummaryRow,
	}
	return eng.parse(ctx, records)
}

// isQuickBooksSummaryRow matches report furniture: section headings, totals
// and balance lines. QuickBooks leaves the date cell empty on heading and
// subtotal lines, so a dated row is only excluded as a balance marker.
func isQuickBooksSummaryRow(rec []string, cols columns) bool {
	if cols.value(rec, "date") != "" {
		return isBalanceMarker(rec, cols)
	}
	filled := 0
	first := ""
	for _, cell := range rec {
		if c := strings.TrimSpace(cell); c != "" {
			if filled == 0 {
				first = c
			}
			filled++
		}
	}
	lower := strings.ToLower(first)
	if filled == 1 || strings.HasPrefix(lower, "total") || strings.HasPrefix(lower, "net ") {
		return true
	}
	return isBalanceMarker(rec, cols)
}
