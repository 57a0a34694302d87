package importer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/logger"
	"github.com/cleared-dev/txnimport/internal/model"
)

// headerScanDepth is how many leading records may precede the header row.
const headerScanDepth = 15

// fieldSynonyms lists, in priority order, the normalized header names that
// mean field.
type fieldSynonyms struct {
	field string
	names []string
}

// columns maps canonical field names to record positions.
type columns struct {
	idx map[string]int
	// auto is set when positions came from header heuristics rather than an
	// explicit ColumnMapping.
	auto bool
}

func (c columns) has(field string) bool {
	_, ok := c.idx[field]
	return ok
}

func (c columns) value(rec []string, field string) string {
	i, ok := c.idx[field]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (c columns) hasAmount() bool {
	return c.has("amount") || c.has("debit") || c.has("credit")
}

// detectColumns assigns each field the first synonym that matches an unused
// header exactly. With contains set, a second pass accepts headers that
// contain the synonym as whole words.
func detectColumns(headers []string, table []fieldSynonyms, contains bool) columns {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = NormalizeHeader(h)
	}
	used := make(map[int]bool)
	cols := columns{idx: make(map[string]int), auto: true}

	find := func(name string, loose bool) int {
		for i, h := range norm {
			if used[i] || h == "" {
				continue
			}
			if h == name || (loose && strings.Contains(" "+h+" ", " "+name+" ")) {
				return i
			}
		}
		return -1
	}

	for _, fs := range table {
		at := -1
		for _, name := range fs.names {
			if at = find(name, false); at >= 0 {
				break
			}
		}
		if at < 0 && contains {
			for _, name := range fs.names {
				if at = find(name, true); at >= 0 {
					break
				}
			}
		}
		if at >= 0 {
			used[at] = true
			cols.idx[fs.field] = at
		}
	}
	return cols
}

// applyMapping overlays an explicit ColumnMapping on detected columns.
func applyMapping(headers []string, detected columns, m model.ColumnMapping) (columns, error) {
	cols := columns{idx: make(map[string]int, len(detected.idx))}
	for k, v := range detected.idx {
		cols.idx[k] = v
	}
	if m.Amount != "" {
		delete(cols.idx, "debit")
		delete(cols.idx, "credit")
	} else if m.UsesDebitCredit() {
		delete(cols.idx, "amount")
	}

	for field, col := range m.Columns() {
		want := NormalizeHeader(col)
		at := -1
		for i, h := range headers {
			if NormalizeHeader(h) == want {
				at = i
				break
			}
		}
		if at < 0 {
			return columns{}, importerr.Parse(importerr.CodeMissingColumns,
				"mapped %s column %q not found in header", field, col)
		}
		cols.idx[field] = at
	}
	return cols, nil
}

// balanceMarker matches a whole normalized cell. A trailing "as of" date is
// allowed; any other trailing text is a merchant name, not a marker.
var balanceMarker = regexp.MustCompile(`^(?:(?:beginning|ending|opening|closing|starting|previous|new|total)(?: statement| ledger| available)? balance|balance(?: brought| carried)? forward)(?: as of [a-z0-9 ]+)?$`)

// isBalanceMarker reports whether rec is a statement balance line rather
// than a transaction. Only the payee and notes cells are inspected.
func isBalanceMarker(rec []string, cols columns) bool {
	for _, field := range []string{"payee", "notes"} {
		if balanceMarker.MatchString(NormalizeHeader(cols.value(rec, field))) {
			return true
		}
	}
	return false
}

// delimited turns header-plus-records tables into ImportRows. CSV, TSV,
// QuickBooks CSV and spreadsheets all funnel through it.
type delimited struct {
	format string
	opts   Options
	// resolve maps a header row to columns; it also locates the header.
	resolve func(headers []string) (columns, error)
	// exclude reports non-transaction rows; consulted only for auto columns.
	exclude func(rec []string, cols columns) bool
}

type rowResult struct {
	row     model.ImportRow
	skip    string
	unusual bool
}

func (d *delimited) parse(ctx context.Context, records [][]string) ([]model.ImportRow, error) {
	log := logger.FromContext(ctx)

	headerAt := d.findHeader(records)
	if headerAt < 0 {
		return nil, importerr.Parse(importerr.CodeNoHeader, "%s file has no header row", d.format)
	}
	headers := records[headerAt]
	cols, err := d.resolve(headers)
	if err != nil {
		return nil, err
	}
	data := records[headerAt+1:]

	results := make([]rowResult, len(data))
	workers := d.opts.Workers
	if workers <= 1 {
		for i, rec := range data {
			results[i] = d.normalize(i, headers, rec, cols)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		for i, rec := range data {
			i, rec := i, rec
			g.Go(func() error {
				results[i] = d.normalize(i, headers, rec, cols)
				return nil
			})
		}
		_ = g.Wait()
	}

	rows := make([]model.ImportRow, 0, len(results))
	for i, res := range results {
		if res.skip != "" {
			log.Debug().Str("format", d.format).Int("row", i).Str("reason", res.skip).Msg("row excluded")
			continue
		}
		if res.unusual {
			log.Warn().Str("format", d.format).Int("row", i).
				Msg("row has both debit and credit; using net amount")
		}
		rows = append(rows, res.row)
	}
	if len(rows) == 0 {
		return nil, importerr.Parse(importerr.CodeNoRecords, "%s file contains no transactions", d.format)
	}
	return rows, nil
}

// findHeader returns the first record near the top that resolves, the same
// way the data will be read, to a date column and an amount, debit or credit
// column. Otherwise it returns the first non-blank record, or -1.
func (d *delimited) findHeader(records [][]string) int {
	first := -1
	seen := 0
	for i, rec := range records {
		if isBlankRecord(rec) {
			continue
		}
		if first < 0 {
			first = i
		}
		if cols, err := d.resolve(rec); err == nil && cols.has("date") && cols.hasAmount() {
			return i
		}
		if seen++; seen >= headerScanDepth {
			break
		}
	}
	return first
}

func (d *delimited) normalize(i int, headers, rec []string, cols columns) rowResult {
	if isBlankRecord(rec) {
		return rowResult{skip: "blank"}
	}
	raw := make(map[string]string, len(headers))
	for j, h := range headers {
		if j >= len(rec) {
			break
		}
		key := strings.TrimSpace(h)
		if _, dup := raw[key]; dup || key == "" {
			key = fmt.Sprintf("%s#%d", key, j)
		}
		raw[key] = rec[j]
	}
	row := model.NewRow(i, raw)

	if cols.auto && d.exclude != nil && d.exclude(rec, cols) {
		return rowResult{skip: "non-transaction record"}
	}

	txn := &row.Normalized
	if !cols.has("date") {
		row.AddError(model.FieldError{Field: "date", Code: importerr.CodeMissingDate, Message: "no date column"})
	} else if v := cols.value(rec, "date"); v == "" {
		row.AddError(model.FieldError{Field: "date", Code: importerr.CodeMissingDate, Message: "date is empty"})
	} else if t, err := ParseDate(v, d.opts.dateOrder()); err != nil {
		row.AddError(model.FieldError{Field: "date", Code: importerr.CodeInvalidDate, Message: "unparsable date", Value: v})
	} else {
		txn.Date = FormatDate(t)
	}

	var unusual bool
	switch {
	case cols.has("amount"):
		v := cols.value(rec, "amount")
		amt, err := ParseAmount(v)
		switch {
		case errors.Is(err, errEmptyAmount):
			row.AddError(model.FieldError{Field: "amount", Code: importerr.CodeMissingAmount, Message: "amount is empty"})
		case err != nil:
			row.AddError(model.FieldError{Field: "amount", Code: importerr.CodeInvalidAmount, Message: "unparsable amount", Value: v})
		default:
			txn.SetAmount(amt)
		}
	case cols.has("debit") || cols.has("credit"):
		debit, dErr := optionalAmount(cols.value(rec, "debit"))
		credit, cErr := optionalAmount(cols.value(rec, "credit"))
		if dErr != nil {
			row.AddError(model.FieldError{Field: "debit", Code: importerr.CodeInvalidAmount, Message: "unparsable debit", Value: cols.value(rec, "debit")})
		}
		if cErr != nil {
			row.AddError(model.FieldError{Field: "credit", Code: importerr.CodeInvalidAmount, Message: "unparsable credit", Value: cols.value(rec, "credit")})
		}
		if dErr == nil && cErr == nil {
			if debit.IsZero() && credit.IsZero() {
				return rowResult{skip: "zero debit and credit"}
			}
			unusual = !debit.IsZero() && !credit.IsZero()
			txn.SetAmount(credit.Abs().Sub(debit.Abs()))
		}
	default:
		row.AddError(model.FieldError{Field: "amount", Code: importerr.CodeMissingAmount, Message: "no amount, debit or credit column"})
	}

	txn.Payee = Sanitize(cols.value(rec, "payee"), d.opts.payeeMax())
	txn.Notes = Sanitize(cols.value(rec, "notes"), 0)
	txn.Category = Sanitize(cols.value(rec, "category"), 0)
	txn.Status = NormalizeStatus(cols.value(rec, "status"))
	txn.CheckNumber = cols.value(rec, "checkNumber")
	txn.FITID = cols.value(rec, "fitid")

	row.Finalize()
	return rowResult{row: row, unusual: unusual}
}

// optionalAmount parses a debit or credit cell where blank means zero.
func optionalAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if errors.Is(err, errEmptyAmount) {
		return decimal.Zero, nil
	}
	return d, err
}
