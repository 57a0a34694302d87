package importer

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/logger"
	"github.com/cleared-dev/txnimport/internal/model"
)

const qifMaxSize = 5 << 20

// QIF field codes.
const (
	qifDate     = 'D'
	qifAmount   = 'T'
	qifAmountU  = 'U'
	qifPayee    = 'P'
	qifMemo     = 'M'
	qifCategory = 'L'
	qifCleared  = 'C'
	qifNumber   = 'N'
	qifEnd      = '^'
)

// QIFParser parses Quicken Interchange Format files: one field per line,
// keyed by a leading code letter, records terminated by "^".
type QIFParser struct {
	Options
}

// Format returns the parser name.
func (p *QIFParser) Format() string { return "qif" }

// SupportedFormats returns the accepted extensions.
func (p *QIFParser) SupportedFormats() []string { return []string{".qif"} }

// ValidateFile checks extension, emptiness and size.
func (p *QIFParser) ValidateFile(f File) error {
	return validateFile(f, p.Format(), p.SupportedFormats(), p.maxSize(p.Format(), qifMaxSize))
}

// ParseFile emits one row per "^" marker, plus a final row when the last
// record is not terminated. Account blocks (!Account) are skipped.
func (p *QIFParser) ParseFile(ctx context.Context, f File) ([]model.ImportRow, error) {
	log := logger.FromContext(ctx)

	var (
		rows      []model.ImportRow
		current   map[string]string
		inAccount bool
		fields    int
	)
	flush := func() {
		rows = append(rows, p.normalize(len(rows), current))
		current, fields = nil, 0
	}

	for _, line := range strings.Split(DecodeText(f.Data), "\n") {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == '!' {
			// !Type:, !Option: and !Clear: headers carry no transaction data.
			inAccount = strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "!account")
			continue
		}
		if line[0] == qifEnd {
			if inAccount {
				inAccount = false
				current, fields = nil, 0
				continue
			}
			flush()
			continue
		}
		if inAccount {
			continue
		}
		if current == nil {
			current = make(map[string]string)
		}
		code, value := string(line[0]), strings.TrimSpace(line[1:])
		if _, ok := current[code]; ok {
			// Split lines (S, E, $) repeat; later values get a numbered key.
			for n := 2; ; n++ {
				key := code + strconv.Itoa(n)
				if _, taken := current[key]; !taken {
					code = key
					break
				}
			}
		}
		current[code] = value
		fields++
	}
	if fields > 0 {
		flush()
	}

	if len(rows) == 0 {
		return nil, importerr.Parse(importerr.CodeNoRecords, "QIF file contains no transactions")
	}
	log.Debug().Str("format", p.Format()).Int("rows", len(rows)).Msg("qif records read")
	return rows, nil
}

func (p *QIFParser) normalize(i int, rec map[string]string) model.ImportRow {
	row := model.NewRow(i, rec)
	txn := &row.Normalized
	get := func(code rune) string { return rec[string(code)] }

	if v := get(qifDate); v == "" {
		row.AddError(model.FieldError{Field: "date", Code: importerr.CodeMissingDate, Message: "record has no D line"})
	} else if t, err := ParseDate(qifDateString(v), p.dateOrder()); err != nil {
		row.AddError(model.FieldError{Field: "date", Code: importerr.CodeInvalidDate, Message: "unparsable date", Value: v})
	} else {
		txn.Date = FormatDate(t)
	}

	v := firstNonEmpty(get(qifAmount), get(qifAmountU))
	amt, err := ParseAmount(strings.ReplaceAll(v, ",", ""))
	switch {
	case errors.Is(err, errEmptyAmount):
		row.AddError(model.FieldError{Field: "amount", Code: importerr.CodeMissingAmount, Message: "record has no T line"})
	case err != nil:
		row.AddError(model.FieldError{Field: "amount", Code: importerr.CodeInvalidAmount, Message: "unparsable amount", Value: v})
	default:
		txn.SetAmount(amt)
	}

	txn.Payee = Sanitize(get(qifPayee), p.payeeMax())
	txn.Notes = Sanitize(get(qifMemo), 0)
	txn.Category = qifTopCategory(get(qifCategory))
	txn.CheckNumber = get(qifNumber)
	txn.Status = qifStatus(get(qifCleared))

	row.Finalize()
	return row
}

// qifDateString rewrites Quicken's apostrophe year form (1/15'24) and
// space padding (" 1/ 5/24") into a plain numeric date.
func qifDateString(s string) string {
	s = strings.ReplaceAll(s, "'", "/")
	return strings.ReplaceAll(s, " ", "")
}

// qifTopCategory keeps the first segment of "Parent:Child/Class".
func qifTopCategory(s string) string {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// qifStatus treats "*", "X" and "R" as cleared.
func qifStatus(s string) model.TxnStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "*", "X", "R":
		return model.TxnCleared
	}
	return model.TxnPending
}
