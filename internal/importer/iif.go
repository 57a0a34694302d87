package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/logger"
	"github.com/cleared-dev/txnimport/internal/model"
)

const iifMaxSize = 5 << 20

// iifPositional is the column order assumed when a block has no !TRNS or
// !SPL header line.
var iifPositional = []string{"TRNSID", "TRNSTYPE", "DATE", "ACCNT", "NAME", "CLASS", "AMOUNT", "DOCNUM", "MEMO", "CLEAR"}

// iifTypes lists the transaction types that produce a row.
var iifTypes = map[string]bool{
	"CHECK":           true,
	"DEPOSIT":         true,
	"GENERAL JOURNAL": true,
	"CREDIT CARD":     true,
	"CCARD REFUND":    true,
	"BILL":            true,
	"BILLPMT":         true,
	"BILL REFUND":     true,
	"INVOICE":         true,
	"PAYMENT":         true,
	"CASH SALE":       true,
	"CREDIT MEMO":     true,
	"TRANSFER":        true,
	"ITEM RECEIPT":    true,
}

// IIFParser parses QuickBooks Intuit Interchange Format files: tab-separated
// lines keyed by a record type (TRNS, SPL, ENDTRNS) with "!" header lines
// naming the columns of each record type.
type IIFParser struct {
	Options
}

// Format returns the parser name.
func (p *IIFParser) Format() string { return "iif" }

// SupportedFormats returns the accepted extensions.
func (p *IIFParser) SupportedFormats() []string { return []string{".iif"} }

// ValidateFile checks extension, emptiness and size.
func (p *IIFParser) ValidateFile(f File) error {
	return validateFile(f, p.Format(), p.SupportedFormats(), p.maxSize(p.Format(), iifMaxSize))
}

type iifTxn struct {
	fields map[string]string
	splits []map[string]string
}

// ParseFile walks the file line by line. Transactions close on ENDTRNS, on
// the next TRNS, or at end of input.
func (p *IIFParser) ParseFile(ctx context.Context, f File) ([]model.ImportRow, error) {
	log := logger.FromContext(ctx)

	headers := map[string][]string{}
	var (
		txns    []*iifTxn
		current *iifTxn
		skipped int
	)
	closeTxn := func() {
		if current == nil {
			return
		}
		if iifTypes[strings.ToUpper(current.fields["TRNSTYPE"])] {
			txns = append(txns, current)
		} else {
			skipped++
			log.Debug().Str("type", current.fields["TRNSTYPE"]).Msg("iif transaction type not recognized")
		}
		current = nil
	}

	for _, line := range strings.Split(DecodeText(f.Data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		for i, c := range cells {
			cells[i] = iifCell(c)
		}
		kind := strings.ToUpper(strings.TrimSpace(cells[0]))

		if strings.HasPrefix(kind, "!") {
			cols := make([]string, len(cells))
			for i, c := range cells {
				cols[i] = strings.ToUpper(strings.TrimSpace(c))
			}
			headers[strings.TrimPrefix(kind, "!")] = cols
			continue
		}

		switch kind {
		case "TRNS":
			closeTxn()
			current = &iifTxn{fields: iifRecord(headers["TRNS"], cells)}
		case "SPL":
			if current == nil {
				log.Debug().Msg("iif split outside a transaction")
				continue
			}
			current.splits = append(current.splits, iifRecord(headers["SPL"], cells))
		case "ENDTRNS":
			closeTxn()
		}
	}
	closeTxn()

	if len(txns) == 0 {
		return nil, importerr.Parse(importerr.CodeNoRecords, "IIF file contains no recognized transactions")
	}
	if skipped > 0 {
		log.Info().Int("skipped", skipped).Msg("iif transactions without a recognized type")
	}

	rows := make([]model.ImportRow, len(txns))
	for i, t := range txns {
		rows[i] = p.normalize(i, t)
	}
	return rows, nil
}

// iifCell trims a cell and removes one pair of surrounding quotes, which
// QuickBooks adds to text containing commas or quotes. Doubled quotes inside
// a quoted cell are collapsed.
func iifCell(c string) string {
	c = strings.TrimSpace(c)
	if len(c) >= 2 && c[0] == '"' && c[len(c)-1] == '"' {
		c = strings.ReplaceAll(c[1:len(c)-1], `""`, `"`)
	}
	return c
}

// iifRecord maps cells to column names. cells[0] is the record type and
// lines up with the "!TRNS" header cell.
func iifRecord(header, cells []string) map[string]string {
	out := make(map[string]string, len(cells))
	if len(header) == 0 {
		for i, name := range iifPositional {
			if i+1 < len(cells) {
				out[name] = strings.TrimSpace(cells[i+1])
			}
		}
		return out
	}
	for i := 1; i < len(header) && i < len(cells); i++ {
		out[header[i]] = strings.TrimSpace(cells[i])
	}
	return out
}

func (p *IIFParser) normalize(i int, t *iifTxn) model.ImportRow {
	raw := make(map[string]string, len(t.fields))
	for k, v := range t.fields {
		raw[k] = v
	}
	for n, s := range t.splits {
		for k, v := range s {
			raw[fmt.Sprintf("split[%d].%s", n, k)] = v
		}
	}

	row := model.NewRow(i, raw)
	txn := &row.Normalized

	if v := t.fields["DATE"]; v == "" {
		row.AddError(model.FieldError{Field: "date", Code: importerr.CodeMissingDate, Message: "transaction has no DATE"})
	} else if d, err := ParseDate(v, p.dateOrder()); err != nil {
		row.AddError(model.FieldError{Field: "date", Code: importerr.CodeInvalidDate, Message: "unparsable date", Value: v})
	} else {
		txn.Date = FormatDate(d)
	}

	v := t.fields["AMOUNT"]
	amt, err := ParseAmount(v)
	switch {
	case errors.Is(err, errEmptyAmount):
		row.AddError(model.FieldError{Field: "amount", Code: importerr.CodeMissingAmount, Message: "transaction has no AMOUNT"})
	case err != nil:
		row.AddError(model.FieldError{Field: "amount", Code: importerr.CodeInvalidAmount, Message: "unparsable amount", Value: v})
	default:
		txn.SetAmount(amt)
	}

	txn.Payee = Sanitize(t.fields["NAME"], p.payeeMax())
	txn.Notes = Sanitize(t.fields["MEMO"], 0)
	txn.Category = t.fields["ACCNT"]
	if len(t.splits) > 0 && t.splits[0]["ACCNT"] != "" {
		txn.Category = t.splits[0]["ACCNT"]
	}
	txn.CheckNumber = t.fields["DOCNUM"]
	txn.FITID = t.fields["TRNSID"]
	txn.Status = NormalizeStatus(t.fields["CLEAR"])

	row.Finalize()
	return row
}
