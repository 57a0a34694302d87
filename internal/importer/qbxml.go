package importer

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/logger"
	"github.com/cleared-dev/txnimport/internal/model"
)

const qbxmlMaxSize = 20 << 20

// qbxmlRecord describes one *Ret element type in a QuickBooks SDK query
// response. Outflow types are stored unsigned and negated on import.
type qbxmlRecord struct {
	tag     string
	txnType string
	outflow bool
}

var qbxmlRecords = []qbxmlRecord{
	{"CheckRet", "Check", true},
	{"BillPaymentCheckRet", "BillPaymentCheck", true},
	{"CreditCardChargeRet", "CreditCardCharge", true},
	{"CreditCardCreditRet", "CreditCardCredit", false},
	{"DepositRet", "Deposit", false},
	{"ReceivePaymentRet", "ReceivePayment", false},
	{"SalesReceiptRet", "SalesReceipt", false},
	{"JournalEntryRet", "JournalEntry", false},
}

// qbxmlCandidate is one path tried for a field. negate flips the sign of
// an amount found there.
type qbxmlCandidate struct {
	path   string
	negate bool
}

// qbxmlFields lists, per field, the element paths tried in order.
var qbxmlFields = []struct {
	field      string
	candidates []qbxmlCandidate
}{
	{"type", []qbxmlCandidate{{path: "TxnType"}, {path: "Type"}}},
	{"date", []qbxmlCandidate{{path: "TxnDate"}, {path: "Date"}}},
	{"amount", []qbxmlCandidate{
		{path: "Amount"}, {path: "TotalAmount"}, {path: "DepositTotal"},
		{path: "JournalCreditLine/Amount"}, {path: "JournalDebitLine/Amount", negate: true},
	}},
	{"account", []qbxmlCandidate{{path: "AccountRef/FullName"}, {path: "BankAccountRef/FullName"}, {path: "DepositToAccountRef/FullName"}}},
	{"payee", []qbxmlCandidate{
		{path: "PayeeEntityRef/FullName"}, {path: "CustomerRef/FullName"}, {path: "EntityRef/FullName"},
		{path: "DepositLineRet/EntityRef/FullName"},
	}},
	{"memo", []qbxmlCandidate{{path: "Memo"}, {path: "DepositLineRet/Memo"}, {path: "JournalCreditLine/Memo"}}},
	{"category", []qbxmlCandidate{
		{path: "ExpenseLineRet/AccountRef/FullName"}, {path: "DepositLineRet/AccountRef/FullName"},
		{path: "JournalDebitLine/AccountRef/FullName"},
	}},
	{"checkNumber", []qbxmlCandidate{{path: "RefNumber"}, {path: "CheckNumber"}}},
	{"fitid", []qbxmlCandidate{{path: "TxnID"}, {path: "TxnNumber"}}},
}

// QBXMLParser parses QuickBooks SDK (qbXML) query responses. The shape of
// each transaction varies by record type, so fields are found through a
// table of candidate paths.
type QBXMLParser struct {
	Options
}

// Format returns the parser name.
func (p *QBXMLParser) Format() string { return "qbxml" }

// SupportedFormats returns the accepted extensions.
func (p *QBXMLParser) SupportedFormats() []string { return []string{".qbxml", ".xml", ".qbo"} }

// ValidateFile checks extension, emptiness and size.
func (p *QBXMLParser) ValidateFile(f File) error {
	return validateFile(f, p.Format(), p.SupportedFormats(), p.maxSize(p.Format(), qbxmlMaxSize))
}

// Sniff reports whether the file carries a <QBXML> root.
func (p *QBXMLParser) Sniff(f File) bool {
	head := f.Data
	if len(head) > 4096 {
		head = head[:4096]
	}
	return bytes.Contains(bytes.ToUpper(head), []byte("<QBXML"))
}

// ParseFile reads every known *Ret element in document order. A record
// whose fields cannot be extracted is skipped and logged.
func (p *QBXMLParser) ParseFile(ctx context.Context, f File) ([]model.ImportRow, error) {
	log := logger.FromContext(ctx)

	doc := newXMLDocument()
	if err := doc.ReadFromString(DecodeText(f.Data)); err != nil {
		return nil, importerr.ParseWrap(importerr.CodeMalformedFile, err, "qbXML is not well-formed")
	}
	root := doc.Root()
	if root == nil || !strings.EqualFold(root.Tag, "QBXML") {
		return nil, importerr.Parse(importerr.CodeNoRootElement, "qbXML document has no <QBXML> root element")
	}

	kinds := make(map[string]qbxmlRecord, len(qbxmlRecords))
	for _, r := range qbxmlRecords {
		kinds[r.tag] = r
	}

	var (
		rows    []model.ImportRow
		ordinal int
	)
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		kind, ok := kinds[el.Tag]
		if !ok {
			for _, child := range el.ChildElements() {
				walk(child)
			}
			return
		}
		i := ordinal
		ordinal++

		fields, err := extractQBXML(el, kind)
		if err != nil {
			log.Warn().Err(err).Int("record", i).Str("type", kind.txnType).Msg("qbxml record skipped")
			return
		}
		rows = append(rows, p.normalize(i, fields))
	}
	walk(root)

	if len(rows) == 0 {
		return nil, importerr.Parse(importerr.CodeNoRecords, "qbXML document contains no transactions")
	}
	return rows, nil
}

// extractQBXML resolves every field through its candidate paths. A field
// that resolves to an aggregate rather than a value fails the record.
func extractQBXML(el *etree.Element, kind qbxmlRecord) (map[string]string, error) {
	out := map[string]string{"type": kind.txnType}
	for _, f := range qbxmlFields {
		for _, c := range f.candidates {
			found := el.FindElement(c.path)
			if found == nil {
				continue
			}
			if len(found.ChildElements()) > 0 {
				return nil, fmt.Errorf("%s: %s is not a value", f.field, c.path)
			}
			v := strings.TrimSpace(found.Text())
			if v == "" {
				continue
			}
			if f.field == "amount" {
				amt, err := ParseAmount(v)
				if err != nil {
					return nil, fmt.Errorf("amount at %s: %w", c.path, err)
				}
				if c.negate || (kind.outflow && amt.IsPositive()) {
					amt = amt.Neg()
				}
				v = amt.StringFixed(2)
			}
			out[f.field] = v
			break
		}
	}
	return out, nil
}

func (p *QBXMLParser) normalize(i int, fields map[string]string) model.ImportRow {
	row := model.NewRow(i, fields)
	txn := &row.Normalized

	if v := fields["date"]; v == "" {
		row.AddError(model.FieldError{Field: "date", Code: importerr.CodeMissingDate, Message: "record has no TxnDate"})
	} else if d, err := ParseDate(v, OrderYMD); err != nil {
		row.AddError(model.FieldError{Field: "date", Code: importerr.CodeInvalidDate, Message: "unparsable date", Value: v})
	} else {
		txn.Date = FormatDate(d)
	}

	if v := fields["amount"]; v == "" {
		row.AddError(model.FieldError{Field: "amount", Code: importerr.CodeMissingAmount, Message: "record has no amount"})
	} else if amt, err := decimal.NewFromString(v); err != nil {
		row.AddError(model.FieldError{Field: "amount", Code: importerr.CodeInvalidAmount, Message: "unparsable amount", Value: v})
	} else {
		txn.SetAmount(amt)
	}

	txn.Payee = Sanitize(fields["payee"], p.payeeMax())
	txn.Notes = Sanitize(fields["memo"], 0)
	txn.Category = fields["category"]
	txn.CheckNumber = fields["checkNumber"]
	txn.FITID = fields["fitid"]
	txn.Status = model.TxnPending

	row.Finalize()
	return row
}
