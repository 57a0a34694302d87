package importer

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/logger"
	"github.com/cleared-dev/txnimport/internal/model"
)

const ofxMaxSize = 20 << 20

var ofxMarker = regexp.MustCompile(`(?i)OFXHEADER|<OFX>`)

// ofxLevel is one step from <OFX> down to the transaction list. Names are
// tried in order: bank first, then credit card.
type ofxLevel struct {
	names []string
	code  string
	what  string
}

var ofxPath = []ofxLevel{
	{[]string{"BANKMSGSRSV1", "CREDITCARDMSGSRSV1"}, importerr.CodeMissingEnvelope, "message set"},
	{[]string{"STMTTRNRS", "CCSTMTTRNRS"}, importerr.CodeMissingStmtResponse, "statement response"},
	{[]string{"STMTRS", "CCSTMTRS"}, importerr.CodeMissingStatement, "statement"},
	{[]string{"BANKTRANLIST"}, importerr.CodeMissingTransactionList, "transaction list"},
}

// OFXParser parses Open Financial Exchange statements, both the XML
// (2.x) and the legacy SGML (1.x) dialect.
type OFXParser struct {
	Options
}

// Format returns the parser name.
func (p *OFXParser) Format() string { return "ofx" }

// SupportedFormats returns the accepted extensions.
func (p *OFXParser) SupportedFormats() []string { return []string{".ofx"} }

// ValidateFile checks extension, emptiness and size.
func (p *OFXParser) ValidateFile(f File) error {
	return validateFile(f, p.Format(), p.SupportedFormats(), p.maxSize(p.Format(), ofxMaxSize))
}

// ParseFile converts the statement to a tree and reads each STMTTRN.
func (p *OFXParser) ParseFile(ctx context.Context, f File) ([]model.ImportRow, error) {
	return parseOFX(ctx, p.Format(), f, p.Options)
}

// QFXParser parses Quicken (.qfx) and QuickBooks Web Connect (.qbo)
// downloads, which are OFX with vendor headers.
type QFXParser struct {
	Options
}

// Format returns the parser name.
func (p *QFXParser) Format() string { return "qfx" }

// SupportedFormats returns the accepted extensions.
func (p *QFXParser) SupportedFormats() []string { return []string{".qfx", ".qbo"} }

// ValidateFile checks extension, emptiness and size.
func (p *QFXParser) ValidateFile(f File) error {
	return validateFile(f, p.Format(), p.SupportedFormats(), p.maxSize(p.Format(), ofxMaxSize))
}

// Sniff reports whether the file carries an OFX header or root.
func (p *QFXParser) Sniff(f File) bool {
	head := f.Data
	if len(head) > 4096 {
		head = head[:4096]
	}
	return ofxMarker.Match(head)
}

// ParseFile converts the statement to a tree and reads each STMTTRN.
func (p *QFXParser) ParseFile(ctx context.Context, f File) ([]model.ImportRow, error) {
	return parseOFX(ctx, p.Format(), f, p.Options)
}

func parseOFX(ctx context.Context, format string, f File, opts Options) ([]model.ImportRow, error) {
	log := logger.FromContext(ctx)

	doc, err := ofxDocument(DecodeText(f.Data))
	if err != nil {
		return nil, err
	}
	root := doc.SelectElement("OFX")
	if root == nil {
		return nil, importerr.Parse(importerr.CodeNoRootElement, "no <OFX> root element found")
	}

	current := []*etree.Element{root}
	for _, level := range ofxPath {
		var next []*etree.Element
		for _, name := range level.names {
			for _, el := range current {
				next = append(next, el.SelectElements(name)...)
			}
			if len(next) > 0 {
				break
			}
		}
		if len(next) == 0 {
			return nil, importerr.Parse(level.code, "OFX %s not found: expected one of %s under <%s>",
				level.what, strings.Join(level.names, ", "), current[0].Tag)
		}
		current = next
	}

	var rows []model.ImportRow
	for _, list := range current {
		for _, st := range list.SelectElements("STMTTRN") {
			rows = append(rows, normalizeOFXTransaction(len(rows), st, opts))
		}
	}
	if len(rows) == 0 {
		return nil, importerr.Parse(importerr.CodeNoRecords, "OFX statement contains no transactions")
	}
	log.Debug().Str("format", format).Int("rows", len(rows)).Msg("ofx statement read")
	return rows, nil
}

// ofxDocument parses XML dialect files directly and converts SGML first.
// XML-declared files that still fail to parse get the conversion too.
func ofxDocument(text string) (*etree.Document, error) {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "<?xml") {
		doc := newXMLDocument()
		if err := doc.ReadFromString(text); err == nil {
			return doc, nil
		}
	}
	converted, err := SGMLToXML(text)
	if err != nil {
		return nil, err
	}
	doc := newXMLDocument()
	if err := doc.ReadFromString(converted); err != nil {
		return nil, importerr.ParseWrap(importerr.CodeMalformedFile, err, "OFX markup could not be repaired")
	}
	return doc, nil
}

// newXMLDocument returns a document that accepts any declared encoding;
// input has already been decoded to UTF-8 by DecodeText.
func newXMLDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return doc
}

func normalizeOFXTransaction(i int, st *etree.Element, opts Options) model.ImportRow {
	raw := make(map[string]string)
	flattenElement("", st, raw)
	row := model.NewRow(i, raw)
	txn := &row.Normalized

	posted := firstNonEmpty(raw["DTPOSTED"], raw["DTUSER"])
	if posted == "" {
		row.AddError(model.FieldError{Field: "date", Code: importerr.CodeMissingDate, Message: "DTPOSTED is missing"})
	} else if t, err := parseOFXDate(posted); err != nil {
		row.AddError(model.FieldError{Field: "date", Code: importerr.CodeInvalidDate, Message: "unparsable date", Value: posted})
	} else {
		txn.Date = FormatDate(t)
	}

	amt, err := ParseAmount(raw["TRNAMT"])
	switch {
	case errors.Is(err, errEmptyAmount):
		row.AddError(model.FieldError{Field: "amount", Code: importerr.CodeMissingAmount, Message: "TRNAMT is missing"})
	case err != nil:
		row.AddError(model.FieldError{Field: "amount", Code: importerr.CodeInvalidAmount, Message: "unparsable amount", Value: raw["TRNAMT"]})
	default:
		txn.SetAmount(amt)
	}

	txn.Payee = Sanitize(firstNonEmpty(raw["NAME"], raw["PAYEE.NAME"], raw["MEMO"]), opts.payeeMax())
	txn.Notes = Sanitize(raw["MEMO"], 0)
	txn.CheckNumber = firstNonEmpty(raw["CHECKNUM"], raw["REFNUM"])
	txn.FITID = raw["FITID"]
	// Statement downloads are bank-confirmed postings.
	txn.Status = model.TxnCleared

	row.Finalize()
	return row
}

// parseOFXDate reads the YYYYMMDD prefix; time and zone suffixes are ignored.
func parseOFXDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < 8 || !isDigits(s[:8]) {
		return time.Time{}, errors.New("OFX date needs a YYYYMMDD prefix")
	}
	return ParseDate(s[:8], OrderYMD)
}

// flattenElement copies leaf text into out, keyed by tag path below the
// transaction (PAYEE.NAME for nested aggregates).
func flattenElement(prefix string, el *etree.Element, out map[string]string) {
	for _, child := range el.ChildElements() {
		key := child.Tag
		if prefix != "" {
			key = prefix + "." + key
		}
		if len(child.ChildElements()) > 0 {
			flattenElement(key, child, out)
			continue
		}
		if _, exists := out[key]; !exists {
			out[key] = strings.TrimSpace(child.Text())
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
