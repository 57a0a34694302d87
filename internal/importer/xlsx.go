package importer

import (
	"bytes"
	"context"

	"github.com/xuri/excelize/v2"

	"github.com/cleared-dev/txnimport/internal/importerr"
	"github.com/cleared-dev/txnimport/internal/model"
)

const xlsxMaxSize = 20 << 20

// XLSXParser reads the first worksheet of a spreadsheet export and
// normalizes it exactly like a CSV.
type XLSXParser struct {
	Options
}

// Format returns the parser name.
func (p *XLSXParser) Format() string { return "xlsx" }

// SupportedFormats returns the accepted extensions.
func (p *XLSXParser) SupportedFormats() []string { return []string{".xlsx"} }

// ValidateFile checks extension, emptiness and size.
func (p *XLSXParser) ValidateFile(f File) error {
	return validateFile(f, p.Format(), p.SupportedFormats(), p.maxSize(p.Format(), xlsxMaxSize))
}

// ParseFile reads the first sheet's formatted cell values.
func (p *XLSXParser) ParseFile(ctx context.Context, f File) ([]model.ImportRow, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(f.Data))
	if err != nil {
		return nil, importerr.ParseWrap(importerr.CodeMalformedFile, err, "opening workbook %s", f.Name)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, importerr.Parse(importerr.CodeNoRecords, "workbook %s has no sheets", f.Name)
	}
	records, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, importerr.ParseWrap(importerr.CodeMalformedFile, err, "reading sheet %q", sheets[0])
	}

	csv := &CSVParser{Options: p.Options}
	eng := csv.engine(f.Mapping)
	eng.format = p.Format()
	return eng.parse(ctx, records)
}
