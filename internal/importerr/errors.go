// Package importerr classifies import failures. Every error carries a stable
// machine-readable code alongside its human message.
package importerr

import (
	"errors"
	"fmt"
)

// Kind is the failure class.
type Kind string

const (
	KindFileValidation Kind = "file_validation"
	KindParse          Kind = "parse"
	KindRowValidation  Kind = "row_validation"
	KindEntityMatch    Kind = "entity_match"
	KindDuplicate      Kind = "duplicate_transaction"
)

// Codes.
const (
	CodeEmptyFile            = "empty_file"
	CodeFileTooLarge         = "file_too_large"
	CodeUnsupportedExtension = "unsupported_extension"
	CodeUnknownFormat        = "unknown_format"
	CodeReadFailed           = "read_failed"

	CodeMalformedFile          = "malformed_file"
	CodeNoHeader               = "no_header"
	CodeMissingColumns         = "missing_required_columns"
	CodeNoRootElement          = "no_root_element"
	CodeMissingEnvelope        = "missing_envelope"
	CodeMissingStmtResponse    = "missing_statement_response"
	CodeMissingStatement       = "missing_statement"
	CodeMissingTransactionList = "missing_transaction_list"
	CodeNoRecords              = "no_records"

	CodeInvalidDate   = "invalid_date"
	CodeInvalidAmount = "invalid_amount"
	CodeMissingDate   = "missing_date"
	CodeMissingAmount = "missing_amount"

	CodeEntityNotFound       = "entity_not_found"
	CodeDuplicateTransaction = "duplicate_transaction"
)

// Error is a classified import failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by Kind, and by Code when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinels for errors.Is. Row validation, entity match and duplicate
// failures are never returned by the parsers (row problems are recorded as
// model.FieldError on the row); the kinds exist for callers that persist or
// resolve imported rows.
var (
	ErrFileValidation = &Error{Kind: KindFileValidation}
	ErrParse          = &Error{Kind: KindParse}
	ErrRowValidation  = &Error{Kind: KindRowValidation}
	ErrEntityMatch    = &Error{Kind: KindEntityMatch}
	ErrDuplicate      = &Error{Kind: KindDuplicate}
)

// FileValidation returns a file validation failure.
func FileValidation(code, format string, args ...any) *Error {
	return &Error{Kind: KindFileValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Parse returns a whole-file structural failure.
func Parse(code, format string, args ...any) *Error {
	return &Error{Kind: KindParse, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ParseWrap returns a structural failure caused by err.
func ParseWrap(code string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindParse, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// EntityMatch returns a failure to resolve a payee, category or account.
func EntityMatch(entity, name string) *Error {
	return &Error{Kind: KindEntityMatch, Code: CodeEntityNotFound, Message: fmt.Sprintf("%s %q not found", entity, name)}
}

// Duplicate returns a persistence-time duplicate transaction failure.
func Duplicate(fitid string) *Error {
	return &Error{Kind: KindDuplicate, Code: CodeDuplicateTransaction, Message: fmt.Sprintf("transaction %q already imported", fitid)}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
