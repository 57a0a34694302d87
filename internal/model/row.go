package model

// ValidationStatus is the lifecycle state of an ImportRow.
type ValidationStatus string

const (
	StatusPending       ValidationStatus = "pending"
	StatusValid         ValidationStatus = "valid"
	StatusInvalid       ValidationStatus = "invalid"
	StatusTransferMatch ValidationStatus = "transfer_match"
)

// Severity grades a FieldError. Every FieldError the importer records is
// an error; rows with unusual but accepted values are logged, not annotated,
// so valid rows always carry an empty error list.
type Severity string

const SeverityError Severity = "error"

// FieldError describes a problem with one field of one row.
type FieldError struct {
	Field    string   `json:"field"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Value    string   `json:"value,omitempty"`
	Severity Severity `json:"severity"`
}

func (e FieldError) Error() string {
	if e.Value == "" {
		return e.Field + ": " + e.Message
	}
	return e.Field + ": " + e.Message + " (" + e.Value + ")"
}

// ImportRow is one candidate transaction extracted from a file.
type ImportRow struct {
	RowIndex            int                   `json:"rowIndex"`
	RawData             map[string]string     `json:"rawData"`
	Normalized          NormalizedTransaction `json:"normalizedData"`
	Status              ValidationStatus      `json:"validationStatus"`
	Errors              []FieldError          `json:"validationErrors"`
	TransferTargetMatch *TransferTargetMatch  `json:"transferTargetMatch,omitempty"`
}

// NewRow returns a pending row at index with its raw record attached.
func NewRow(index int, raw map[string]string) ImportRow {
	if raw == nil {
		raw = map[string]string{}
	}
	return ImportRow{
		RowIndex: index,
		RawData:  raw,
		Status:   StatusPending,
		Errors:   []FieldError{},
	}
}

// AddError records a field error and marks the row invalid.
func (r *ImportRow) AddError(fe FieldError) {
	fe.Severity = SeverityError
	r.Errors = append(r.Errors, fe)
	r.Status = StatusInvalid
}

// Finalize settles a pending row to valid or invalid.
func (r *ImportRow) Finalize() {
	if r.Status != StatusPending {
		return
	}
	if len(r.Errors) > 0 {
		r.Status = StatusInvalid
		return
	}
	r.Status = StatusValid
}

// IsValid reports whether the row is usable as-is.
func (r ImportRow) IsValid() bool { return r.Status == StatusValid }
