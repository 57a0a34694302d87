package model

// ColumnMapping assigns canonical fields to source column headers, overriding
// heuristic header detection. Empty entries fall back to detection.
type ColumnMapping struct {
	Date        string `yaml:"date,omitempty" json:"date,omitempty"`
	Amount      string `yaml:"amount,omitempty" json:"amount,omitempty"`
	Debit       string `yaml:"debit,omitempty" json:"debit,omitempty"`
	Credit      string `yaml:"credit,omitempty" json:"credit,omitempty"`
	Payee       string `yaml:"payee,omitempty" json:"payee,omitempty"`
	Notes       string `yaml:"notes,omitempty" json:"notes,omitempty"`
	Category    string `yaml:"category,omitempty" json:"category,omitempty"`
	Status      string `yaml:"status,omitempty" json:"status,omitempty"`
	CheckNumber string `yaml:"check_number,omitempty" json:"checkNumber,omitempty"`
	FITID       string `yaml:"fitid,omitempty" json:"fitid,omitempty"`
}

// Columns returns the mapping as canonical field name -> source header,
// omitting unset entries.
func (m ColumnMapping) Columns() map[string]string {
	out := make(map[string]string)
	set := func(field, col string) {
		if col != "" {
			out[field] = col
		}
	}
	set("date", m.Date)
	set("amount", m.Amount)
	set("debit", m.Debit)
	set("credit", m.Credit)
	set("payee", m.Payee)
	set("notes", m.Notes)
	set("category", m.Category)
	set("status", m.Status)
	set("checkNumber", m.CheckNumber)
	set("fitid", m.FITID)
	return out
}

// UsesDebitCredit reports whether the mapping selects the split debit/credit mode.
func (m ColumnMapping) UsesDebitCredit() bool {
	return m.Amount == "" && (m.Debit != "" || m.Credit != "")
}
