// Package mapping reconciles arbitrary source layouts against the fixed
// transaction schema.
//
// It proposes a column mapping from header text, accepts overrides, and
// validates candidate rows against that mapping. Validation reports
// mapping problems as form errors and data problems per row, numbered the
// way a spreadsheet user sees them (first data row is line 2).
//
// Everything in this package is stateless and safe for concurrent use;
// a Mapping value belongs to whichever session holds it.
package mapping

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Field is a destination field in the transaction schema.
type Field string

const (
	FieldDate        Field = "date"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldCategory    Field = "category"
	FieldDocumentID  Field = "document_id"
)

// Fields is the destination schema in display order.
var Fields = []Field{FieldDate, FieldDescription, FieldAmount, FieldCategory, FieldDocumentID}

// RequiredFields must each be mapped to exactly one source column.
var RequiredFields = []Field{FieldDate, FieldDescription, FieldAmount}

// Required reports whether f must be mapped and present on every row.
func (f Field) Required() bool {
	switch f {
	case FieldDate, FieldDescription, FieldAmount:
		return true
	}
	return false
}

// Valid reports whether f belongs to the destination schema.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// ParseField converts s to a Field.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if !f.Valid() {
		return "", fmt.Errorf("unknown destination field %q", s)
	}
	return f, nil
}

// CandidateRow is one source record keyed by source header, exactly as parsed.
type CandidateRow map[string]string

// Record is a row keyed by destination field. Review edits operate on records
// so a hand-edited row can be re-validated with the Identity mapping.
type Record map[Field]string

// Candidate converts r into a CandidateRow whose headers are field names.
func (r Record) Candidate() CandidateRow {
	row := make(CandidateRow, len(r))
	for f, v := range r {
		row[string(f)] = v
	}
	return row
}

// Clone returns a copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RowError is a data problem on a single row.
type RowError struct {
	Line    int    `json:"line"`
	Field   Field  `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// FormError is a mapping problem that is not tied to any row.
type FormError struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

func (e FormError) Error() string {
	return e.Message
}

// ValidatedRow is a candidate row projected through a mapping.
// Category and DocumentID are nil when unmapped or blank.
type ValidatedRow struct {
	Line        int             `json:"line"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    *string         `json:"category,omitempty"`
	DocumentID  *string         `json:"document_id,omitempty"`
	Errors      []RowError      `json:"errors,omitempty"`
}

// Valid reports whether the row carries no errors.
func (r ValidatedRow) Valid() bool {
	return len(r.Errors) == 0
}
