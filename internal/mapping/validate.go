package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/ledgerimport/internal/normalize"
	"github.com/wacul/ptr"
)

// FirstDataLine is the human-facing line number of the first data row.
// Line numbers are row index + FirstDataLine to account for the header.
const FirstDataLine = 2

// Form error messages.
const (
	msgRequiredUnmapped = "required destination field is not mapped"
	msgMappedTwice      = "destination field mapped more than once"
	msgUnknownField     = "unknown destination field"
)

// Report is the outcome of validating a row set against a mapping.
type Report struct {
	FormErrors []FormError    `json:"formErrors,omitempty"`
	Rows       []ValidatedRow `json:"rows"`
	Total      int            `json:"total"`
	ErrorRows  int            `json:"errorRows"`
}

// HasFormErrors reports whether the mapping itself is unusable.
func (r *Report) HasFormErrors() bool {
	return len(r.FormErrors) > 0
}

// Valid reports whether the mapping is usable and every row passed.
// Commit is blocked while this is false.
func (r *Report) Valid() bool {
	return !r.HasFormErrors() && r.ErrorRows == 0
}

// RowErrors flattens the errors of every row in line order.
func (r *Report) RowErrors() []RowError {
	var errs []RowError
	for _, row := range r.Rows {
		errs = append(errs, row.Errors...)
	}
	return errs
}

// ErrorsByLine groups row errors by line number.
func (r *Report) ErrorsByLine() map[int][]RowError {
	out := make(map[int][]RowError)
	for _, row := range r.Rows {
		if len(row.Errors) > 0 {
			out[row.Line] = row.Errors
		}
	}
	return out
}

// Committable returns the rows without errors.
func (r *Report) Committable() []ValidatedRow {
	out := make([]ValidatedRow, 0, len(r.Rows)-r.ErrorRows)
	for _, row := range r.Rows {
		if row.Valid() {
			out = append(out, row)
		}
	}
	return out
}

// Err summarizes the report as an error, or nil when it is valid.
func (r *Report) Err() error {
	if r.Valid() {
		return nil
	}
	if r.HasFormErrors() {
		msgs := make([]string, len(r.FormErrors))
		for i, fe := range r.FormErrors {
			msgs[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
		}
		return fmt.Errorf("%w: %s", ErrInvalidMapping, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w: %d of %d rows have errors", ErrInvalidRows, r.ErrorRows, r.Total)
}

var (
	// ErrInvalidMapping is wrapped by Report.Err when form errors exist.
	ErrInvalidMapping = errors.New("invalid mapping")

	// ErrInvalidRows is wrapped by Report.Err when any row has errors.
	ErrInvalidRows = errors.New("rows have validation errors")
)

// CheckMapping returns the form-level errors for m, independent of any rows.
func CheckMapping(m Mapping) []FormError {
	var errs []FormError

	counts := make(map[Field]int, len(Fields))
	for _, a := range m {
		if !a.Field.Valid() {
			errs = append(errs, FormError{Field: a.Field, Message: msgUnknownField})
			continue
		}
		if a.Column != "" {
			counts[a.Field]++
		}
	}

	for _, f := range RequiredFields {
		if counts[f] == 0 {
			errs = append(errs, FormError{Field: f, Message: msgRequiredUnmapped})
		}
	}
	for _, f := range Fields {
		if counts[f] > 1 {
			errs = append(errs, FormError{Field: f, Message: msgMappedTwice})
		}
	}

	return errs
}

// Validate checks m and then every row.
//
// Form errors stop validation before any row is projected. Otherwise each
// row is projected and its errors collected; a bad row never hides errors
// on the rows after it.
func Validate(m Mapping, rows []CandidateRow) Report {
	report := Report{Total: len(rows)}

	if fe := CheckMapping(m); len(fe) > 0 {
		report.FormErrors = fe
		return report
	}

	report.Rows = make([]ValidatedRow, 0, len(rows))
	for i, row := range rows {
		vr := Project(m, i, row)
		if !vr.Valid() {
			report.ErrorRows++
		}
		report.Rows = append(report.Rows, vr)
	}

	return report
}

// ValidateRecords validates destination-keyed records with the Identity mapping.
func ValidateRecords(records []Record) Report {
	rows := make([]CandidateRow, len(records))
	for i, rec := range records {
		rows[i] = rec.Candidate()
	}
	return Validate(Identity(), rows)
}

// Project maps the row at index through m.
// Optional fields that are unmapped or blank are left nil.
func Project(m Mapping, index int, row CandidateRow) ValidatedRow {
	line := index + FirstDataLine
	cols := m.Columns()
	value := func(f Field) string {
		col, ok := cols[f]
		if !ok {
			return ""
		}
		return normalize.CleanCell(row[col])
	}

	vr := ValidatedRow{Line: line}
	addErr := func(f Field, raw, msg string) {
		vr.Errors = append(vr.Errors, RowError{Line: line, Field: f, Value: raw, Message: msg})
	}

	if raw := value(FieldDate); raw == "" {
		addErr(FieldDate, "", "date is required")
	} else if d, err := normalize.Date(raw); err != nil {
		addErr(FieldDate, raw, fmt.Sprintf("invalid date %q", raw))
	} else {
		vr.Date = d
	}

	if desc := value(FieldDescription); desc == "" {
		addErr(FieldDescription, "", "description is required")
	} else {
		vr.Description = desc
	}

	if raw := value(FieldAmount); raw == "" {
		addErr(FieldAmount, "", "amount is required")
	} else if amt, err := normalize.Amount(raw); err != nil {
		addErr(FieldAmount, raw, fmt.Sprintf("invalid amount %q", raw))
	} else {
		vr.Amount = amt
	}

	if v := value(FieldCategory); v != "" {
		vr.Category = ptr.String(v)
	}
	if v := value(FieldDocumentID); v != "" {
		vr.DocumentID = ptr.String(v)
	}

	return vr
}
