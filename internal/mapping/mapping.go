package mapping

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Assignment pairs a destination field with a source column header.
// An empty Column means the field is unmapped.
type Assignment struct {
	Field  Field  `json:"field"`
	Column string `json:"column"`
}

// Mapping is an ordered set of assignments. It may hold the same field twice
// so that a user error can be represented and reported by Validate.
type Mapping []Assignment

// Identity maps every destination field to a column of the same name.
// It is used to validate destination-keyed records.
func Identity() Mapping {
	m := make(Mapping, 0, len(Fields))
	for _, f := range Fields {
		m = append(m, Assignment{Field: f, Column: string(f)})
	}
	return m
}

// Column returns the first non-empty column mapped to f.
func (m Mapping) Column(f Field) (string, bool) {
	for _, a := range m {
		if a.Field == f && a.Column != "" {
			return a.Column, true
		}
	}
	return "", false
}

// Columns returns the first non-empty column for each mapped field.
func (m Mapping) Columns() map[Field]string {
	cols := make(map[Field]string, len(m))
	for _, a := range m {
		if a.Column == "" {
			continue
		}
		if _, seen := cols[a.Field]; !seen {
			cols[a.Field] = a.Column
		}
	}
	return cols
}

// Set returns a copy of m with f mapped to column alone.
// An empty column clears the field.
func (m Mapping) Set(f Field, column string) Mapping {
	out := m.Clear(f)
	if column == "" {
		return out
	}
	return append(out, Assignment{Field: f, Column: column})
}

// Clear returns a copy of m without any assignment for f.
func (m Mapping) Clear(f Field) Mapping {
	out := make(Mapping, 0, len(m)+1)
	for _, a := range m {
		if a.Field != f {
			out = append(out, a)
		}
	}
	return out
}

// Clone returns a copy of m.
func (m Mapping) Clone() Mapping {
	if m == nil {
		return nil
	}
	out := make(Mapping, len(m))
	copy(out, m)
	return out
}

// Rekey re-keys a candidate row by destination field using m.
// Unmapped fields are left out.
func (m Mapping) Rekey(row CandidateRow) Record {
	rec := make(Record, len(Fields))
	for f, col := range m.Columns() {
		if v, ok := row[col]; ok {
			rec[f] = v
		}
	}
	return rec
}

// synonyms are consulted only when no header overlaps the field name itself.
// Short entries must appear at the start or end of a header.
var synonyms = map[Field][]string{
	FieldDate:        {"posted", "posting", "booked", "txn", "dt"},
	FieldDescription: {"desc", "memo", "payee", "narrative", "details", "merchant", "particulars"},
	FieldAmount:      {"amt", "value", "total", "sum"},
	FieldCategory:    {"cat", "tag"},
	FieldDocumentID:  {"doc", "reference", "receipt", "invoice"},
}

// minContainsLen is the shortest synonym allowed to match anywhere in a header.
const minContainsLen = 4

// Propose builds a best-effort mapping from source headers.
//
// For each destination field the first header whose normalized form
// contains, or is contained by, the normalized field name is chosen. When
// nothing overlaps, known synonyms are tried. Fields with no match are left
// out of the result. Several fields may end up on the same header.
func Propose(headers []string) Mapping {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = NormalizeHeader(h)
	}

	var m Mapping
	for _, f := range Fields {
		if col, ok := proposeField(f, headers, normalized); ok {
			m = append(m, Assignment{Field: f, Column: col})
		}
	}
	return m
}

func proposeField(f Field, headers, normalized []string) (string, bool) {
	name := NormalizeHeader(string(f))

	for i, h := range normalized {
		if h == "" {
			continue
		}
		if strings.Contains(h, name) || strings.Contains(name, h) {
			return headers[i], true
		}
	}

	for _, syn := range synonyms[f] {
		for i, h := range normalized {
			if matchesSynonym(h, syn) {
				return headers[i], true
			}
		}
	}

	return "", false
}

func matchesSynonym(header, syn string) bool {
	if header == "" {
		return false
	}
	if len(syn) >= minContainsLen {
		return strings.Contains(header, syn)
	}
	return strings.HasPrefix(header, syn) || strings.HasSuffix(header, syn)
}

// NormalizeHeader lower-cases s, folds diacritics, and strips everything
// that is not a letter or digit: "Txn Date" becomes "txndate".
func NormalizeHeader(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
