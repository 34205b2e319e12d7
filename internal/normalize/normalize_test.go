package normalize

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

// ----------------------------------------------------------------------------
// Date Tests
// ----------------------------------------------------------------------------

func TestDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		// General parse
		{name: "canonical", input: "2024-03-14", want: "2024-03-14"},
		{name: "canonical with whitespace", input: "  2024-03-14 ", want: "2024-03-14"},
		{name: "US slash", input: "03/14/2024", want: "2024-03-14"},
		{name: "US slash no padding", input: "3/4/2024", want: "2024-03-04"},
		{name: "RFC3339 keeps calendar day", input: "2024-03-14T23:30:00-05:00", want: "2024-03-14"},
		{name: "timestamp with space", input: "2024-03-14 08:15:00", want: "2024-03-14"},
		{name: "short month name", input: "Mar 14, 2024", want: "2024-03-14"},
		{name: "long month name", input: "March 14, 2024", want: "2024-03-14"},
		{name: "day month year words", input: "14 Mar 2024", want: "2024-03-14"},
		{name: "RFC1123", input: "Thu, 14 Mar 2024 10:00:00 GMT", want: "2024-03-14"},

		// Numeric-group heuristic
		{name: "day first slash", input: "14/03/2024", want: "2024-03-14"},
		{name: "year first slash", input: "2024/3/9", want: "2024-03-09"},
		{name: "year first unpadded dash", input: "2024-3-9", want: "2024-03-09"},
		{name: "ambiguous dashed assumes day first", input: "03-04-2024", want: "2024-04-03"},
		{name: "embedded in text", input: "Posted 14-03-2024", want: "2024-03-14"},

		// Unparseable
		{name: "empty", input: "", wantErr: ErrEmpty},
		{name: "whitespace only", input: "   ", wantErr: ErrEmpty},
		{name: "words", input: "yesterday", wantErr: ErrUnparseableDate},
		{name: "two digit year", input: "03/14/24", wantErr: ErrUnparseableDate},
		{name: "impossible day", input: "31/02/2024", wantErr: ErrUnparseableDate},
		{name: "impossible month", input: "2024-13-01", wantErr: ErrUnparseableDate},
		{name: "compact digits", input: "20240314", wantErr: ErrUnparseableDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Date(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Date(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Date(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Date(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDate_Idempotent(t *testing.T) {
	inputs := []string{"03/14/2024", "14/03/2024", "Mar 1, 2020", "2000-02-29", "1999-12-31T23:59:59Z"}

	for _, in := range inputs {
		first, err := Date(in)
		if err != nil {
			t.Fatalf("Date(%q) unexpected error: %v", in, err)
		}
		second, err := Date(first)
		if err != nil {
			t.Fatalf("Date(%q) unexpected error: %v", first, err)
		}
		if first != second {
			t.Errorf("Date(Date(%q)) = %q, want %q", in, second, first)
		}
		if !IsCanonicalDate(second) {
			t.Errorf("IsCanonicalDate(%q) = false, want true", second)
		}
	}
}

func TestDate_ErrorNamesRawValue(t *testing.T) {
	_, err := Date("not a date")

	var de *DateError
	if !errors.As(err, &de) {
		t.Fatalf("error type = %T, want *DateError", err)
	}
	if de.Raw != "not a date" {
		t.Errorf("DateError.Raw = %q, want %q", de.Raw, "not a date")
	}
	if got := err.Error(); got != `invalid date "not a date"` {
		t.Errorf("Error() = %q", got)
	}
}

// ----------------------------------------------------------------------------
// Amount Tests
// ----------------------------------------------------------------------------

func TestAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "integer", input: "42", want: "42"},
		{name: "decimal", input: "4.50", want: "4.5"},
		{name: "dollar sign", input: "$4.50", want: "4.5"},
		{name: "thousands separator", input: "$1,234.56", want: "1234.56"},
		{name: "negative", input: "-12.00", want: "-12"},
		{name: "negative before symbol", input: "-$7.25", want: "-7.25"},
		{name: "accounting negative", input: "(12.50)", want: "-12.5"},
		{name: "euro", input: "€99.99", want: "99.99"},
		{name: "inner spaces", input: "1 000.00", want: "1000"},
		{name: "leading decimal point", input: ".99", want: "0.99"},
		{name: "scientific", input: "1e3", want: "1000"},
		{name: "exponent at bound", input: "1e28", want: "10000000000000000000000000000"},

		{name: "empty", input: "", wantErr: ErrEmpty},
		{name: "letters", input: "abc", wantErr: ErrInvalidAmount},
		{name: "symbol only", input: "$", wantErr: ErrInvalidAmount},
		{name: "two decimal points", input: "1.2.3", wantErr: ErrInvalidAmount},
		{name: "double negative", input: "(-5)", wantErr: ErrInvalidAmount},
		{name: "trailing text", input: "12 USD", wantErr: ErrInvalidAmount},
		{name: "huge exponent", input: "1e50000000", wantErr: ErrInvalidAmount},
		{name: "nine digit exponent", input: "1e999999999", wantErr: ErrInvalidAmount},
		{name: "huge negative exponent", input: "1e-50000000", wantErr: ErrInvalidAmount},
		{name: "exponent just past bound", input: "1e29", wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Amount(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Amount(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				if !got.IsZero() {
					t.Errorf("Amount(%q) = %s on error, want 0", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Amount(%q) unexpected error: %v", tt.input, err)
			}
			if want := decimal.RequireFromString(tt.want); !got.Equal(want) {
				t.Errorf("Amount(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestAmount_ErrorNamesRawValue(t *testing.T) {
	_, err := Amount(" abc ")

	var ae *AmountError
	if !errors.As(err, &ae) {
		t.Fatalf("error type = %T, want *AmountError", err)
	}
	if ae.Raw != "abc" {
		t.Errorf("AmountError.Raw = %q, want %q", ae.Raw, "abc")
	}
}

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  hello  ", "hello"},
		{`="00123"`, "00123"},
		{"=42", "42"},
		{`"quoted"`, "quoted"},
		{"'single'", "single"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
