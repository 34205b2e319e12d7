package mapping

// csv.go reads spreadsheet exports into candidate rows.
//
// Bank exports arrive in whatever encoding the user's spreadsheet saved:
// UTF-8 with or without a BOM, UTF-16 from Excel's "Unicode text", or
// Windows-1252 from older tools. Input is decoded to UTF-8 first, then
// parsed leniently (stray quotes and ragged rows are tolerated).

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/ledgerimport/internal/normalize"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("empty file")

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Table is a parsed spreadsheet: cleaned headers plus rows keyed by them.
type Table struct {
	Headers  []string       `json:"headers"`
	Rows     []CandidateRow `json:"rows"`
	Encoding string         `json:"encoding"`
}

// ReadCSV decodes and parses r. The first non-blank record is the header;
// blank records are skipped. Duplicate headers get a " (2)", " (3)" suffix
// so no column is lost when rows are keyed by header.
func ReadCSV(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	data, enc, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}

	t := &Table{Encoding: enc}
	for _, rec := range records {
		if isBlank(rec) {
			continue
		}
		if t.Headers == nil {
			t.Headers = uniqueHeaders(rec)
			continue
		}
		row := make(CandidateRow, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}

	if t.Headers == nil {
		return nil, ErrEmptyFile
	}
	return t, nil
}

// decode converts raw bytes to UTF-8 and names the detected encoding.
func decode(raw []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		return raw[len(bomUTF8):], "utf-8-bom", nil
	case bytes.HasPrefix(raw, bomUTF16LE):
		out, _, err := transform.Bytes(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder(), raw)
		return out, "utf-16le", err
	case bytes.HasPrefix(raw, bomUTF16BE):
		out, _, err := transform.Bytes(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder(), raw)
		return out, "utf-16be", err
	case utf8.Valid(raw):
		return raw, "utf-8", nil
	default:
		out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
		return out, "windows-1252", err
	}
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func uniqueHeaders(rec []string) []string {
	out := make([]string, len(rec))
	seen := make(map[string]int, len(rec))
	for i, h := range rec {
		h = normalize.CleanCell(h)
		if h == "" {
			h = "Column " + strconv.Itoa(i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = h + " (" + strconv.Itoa(n) + ")"
		}
		out[i] = h
	}
	return out
}

// CandidatesFromMaps turns producer-shaped records (as stored by the staging
// store) into candidate rows. Headers are collected in first-seen order with
// each record's keys sorted, so the result is deterministic.
func CandidatesFromMaps(records []map[string]any) ([]string, []CandidateRow) {
	var headers []string
	seen := make(map[string]bool)
	rows := make([]CandidateRow, 0, len(records))

	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		row := make(CandidateRow, len(rec))
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
			row[k] = stringify(rec[k])
		}
		rows = append(rows, row)
	}

	return headers, rows
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
