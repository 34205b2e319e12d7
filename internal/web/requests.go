package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/ledgerimport/internal/extraction"
	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/JonMunkholm/ledgerimport/internal/staging"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 10 << 20

// stagingPutRequest is the write-back body sent by the extraction service.
type stagingPutRequest struct {
	Key  string          `json:"key"`
	Rows json.RawMessage `json:"rows"`
}

func (r stagingPutRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required, validation.By(stagingKey)),
		validation.Field(&r.Rows, validation.Required, validation.By(jsonArray)),
	)
}

// stagingLinkRequest asks the server to fetch rows from a share link.
type stagingLinkRequest struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Key      string `json:"key"`
}

func (r stagingLinkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Link, validation.Required, is.URL),
		validation.Field(&r.Key, validation.By(stagingKey)),
	)
}

// mappingRequest replaces a session's column mapping.
type mappingRequest struct {
	Mapping mapping.Mapping `json:"mapping"`
}

func (r mappingRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Mapping, validation.NotNil),
	)
}

// rowRequest adds a review row keyed by destination field.
type rowRequest struct {
	Row map[string]string `json:"row"`
}

func (r rowRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Row, validation.Required, validation.By(fieldKeys)),
	)
}

func (r rowRequest) record() mapping.Record {
	rec := make(mapping.Record, len(r.Row))
	for k, v := range r.Row {
		rec[mapping.Field(k)] = v
	}
	return rec
}

// cellRequest edits one review cell.
type cellRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (r cellRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Field, validation.Required, validation.By(fieldName)),
	)
}

// previewRequest validates rows without creating a session. Rows may be an
// array of objects or a single object.
type previewRequest struct {
	Headers []string        `json:"headers"`
	Rows    json.RawMessage `json:"rows"`
	Mapping mapping.Mapping `json:"mapping"`
}

func (r previewRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Rows, validation.Required),
	)
}

// bulkRequest commits destination-keyed rows directly.
type bulkRequest struct {
	Rows json.RawMessage `json:"rows"`
}

func (r bulkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Rows, validation.Required, validation.By(jsonArray)),
	)
}

// presetRequest creates a mapping preset.
type presetRequest struct {
	Name    string          `json:"name"`
	Headers []string        `json:"headers"`
	Mapping mapping.Mapping `json:"mapping"`
}

func (r presetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Headers, validation.Required),
		validation.Field(&r.Mapping, validation.Required, validation.By(completeMapping)),
	)
}

// matchRequest scores presets against a file's headers.
type matchRequest struct {
	Headers []string `json:"headers"`
}

func (r matchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Headers, validation.Required),
	)
}

func stagingKey(value interface{}) error {
	key, _ := value.(string)
	if key == "" {
		return nil
	}
	if err := staging.ValidateKey(key); err != nil {
		return errors.New("must be 1-200 letters, digits, '.', '_', ':' or '-'")
	}
	return nil
}

func jsonArray(value interface{}) error {
	raw, _ := value.(json.RawMessage)
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return errors.New("must be an array")
	}
	return nil
}

func fieldName(value interface{}) error {
	name, _ := value.(string)
	if name == "" {
		return nil
	}
	if _, err := mapping.ParseField(name); err != nil {
		return err
	}
	return nil
}

func fieldKeys(value interface{}) error {
	row, _ := value.(map[string]string)
	for k := range row {
		if err := fieldName(k); err != nil {
			return err
		}
	}
	return nil
}

func completeMapping(value interface{}) error {
	m, _ := value.(mapping.Mapping)
	if fe := mapping.CheckMapping(m); len(fe) > 0 {
		return fmt.Errorf("%s: %s", fe[0].Field, fe[0].Message)
	}
	return nil
}

// decodeJSON reads a bounded JSON body into v and runs its Validate method.
// Numbers are kept as json.Number. Failures wrap errInvalidRequest.
func decodeJSON(w http.ResponseWriter, r *http.Request, v validation.Validatable) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed json: %v", errInvalidRequest, err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	return nil
}

// decodeRows parses a rows value that is an array of objects or one object.
func decodeRows(raw json.RawMessage) ([]map[string]any, error) {
	rows, err := extraction.DecodeRows(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: rows: %v", errInvalidRequest, err)
	}
	return rows, nil
}

// validationDetails extracts per-field messages from an ozzo error.
func validationDetails(err error) any {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return verrs
	}
	return nil
}
