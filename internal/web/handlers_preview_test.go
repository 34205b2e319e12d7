package web

import (
	"net/http"
	"testing"

	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview_ProposesMapping(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(t, http.MethodPost, "/api/preview", `{"rows":[
		{"Txn Date":"15/01/2024","Memo":"Coffee","Amount":"-4.50"},
		{"Txn Date":"16/01/2024","Memo":"","Amount":"abc"}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[previewResponse](t, rec)
	assert.ElementsMatch(t, []string{"Txn Date", "Memo", "Amount"}, got.Headers)

	col, ok := got.Mapping.Column(mapping.FieldDescription)
	require.True(t, ok)
	assert.Equal(t, "Memo", col)

	assert.Equal(t, 2, got.Report.Total)
	assert.Equal(t, 1, got.Report.ErrorRows)
	assert.Equal(t, "2024-01-15", got.Report.Rows[0].Date)
}

func TestPreview_SingleObjectAndExplicitMapping(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(t, http.MethodPost, "/api/preview", map[string]any{
		"rows": map[string]string{"a": "2024-01-15", "b": "Coffee", "c": "4.50"},
		"mapping": mapping.Mapping{
			{Field: mapping.FieldDate, Column: "a"},
			{Field: mapping.FieldDescription, Column: "b"},
			{Field: mapping.FieldAmount, Column: "c"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[previewResponse](t, rec)
	assert.True(t, got.Report.Valid())
	assert.Equal(t, "4.5", got.Report.Rows[0].Amount.String())
}

func TestPreview_FormErrors(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(t, http.MethodPost, "/api/preview", `{"rows":[{"x":"1"}],"mapping":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[previewResponse](t, rec)
	assert.Len(t, got.Report.FormErrors, len(mapping.RequiredFields))
	assert.Empty(t, got.Report.Rows)
}

func TestPreview_RejectsBadRows(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	for _, body := range []string{`{}`, `{"rows":"nope"}`, `{"rows":[1]}`} {
		rec := ts.do(t, http.MethodPost, "/api/preview", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestBulkTransactions(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(t, http.MethodPost, "/api/transactions/bulk", `{"rows":[
		{"date":"2024-01-15","description":"Coffee","amount":"-4.50","category":"meals"},
		{"date":"2024-01-16","description":"Train","amount":"12","document_id":"INV-7"}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"inserted":2}`, rec.Body.String())

	txns := ts.ledger.Transactions()
	require.Len(t, txns, 2)
	require.NotNil(t, txns[0].Category)
	assert.Equal(t, "meals", *txns[0].Category)
	assert.Nil(t, txns[0].DocumentID)
	require.NotNil(t, txns[1].DocumentID)
	assert.Equal(t, "INV-7", *txns[1].DocumentID)
}

func TestBulkTransactions_AllOrNothing(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(t, http.MethodPost, "/api/transactions/bulk", `{"rows":[
		{"date":"2024-01-15","description":"Coffee","amount":"-4.50"},
		{"date":"someday","description":"Train","amount":"12"}
	]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode[struct {
		Code    string             `json:"code"`
		Details []mapping.RowError `json:"details"`
	}](t, rec)
	assert.Equal(t, "VAL003", body.Code)
	require.Len(t, body.Details, 1)
	assert.Equal(t, 3, body.Details[0].Line)
	assert.Equal(t, mapping.FieldDate, body.Details[0].Field)

	assert.Empty(t, ts.ledger.Transactions())
}

func TestBulkTransactions_Empty(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(t, http.MethodPost, "/api/transactions/bulk", `{"rows":[]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "IMP006", decode[ErrorResponse](t, rec).Code)
}

var cardPreset = map[string]any{
	"name":    "Card export",
	"headers": []string{"Posted", "Merchant", "Charge"},
	"mapping": mapping.Mapping{
		{Field: mapping.FieldDate, Column: "Posted"},
		{Field: mapping.FieldDescription, Column: "Merchant"},
		{Field: mapping.FieldAmount, Column: "Charge"},
	},
}

func TestPresets_CRUD(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	assert.JSONEq(t, `[]`, ts.do(t, http.MethodGet, "/api/presets", nil).Body.String())

	rec := ts.do(t, http.MethodPost, "/api/presets", cardPreset)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[mapping.Preset](t, rec)
	require.NotEmpty(t, created.ID)

	rec = ts.do(t, http.MethodPost, "/api/presets", cardPreset)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "MAP005", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/api/presets/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Card export", decode[mapping.Preset](t, rec).Name)

	list := decode[[]mapping.Preset](t, ts.do(t, http.MethodGet, "/api/presets", nil))
	assert.Len(t, list, 1)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/presets/"+created.ID, nil).Code)

	rec = ts.do(t, http.MethodGet, "/api/presets/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "MAP006", decode[ErrorResponse](t, rec).Code)
}

func TestPresets_RejectsIncompleteMapping(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(t, http.MethodPost, "/api/presets", map[string]any{
		"name":    "Half",
		"headers": []string{"Posted"},
		"mapping": mapping.Mapping{{Field: mapping.FieldDate, Column: "Posted"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode[struct {
		Details map[string]string `json:"details"`
	}](t, rec)
	assert.Contains(t, body.Details, "mapping")
}

func TestPresets_Match(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/presets", cardPreset).Code)

	rec := ts.do(t, http.MethodPost, "/api/presets/match", `{"headers":["posted","merchant","charge","extra"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode[[]mapping.PresetMatch](t, rec)
	require.Len(t, matches, 1)
	assert.Equal(t, "Card export", matches[0].Preset.Name)
	assert.InDelta(t, 1.0, matches[0].Score, 0.001)

	rec = ts.do(t, http.MethodPost, "/api/presets/match", `{"headers":["Date","Amount"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
