package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectLink(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"dropbox dl=0", "https://www.dropbox.com/s/abc/rows.json?dl=0", "https://dl.dropboxusercontent.com/s/abc/rows.json"},
		{"dropbox dl=1", "https://www.dropbox.com/s/abc/rows.json?dl=1", "https://dl.dropboxusercontent.com/s/abc/rows.json"},
		{"dropbox keeps other params", "https://dropbox.com/scl/fi/x/rows.json?rlkey=k&dl=0", "https://dl.dropboxusercontent.com/scl/fi/x/rows.json?rlkey=k"},
		{"other host untouched", "https://files.example.com/rows.json?dl=0", "https://files.example.com/rows.json?dl=0"},
		{"trims whitespace", "  https://files.example.com/a.json ", "https://files.example.com/a.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DirectLink(tt.in)
			if err != nil {
				t.Fatalf("DirectLink(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("DirectLink(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDirectLink_Invalid(t *testing.T) {
	for _, in := range []string{"", "not a url", "ftp://host/file", "file:///etc/passwd", "/relative/path"} {
		if _, err := DirectLink(in); !errors.Is(err, ErrInvalidLink) {
			t.Errorf("DirectLink(%q) error = %v, want ErrInvalidLink", in, err)
		}
	}
}

func TestLinkFetcher_Fetch(t *testing.T) {
	mock := httpmock.NewMockTransport()
	fetcher := NewLinkFetcher(&http.Client{Transport: mock}, 0)

	mock.RegisterResponder(http.MethodGet, "https://dl.dropboxusercontent.com/s/abc/rows.json",
		httpmock.NewStringResponder(http.StatusOK, `[{"Date":"2024-03-01","Amt":12.5},{"Date":"2024-03-02","Amt":"7"}]`))

	rows, err := fetcher.Fetch(context.Background(), "https://www.dropbox.com/s/abc/rows.json?dl=0")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-03-01", rows[0]["Date"])
	assert.Equal(t, json.Number("12.5"), rows[0]["Amt"])
	assert.Equal(t, "7", rows[1]["Amt"])
}

func TestLinkFetcher_SingleObject(t *testing.T) {
	mock := httpmock.NewMockTransport()
	fetcher := NewLinkFetcher(&http.Client{Transport: mock}, 0)
	mock.RegisterResponder(http.MethodGet, "https://files.example.com/one.json",
		httpmock.NewStringResponder(http.StatusOK, `{"date":"2024-01-01","amount":"1"}`))

	rows, err := fetcher.Fetch(context.Background(), "https://files.example.com/one.json")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-01-01", rows[0]["date"])
}

func TestLinkFetcher_Errors(t *testing.T) {
	mock := httpmock.NewMockTransport()
	fetcher := NewLinkFetcher(&http.Client{Transport: mock}, 16)

	mock.RegisterResponder(http.MethodGet, "https://files.example.com/missing.json",
		httpmock.NewStringResponder(http.StatusNotFound, "nope"))
	mock.RegisterResponder(http.MethodGet, "https://files.example.com/big.json",
		httpmock.NewStringResponder(http.StatusOK, "["+strings.Repeat(" ", 32)+"]"))
	mock.RegisterResponder(http.MethodGet, "https://files.example.com/bad.json",
		httpmock.NewStringResponder(http.StatusOK, `"text"`))

	_, err := fetcher.Fetch(context.Background(), "https://files.example.com/missing.json")
	assert.ErrorContains(t, err, "404")

	_, err = fetcher.Fetch(context.Background(), "https://files.example.com/big.json")
	assert.ErrorContains(t, err, "too large")

	_, err = fetcher.Fetch(context.Background(), "https://files.example.com/bad.json")
	assert.ErrorContains(t, err, "invalid json")

	_, err = fetcher.Fetch(context.Background(), "ftp://files.example.com/x")
	assert.ErrorIs(t, err, ErrInvalidLink)
}

func TestLinkFetcher_AllowHosts(t *testing.T) {
	mock := httpmock.NewMockTransport()
	fetcher := NewLinkFetcher(&http.Client{Transport: mock}, 0).AllowHosts("dropboxusercontent.com", " Files.Example.com. ")

	mock.RegisterResponder(http.MethodGet, "https://dl.dropboxusercontent.com/s/abc/rows.json",
		httpmock.NewStringResponder(http.StatusOK, `[{"date":"2024-01-01"}]`))
	mock.RegisterResponder(http.MethodGet, "https://files.example.com/rows.json",
		httpmock.NewStringResponder(http.StatusOK, `[{"date":"2024-01-02"}]`))

	rows, err := fetcher.Fetch(context.Background(), "https://www.dropbox.com/s/abc/rows.json?dl=0")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = fetcher.Fetch(context.Background(), "https://files.example.com/rows.json")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	for _, link := range []string{
		"http://169.254.169.254/latest/meta-data/",
		"http://localhost:6379/",
		"https://evil-dropboxusercontent.com/rows.json",
		"https://dropboxusercontent.com.evil.test/rows.json",
	} {
		_, err := fetcher.Fetch(context.Background(), link)
		assert.ErrorIs(t, err, ErrHostNotAllowed, link)
		assert.ErrorIs(t, err, ErrInvalidLink, link)
	}
	assert.Equal(t, 2, mock.GetTotalCallCount())
}

func TestLinkFetcher_AllowHostsBlocksRedirect(t *testing.T) {
	mock := httpmock.NewMockTransport()
	fetcher := NewLinkFetcher(&http.Client{Transport: mock}, 0).AllowHosts("files.example.com")

	mock.RegisterResponder(http.MethodGet, "https://files.example.com/rows.json",
		func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(http.StatusFound, "")
			resp.Header = http.Header{"Location": {"http://127.0.0.1:8080/internal"}}
			return resp, nil
		})

	_, err := fetcher.Fetch(context.Background(), "https://files.example.com/rows.json")
	assert.ErrorIs(t, err, ErrHostNotAllowed)
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestLinkFetcher_AllowAnyHost(t *testing.T) {
	mock := httpmock.NewMockTransport()
	fetcher := NewLinkFetcher(&http.Client{Transport: mock}, 0).AllowHosts("*")
	mock.RegisterResponder(http.MethodGet, "https://files.example.com/rows.json",
		httpmock.NewStringResponder(http.StatusOK, `[]`))

	_, err := fetcher.Fetch(context.Background(), "https://files.example.com/rows.json")
	assert.NoError(t, err)
}

func TestDecodeRows(t *testing.T) {
	rows, err := DecodeRows([]byte(" [] "))
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NotNil(t, rows)

	rows, err = DecodeRows([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = DecodeRows(nil)
	assert.Error(t, err)

	_, err = DecodeRows([]byte(`[1,2]`))
	assert.Error(t, err)
}
