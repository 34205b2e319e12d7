package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrInvalidLink is returned for links that are not absolute http(s) URLs.
var ErrInvalidLink = errors.New("invalid link")

// DefaultMaxLinkBytes bounds a fetched document.
const DefaultMaxLinkBytes = 10 << 20

// ErrHostNotAllowed is returned for links whose host is outside the allow-list.
var ErrHostNotAllowed = fmt.Errorf("%w: host not allowed", ErrInvalidLink)

// maxLinkRedirects matches the net/http default.
const maxLinkRedirects = 10

// LinkFetcher downloads extracted rows published as JSON behind a share link.
type LinkFetcher struct {
	http     *http.Client
	maxBytes int64
	hosts    []string
}

// NewLinkFetcher returns a fetcher. A nil httpClient uses http.DefaultClient.
func NewLinkFetcher(httpClient *http.Client, maxBytes int64) *LinkFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLinkBytes
	}
	return &LinkFetcher{http: httpClient, maxBytes: maxBytes}
}

// AllowHosts limits fetches, redirects included, to the given hosts and
// their subdomains. No hosts, or "*", allows any host.
func (f *LinkFetcher) AllowHosts(hosts ...string) *LinkFetcher {
	f.hosts = f.hosts[:0]
	for _, h := range hosts {
		h = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
		if h == "*" {
			f.hosts = nil
			break
		}
		if h != "" {
			f.hosts = append(f.hosts, h)
		}
	}

	client := *f.http
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxLinkRedirects {
			return fmt.Errorf("stopped after %d redirects", maxLinkRedirects)
		}
		return f.checkHost(req.URL)
	}
	f.http = &client
	return f
}

func (f *LinkFetcher) checkHost(u *url.URL) error {
	if len(f.hosts) == 0 {
		return nil
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	for _, allowed := range f.hosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrHostNotAllowed, host)
}

// DirectLink rewrites a Dropbox share link to its direct-download host and
// drops the dl query parameter. Other links are returned unchanged.
func DirectLink(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}

	switch strings.ToLower(u.Host) {
	case "www.dropbox.com", "dropbox.com":
		u.Host = "dl.dropboxusercontent.com"
		q := u.Query()
		q.Del("dl")
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Fetch downloads link and decodes it as a JSON array of objects or a
// single object, which is treated as one row.
func (f *LinkFetcher) Fetch(ctx context.Context, link string) ([]map[string]any, error) {
	direct, err := DirectLink(link)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(direct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if err := f.checkHost(u); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, direct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch link: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch link: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("fetch link: file too large (limit %d bytes)", f.maxBytes)
	}

	return DecodeRows(data)
}

// DecodeRows accepts a JSON array of objects or one object.
// Numbers are kept as json.Number.
func DecodeRows(data []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("invalid json: empty document")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '{' {
		var one map[string]any
		if err := dec.Decode(&one); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		return []map[string]any{one}, nil
	}

	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("invalid json: expected an array of objects: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}
