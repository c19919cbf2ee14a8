package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cyberbook/internal/port"
)

// StatusError is returned when the resource exists on the wire but the
// response is not a success.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

// NotFound reports a 404 response or a missing file.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// NetworkError is returned when the request never produced a response.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a StatusError for a missing resource.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.NotFound()
}

// New returns an HTTP fetcher for http(s) sources and a file fetcher otherwise.
func New(source string, timeout time.Duration) port.Fetcher {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return NewHTTPFetcher(source, timeout)
	}
	return NewFileFetcher(source)
}

// HTTPFetcher issues plain GET requests relative to a base URL, asking every
// intermediary not to serve a cached copy.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

var _ port.Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	target := f.resolve(p)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store, no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	return body, nil
}

func (f *HTTPFetcher) resolve(p string) string {
	if u, err := url.Parse(p); err == nil && u.IsAbs() {
		return p
	}
	return f.baseURL + "/" + strings.TrimLeft(p, "/")
}

// FileFetcher serves resources from a directory. Paths are confined to it.
type FileFetcher struct {
	root string
}

var _ port.Fetcher = (*FileFetcher)(nil)

func NewFileFetcher(root string) *FileFetcher {
	return &FileFetcher{root: root}
}

func (f *FileFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := path.Clean("/" + p)
	full := filepath.Join(f.root, filepath.FromSlash(clean))

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &StatusError{URL: full, StatusCode: http.StatusNotFound}
		}
		return nil, &NetworkError{URL: full, Err: err}
	}
	return data, nil
}
