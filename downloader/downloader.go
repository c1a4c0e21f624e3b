package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type GetOptions struct {
	MaxSize  int
	Timeout  time.Duration
	Cache    bool
	CacheTTL time.Duration
}

// A thing capable of fetching a dataset, optionally with caching.
type Downloader interface {
	Get(ctx context.Context, location string, headers map[string]string, options GetOptions) ([]byte, error)
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Gets a file. Doesn't cache. Provided as convenience for
// implementing custom Downloaders.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	client := &http.Client{
		Timeout: options.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, v := range headers {
		req.Header.Add(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return readLimited(resp.Body, options.MaxSize)
}

func readLimited(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize > 0 {
		r = io.LimitReader(r, int64(maxSize))
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	return body, nil
}

// Dispatches http(s) locations to Remote and everything else (bare
// paths and file:// URLs) to Local.
type Router struct {
	Remote Downloader
	Local  Downloader
}

// NewRouter returns a Router with an in-memory cache in front of
// remote fetches, and local paths resolved against dir.
func NewRouter(dir string) *Router {
	return &Router{
		Remote: NewMemoryDownloader(),
		Local:  NewFilesystem(dir),
	}
}

func (r *Router) Get(
	ctx context.Context,
	location string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if IsRemote(location) {
		return r.Remote.Get(ctx, location, headers, options)
	}
	return r.Local.Get(ctx, location, headers, options)
}
