package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "racecal/internal/log"
)

// fetched is the outcome of reading one resource.
type fetched struct {
	Body        []byte
	ContentType string
	FromCache   bool
	// Stale is set when the cached body stood in for a failed request.
	Stale error
}

// cacheEntry holds HTTP validators for one URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// fetcher reads resources from HTTP(S) or the local filesystem. HTTP bodies
// are cached on disk with their ETag / Last-Modified validators when
// cacheDir is set.
type fetcher struct {
	client   *http.Client
	cacheDir string
	timeout  time.Duration
}

func isRemote(resource string) bool {
	return strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://")
}

// fetch reads resource within the fetcher's timeout. A timeout aborts only
// this request.
func (f *fetcher) fetch(ctx context.Context, resource string) (fetched, error) {
	if !isRemote(resource) {
		path := strings.TrimPrefix(resource, "file://")
		body, err := os.ReadFile(path)
		if err != nil {
			return fetched{}, &UnreachableError{Resource: resource, Err: err}
		}
		return fetched{Body: body}, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	res, err := f.fetchHTTP(reqCtx, resource)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = &FetchTimeoutError{Resource: redactURL(resource), Timeout: f.timeout}
	}
	return res, err
}

func (f *fetcher) fetchHTTP(ctx context.Context, url string) (fetched, error) {
	cachePath := f.cachePathForURL(url)
	var (
		meta       cacheEntry
		cachedBody []byte
	)
	if cachePath != "" {
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			appLog.Error("cache dir create failed", err, "path", cachePath)
			cachePath = ""
		} else {
			meta, _ = loadCacheMeta(cachePath)
			cachedBody, _ = os.ReadFile(filepath.Join(cachePath, "body"))
		}
	}

	fromCache := func(cause error) fetched {
		return fetched{Body: cachedBody, ContentType: meta.ContentType, FromCache: true, Stale: cause}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetched{}, &UnreachableError{Resource: redactURL(url), Err: err}
	}
	req.Header.Set("Accept", "application/json, text/calendar;q=0.9, */*;q=0.1")
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("fetch start", "url", redactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 && !errors.Is(err, context.Canceled) {
			appLog.Error("fetch failed, using cached body", err, "url", redactURL(url))
			return fromCache(err), nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fetched{}, err
		}
		return fetched{}, &UnreachableError{Resource: redactURL(url), Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fetched{}, err
			}
			return fetched{}, &UnreachableError{Resource: redactURL(url), Err: err}
		}
		out := fetched{Body: body, ContentType: resp.Header.Get("Content-Type")}
		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          url,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
				ContentType:  out.ContentType,
			}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				appLog.Error("cache save failed", err, "url", redactURL(url))
			}
		}
		appLog.Debug("fetch success", "url", redactURL(url), "status", resp.StatusCode, "bytes", len(body))
		return out, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return fetched{}, &ResourceUnavailableError{
				Resource:   redactURL(url),
				StatusCode: resp.StatusCode,
				Status:     "304 Not Modified without a cached body",
			}
		}
		appLog.Debug("fetch not modified; using cache", "url", redactURL(url))
		return fetched{Body: cachedBody, ContentType: meta.ContentType, FromCache: true}, nil

	default:
		statusErr := &ResourceUnavailableError{Resource: redactURL(url), StatusCode: resp.StatusCode, Status: resp.Status}
		if len(cachedBody) > 0 {
			appLog.Error("fetch non-OK, using cached body", statusErr, "url", redactURL(url))
			return fromCache(statusErr), nil
		}
		return fetched{}, statusErr
	}
}

func (f *fetcher) cachePathForURL(url string) string {
	if f.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host only, so tokens in paths or queries stay
// out of logs.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i == -1 {
		return u
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		return u[:i+3+j] + "/...(redacted)"
	}
	return u
}
