package ics

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/peterbourgon/diskv/v3"

	appLog "focusflow/internal/log"
)

// MaxBodyBytes bounds how much of a remote calendar is read.
const MaxBodyBytes = 5 << 20

var (
	// ErrNotCalendar is returned when a fetched body is not an iCalendar document.
	ErrNotCalendar = errors.New("response is not an iCalendar document")
	// ErrInvalidURL is returned for empty or non-http(s) calendar URLs.
	ErrInvalidURL = errors.New("invalid calendar URL")
	// ErrTooLarge is returned when a body exceeds MaxBodyBytes.
	ErrTooLarge = errors.New("calendar body too large")
	// ErrUpstream wraps transport failures and non-200 upstream answers.
	ErrUpstream = errors.New("calendar upstream unavailable")
)

// Source represents a single ICS subscription source.
type Source struct {
	// ID is the calendar the feed belongs to.
	ID string
	// URL is the ICS endpoint.
	URL string
}

// FetchResult contains the outcome of fetching a single ICS source.
type FetchResult struct {
	Source    Source
	Body      []byte // ICS payload (either freshly fetched or from cache)
	FromCache bool   // true if the cached body was reused
}

// cacheEntry holds HTTP validators for a single ICS URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads ICS feeds with conditional requests
// (ETag / Last-Modified) and keeps the last good body on disk.
type Fetcher struct {
	client *http.Client
	cache  *diskv.Diskv
}

// NewFetcher creates a Fetcher caching under cacheDir. A nil client gets a
// 15s-timeout default.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{
		client: client,
		cache: diskv.New(diskv.Options{
			BasePath: cacheDir,
			// Spread keys over 2-char directories: ab/cdef...
			Transform:    func(key string) []string { return []string{key[:2]} },
			CacheSizeMax: 4 << 20,
			FilePerm:     0o600,
			PathPerm:     0o700,
		}),
	}
}

// NormalizeURL rewrites webcal:// to https:// and rejects anything that is
// not http(s) with a host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if rest, ok := strings.CutPrefix(raw, "webcal://"); ok {
		raw = "https://" + rest
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, redactURL(raw))
	}
	return u.String(), nil
}

// FetchCalendar fetches a remote calendar on behalf of a client that cannot
// do it cross-origin. The body must start with BEGIN:VCALENDAR.
func (f *Fetcher) FetchCalendar(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", ErrUpstream, resp.Status)
	}

	body, err := readLimited(resp.Body)
	if err != nil {
		return nil, err
	}
	if !LooksLikeCalendar(body) {
		return nil, ErrNotCalendar
	}
	return body, nil
}

// LooksLikeCalendar reports whether body starts with BEGIN:VCALENDAR,
// ignoring a UTF-8 BOM and leading whitespace.
func LooksLikeCalendar(body []byte) bool {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("BEGIN:VCALENDAR"))
}

// FetchOne fetches a single ICS source, honoring ETag and Last-Modified.
// Network errors and non-200 answers fall back to the cached body if any.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	u, err := NormalizeURL(src.URL)
	if err != nil {
		return FetchResult{}, err
	}

	key := cacheKey(u)
	meta, _ := f.loadMeta(key)
	cachedBody, _ := f.cache.Read(key + ".ics")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	fromCache := func(reason error) (FetchResult, error) {
		if len(cachedBody) == 0 {
			return FetchResult{}, reason
		}
		appLog.Warn("ics fetch failed, using cached body", "id", src.ID, "url", redactURL(src.URL), "reason", reason.Error())
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fromCache(fmt.Errorf("%w: %v", ErrUpstream, err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := readLimited(resp.Body)
		if err != nil {
			return fromCache(err)
		}
		// Captive portals and login pages answer 200 with HTML; keep the
		// last good copy instead.
		if !LooksLikeCalendar(body) {
			return fromCache(ErrNotCalendar)
		}

		newMeta := cacheEntry{
			URL:          u,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(key, newMeta, body); err != nil {
			appLog.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}

		appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("ics fetch not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil

	default:
		return fromCache(fmt.Errorf("%w: status %s", ErrUpstream, resp.Status))
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBodyBytes {
		return nil, ErrTooLarge
	}
	return body, nil
}

func cacheKey(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:8])
}

func (f *Fetcher) loadMeta(key string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := f.cache.Read(key + ".json")
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) saveCache(key string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := f.cache.Write(key+".ics", body); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(&meta)
	if err != nil {
		return err
	}
	return f.cache.Write(key+".json", data)
}

// redactURL hides path and query of an ICS URL for logging, since private
// feed URLs embed their access token.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
