package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/aurore/internal/news"
	"github.com/deusflow/aurore/internal/retry"
)

// LegacySetKey holds the whole processed set as one JSON array.
const LegacySetKey = "processed_urls"

const netlifyAPI = "https://api.netlify.com/api/v1"

// BlobStore talks to a key/value blob service over HTTP, either the
// Netlify Blobs API directly or through the authenticated site proxy.
type BlobStore struct {
	baseURL string
	header  string
	value   string
	client  *http.Client
	retry   retry.RetryConfig
	log     *slog.Logger
}

// BlobOption customizes a BlobStore.
type BlobOption func(*BlobStore)

func WithHTTPClient(c *http.Client) BlobOption {
	return func(b *BlobStore) { b.client = c }
}

func WithRetry(c retry.RetryConfig) BlobOption {
	return func(b *BlobStore) { b.retry = c }
}

func WithLogger(l *slog.Logger) BlobOption {
	return func(b *BlobStore) { b.log = l }
}

func newBlobStore(base, header, value string, opts []BlobOption) *BlobStore {
	b := &BlobStore{
		baseURL: strings.TrimRight(base, "/"),
		header:  header,
		value:   value,
		client:  &http.Client{Timeout: 15 * time.Second},
		retry:   retry.Default,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// NewNetlifyBlobStore addresses a store through the Netlify API with a bearer token.
func NewNetlifyBlobStore(siteID, storeName, token string, opts ...BlobOption) *BlobStore {
	base := fmt.Sprintf("%s/sites/%s/blobs/%s", netlifyAPI, url.PathEscape(siteID), url.PathEscape(storeName))
	return newBlobStore(base, "Authorization", "Bearer "+token, opts)
}

// NewProxyBlobStore addresses a store through the site proxy, which checks
// the x-aurore-token header.
func NewProxyBlobStore(proxyURL, storeName, token string, opts ...BlobOption) *BlobStore {
	base := strings.TrimRight(proxyURL, "/") + "/" + url.PathEscape(storeName)
	return newBlobStore(base, "x-aurore-token", token, opts)
}

func (b *BlobStore) keyURL(key string) string {
	return b.baseURL + "/" + url.PathEscape(key)
}

func (b *BlobStore) do(ctx context.Context, method, target string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return 0, nil, retry.Permanent(err)
	}
	req.Header.Set(b.header, b.value)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			b.log.Warn("failed to close response body", "err", err)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// get returns the raw value for key or ErrNotFound. Transient failures are retried.
func (b *BlobStore) get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := retry.WithRetry(ctx, b.retry, func() error {
		code, data, err := b.do(ctx, http.MethodGet, b.keyURL(key), nil)
		if err != nil {
			return err
		}
		if code == http.StatusNotFound {
			return retry.Permanent(ErrNotFound)
		}
		if err := retry.CheckStatus(code, snippet(data)); err != nil {
			return err
		}
		out = data
		return nil
	})
	return out, err
}

func (b *BlobStore) put(ctx context.Context, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	attempt := 0
	return retry.WithRetry(ctx, b.retry, func() error {
		attempt++
		code, data, err := b.do(ctx, http.MethodPut, b.keyURL(key), body)
		if err != nil {
			b.log.Warn("blob write failed", "key", key, "attempt", attempt, "err", err)
			return err
		}
		if err := retry.CheckStatus(code, snippet(data)); err != nil {
			b.log.Warn("blob write rejected", "key", key, "attempt", attempt, "status", code)
			return err
		}
		return nil
	})
}

// Has reports whether fp was processed. A 404 means "not processed".
func (b *BlobStore) Has(ctx context.Context, fp news.Fingerprint) (bool, error) {
	_, err := b.get(ctx, string(fp))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blob has %s: %w", fp, err)
	}
	return true, nil
}

// Mark records fp with its metadata, retrying transient failures.
func (b *BlobStore) Mark(ctx context.Context, rec Record) error {
	if rec.Fingerprint == "" {
		return errors.New("blob mark: empty fingerprint")
	}
	if err := b.put(ctx, string(rec.Fingerprint), rec); err != nil {
		return fmt.Errorf("blob mark %s: %w", rec.Fingerprint, err)
	}
	return nil
}

// ListAll reads the legacy set. A missing blob is an empty set.
func (b *BlobStore) ListAll(ctx context.Context) (news.FingerprintSet, error) {
	set := news.FingerprintSet{}
	data, err := b.get(ctx, LegacySetKey)
	if errors.Is(err, ErrNotFound) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blob list: %w", err)
	}
	var items []string
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("blob list: decode: %w", err)
		}
	}
	for _, it := range items {
		set.Add(news.Fingerprint(it))
	}
	return set, nil
}

// SaveAll overwrites the legacy set.
func (b *BlobStore) SaveAll(ctx context.Context, set news.FingerprintSet) error {
	if err := b.put(ctx, LegacySetKey, sortedFingerprints(set)); err != nil {
		return fmt.Errorf("blob save: %w", err)
	}
	return nil
}

// Keys lists every key in the store.
func (b *BlobStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := retry.WithRetry(ctx, b.retry, func() error {
		code, data, err := b.do(ctx, http.MethodGet, b.baseURL, nil)
		if err != nil {
			return err
		}
		if code == http.StatusNotFound {
			keys = nil
			return nil
		}
		if err := retry.CheckStatus(code, snippet(data)); err != nil {
			return err
		}
		var listing struct {
			Keys  []struct{ Key string } `json:"keys"`
			Blobs []struct{ Key string } `json:"blobs"`
		}
		if err := json.Unmarshal(data, &listing); err != nil {
			return retry.Permanent(fmt.Errorf("decode listing: %w", err))
		}
		keys = keys[:0]
		for _, k := range append(listing.Keys, listing.Blobs...) {
			keys = append(keys, k.Key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blob keys: %w", err)
	}
	return keys, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (b *BlobStore) Delete(ctx context.Context, key string) error {
	return retry.WithRetry(ctx, b.retry, func() error {
		code, data, err := b.do(ctx, http.MethodDelete, b.keyURL(key), nil)
		if err != nil {
			return err
		}
		if code == http.StatusNotFound {
			return nil
		}
		return retry.CheckStatus(code, snippet(data))
	})
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
