// Package imagefind picks an illustration for an article: first from the
// source page metadata, then from an Unsplash search.
package imagefind

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/aurore/internal/scraper"
)

const (
	unsplashEndpoint = "https://api.unsplash.com"
	defaultTimeout   = 12 * time.Second
)

type Finder struct {
	client      *http.Client
	unsplashKey string
	unsplashURL string
	ua          string
	log         *slog.Logger
}

// New returns a Finder. Unsplash is only queried when unsplashKey is set.
func New(unsplashKey, userAgent string, log *slog.Logger) *Finder {
	if userAgent == "" {
		userAgent = scraper.BrowserUserAgent
	}
	return &Finder{
		client:      &http.Client{Timeout: defaultTimeout},
		unsplashKey: unsplashKey,
		unsplashURL: unsplashEndpoint,
		ua:          userAgent,
		log:         log,
	}
}

// Find returns an absolute image URL or "". Failures are logged, never returned.
func (f *Finder) Find(ctx context.Context, pageURL, query string) string {
	if pageURL != "" {
		img, err := f.fromPage(ctx, pageURL)
		if err != nil {
			f.log.Debug("page image lookup failed", "url", pageURL, "err", err)
		}
		if img != "" {
			return img
		}
	}
	if f.unsplashKey == "" || strings.TrimSpace(query) == "" {
		return ""
	}
	img, err := f.fromUnsplash(ctx, query)
	if err != nil {
		f.log.Warn("unsplash search failed", "query", query, "err", err)
		return ""
	}
	return img
}

func (f *Finder) fromPage(ctx context.Context, pageURL string) (string, error) {
	doc, base, err := scraper.Fetch(ctx, f.client, f.ua, pageURL)
	if err != nil {
		return "", err
	}
	return PageImage(doc, base), nil
}

// PageImage reads the social preview image declared by a page.
func PageImage(doc *goquery.Document, base *url.URL) string {
	metaContent := func(attr, key string) string {
		v, _ := doc.Find(fmt.Sprintf(`meta[%s="%s"]`, attr, key)).First().Attr("content")
		return strings.TrimSpace(v)
	}
	firstNonEmpty := func(values ...string) string {
		for _, v := range values {
			if v != "" {
				return v
			}
		}
		return ""
	}

	raw := firstNonEmpty(
		metaContent("property", "og:image"),
		metaContent("property", "og:image:secure_url"),
		metaContent("name", "twitter:image"),
		metaContent("name", "twitter:image:src"),
		metaContent("property", "twitter:image"),
	)
	if raw == "" {
		return ""
	}
	return resolve(base, raw)
}

func resolve(base *url.URL, raw string) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

type unsplashSearch struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

func (f *Finder) fromUnsplash(ctx context.Context, query string) (string, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", "1")
	q.Set("orientation", "landscape")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.unsplashURL+"/search/photos?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Client-ID "+f.unsplashKey)
	req.Header.Set("Accept-Version", "v1")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unsplash status %d", resp.StatusCode)
	}

	var res unsplashSearch
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode unsplash: %w", err)
	}
	if len(res.Results) == 0 {
		return "", nil
	}
	return res.Results[0].URLs.Regular, nil
}
