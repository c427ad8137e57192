package rss

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/aurore/internal/news"
	"github.com/deusflow/aurore/internal/retry"
)

const gnewsEndpoint = "https://gnews.io/api/v4"

type gnewsResponse struct {
	TotalArticles int `json:"totalArticles"`
	Articles      []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		Image       string `json:"image"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"source"`
	} `json:"articles"`
}

// GNews queries the GNews search API, directly with an API key or through
// the site proxy which holds the key and checks x-aurore-token.
type GNews struct {
	base    string
	apiKey  string
	token   string
	query   string
	lang    string
	country string
	max     int
	client  *http.Client
	retry   retry.RetryConfig
	log     *slog.Logger
	now     func() time.Time
}

func NewGNews(apiKey, query, lang, country string, max int, timeout time.Duration, log *slog.Logger) *GNews {
	return &GNews{
		base:    gnewsEndpoint,
		apiKey:  apiKey,
		query:   query,
		lang:    lang,
		country: country,
		max:     max,
		client:  &http.Client{Timeout: timeout},
		retry:   retry.Default,
		log:     log,
		now:     time.Now,
	}
}

func NewGNewsProxy(proxyURL, token, query, lang, country string, max int, timeout time.Duration, log *slog.Logger) *GNews {
	g := NewGNews("", query, lang, country, max, timeout, log)
	g.base = strings.TrimRight(proxyURL, "/")
	g.token = token
	return g
}

func (g *GNews) Name() string { return "gnews" }

func (g *GNews) requestURL() string {
	q := url.Values{}
	q.Set("lang", g.lang)
	q.Set("country", g.country)
	q.Set("max", strconv.Itoa(g.max))
	if g.apiKey != "" {
		q.Set("apikey", g.apiKey)
	}
	if g.token != "" {
		// the proxy decides between search and top-headlines
		if g.query != "" {
			q.Set("q", g.query)
		}
		return g.base + "?" + q.Encode()
	}
	if g.query == "" {
		return g.base + "/top-headlines?" + q.Encode()
	}
	q.Set("q", g.query)
	return g.base + "/search?" + q.Encode()
}

func (g *GNews) Fetch(ctx context.Context) ([]news.Candidate, error) {
	var body []byte
	err := retry.WithRetry(ctx, g.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.requestURL(), nil)
		if err != nil {
			return retry.Permanent(err)
		}
		if g.token != "" {
			req.Header.Set("x-aurore-token", g.token)
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return err
		}
		if err := retry.CheckStatus(resp.StatusCode, ""); err != nil {
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gnews: %w", err)
	}

	var parsed gnewsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("gnews: decode: %w", err)
	}

	now := g.now().UTC()
	out := make([]news.Candidate, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		out = append(out, news.Candidate{
			URL:         strings.TrimSpace(a.URL),
			Title:       strings.TrimSpace(a.Title),
			PublishedAt: news.ParsePublished(a.PublishedAt, now),
			Content:     strings.TrimSpace(a.Content),
			Description: strings.TrimSpace(a.Description),
			Source:      news.SourceOf(a.URL),
			Image:       a.Image,
		})
	}
	return out, nil
}
