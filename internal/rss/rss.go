package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/aurore/internal/news"
)

// Source fetches a batch of recent candidates.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]news.Candidate, error)
}

// FeedsConfig is YAML config structure
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads RSS feeds list from YAML file
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse feeds %s: %w", path, err)
	}
	return cfg.Feeds, nil
}

// GoogleNewsURL builds the Google News search feed for a query.
func GoogleNewsURL(query, lang, country string) string {
	lang = strings.ToLower(lang)
	country = strings.ToUpper(country)
	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", lang)
	q.Set("gl", country)
	q.Set("ceid", country+":"+lang)
	return "https://news.google.com/rss/search?" + q.Encode()
}

// Feeds reads one or more RSS/Atom feeds with gofeed.
type Feeds struct {
	name   string
	urls   []string
	max    int
	client *http.Client
	parser *gofeed.Parser
	ua     string
	log    *slog.Logger
	now    func() time.Time
}

func NewFeeds(name string, urls []string, max int, timeout time.Duration, log *slog.Logger) *Feeds {
	return &Feeds{
		name:   name,
		urls:   urls,
		max:    max,
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
		ua:     "Mozilla/5.0 (compatible; AuroreBot/1.0)",
		log:    log,
		now:    time.Now,
	}
}

// WithUserAgent overrides the agent sent to feed servers.
func (f *Feeds) WithUserAgent(ua string) *Feeds {
	if ua != "" {
		f.ua = ua
	}
	return f
}

func (f *Feeds) Name() string { return f.name }

// Fetch downloads and parses all feeds. One broken feed does not stop the others.
func (f *Feeds) Fetch(ctx context.Context) ([]news.Candidate, error) {
	var all []news.Candidate
	successCount := 0
	var lastErr error

	for _, u := range f.urls {
		feed, err := f.fetchOne(ctx, u)
		if err != nil {
			f.log.Warn("error parsing feed", "url", u, "err", err)
			lastErr = err
			continue
		}
		successCount++
		for _, item := range feed.Items {
			all = append(all, f.toCandidate(item))
			if f.max > 0 && len(all) >= f.max {
				break
			}
		}
		f.log.Debug("loaded feed", "url", u, "items", len(feed.Items))
		if f.max > 0 && len(all) >= f.max {
			break
		}
	}

	if successCount == 0 && lastErr != nil {
		return nil, fmt.Errorf("%s: %w", f.name, lastErr)
	}
	return all, nil
}

func (f *Feeds) fetchOne(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.ua)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed status %d", resp.StatusCode)
	}
	return f.parser.Parse(resp.Body)
}

func (f *Feeds) toCandidate(item *gofeed.Item) news.Candidate {
	published := f.now().UTC()
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	default:
		published = news.ParsePublished(item.Published, published)
	}

	c := news.Candidate{
		URL:         strings.TrimSpace(item.Link),
		Title:       strings.TrimSpace(item.Title),
		PublishedAt: published,
		Description: htmlToText(item.Description),
		Content:     htmlToText(item.Content),
		Source:      news.SourceOf(item.Link),
	}
	if item.Image != nil {
		c.Image = item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if c.Image == "" && strings.HasPrefix(enc.Type, "image/") {
			c.Image = enc.URL
		}
	}
	return c
}

// htmlToText flattens feed HTML into paragraphs of plain text.
func htmlToText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	var parts []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.Join(strings.Fields(sel.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " ")
	}
	return strings.Join(parts, "\n")
}

// Chain returns the first non-empty result among its sources.
type Chain struct {
	Sources []Source
	Log     *slog.Logger
}

func (c Chain) Name() string { return "chain" }

func (c Chain) Fetch(ctx context.Context) ([]news.Candidate, error) {
	var errs []error
	for _, s := range c.Sources {
		items, err := s.Fetch(ctx)
		if err != nil {
			c.Log.Warn("news source failed", "source", s.Name(), "err", err)
			errs = append(errs, err)
			continue
		}
		if len(items) == 0 {
			c.Log.Info("news source returned nothing", "source", s.Name())
			continue
		}
		c.Log.Info("fetched candidates", "source", s.Name(), "count", len(items))
		return items, nil
	}
	if len(errs) == len(c.Sources) && len(errs) > 0 {
		return nil, fmt.Errorf("all news sources failed: %w", errs[len(errs)-1])
	}
	return nil, nil
}
