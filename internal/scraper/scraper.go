package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/aurore/internal/news"
)

// BrowserUserAgent is sent to article pages, which often refuse bot agents.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

const (
	minParagraphChars = 40
	minBodyChars      = 80
	maxBodyChars      = 8000
)

var ErrBlockedHost = errors.New("host is not scraped")

// blockedHosts never hold real articles.
var blockedHosts = map[string]bool{"example.com": true, "example.org": true}

// Fetch downloads pageURL and parses it. The returned URL is the final one
// after redirects.
func Fetch(ctx context.Context, client *http.Client, userAgent, pageURL string) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing HTML: %w", err)
	}
	return doc, resp.Request.URL, nil
}

// Extractor fills in the body text of candidates from their pages.
type Extractor struct {
	client *http.Client
	log    *slog.Logger
	ua     string
}

func NewExtractor(timeout time.Duration, log *slog.Logger) *Extractor {
	return &Extractor{
		client: &http.Client{Timeout: timeout},
		log:    log,
		ua:     BrowserUserAgent,
	}
}

// Enrich fetches the page of c and sets Content (and Image when missing).
// It is best-effort: on failure c is left as it was.
func (e *Extractor) Enrich(ctx context.Context, c *news.Candidate) error {
	if blockedHosts[news.SourceOf(c.URL)] {
		return ErrBlockedHost
	}
	doc, _, err := Fetch(ctx, e.client, e.ua, c.URL)
	if err != nil {
		return err
	}

	if body := ExtractText(doc); utf8.RuneCountInString(body) >= minBodyChars {
		c.Content = body
	} else if utf8.RuneCountInString(strings.TrimSpace(c.Description)) < minBodyChars {
		return fmt.Errorf("can't get content")
	}
	if c.Title == "" {
		c.Title = extractTitle(doc)
	}
	if c.Image == "" {
		c.Image = doc.Find(`meta[property="og:image"]`).AttrOr("content", "")
	}
	return nil
}

// EnrichAll enriches candidates whose text is below min, sequentially.
func (e *Extractor) EnrichAll(ctx context.Context, cands []news.Candidate, min int) {
	for i := range cands {
		c := &cands[i]
		if utf8.RuneCountInString(strings.TrimSpace(c.Content)) >= min {
			continue
		}
		if err := e.Enrich(ctx, c); err != nil {
			e.log.Debug("can't get content", "url", c.URL, "err", err)
			continue
		}
		e.log.Debug("got content", "url", c.URL, "chars", utf8.RuneCountInString(c.Content))
	}
}

// ExtractText returns the readable paragraphs of doc, newline separated.
func ExtractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, header, footer, aside, form, nav").Remove()

	selectors := []string{
		"article p",
		".article-content p",
		".post-content p",
		".entry-content p",
		"main p",
		"p",
	}

	var paragraphs []string
	for _, selector := range selectors {
		paragraphs = paragraphs[:0]
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			if text := cleanContent(s.Text()); utf8.RuneCountInString(text) >= minParagraphChars {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) >= 3 {
			break
		}
	}

	return capText(strings.Join(paragraphs, "\n"), maxBodyChars)
}

// extractTitle gets article title
func extractTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", "")); t != "" {
		return t
	}
	for _, selector := range []string{"h1", "title"} {
		if title := strings.TrimSpace(doc.Find(selector).First().Text()); title != "" {
			return title
		}
	}
	return ""
}

// cleanContent collapses whitespace.
func cleanContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

func capText(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
