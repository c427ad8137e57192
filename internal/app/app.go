// Package app runs one pass of the pipeline for a vertical: fetch, select,
// summarize, render, publish, remember and announce.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/aurore/internal/announce"
	"github.com/deusflow/aurore/internal/config"
	"github.com/deusflow/aurore/internal/metrics"
	"github.com/deusflow/aurore/internal/news"
	"github.com/deusflow/aurore/internal/publish"
	"github.com/deusflow/aurore/internal/render"
	"github.com/deusflow/aurore/internal/rss"
	"github.com/deusflow/aurore/internal/storage"
	"github.com/deusflow/aurore/internal/summary"
)

type Outcome int

const (
	// NoOp: nothing was published (no candidate, or a recoverable failure).
	NoOp Outcome = iota
	Published
	// Degraded: the article is live but the index, the memory or both lag behind.
	Degraded
)

func (o Outcome) String() string {
	switch o {
	case Published:
		return "published"
	case Degraded:
		return "degraded"
	}
	return "noop"
}

type Enricher interface {
	EnrichAll(ctx context.Context, cands []news.Candidate, min int)
}

type Summarizer interface {
	Summarize(ctx context.Context, sourceText, template string) (summary.Article, error)
}

type ImageFinder interface {
	Find(ctx context.Context, pageURL, query string) string
}

type Publisher interface {
	// Reserve returns a slug whose page does not exist yet.
	Reserve(ctx context.Context, slug string) (string, error)
	Publish(ctx context.Context, page publish.Page, entry publish.Entry) (publish.Result, error)
}

// Deps are the collaborators of a run. Enricher, Leaser, Images, Writer and
// Announcer are optional.
type Deps struct {
	Source     rss.Source
	Enricher   Enricher
	Store      storage.Store
	Leaser     storage.Leaser
	Summarizer Summarizer
	Images     ImageFinder
	Renderer   *render.Renderer
	Publisher  Publisher
	Writer     *announce.Writer
	Announcer  announce.Announcer
	Metrics    *metrics.Metrics
	Log        *slog.Logger
	Now        func() time.Time
}

// Run publishes at most one article. A nil error with NoOp means there was
// nothing usable to publish; an error means something broke.
func Run(ctx context.Context, cfg *config.Config, d Deps) (Outcome, error) {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(d.Now())
	}
	m := d.Metrics
	site := cfg.Site
	log := d.Log.With("vertical", cfg.Vertical)

	start := time.Now()
	items, err := d.Source.Fetch(ctx)
	m.Time("fetch", start)
	if err != nil {
		return NoOp, fmt.Errorf("fetch: %w", err)
	}
	m.Add(&m.Candidates, len(items))
	log.Info("candidates fetched", "count", len(items))
	if len(items) == 0 {
		log.Info("no candidates, nothing to do")
		return NoOp, nil
	}

	selector := news.NewSelector(news.ContentRule{
		MinChars:      site.MinChars,
		MinParagraphs: site.MinParagraphs,
		MinWords:      site.MinWords,
	})
	if site.FingerprintMode == "topic" {
		selector.Fingerprint = news.ByTopic
	}

	start = time.Now()
	keyed, invalid := selector.Key(items)
	m.Add(&m.Invalid, invalid)
	fps := make([]news.Fingerprint, len(keyed))
	for i, k := range keyed {
		fps[i] = k.Fingerprint
	}
	seen, err := storage.Resolve(ctx, d.Store, fps)
	m.Time("dedup", start)
	if err != nil {
		return NoOp, fmt.Errorf("dedup: %w", err)
	}

	pool := make([]news.Keyed, 0, len(keyed))
	for _, k := range keyed {
		if seen.Has(k.Fingerprint) {
			m.Add(&m.Duplicates, 1)
			continue
		}
		pool = append(pool, k)
	}
	if d.Enricher != nil && len(pool) > 0 {
		start = time.Now()
		enrich(ctx, d.Enricher, pool, site.MinChars)
		m.Time("enrich", start)
	}

	res := selector.SelectKeyed(pool, seen)
	m.Add(&m.TooShort, res.TooShort)
	if res.Selected == nil {
		log.Info("no publishable candidate", "invalid", invalid, "duplicates", len(keyed)-len(pool), "too_short", res.TooShort)
		return NoOp, nil
	}
	chosen := *res.Selected
	log = log.With("fingerprint", string(chosen.Fingerprint))
	log.Info("candidate selected", "title", chosen.Title, "url", chosen.URL, "published_at", chosen.PublishedAt.Format(time.RFC3339))

	if d.Leaser != nil && site.LeaseTTL > 0 {
		lease, ok, err := d.Leaser.Acquire(ctx, chosen.Fingerprint, site.LeaseTTL)
		if err != nil {
			return NoOp, fmt.Errorf("lease: %w", err)
		}
		if !ok {
			log.Info("candidate leased by another run, nothing to do")
			return NoOp, nil
		}
		defer func() {
			if err := d.Leaser.Release(context.WithoutCancel(ctx), lease); err != nil {
				log.Warn("lease release failed", "err", err)
			}
		}()
	}

	start = time.Now()
	article, err := d.Summarizer.Summarize(ctx, chosen.Text(), string(site.GeminiPrompt))
	m.Time("summarize", start)
	if err != nil {
		m.Add(&m.SummariesFailed, 1)
		log.Warn("summary unusable, candidate stays eligible", "err", err)
		return NoOp, nil
	}
	m.Add(&m.SummariesOK, 1)

	image := chosen.Image
	if image == "" && d.Images != nil {
		start = time.Now()
		image = d.Images.Find(ctx, chosen.URL, article.Title)
		m.Time("image", start)
	}
	if image == "" {
		log.Info("no image found")
	}

	slug, err := d.Publisher.Reserve(ctx, d.Now().Format("2006-01-02")+"-"+render.Slugify(article.Title, d.Now()))
	if err != nil {
		return NoOp, fmt.Errorf("publish: %w", err)
	}
	page := publish.Page{Slug: slug, Title: article.Title}
	publicURL := strings.TrimRight(site.ProductionURL, "/") + "/" + page.Path()

	html, err := d.Renderer.Article(article, siteContext(site), render.ArticleContext{
		URL:         publicURL,
		PublishedAt: chosen.PublishedAt,
		Source:      chosen.Source,
		SourceURL:   chosen.URL,
		Image:       image,
	})
	if err != nil {
		return NoOp, fmt.Errorf("render: %w", err)
	}
	page.HTML = html

	start = time.Now()
	pub, err := d.Publisher.Publish(ctx, page, publish.Entry{
		Title:       article.Title,
		PublishedAt: chosen.PublishedAt,
		Image:       image,
		Source:      chosen.Source,
	})
	m.Time("publish", start)
	if err != nil {
		return NoOp, fmt.Errorf("publish: %w", err)
	}
	m.Add(&m.Published, 1)
	outcome := Published
	if pub.IndexErr != nil {
		m.Add(&m.IndexFailures, 1)
		log.Error("article published but index update failed", "url", pub.PublicURL, "err", pub.IndexErr)
		outcome = Degraded
	}
	log.Info("article published", "url", pub.PublicURL, "path", pub.Path, "pull_request", pub.PullRequest)

	err = d.Store.Mark(ctx, storage.Record{
		Fingerprint: chosen.Fingerprint,
		ProcessedAt: d.Now().UTC(),
		PublishedAt: chosen.PublishedAt,
		Title:       article.Title,
		SourceURL:   chosen.URL,
		PageURL:     pub.PublicURL,
		PullRequest: pub.PullRequest,
	})
	if err != nil {
		m.Add(&m.MarkFailures, 1)
		log.Error("article published but not remembered, it may be published again", "url", pub.PublicURL, "err", err)
		outcome = Degraded
	}

	if d.Announcer != nil {
		text := d.Writer.Write(ctx, article.Title, plainText(article))
		posted, err := d.Announcer.Announce(ctx, text, pub.PublicURL)
		if err != nil {
			log.Warn("announcement failed", "err", err)
		}
		if posted == announce.Posted {
			m.Add(&m.Announcements, 1)
		}
	}

	return outcome, nil
}

// enrich fills the candidates in pool in place. Fingerprints were resolved
// against the store before enrichment and are kept as they are.
func enrich(ctx context.Context, e Enricher, pool []news.Keyed, min int) {
	cands := make([]news.Candidate, len(pool))
	for i, k := range pool {
		cands[i] = k.Candidate
	}
	e.EnrichAll(ctx, cands, min)
	for i := range pool {
		pool[i].Candidate = cands[i]
	}
}

func siteContext(s config.Site) render.SiteContext {
	return render.SiteContext{
		Name:          s.BrandName,
		Color:         s.BrandColor,
		Logo:          s.LogoFilename,
		ProductionURL: s.ProductionURL,
		Language:      s.Language,
	}
}

// plainText is the dek and body of a without markup, for the status prompt.
func plainText(a summary.Article) string {
	body := a.Body
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(a.Body)); err == nil {
		var parts []string
		doc.Find("p, li").Each(func(_ int, s *goquery.Selection) {
			if t := strings.TrimSpace(s.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) == 0 {
			parts = append(parts, strings.TrimSpace(doc.Text()))
		}
		body = strings.Join(parts, "\n")
	}
	return strings.TrimSpace(strings.Join([]string{a.Dek, body}, "\n"))
}

// IsConfigError reports whether err comes from configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, config.ErrMissing)
}
