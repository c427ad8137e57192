package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/deusflow/aurore/internal/render"
)

const (
	ArticlesDir = "articles"
	IndexPath   = "index.html"
	FeedPath    = "feed.xml"
)

// maxSlugAttempts bounds the -2, -3, ... suffixes tried by Reserve.
const maxSlugAttempts = 50

// ErrPageExists is returned when an article path is already taken. Published
// pages are never rewritten.
var ErrPageExists = errors.New("article page already exists")

// Index modes.
const (
	IndexRebuild = "rebuild"
	IndexPatch   = "patch"
	IndexSkip    = "skip"
)

// Page is a rendered article ready to be committed.
type Page struct {
	Slug  string
	Title string
	HTML  string
}

// Path is the repository path of the page.
func (p Page) Path() string { return ArticlesDir + "/" + p.Slug + ".html" }

// Result reports where the article went. IndexErr is set when the article
// was published but the index or feed could not be updated.
type Result struct {
	PublicURL   string
	Path        string
	PullRequest string
	IndexErr    error
}

// Degraded reports whether the index update failed.
func (r Result) Degraded() bool { return r.IndexErr != nil }

type Options struct {
	Branch               string
	IndexMode            string
	IndexSelector        string
	IndexKeep            int
	DirectPublish        bool
	AutoMerge            bool
	AtomicCommit         bool
	TolerateIndexFailure bool
}

type Publisher struct {
	repo     Repository
	renderer *render.Renderer
	site     render.SiteContext
	opts     Options
	log      *slog.Logger
}

func New(repo Repository, renderer *render.Renderer, site render.SiteContext, opts Options, log *slog.Logger) *Publisher {
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.IndexMode == "" {
		opts.IndexMode = IndexRebuild
	}
	return &Publisher{repo: repo, renderer: renderer, site: site, opts: opts, log: log}
}

// PublicURL is the address the page will be served at.
func (p *Publisher) PublicURL(page Page) string {
	return strings.TrimRight(p.site.ProductionURL, "/") + "/" + page.Path()
}

// Reserve returns slug, or slug-2, slug-3, ... when the page path is already
// taken on the publish branch.
func (p *Publisher) Reserve(ctx context.Context, slug string) (string, error) {
	for n := 1; n <= maxSlugAttempts; n++ {
		candidate := slug
		if n > 1 {
			candidate = fmt.Sprintf("%s-%d", slug, n)
		}
		taken, err := p.exists(ctx, Page{Slug: candidate}.Path())
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w after %d attempts", slug, ErrPageExists, maxSlugAttempts)
}

func (p *Publisher) exists(ctx context.Context, file string) (bool, error) {
	_, err := p.repo.ReadFile(ctx, p.opts.Branch, file)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	}
	return false, fmt.Errorf("check %s: %w", file, err)
}

// Publish writes the article and, depending on the index mode, the index and
// feed. The article write is the only fatal step when index failures are
// tolerated.
func (p *Publisher) Publish(ctx context.Context, page Page, entry Entry) (Result, error) {
	res := Result{PublicURL: p.PublicURL(page), Path: page.Path()}
	if taken, err := p.exists(ctx, page.Path()); err != nil {
		return res, err
	} else if taken {
		return res, fmt.Errorf("%s: %w", page.Path(), ErrPageExists)
	}
	entry.Href = "/" + page.Path()
	article := File{Path: page.Path(), Content: []byte(page.HTML)}

	site, err := p.siteFiles(ctx, entry)
	if err != nil {
		if !p.opts.TolerateIndexFailure {
			return res, fmt.Errorf("build index: %w", err)
		}
		p.log.Warn("index build failed, publishing article alone", "err", err)
		res.IndexErr = err
	}

	message := fmt.Sprintf("Aurore: add article '%s'", page.Title)

	if !p.opts.DirectPublish {
		pr, err := p.repo.OpenReview(ctx, ReviewRequest{
			Base:      p.opts.Branch,
			Head:      "aurore/" + page.Slug,
			Title:     message,
			Body:      fmt.Sprintf("Nouvel article : %s\n\n%s", page.Title, res.PublicURL),
			Message:   message,
			Files:     append([]File{article}, site...),
			AutoMerge: p.opts.AutoMerge,
		})
		if err != nil {
			return res, fmt.Errorf("open review: %w", err)
		}
		res.PullRequest = pr
		p.log.Info("pull request opened", "url", pr, "auto_merge", p.opts.AutoMerge)
		return res, nil
	}

	if p.opts.AtomicCommit {
		err := p.repo.CommitFiles(ctx, p.opts.Branch, message, append([]File{article}, site...))
		if err == nil {
			p.log.Info("article committed", "path", res.Path, "files", len(site)+1)
			return res, nil
		}
		if !errors.Is(err, ErrAtomicUnsupported) {
			return res, fmt.Errorf("commit: %w", err)
		}
		p.log.Info("atomic commit unsupported, writing files one by one")
	}

	if err := p.repo.PutFile(ctx, p.opts.Branch, message, article); err != nil {
		return res, fmt.Errorf("write article: %w", err)
	}
	p.log.Info("article written", "path", res.Path)

	for _, f := range site {
		msg := fmt.Sprintf("Aurore: update %s (%s)", path.Base(f.Path), page.Slug)
		if err := p.repo.PutFile(ctx, p.opts.Branch, msg, f); err != nil {
			err = fmt.Errorf("write %s: %w", f.Path, err)
			if !p.opts.TolerateIndexFailure {
				return res, err
			}
			p.log.Warn("index update failed, article stays published", "path", f.Path, "err", err)
			res.IndexErr = errors.Join(res.IndexErr, err)
		}
	}
	return res, nil
}

// siteFiles builds index.html and feed.xml for the configured mode.
func (p *Publisher) siteFiles(ctx context.Context, entry Entry) ([]File, error) {
	if p.opts.IndexMode == IndexSkip {
		p.log.Info("index skipped")
		return nil, nil
	}

	entries, err := p.RebuildIndex(ctx, entry)
	if err != nil {
		return nil, err
	}
	feed, err := p.renderer.Feed(entries, p.site)
	if err != nil {
		return nil, err
	}
	feedFile := File{Path: FeedPath, Content: []byte(feed)}

	if p.opts.IndexMode == IndexPatch {
		current, err := p.repo.ReadFile(ctx, p.opts.Branch, IndexPath)
		if errors.Is(err, ErrNotFound) {
			p.log.Info("no index to patch")
			return []File{feedFile}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read index: %w", err)
		}
		patched, ok, err := PatchIndex(current, p.opts.IndexSelector, entry, p.opts.IndexKeep)
		if err != nil {
			return nil, err
		}
		if !ok {
			p.log.Info("index selector not found or entry already listed", "selector", p.opts.IndexSelector)
			return []File{feedFile}, nil
		}
		return []File{{Path: IndexPath, Content: []byte(patched)}, feedFile}, nil
	}

	index, err := p.renderer.Index(entries, p.site)
	if err != nil {
		return nil, err
	}
	return []File{{Path: IndexPath, Content: []byte(index)}, feedFile}, nil
}

// RebuildIndex reads every published page and returns the index entries with
// entry merged in.
func (p *Publisher) RebuildIndex(ctx context.Context, entry Entry) ([]Entry, error) {
	paths, err := p.repo.ListDir(ctx, p.opts.Branch, ArticlesDir)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("list %s: %w", ArticlesDir, err)
	}

	var existing []Entry
	for _, fp := range paths {
		if !strings.HasSuffix(fp, ".html") || "/"+fp == entry.Href {
			continue
		}
		content, err := p.repo.ReadFile(ctx, p.opts.Branch, fp)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fp, err)
		}
		e, ok := ParseEntry(fp, content)
		if !ok {
			p.log.Debug("page without index metadata", "path", fp)
			continue
		}
		existing = append(existing, e)
	}
	return MergeEntries(existing, entry, p.opts.IndexKeep), nil
}
