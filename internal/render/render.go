// Package render produces the static pages of a vertical: article pages,
// the index page and the RSS feed.
package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/deusflow/aurore/internal/summary"
)

//go:embed templates/*.html
var embedded embed.FS

const (
	articleTemplate = "article.html"
	indexTemplate   = "index.html"
)

// SiteContext describes the vertical's branding.
type SiteContext struct {
	Name          string
	Color         string
	Logo          string // file name under /assets
	ProductionURL string
	Language      string
	Description   string
}

func (s SiteContext) HomeURL() string { return strings.TrimRight(s.ProductionURL, "/") + "/" }

func (s SiteContext) LogoURL() string {
	if s.Logo == "" {
		return ""
	}
	return "/assets/" + s.Logo
}

// ArticleContext holds what the page needs beyond the synthesized article.
type ArticleContext struct {
	URL         string
	PublishedAt time.Time
	Source      string
	SourceURL   string
	Image       string
}

// Entry is one line of the index and one item of the feed.
type Entry struct {
	Title       string
	Href        string // site-rooted, e.g. /articles/slug.html
	PublishedAt time.Time
	Image       string
	Source      string
}

// PageMeta is the machine-readable block embedded in every article page.
type PageMeta struct {
	PublishedAt string `json:"published_at"`
	Title       string `json:"title"`
	Image       string `json:"image,omitempty"`
	Source      string `json:"source,omitempty"`
}

const metaPrefix = "<!-- meta: "

// MetaComment renders m as an HTML comment. JSON encoding escapes '>' so the
// payload can never close the comment early.
func MetaComment(m PageMeta) string {
	b, _ := json.Marshal(m)
	return metaPrefix + string(b) + " -->"
}

type Renderer struct {
	article *template.Template
	index   *template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"date": func(t time.Time) string { return t.UTC().Format("2006-01-02") },
}

// New parses the embedded templates, or the ones found in dir when set.
func New(dir string) (*Renderer, error) {
	var fsys fs.FS = embedded
	prefix := "templates/"
	if dir != "" {
		fsys = os.DirFS(dir)
		prefix = ""
	}

	article, err := template.New(articleTemplate).Funcs(funcs).ParseFS(fsys, prefix+articleTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse article template: %w", err)
	}
	index, err := template.New(indexTemplate).Funcs(funcs).ParseFS(fsys, prefix+indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}
	return &Renderer{article: article, index: index}, nil
}

type articleView struct {
	Site           SiteContext
	Title          string
	Dek            string
	Description    string
	Body           template.HTML
	Bullets        []string
	Keywords       []string
	Category       string
	URL            string
	Image          string
	Source         string
	SourceURL      string
	PublishedISO   string
	PublishedHuman string
	Meta           template.HTML
}

// Article renders a full article page. a.Body must already be sanitized.
func (r *Renderer) Article(a summary.Article, site SiteContext, ac ArticleContext) (string, error) {
	published := ac.PublishedAt.UTC()
	view := articleView{
		Site:           site,
		Title:          a.Title,
		Dek:            a.Dek,
		Description:    a.Description(),
		Body:           template.HTML(a.Body),
		Bullets:        a.Bullets,
		Keywords:       a.Meta.Keywords,
		Category:       a.Category,
		URL:            ac.URL,
		Image:          ac.Image,
		Source:         ac.Source,
		SourceURL:      ac.SourceURL,
		PublishedISO:   published.Format(time.RFC3339),
		PublishedHuman: published.Format("02/01/2006"),
		Meta: template.HTML(MetaComment(PageMeta{
			PublishedAt: published.Format(time.RFC3339),
			Title:       a.Title,
			Image:       ac.Image,
			Source:      ac.Source,
		})),
	}
	if view.Description == "" {
		view.Description = a.Title
	}

	var buf bytes.Buffer
	if err := r.article.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render article: %w", err)
	}
	return buf.String(), nil
}

// Index renders the home page listing entries in the given order.
func (r *Renderer) Index(entries []Entry, site SiteContext) (string, error) {
	var buf bytes.Buffer
	err := r.index.Execute(&buf, struct {
		Site    SiteContext
		Entries []Entry
	}{site, entries})
	if err != nil {
		return "", fmt.Errorf("render index: %w", err)
	}
	return buf.String(), nil
}

// Feed renders an RSS 2.0 document. Every date comes from the entries so the
// output only changes when the entries do.
func (r *Renderer) Feed(entries []Entry, site SiteContext) (string, error) {
	base := strings.TrimRight(site.ProductionURL, "/")
	feed := &feeds.Feed{
		Title:       site.Name,
		Link:        &feeds.Link{Href: site.HomeURL()},
		Description: site.Description,
	}
	if feed.Description == "" {
		feed.Description = site.Name
	}
	if len(entries) > 0 {
		feed.Created = entries[0].PublishedAt.UTC()
		feed.Updated = entries[0].PublishedAt.UTC()
	}

	for _, e := range entries {
		link := base + e.Href
		item := &feeds.Item{
			Title:   e.Title,
			Link:    &feeds.Link{Href: link},
			Id:      link,
			Created: e.PublishedAt.UTC(),
		}
		if e.Source != "" {
			item.Description = "Source : " + e.Source
		}
		feed.Items = append(feed.Items, item)
	}

	out, err := feed.ToRss()
	if err != nil {
		return "", fmt.Errorf("render feed: %w", err)
	}
	return out, nil
}
