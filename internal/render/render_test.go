package render

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/aurore/internal/summary"
)

var site = SiteContext{
	Name:          "Aurore Tech",
	Color:         "#0ea5e9",
	Logo:          "logo.svg",
	ProductionURL: "https://tech.aurore.fr/",
	Language:      "fr",
}

func sampleArticle() summary.Article {
	return summary.Article{
		Title:   "Un nouveau processeur",
		Dek:     "Plus rapide, plus sobre.",
		Body:    "<p>Premier paragraphe.</p><p>Second.</p>",
		Bullets: []string{"Gravure 3 nm"},
		Meta:    summary.Meta{Keywords: []string{"puces", "énergie"}},
	}
}

func TestArticle(t *testing.T) {
	r, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	published := time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC)
	html, err := r.Article(sampleArticle(), site, ArticleContext{
		URL:         "https://tech.aurore.fr/articles/un-nouveau-processeur.html",
		PublishedAt: published,
		Source:      "lemonde.fr",
		Image:       "https://cdn.fr/cpu.jpg",
	})
	if err != nil {
		t.Fatalf("Article: %v", err)
	}

	for _, want := range []string{
		`<meta property="og:title" content="Un nouveau processeur"/>`,
		`<meta property="og:image" content="https://cdn.fr/cpu.jpg"/>`,
		`<meta name="twitter:image" content="https://cdn.fr/cpu.jpg"/>`,
		`<meta property="article:published_time" content="2024-03-05T08:30:00Z"/>`,
		`<link rel="canonical" href="https://tech.aurore.fr/articles/un-nouveau-processeur.html"/>`,
		`<img src="/assets/logo.svg"`,
		`<div class="hero">`,
		`<article><p>Premier paragraphe.</p><p>Second.</p></article>`,
		`<li>Gravure 3 nm</li>`,
		`--brand: #0ea5e9`,
		`Publié le 05/03/2024`,
		`<meta name="description" content="Plus rapide, plus sobre."/>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("article page missing %q", want)
		}
	}

	start := strings.Index(html, metaPrefix)
	if start < 0 {
		t.Fatal("meta comment missing")
	}
	rest := html[start+len(metaPrefix):]
	end := strings.Index(rest, " -->")
	var meta PageMeta
	if err := json.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		t.Fatalf("meta comment not JSON: %v", err)
	}
	if meta.PublishedAt != "2024-03-05T08:30:00Z" || meta.Title != "Un nouveau processeur" || meta.Source != "lemonde.fr" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestArticle_NoImage(t *testing.T) {
	r, _ := New("")
	html, err := r.Article(sampleArticle(), site, ArticleContext{PublishedAt: time.Now()})
	if err != nil {
		t.Fatalf("Article: %v", err)
	}
	if strings.Contains(html, `class="hero"`) || strings.Contains(html, "og:image") {
		t.Error("hero block and og:image must be omitted without an image")
	}
}

func TestArticle_EscapesTitle(t *testing.T) {
	r, _ := New("")
	a := sampleArticle()
	a.Title = `Fin --> <script>alert(1)</script>`
	html, err := r.Article(a, site, ArticleContext{PublishedAt: time.Now()})
	if err != nil {
		t.Fatalf("Article: %v", err)
	}
	if strings.Contains(html, "<script>alert") {
		t.Error("title was not escaped")
	}
	if strings.Count(html, "-->") != 1 {
		t.Errorf("meta comment closed early: %d terminators", strings.Count(html, "-->"))
	}
}

func TestMetaComment(t *testing.T) {
	got := MetaComment(PageMeta{PublishedAt: "2024-01-01T00:00:00Z", Title: "a > b"})
	want := `<!-- meta: {"published_at":"2024-01-01T00:00:00Z","title":"a \u003e b"} -->`
	if got != want {
		t.Errorf("MetaComment() = %s", got)
	}
}

func TestIndexAndFeed(t *testing.T) {
	r, _ := New("")
	entries := []Entry{
		{Title: "A", Href: "/articles/a.html", PublishedAt: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)},
		{Title: "B", Href: "/articles/b.html", PublishedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Source: "lefigaro.fr",
			Image: "https://img.example/b.jpg"},
	}

	idx, err := r.Index(entries, site)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	a := strings.Index(idx, `<a href="/articles/a.html">A</a>`)
	b := strings.Index(idx, `<a href="/articles/b.html">B</a>`)
	if a < 0 || b < 0 || a > b {
		t.Errorf("index order wrong: a=%d b=%d", a, b)
	}
	if !strings.Contains(idx, `<li><img class="thumb" src="https://img.example/b.jpg" alt="" loading="lazy"/><a href="/articles/b.html">B</a>`) {
		t.Errorf("thumbnail missing:\n%s", idx)
	}
	if strings.Count(idx, `class="thumb"`) != 1 {
		t.Error("entry without image got a thumbnail")
	}
	if !strings.Contains(idx, `<ul id="latest-articles">`) {
		t.Error("index list id missing")
	}

	feed1, err := r.Feed(entries, site)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	feed2, _ := r.Feed(entries, site)
	if feed1 != feed2 {
		t.Error("feed output is not deterministic")
	}
	if !strings.Contains(feed1, "<link>https://tech.aurore.fr/articles/a.html</link>") {
		t.Errorf("feed item link missing:\n%s", feed1)
	}
}

func TestTemplatesDirOverride(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "article.html"), []byte(`<h1>{{.Title}}</h1>{{.Meta}}`), 0o644)
	os.WriteFile(filepath.Join(dir, "index.html"), []byte(`{{range .Entries}}{{.Title}};{{end}}`), 0o644)

	r, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	html, _ := r.Article(sampleArticle(), site, ArticleContext{PublishedAt: time.Now()})
	if !strings.HasPrefix(html, "<h1>Un nouveau processeur</h1><!-- meta: ") {
		t.Errorf("custom template not used: %s", html)
	}
	idx, _ := r.Index([]Entry{{Title: "x"}, {Title: "y"}}, site)
	if idx != "x;y;" {
		t.Errorf("Index() = %q", idx)
	}
}

func TestSlugify(t *testing.T) {
	fallback := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	tests := []struct {
		in   string
		want string
	}{
		{"Énergie : la France investit !", "energie-la-france-investit"},
		{"  Ça coûte 3 € ", "ca-coute-3"},
		{"!!!", "20240506070809"},
		{"", "20240506070809"},
		{strings.Repeat("ab ", 40), strings.TrimRight(strings.Repeat("ab-", 27), "-")},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in, fallback); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
