package publish

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/aurore/internal/render"
)

// Entry is one article listed on the index.
type Entry = render.Entry

var metaComment = regexp.MustCompile(`(?s)<!--\s*meta:\s*(\{.*?\})\s*-->`)

// ParseEntry reads the index entry of a published page. The embedded meta
// comment is preferred; Open Graph tags are the fallback for older pages.
func ParseEntry(path string, page []byte) (Entry, bool) {
	e := Entry{Href: "/" + strings.TrimPrefix(path, "/")}

	if m := metaComment.FindSubmatch(page); m != nil {
		var meta render.PageMeta
		if err := json.Unmarshal(m[1], &meta); err == nil {
			if t, ok := parseTime(meta.PublishedAt); ok && strings.TrimSpace(meta.Title) != "" {
				e.Title = strings.TrimSpace(meta.Title)
				e.PublishedAt = t
				e.Image = meta.Image
				e.Source = meta.Source
				return e, true
			}
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return Entry{}, false
	}
	prop := func(name string) string {
		v, _ := doc.Find(fmt.Sprintf(`meta[property="%s"]`, name)).First().Attr("content")
		return strings.TrimSpace(v)
	}
	t, ok := parseTime(prop("article:published_time"))
	e.Title = prop("og:title")
	if !ok || e.Title == "" {
		return Entry{}, false
	}
	e.PublishedAt = t
	e.Image = prop("og:image")
	return e, true
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04:05.999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// SortEntries orders entries newest first, ties broken by href.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].PublishedAt.Equal(entries[j].PublishedAt) {
			return entries[i].PublishedAt.After(entries[j].PublishedAt)
		}
		return entries[i].Href < entries[j].Href
	})
}

// MergeEntries adds e to existing, replacing any entry with the same href,
// and returns at most keep entries in index order.
func MergeEntries(existing []Entry, e Entry, keep int) []Entry {
	all := make([]Entry, 0, len(existing)+1)
	all = append(all, e)
	for _, x := range existing {
		if x.Href != e.Href {
			all = append(all, x)
		}
	}
	SortEntries(all)

	seen := make(map[string]bool, len(all))
	out := all[:0]
	for _, x := range all {
		if seen[x.Href] {
			continue
		}
		seen[x.Href] = true
		out = append(out, x)
	}
	if keep > 0 && len(out) > keep {
		out = out[:keep]
	}
	return out
}

// PatchIndex inserts e at the top of the list matched by selector and trims
// it to keep items. Nothing else in the page is touched. ok is false when the
// selector matches nothing or the entry is already listed.
func PatchIndex(current []byte, selector string, e Entry, keep int) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(current))
	if err != nil {
		return "", false, fmt.Errorf("parse index: %w", err)
	}
	target := doc.Find(selector).First()
	if target.Length() == 0 {
		return "", false, nil
	}

	listed := false
	target.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		listed = href == e.Href
		return !listed
	})
	if listed {
		return "", false, nil
	}

	thumb := ""
	if e.Image != "" {
		thumb = fmt.Sprintf(`<img class="thumb" src="%s" alt="" loading="lazy"/>`, html.EscapeString(e.Image))
	}
	item := fmt.Sprintf(`<li>%s<a href="%s">%s</a><small>— %s</small></li>`,
		thumb, html.EscapeString(e.Href), html.EscapeString(e.Title), e.PublishedAt.UTC().Format("2006-01-02"))
	target.PrependHtml(item)
	if items := target.ChildrenFiltered("li"); keep > 0 && items.Length() > keep {
		items.Slice(keep, goquery.ToEnd).Remove()
	}

	out, err := doc.Html()
	if err != nil {
		return "", false, fmt.Errorf("render index: %w", err)
	}
	return out, true, nil
}
