package news

import (
	"net/url"
	"strings"
	"time"
)

// Candidate is one news item as retrieved from a source, before vetting.
type Candidate struct {
	URL         string
	Title       string
	PublishedAt time.Time
	Content     string
	Description string
	Source      string
	Image       string
}

// Text returns the extracted body, or the description when no body was extracted.
func (c Candidate) Text() string {
	if strings.TrimSpace(c.Content) != "" {
		return c.Content
	}
	return c.Description
}

// publishedLayouts covers what feeds and JSON APIs send in practice.
var publishedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02",
}

// ParsePublished parses a heterogeneous publish timestamp.
// Empty or unparseable input yields now, so one bad item never blocks a batch.
func ParsePublished(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return now
}

// SourceOf returns the origin domain of a URL without the www. prefix.
func SourceOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
