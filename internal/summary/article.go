// Package summary turns generator output into a validated Article.
package summary

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrEmpty is returned when a parsed article lacks a title or a body.
var ErrEmpty = errors.New("summary: title and body are required")

// Meta carries the SEO fields of an article.
type Meta struct {
	Keywords    StringList `json:"keywords"`
	Description string     `json:"description"`
}

// Article is the synthesized article. Body is an HTML fragment.
type Article struct {
	Title    string     `json:"title"`
	Dek      string     `json:"dek"`
	Body     string     `json:"body"`
	Bullets  StringList `json:"bullets"`
	Meta     Meta       `json:"meta"`
	Category string     `json:"category"`
}

// Validate enforces the minimal non-emptiness contract.
func (a Article) Validate() error {
	if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.Body) == "" {
		return ErrEmpty
	}
	return nil
}

// Description returns the meta description, falling back to the dek.
func (a Article) Description() string {
	if d := strings.TrimSpace(a.Meta.Description); d != "" {
		return d
	}
	return strings.TrimSpace(a.Dek)
}

// StringList accepts a JSON list of strings or a single comma separated string.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = cleanList(items)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = cleanList(strings.Split(s, ","))
	return nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(it), "-•*"))
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}
