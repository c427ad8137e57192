package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnknownFormat is returned for a format with no parser.
var ErrUnknownFormat = errors.New("summary: unknown response format")

// Format names the wire format the generator is asked to produce.
type Format string

const (
	FormatTags Format = "tags"
	FormatJSON Format = "json"
)

// Parser decodes one wire format into an Article. Parsers do not validate.
type Parser func(raw string) (Article, error)

// ParserFor returns the parser for f.
func ParserFor(f Format) (Parser, error) {
	switch f {
	case FormatTags:
		return ParseTags, nil
	case FormatJSON:
		return ParseJSON, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Hint is appended to the prompt so the generator knows the expected shape.
func Hint(f Format) string {
	switch f {
	case FormatTags:
		return "Format de réponse : <TITRE>…</TITRE><CHAPO>…</CHAPO><RESUME>…</RESUME><PUCES>une idée par ligne</PUCES><MOTS_CLES>a, b, c</MOTS_CLES><DESCRIPTION>…</DESCRIPTION><CATEGORIE>…</CATEGORIE>"
	case FormatJSON:
		return `Format de réponse : un objet JSON {"title":"","dek":"","body":"","bullets":[],"meta":{"keywords":[],"description":""},"category":""}`
	}
	return ""
}

var tagAliases = map[string][]string{
	"title":       {"TITRE", "TITLE"},
	"dek":         {"CHAPO", "DEK"},
	"body":        {"RESUME", "RÉSUMÉ", "BODY"},
	"bullets":     {"PUCES", "BULLETS"},
	"keywords":    {"MOTS_CLES", "KEYWORDS"},
	"description": {"DESCRIPTION"},
	"category":    {"CATEGORIE", "CATÉGORIE", "CATEGORY"},
}

var tagPatterns = func() map[string][]*regexp.Regexp {
	out := make(map[string][]*regexp.Regexp, len(tagAliases))
	for field, names := range tagAliases {
		for _, n := range names {
			q := regexp.QuoteMeta(n)
			out[field] = append(out[field], regexp.MustCompile(`(?is)<`+q+`>\s*(.*?)\s*</`+q+`>`))
		}
	}
	return out
}()

func tagValue(raw, field string) string {
	for _, re := range tagPatterns[field] {
		if m := re.FindStringSubmatch(raw); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// ParseTags decodes the tag-delimited format.
func ParseTags(raw string) (Article, error) {
	title := tagValue(raw, "title")
	body := tagValue(raw, "body")
	if title == "" && body == "" {
		return Article{}, fmt.Errorf("%w: no <TITRE>/<RESUME> tags found", ErrUnknownFormat)
	}
	a := Article{
		Title:    title,
		Dek:      tagValue(raw, "dek"),
		Body:     body,
		Category: tagValue(raw, "category"),
		Meta: Meta{
			Keywords:    cleanList(strings.Split(tagValue(raw, "keywords"), ",")),
			Description: tagValue(raw, "description"),
		},
	}
	if b := tagValue(raw, "bullets"); b != "" {
		a.Bullets = cleanList(strings.Split(b, "\n"))
	}
	return a, nil
}

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// ParseJSON decodes the JSON format. Code fences and text around the
// object are tolerated.
func ParseJSON(raw string) (Article, error) {
	s := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return Article{}, fmt.Errorf("%w: no JSON object in response", ErrUnknownFormat)
	}
	var a Article
	if err := json.Unmarshal([]byte(s[start:end+1]), &a); err != nil {
		return Article{}, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}
	return a, nil
}
