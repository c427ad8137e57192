package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Generator sends a prompt to a generative text API and returns its text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// MaxSourceRunes bounds the source text sent to the generator.
const MaxSourceRunes = 8000

// Summarizer produces an Article from source text with a single generator call.
type Summarizer struct {
	gen    Generator
	format Format
	parse  Parser
	log    *slog.Logger
}

func New(gen Generator, format Format, log *slog.Logger) (*Summarizer, error) {
	parse, err := ParserFor(format)
	if err != nil {
		return nil, err
	}
	return &Summarizer{gen: gen, format: format, parse: parse, log: log}, nil
}

func (s *Summarizer) Format() Format { return s.format }

// BuildPrompt wraps the source text after the instruction template.
func BuildPrompt(template string, format Format, source string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(template))
	if h := Hint(format); h != "" {
		b.WriteString("\n\n")
		b.WriteString(h)
	}
	b.WriteString("\n\n<TEXTE_SOURCE>\n")
	b.WriteString(truncateSource(source))
	b.WriteString("\n</TEXTE_SOURCE>")
	return b.String()
}

func truncateSource(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r", ""))
	if utf8.RuneCountInString(s) <= MaxSourceRunes {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:MaxSourceRunes])
	if idx := strings.LastIndex(cut, ". "); idx > MaxSourceRunes/2 {
		cut = cut[:idx+1]
	}
	return cut
}

// Summarize makes one attempt. Any failure leaves the candidate eligible
// for the next run, so nothing here retries.
func (s *Summarizer) Summarize(ctx context.Context, sourceText, template string) (Article, error) {
	if strings.TrimSpace(sourceText) == "" {
		return Article{}, fmt.Errorf("summarize: empty source text")
	}
	raw, err := s.gen.Generate(ctx, BuildPrompt(template, s.format, sourceText))
	if err != nil {
		return Article{}, fmt.Errorf("summarize: generate: %w", err)
	}
	a, err := s.parse(raw)
	if err != nil {
		s.log.Debug("unparseable generator response", "format", s.format, "raw", raw)
		return Article{}, fmt.Errorf("summarize: %w", err)
	}

	a.Title = strings.TrimSpace(StripDisclaimers(a.Title))
	a.Dek = strings.TrimSpace(StripDisclaimers(a.Dek))
	a.Body = BodyHTML(a.Body)
	if err := a.Validate(); err != nil {
		return Article{}, fmt.Errorf("summarize: %w", err)
	}
	return a, nil
}
