package announce

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/deusflow/aurore/internal/summary"
)

var tweetTag = regexp.MustCompile(`(?is)<TWEET>(.*?)</TWEET>`)

// Writer asks the generator for a status text from the vertical's tweet prompt.
type Writer struct {
	gen    summary.Generator
	prompt string
	log    *slog.Logger
}

func NewWriter(gen summary.Generator, prompt string, log *slog.Logger) *Writer {
	return &Writer{gen: gen, prompt: strings.TrimSpace(prompt), log: log}
}

// Prompt builds the status request for an article.
func (w *Writer) Prompt(title, body string) string {
	return w.prompt + "\n\n<TITRE>" + title + "</TITRE>\n<RESUME>" + body + "</RESUME>"
}

// Write returns the generated status, or title when there is no prompt or the
// generator fails.
func (w *Writer) Write(ctx context.Context, title, body string) string {
	if w == nil || w.gen == nil || w.prompt == "" {
		return title
	}
	out, err := w.gen.Generate(ctx, w.Prompt(title, body))
	if err != nil {
		w.log.Warn("status generation failed, using title", "err", err)
		return title
	}
	if m := tweetTag.FindStringSubmatch(out); m != nil {
		out = m[1]
	}
	out = strings.Join(strings.Fields(out), " ")
	if out == "" {
		return title
	}
	return out
}
