// Package announce posts a short message linking to a freshly published page.
// Announcers never fail a run: the orchestrator only logs their errors.
package announce

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"
)

type Outcome int

const (
	Skipped Outcome = iota
	Posted
)

func (o Outcome) String() string {
	if o == Posted {
		return "posted"
	}
	return "skipped"
}

// DefaultMaxLength is the status limit of the Twitter API.
const DefaultMaxLength = 280

type Announcer interface {
	Announce(ctx context.Context, text, link string) (Outcome, error)
}

// ComposeStatus appends link to text within max runes. Only the text is ever
// shortened; a cut text ends with an ellipsis.
func ComposeStatus(text, link string, max int) string {
	text = strings.TrimSpace(text)
	suffix := ""
	if link != "" {
		suffix = " " + link
	}
	if max <= 0 || utf8.RuneCountInString(text)+utf8.RuneCountInString(suffix) <= max {
		return strings.TrimSpace(text + suffix)
	}

	keep := max - utf8.RuneCountInString(suffix) - 1
	if keep < 0 {
		keep = 0
	}
	runes := []rune(text)
	if keep > len(runes) {
		keep = len(runes)
	}
	return strings.TrimSpace(string(runes[:keep])) + "…" + suffix
}

// Noop skips every announcement, logging why once per call.
type Noop struct {
	Reason string
	Log    *slog.Logger
}

func (n Noop) Announce(_ context.Context, _, link string) (Outcome, error) {
	n.Log.Info("announcement skipped", "reason", n.Reason, "url", link)
	return Skipped, nil
}

// Multi fans an announcement out to every announcer in order. It reports
// Posted when at least one of them posted.
type Multi []Announcer

func (m Multi) Announce(ctx context.Context, text, link string) (Outcome, error) {
	outcome := Skipped
	var errs []error
	for _, a := range m {
		o, err := a.Announce(ctx, text, link)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if o == Posted {
			outcome = Posted
		}
	}
	return outcome, errors.Join(errs...)
}
