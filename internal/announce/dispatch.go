package announce

import (
	"context"
	"fmt"
	"log/slog"
)

// EventPublished is the repository_dispatch event type consumed by the
// downstream social workflow.
const EventPublished = "new-article-published"

// Dispatcher sends repository events; github.Repo implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, event string, payload any) error
}

// Dispatch hands the announcement to another workflow.
type Dispatch struct {
	Target Dispatcher
	Log    *slog.Logger
}

func (d Dispatch) Announce(ctx context.Context, text, link string) (Outcome, error) {
	payload := map[string]string{"title": text, "url": link}
	if err := d.Target.Dispatch(ctx, EventPublished, payload); err != nil {
		return Skipped, fmt.Errorf("dispatch: %w", err)
	}
	d.Log.Info("publication event dispatched", "event", EventPublished, "url", link)
	return Posted, nil
}
