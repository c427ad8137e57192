package announce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dghubble/oauth1"
)

const tweetsEndpoint = "https://api.twitter.com/2/tweets"

// Twitter posts statuses with OAuth1 user credentials.
type Twitter struct {
	client   *http.Client
	endpoint string
	max      int
	log      *slog.Logger
}

func NewTwitter(consumerKey, consumerSecret, accessToken, accessSecret string, max int, log *slog.Logger) *Twitter {
	config := oauth1.NewConfig(consumerKey, consumerSecret)
	token := oauth1.NewToken(accessToken, accessSecret)
	if max <= 0 {
		max = DefaultMaxLength
	}
	return &Twitter{
		client:   config.Client(oauth1.NoContext, token),
		endpoint: tweetsEndpoint,
		max:      max,
		log:      log,
	}
}

// Announce posts once. Status creation is not idempotent so it is never retried.
func (t *Twitter) Announce(ctx context.Context, text, link string) (Outcome, error) {
	status := ComposeStatus(text, link, t.max)
	body, err := json.Marshal(map[string]string{"text": status})
	if err != nil {
		return Skipped, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Skipped, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Skipped, fmt.Errorf("tweet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Skipped, fmt.Errorf("tweet: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	t.log.Info("tweet posted", "length", len([]rune(status)))
	return Posted, nil
}
