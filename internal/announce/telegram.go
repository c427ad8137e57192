package announce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/aurore/internal/retry"
)

const (
	telegramAPI       = "https://api.telegram.org"
	telegramMaxLength = 4096
)

// Telegram sends the announcement to a chat or channel through the Bot API.
type Telegram struct {
	token  string
	chatID string
	base   string
	client *http.Client
	retry  retry.RetryConfig
	log    *slog.Logger
}

func NewTelegram(token, chatID string, log *slog.Logger) *Telegram {
	return &Telegram{
		token:  token,
		chatID: chatID,
		base:   telegramAPI,
		client: &http.Client{Timeout: 30 * time.Second},
		retry:  retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		log:    log,
	}
}

func (t *Telegram) Announce(ctx context.Context, text, link string) (Outcome, error) {
	// The length limit applies to the text after entity parsing, so cut before escaping.
	message := html.EscapeString(ComposeStatus(text, link, telegramMaxLength))

	attempt := 0
	err := retry.WithRetry(ctx, t.retry, func() error {
		attempt++
		err := t.sendMessageOnce(ctx, message)
		if err != nil {
			t.log.Warn("error sending to Telegram", "try", attempt, "err", err)
		}
		return err
	})
	if err != nil {
		return Skipped, fmt.Errorf("telegram: %w", err)
	}
	t.log.Info("message sent to Telegram", "try", attempt)
	return Posted, nil
}

// sendMessageOnce does one try; link previews stay on so the page card shows.
func (t *Telegram) sendMessageOnce(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)

	payload := map[string]interface{}{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("error make JSON: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return retry.CheckStatus(resp.StatusCode, string(bytes.TrimSpace(snippet)))
}
