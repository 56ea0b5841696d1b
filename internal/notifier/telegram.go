package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const defaultAPIBase = "https://api.telegram.org"

var ErrNotConfigured = errors.New("telegram not configured")

type Telegram struct {
	APIBase string
	HTTP    *http.Client

	mu     sync.RWMutex
	token  string
	chatID string
}

// NewTelegram returns a sender whose client retries connection errors and 5xx
// responses a few times before giving up.
func NewTelegram(token, chatID string) *Telegram {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	c := rc.StandardClient()
	c.Timeout = 30 * time.Second
	return &Telegram{
		APIBase: defaultAPIBase,
		HTTP:    c,
		token:   token,
		chatID:  chatID,
	}
}

func (t *Telegram) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token != "" && t.chatID != ""
}

func (t *Telegram) Update(token, chatID string) {
	t.mu.Lock()
	t.token = token
	t.chatID = chatID
	t.mu.Unlock()
}

// Settings returns the chat id and whether a token is set.
func (t *Telegram) Settings() (chatID string, hasToken bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chatID, t.token != ""
}

func (t *Telegram) Send(ctx context.Context, msg string) error {
	t.mu.RLock()
	token, chatID := t.token, t.chatID
	t.mu.RUnlock()
	if token == "" || chatID == "" {
		return ErrNotConfigured
	}
	payload := map[string]any{"chat_id": chatID, "text": msg, "disable_web_page_preview": true}
	b, _ := json.Marshal(payload)
	u := fmt.Sprintf("%s/bot%s/sendMessage", t.APIBase, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := t.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d: %s", res.StatusCode, string(resp))
	}
	return nil
}
