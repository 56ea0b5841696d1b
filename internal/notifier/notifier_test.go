package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"systempulse/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTelegramSend(t *testing.T) {
	var gotURL string
	var body map[string]any
	tg := NewTelegram("tok", "99")
	tg.HTTP = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(`{"ok":true}`)), Header: http.Header{}}, nil
	})}

	require.NoError(t, tg.Send(context.Background(), "hello"))
	assert.Equal(t, "https://api.telegram.org/bottok/sendMessage", gotURL)
	assert.Equal(t, "99", body["chat_id"])
	assert.Equal(t, "hello", body["text"])
}

func TestTelegramErrorStatus(t *testing.T) {
	tg := NewTelegram("tok", "99")
	tg.HTTP = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 400, Body: io.NopCloser(strings.NewReader("bad chat")), Header: http.Header{}}, nil
	})}
	err := tg.Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad chat")
}

func TestTelegramNotConfigured(t *testing.T) {
	tg := NewTelegram("", "")
	assert.False(t, tg.Enabled())
	assert.ErrorIs(t, tg.Send(context.Background(), "x"), ErrNotConfigured)

	tg.Update("tok", "1")
	assert.True(t, tg.Enabled())
	chat, hasToken := tg.Settings()
	assert.Equal(t, "1", chat)
	assert.True(t, hasToken)
}

type fakeSender struct {
	mu      sync.Mutex
	enabled bool
	sent    []string
	err     error
}

func (f *fakeSender) Enabled() bool { return f.enabled }

func (f *fakeSender) Send(_ context.Context, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeSender) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func critical(metric string) models.AlertEvent {
	return models.AlertEvent{Metric: metric, Level: models.LevelCritical, Value: 97, Threshold: 90, Message: "CRITICAL: it is hot", TS: time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)}
}

func TestDispatcherForwardsCriticalOnly(t *testing.T) {
	s := &fakeSender{enabled: true}
	d := NewDispatcher(zerolog.Nop(), s, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.NoError(t, d.PublishAlert(ctx, models.AlertEvent{Metric: "cpu_usage", Level: models.LevelWarning}))
	require.NoError(t, d.PublishAlert(ctx, critical("cpu_usage")))
	require.NoError(t, d.PublishMetrics(ctx, models.SystemMetrics{}))

	require.Eventually(t, func() bool { return len(s.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, s.Sent()[0], "[CRITICAL]")
	assert.Contains(t, s.Sent()[0], "cpu_usage")
}

func TestDispatcherSkipsWhenDisabled(t *testing.T) {
	s := &fakeSender{}
	d := NewDispatcher(zerolog.Nop(), s, 1)
	require.NoError(t, d.PublishAlert(context.Background(), critical("cpu_usage")))
	assert.Empty(t, d.queue)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	s := &fakeSender{enabled: true}
	d := NewDispatcher(zerolog.Nop(), s, 1)
	require.NoError(t, d.PublishAlert(context.Background(), critical("cpu_usage")))
	err := d.PublishAlert(context.Background(), critical("disk_usage"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestDispatcherSurvivesSendErrors(t *testing.T) {
	s := &fakeSender{enabled: true, err: errors.New("rate limited")}
	d := NewDispatcher(zerolog.Nop(), s, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.NoError(t, d.PublishAlert(ctx, critical("cpu_usage")))
	require.NoError(t, d.PublishAlert(ctx, critical("memory_usage")))
	require.Eventually(t, func() bool { return len(s.Sent()) == 2 }, time.Second, 5*time.Millisecond)
}
