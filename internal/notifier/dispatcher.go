package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"systempulse/internal/models"
)

const (
	DefaultQueueSize = 32
	sendTimeout      = 45 * time.Second
)

var ErrQueueFull = errors.New("notification queue full")

type Sender interface {
	Enabled() bool
	Send(ctx context.Context, msg string) error
}

// Dispatcher forwards critical alerts to a Sender from its own goroutine, so
// a slow chat API never holds up a broadcast tick.
type Dispatcher struct {
	log    zerolog.Logger
	sender Sender
	queue  chan models.AlertEvent
}

func NewDispatcher(logger zerolog.Logger, sender Sender, size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{log: logger, sender: sender, queue: make(chan models.AlertEvent, size)}
}

func (d *Dispatcher) PublishMetrics(context.Context, models.SystemMetrics) error { return nil }

// PublishAlert queues critical alerts. Warnings and alerts arriving while the
// sender is unconfigured are ignored.
func (d *Dispatcher) PublishAlert(_ context.Context, ev models.AlertEvent) error {
	if ev.Level != models.LevelCritical || !d.sender.Enabled() {
		return nil
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s alert", ErrQueueFull, ev.Metric)
	}
}

// Run drains the queue until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := d.sender.Send(sendCtx, FormatAlert(ev))
			cancel()
			if err != nil {
				d.log.Error().Err(err).Str("metric", ev.Metric).Msg("telegram send failed")
				continue
			}
			d.log.Info().Str("metric", ev.Metric).Msg("alert sent to telegram")
		}
	}
}

func FormatAlert(ev models.AlertEvent) string {
	return fmt.Sprintf("[%s] %s\nmetric: %s\nvalue: %.2f (threshold %.2f)\nat: %s",
		strings.ToUpper(string(ev.Level)), ev.Message, ev.Metric, ev.Value, ev.Threshold, ev.TS.UTC().Format(time.RFC3339))
}
