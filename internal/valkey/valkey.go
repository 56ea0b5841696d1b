package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/valkey-io/valkey-go"

	"systempulse/internal/models"
)

type Options struct {
	Addr     string
	Password string
	Prefix   string
}

type publisher interface {
	Publish(ctx context.Context, channel, msg string) error
	Close()
}

type client struct {
	c valkey.Client
}

func (c *client) Publish(ctx context.Context, channel, msg string) error {
	return c.c.Do(ctx, c.c.B().Publish().Channel(channel).Message(msg).Build()).Error()
}

func (c *client) Close() { c.c.Close() }

// Mirror republishes metrics and alerts onto valkey channels so other
// processes can follow the live feed without holding a websocket.
type Mirror struct {
	log     zerolog.Logger
	pub     publisher
	metrics string
	alerts  string
}

func New(opts Options, logger zerolog.Logger) (*Mirror, error) {
	c, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Do(ctx, c.B().Ping().Build()).Error(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}
	logger.Info().Str("addr", opts.Addr).Msg("connected to valkey")
	return newMirror(&client{c: c}, opts.Prefix, logger), nil
}

func newMirror(pub publisher, prefix string, logger zerolog.Logger) *Mirror {
	if prefix == "" {
		prefix = "systempulse"
	}
	return &Mirror{log: logger, pub: pub, metrics: prefix + ":metrics", alerts: prefix + ":alerts"}
}

func (m *Mirror) Channels() (metrics, alerts string) { return m.metrics, m.alerts }

func (m *Mirror) PublishMetrics(ctx context.Context, s models.SystemMetrics) error {
	return m.publish(ctx, m.metrics, models.Envelope{Event: models.EventMetricsUpdate, Data: s})
}

func (m *Mirror) PublishAlert(ctx context.Context, ev models.AlertEvent) error {
	return m.publish(ctx, m.alerts, models.Envelope{Event: models.EventSystemAlert, Data: ev})
}

func (m *Mirror) publish(ctx context.Context, channel string, env models.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := m.pub.Publish(ctx, channel, string(b)); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func (m *Mirror) Close() {
	m.pub.Close()
	m.log.Info().Msg("valkey mirror closed")
}
