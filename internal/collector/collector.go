package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"systempulse/internal/alerts"
	"systempulse/internal/models"
	"systempulse/internal/source"
)

const (
	DefaultPersistInterval   = 30 * time.Second
	DefaultBroadcastInterval = 2 * time.Second
	DefaultTestAlertDelay    = time.Second
	DefaultTestAlertRevert   = 5 * time.Second
	DefaultSinkTimeout       = 5 * time.Second
)

var ErrLoadSimulationUnsupported = errors.New("metrics source does not support load simulation")

type Store interface {
	SaveSnapshot(ctx context.Context, m models.SystemMetrics) error
}

type Broadcaster interface {
	BroadcastMetrics(m models.SystemMetrics)
	BroadcastAlert(ev models.AlertEvent)
	Count() int
}

// Sink receives a copy of every broadcast outside the hub (pub/sub mirrors,
// chat notifiers). Sinks run off the tick with at most one call in flight per
// sink; a broadcast arriving while its sink is busy is dropped for that sink.
type Sink interface {
	PublishMetrics(ctx context.Context, m models.SystemMetrics) error
	PublishAlert(ctx context.Context, ev models.AlertEvent) error
}

type Options struct {
	PersistInterval   time.Duration
	BroadcastInterval time.Duration
	TestAlertDelay    time.Duration
	TestAlertRevert   time.Duration
	SinkTimeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.PersistInterval <= 0 {
		o.PersistInterval = DefaultPersistInterval
	}
	if o.BroadcastInterval <= 0 {
		o.BroadcastInterval = DefaultBroadcastInterval
	}
	if o.TestAlertDelay <= 0 {
		o.TestAlertDelay = DefaultTestAlertDelay
	}
	if o.TestAlertRevert <= 0 {
		o.TestAlertRevert = DefaultTestAlertRevert
	}
	if o.SinkTimeout <= 0 {
		o.SinkTimeout = DefaultSinkTimeout
	}
	return o
}

type Status struct {
	IsCollecting       bool              `json:"isCollecting"`
	CollectionInterval int64             `json:"collectionInterval"`
	BroadcastInterval  int64             `json:"broadcastInterval"`
	ConnectedClients   int               `json:"connectedClients"`
	AlertStats         models.AlertStats `json:"alertStats"`
	StartedAt          *time.Time        `json:"startedAt,omitempty"`
	LastPersistAt      *time.Time        `json:"lastPersistAt,omitempty"`
	LastBroadcastAt    *time.Time        `json:"lastBroadcastAt,omitempty"`
	PersistFailures    int               `json:"persistFailures"`
	BroadcastFailures  int               `json:"broadcastFailures"`
	SinkDrops          int64             `json:"sinkDrops"`
}

// sinkRunner serializes calls into one sink without blocking the caller.
type sinkRunner struct {
	sink Sink
	busy atomic.Bool
}

type runState struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Collector drives the persist and broadcast schedules.
type Collector struct {
	log    zerolog.Logger
	src    source.Source
	store  Store
	engine *alerts.Engine
	hub    Broadcaster
	sinks  []*sinkRunner
	opts   Options
	now    func() time.Time

	// life serializes Start and Stop, so a restart waits for the old loops.
	life sync.Mutex

	sinkDrops atomic.Int64

	mu                sync.Mutex
	run               *runState
	startedAt         time.Time
	lastPersistAt     time.Time
	lastBroadcastAt   time.Time
	persistFailures   int
	broadcastFailures int
	highLoadHolds     int
}

func New(logger zerolog.Logger, src source.Source, store Store, engine *alerts.Engine, hub Broadcaster, opts Options, sinks ...Sink) *Collector {
	runners := make([]*sinkRunner, 0, len(sinks))
	for _, s := range sinks {
		runners = append(runners, &sinkRunner{sink: s})
	}
	return &Collector{
		log:    logger,
		src:    src,
		store:  store,
		engine: engine,
		hub:    hub,
		sinks:  runners,
		opts:   opts.withDefaults(),
		now:    time.Now,
	}
}

// Start launches both schedules. A second call while running only logs.
func (c *Collector) Start(ctx context.Context) bool {
	c.life.Lock()
	defer c.life.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		c.log.Warn().Msg("metrics collection already running")
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &runState{cancel: cancel}
	r.wg.Add(2)
	go c.loop(runCtx, &r.wg, "persist", c.opts.PersistInterval, c.persistTick)
	go c.loop(runCtx, &r.wg, "broadcast", c.opts.BroadcastInterval, c.broadcastTick)
	c.run = r
	c.startedAt = c.now().UTC()
	c.log.Info().
		Dur("persist_every", c.opts.PersistInterval).
		Dur("broadcast_every", c.opts.BroadcastInterval).
		Msg("metrics collection started")
	return true
}

// Stop cancels both schedules and waits for the loops to exit. It reports
// false when the collector was not running. A Start issued meanwhile blocks
// until the old loops are gone.
func (c *Collector) Stop() bool {
	c.life.Lock()
	defer c.life.Unlock()
	c.mu.Lock()
	r := c.run
	c.run = nil
	c.mu.Unlock()
	if r == nil {
		return false
	}
	r.cancel()
	r.wg.Wait()
	c.log.Info().Msg("metrics collection stopped")
	return true
}

func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run != nil
}

func (c *Collector) loop(ctx context.Context, wg *sync.WaitGroup, name string, every time.Duration, tick func(context.Context) error) {
	defer wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.safe(name, func() error { return tick(ctx) }); err != nil {
				c.log.Error().Err(err).Str("tick", name).Msg("tick failed")
			}
		}
	}
}

// safe turns a panic inside fn into an error so one bad tick never kills a loop.
func (c *Collector) safe(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s tick panicked: %v", name, r)
		}
	}()
	return fn()
}

func (c *Collector) persistTick(ctx context.Context) error {
	return c.persist(ctx, c.src.Current())
}

func (c *Collector) broadcastTick(ctx context.Context) error {
	_, err := c.publish(ctx, c.src.Current())
	return err
}

func (c *Collector) persist(ctx context.Context, m models.SystemMetrics) error {
	if err := c.store.SaveSnapshot(ctx, m); err != nil {
		c.mu.Lock()
		c.persistFailures++
		c.mu.Unlock()
		return fmt.Errorf("save snapshot: %w", err)
	}
	c.mu.Lock()
	c.lastPersistAt = c.now().UTC()
	c.mu.Unlock()
	c.log.Debug().Msg("metrics collected and saved")
	return nil
}

// publish evaluates alerts before anything leaves the process, so a receiver
// sees the snapshot and the alerts derived from it together.
func (c *Collector) publish(ctx context.Context, m models.SystemMetrics) (out []models.AlertEvent, err error) {
	err = c.safe("publish", func() error {
		out = c.engine.Check(m)
		c.hub.BroadcastMetrics(m)
		for _, ev := range out {
			c.hub.BroadcastAlert(ev)
		}
		return nil
	})
	if err != nil {
		c.mu.Lock()
		c.broadcastFailures++
		c.mu.Unlock()
		return nil, err
	}
	for _, r := range c.sinks {
		c.offer(ctx, r, m, out)
	}
	c.mu.Lock()
	c.lastBroadcastAt = c.now().UTC()
	c.mu.Unlock()
	c.log.Debug().Int("alerts", len(out)).Msg("real-time metrics broadcast")
	return out, nil
}

// offer hands the snapshot and its alerts to r on a separate goroutine unless
// r is still busy with an earlier broadcast.
func (c *Collector) offer(ctx context.Context, r *sinkRunner, m models.SystemMetrics, evs []models.AlertEvent) {
	if !r.busy.CompareAndSwap(false, true) {
		c.sinkDrops.Add(1)
		c.log.Warn().Msg("sink busy, broadcast not forwarded")
		return
	}
	go func() {
		defer r.busy.Store(false)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.SinkTimeout)
		defer cancel()
		err := c.safe("sink", func() error {
			if err := r.sink.PublishMetrics(ctx, m); err != nil {
				c.log.Warn().Err(err).Msg("sink rejected metrics")
			}
			for _, ev := range evs {
				if err := r.sink.PublishAlert(ctx, ev); err != nil {
					c.log.Warn().Err(err).Str("metric", ev.Metric).Msg("sink rejected alert")
				}
			}
			return nil
		})
		if err != nil {
			c.log.Error().Err(err).Msg("sink failed")
		}
	}()
}

// CollectNow runs one persist and broadcast cycle on a single snapshot. The
// broadcast happens even when the save fails; the save error is returned.
func (c *Collector) CollectNow(ctx context.Context) (models.SystemMetrics, []models.AlertEvent, error) {
	m := c.src.Current()
	saveErr := c.safe("persist", func() error { return c.persist(ctx, m) })
	fired, pubErr := c.publish(ctx, m)
	c.log.Info().Int("alerts", len(fired)).Msg("manual metrics collection triggered")
	return m, fired, errors.Join(saveErr, pubErr)
}

func (c *Collector) Status() Status {
	c.mu.Lock()
	st := Status{
		IsCollecting:       c.run != nil,
		CollectionInterval: c.opts.PersistInterval.Milliseconds(),
		BroadcastInterval:  c.opts.BroadcastInterval.Milliseconds(),
		StartedAt:          timePtr(c.startedAt),
		LastPersistAt:      timePtr(c.lastPersistAt),
		LastBroadcastAt:    timePtr(c.lastBroadcastAt),
		PersistFailures:    c.persistFailures,
		BroadcastFailures:  c.broadcastFailures,
	}
	c.mu.Unlock()
	st.SinkDrops = c.sinkDrops.Load()
	st.ConnectedClients = c.hub.Count()
	st.AlertStats = c.engine.Stats()
	return st
}

// TriggerTestAlerts pushes the source into its high-load regime, collects once
// after TestAlertDelay, and releases the regime TestAlertRevert later. The
// source returns to normal only when no other trigger still holds it. The
// returned channel is closed once this trigger has released it.
func (c *Collector) TriggerTestAlerts(ctx context.Context) (<-chan struct{}, error) {
	sim, ok := c.src.(source.LoadSimulator)
	if !ok {
		return nil, ErrLoadSimulationUnsupported
	}
	c.log.Info().Msg("triggering test alerts")
	c.mu.Lock()
	c.highLoadHolds++
	sim.SimulateLoad(source.LoadHigh)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer c.releaseHighLoad(sim)
		if !sleep(ctx, c.opts.TestAlertDelay) {
			return
		}
		if _, fired, err := c.CollectNow(context.WithoutCancel(ctx)); err != nil {
			c.log.Error().Err(err).Msg("test alert collection failed")
		} else {
			c.log.Info().Int("alerts", len(fired)).Msg("test alert collection done")
		}
		sleep(ctx, c.opts.TestAlertRevert)
	}()
	return done, nil
}

func (c *Collector) releaseHighLoad(sim source.LoadSimulator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.highLoadHolds--
	if c.highLoadHolds == 0 {
		sim.SimulateLoad(source.LoadNormal)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
