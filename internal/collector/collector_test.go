package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"systempulse/internal/alerts"
	"systempulse/internal/models"
	"systempulse/internal/source"
)

type fixedSource struct{ m models.SystemMetrics }

func (s fixedSource) Current() models.SystemMetrics { return s.m }

type fakeStore struct {
	mu    sync.Mutex
	calls int
	saved []models.SystemMetrics
	err   error
	delay time.Duration
}

func (s *fakeStore) SaveSnapshot(_ context.Context, m models.SystemMetrics) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, m)
	return nil
}

func (s *fakeStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeStore) Saved() []models.SystemMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SystemMetrics(nil), s.saved...)
}

// gatedStore blocks every save until release is closed.
type gatedStore struct {
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func (s *gatedStore) SaveSnapshot(context.Context, models.SystemMetrics) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

type recorder struct {
	mu       sync.Mutex
	metrics  int
	alerts   []models.AlertEvent
	panicOn  int
	attempts int
}

func (r *recorder) BroadcastMetrics(models.SystemMetrics) {
	r.mu.Lock()
	r.attempts++
	n := r.attempts
	r.mu.Unlock()
	if n == r.panicOn {
		panic("boom")
	}
	r.mu.Lock()
	r.metrics++
	r.mu.Unlock()
}

func (r *recorder) BroadcastAlert(ev models.AlertEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, ev)
}

func (r *recorder) Count() int { return 3 }

func (r *recorder) Metrics() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

func (r *recorder) Alerts() []models.AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AlertEvent(nil), r.alerts...)
}

type sinkRecorder struct {
	mu      sync.Mutex
	metrics int
	alerts  int
	err     error
	delay   time.Duration
}

func (s *sinkRecorder) PublishMetrics(context.Context, models.SystemMetrics) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics++
	return s.err
}

func (s *sinkRecorder) PublishAlert(context.Context, models.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts++
	return s.err
}

func (s *sinkRecorder) Counts() (metrics, alerts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics, s.alerts
}

func hot() models.SystemMetrics {
	return models.SystemMetrics{
		CPU:     models.CPUStats{Usage: 95, Cores: 4},
		Memory:  models.UsageStats{Usage: 82},
		Disk:    models.UsageStats{Usage: 10},
		Network: models.NetworkStats{Download: 1, Upload: 1},
		System:  models.HostStats{LoadAverage: [3]float64{0.2, 0.2, 0.2}},
	}
}

func fastOpts() Options {
	return Options{
		PersistInterval:   10 * time.Millisecond,
		BroadcastInterval: 5 * time.Millisecond,
		TestAlertDelay:    time.Millisecond,
		TestAlertRevert:   time.Millisecond,
	}
}

func newCollector(src source.Source, store Store, hub Broadcaster, sinks ...Sink) *Collector {
	return New(zerolog.Nop(), src, store, alerts.NewEngine(zerolog.Nop(), 0), hub, fastOpts(), sinks...)
}

func TestStartStopIdempotent(t *testing.T) {
	c := newCollector(fixedSource{}, &fakeStore{}, &recorder{})
	assert.False(t, c.Stop(), "stop before start is a no-op")

	require.True(t, c.Start(context.Background()))
	assert.False(t, c.Start(context.Background()))
	assert.True(t, c.Running())

	assert.True(t, c.Stop())
	assert.False(t, c.Stop())
	assert.False(t, c.Running())
}

func TestDefaultsApplied(t *testing.T) {
	c := New(zerolog.Nop(), fixedSource{}, &fakeStore{}, alerts.NewEngine(zerolog.Nop(), 0), &recorder{}, Options{})
	st := c.Status()
	assert.Equal(t, int64(30000), st.CollectionInterval)
	assert.Equal(t, int64(2000), st.BroadcastInterval)
	assert.False(t, st.IsCollecting)
}

func TestSchedulesRunAndStop(t *testing.T) {
	store := &fakeStore{}
	rec := &recorder{}
	c := newCollector(fixedSource{}, store, rec)
	require.True(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return store.Calls() >= 2 && rec.Metrics() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, c.Stop())

	saves, broadcasts := store.Calls(), rec.Metrics()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, saves, store.Calls(), "no persist tick after Stop returns")
	assert.Equal(t, broadcasts, rec.Metrics(), "no broadcast tick after Stop returns")

	st := c.Status()
	require.NotNil(t, st.LastPersistAt)
	require.NotNil(t, st.LastBroadcastAt)
	require.NotNil(t, st.StartedAt)
}

func TestPersistFailureDoesNotStopTicks(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	rec := &recorder{}
	c := newCollector(fixedSource{}, store, rec)
	require.True(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool { return store.Calls() >= 3 && rec.Metrics() >= 3 }, 2*time.Second, 5*time.Millisecond)
	st := c.Status()
	assert.Nil(t, st.LastPersistAt, "a failed save never counts as persisted")
	assert.GreaterOrEqual(t, st.PersistFailures, 3)
}

func TestBroadcastPanicIsIsolated(t *testing.T) {
	rec := &recorder{panicOn: 1}
	c := newCollector(fixedSource{}, &fakeStore{}, rec)
	require.True(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool { return rec.Metrics() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.Status().BroadcastFailures)
}

func TestCollectNowMatchesScheduledTick(t *testing.T) {
	manualRec := &recorder{}
	manual := newCollector(fixedSource{m: hot()}, &fakeStore{}, manualRec)
	_, fired, err := manual.CollectNow(context.Background())
	require.NoError(t, err)

	tickRec := &recorder{}
	scheduled := newCollector(fixedSource{m: hot()}, &fakeStore{}, tickRec)
	require.NoError(t, scheduled.broadcastTick(context.Background()))

	type key struct {
		metric string
		level  models.AlertLevel
		value  float64
	}
	keys := func(evs []models.AlertEvent) []key {
		var out []key
		for _, ev := range evs {
			out = append(out, key{ev.Metric, ev.Level, ev.Value})
		}
		return out
	}
	require.Len(t, fired, 2)
	assert.Equal(t, keys(fired), keys(manualRec.Alerts()))
	assert.Equal(t, keys(fired), keys(tickRec.Alerts()))
	assert.Equal(t, models.LevelCritical, fired[0].Level)
	assert.Equal(t, models.LevelWarning, fired[1].Level)
}

func TestCollectNowPersistsAndBroadcastsOneSnapshot(t *testing.T) {
	store := &fakeStore{}
	rec := &recorder{}
	c := newCollector(fixedSource{m: hot()}, store, rec)
	m, _, err := c.CollectNow(context.Background())
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, m, store.saved[0])
	assert.Equal(t, 1, rec.Metrics())
	assert.NotNil(t, c.Status().LastPersistAt)
}

func TestCollectNowBroadcastsDespiteSaveError(t *testing.T) {
	store := &fakeStore{err: errors.New("locked")}
	rec := &recorder{}
	c := newCollector(fixedSource{m: hot()}, store, rec)
	_, fired, err := c.CollectNow(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.err)
	assert.Equal(t, 1, rec.Metrics())
	assert.Len(t, fired, 2)
	assert.Nil(t, c.Status().LastPersistAt)
}

func TestSinksReceiveEverything(t *testing.T) {
	good := &sinkRecorder{}
	bad := &sinkRecorder{err: errors.New("unreachable")}
	c := newCollector(fixedSource{m: hot()}, &fakeStore{}, &recorder{}, bad, good)
	_, fired, err := c.CollectNow(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		gm, ga := good.Counts()
		bm, _ := bad.Counts()
		return gm == 1 && ga == len(fired) && bm == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSlowSinkDoesNotDelayBroadcasts(t *testing.T) {
	slow := &sinkRecorder{delay: 200 * time.Millisecond}
	rec := &recorder{}
	c := newCollector(fixedSource{}, &fakeStore{}, rec, slow)
	require.True(t, c.Start(context.Background()))
	time.Sleep(300 * time.Millisecond)
	require.True(t, c.Stop())

	assert.GreaterOrEqual(t, rec.Metrics(), 20, "broadcast ticks keep their pace")
	m, _ := slow.Counts()
	assert.LessOrEqual(t, m, 2, "one call in flight per sink")
	assert.Positive(t, c.Status().SinkDrops)
}

func TestSlowPersistDoesNotDelayBroadcasts(t *testing.T) {
	store := &fakeStore{delay: 300 * time.Millisecond}
	rec := &recorder{}
	c := newCollector(fixedSource{}, store, rec)
	require.True(t, c.Start(context.Background()))
	time.Sleep(300 * time.Millisecond)
	broadcasts := rec.Metrics()
	require.True(t, c.Stop())

	assert.GreaterOrEqual(t, broadcasts, 20, "a stuck save must not hold back the broadcast schedule")
}

func TestStartWaitsForStop(t *testing.T) {
	store := &gatedStore{entered: make(chan struct{}), release: make(chan struct{})}
	c := newCollector(fixedSource{}, store, &recorder{})
	require.True(t, c.Start(context.Background()))
	<-store.entered

	stopped := make(chan bool)
	go func() { stopped <- c.Stop() }()
	require.Eventually(t, func() bool { return !c.Running() }, time.Second, time.Millisecond)

	started := make(chan bool)
	go func() { started <- c.Start(context.Background()) }()
	select {
	case <-started:
		t.Fatal("Start returned while the previous loops were still draining")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	assert.True(t, <-stopped)
	assert.True(t, <-started)
	assert.True(t, c.Running())
	assert.True(t, c.Stop())
}

func TestStatusComposite(t *testing.T) {
	c := newCollector(fixedSource{m: hot()}, &fakeStore{}, &recorder{})
	_, _, err := c.CollectNow(context.Background())
	require.NoError(t, err)

	st := c.Status()
	assert.False(t, st.IsCollecting)
	assert.Equal(t, int64(10), st.CollectionInterval)
	assert.Equal(t, int64(5), st.BroadcastInterval)
	assert.Equal(t, 3, st.ConnectedClients)
	assert.Equal(t, 2, st.AlertStats.Total)
	assert.Nil(t, st.StartedAt)
}

func TestTriggerTestAlerts(t *testing.T) {
	src := source.NewMockWithSeed(7)
	rec := &recorder{}
	store := &fakeStore{}
	c := newCollector(src, store, rec)

	done, err := c.TriggerTestAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, source.LoadHigh, src.Level())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("test alerts did not finish")
	}
	assert.Equal(t, source.LoadNormal, src.Level())
	assert.Equal(t, 1, store.Calls())

	var critical []string
	for _, ev := range rec.Alerts() {
		if ev.Level == models.LevelCritical {
			critical = append(critical, ev.Metric)
		}
	}
	assert.Equal(t, []string{"cpu_usage", "memory_usage", "disk_usage", "load_average"}, critical)
}

func TestTriggerTestAlertsCancelledReverts(t *testing.T) {
	src := source.NewMockWithSeed(1)
	c := New(zerolog.Nop(), src, &fakeStore{}, alerts.NewEngine(zerolog.Nop(), 0), &recorder{}, Options{TestAlertDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done, err := c.TriggerTestAlerts(ctx)
	require.NoError(t, err)
	cancel()
	<-done
	assert.Equal(t, source.LoadNormal, src.Level())
}

func TestOverlappingTestAlertsStayHigh(t *testing.T) {
	src := source.NewMockWithSeed(3)
	store := &fakeStore{}
	c := New(zerolog.Nop(), src, store, alerts.NewEngine(zerolog.Nop(), 0), &recorder{}, Options{
		PersistInterval:   time.Hour,
		BroadcastInterval: time.Hour,
		TestAlertDelay:    20 * time.Millisecond,
		TestAlertRevert:   time.Millisecond,
	})

	first, err := c.TriggerTestAlerts(context.Background())
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := c.TriggerTestAlerts(context.Background())
	require.NoError(t, err)

	for _, done := range []<-chan struct{}{first, second} {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("test alerts did not finish")
		}
	}

	saved := store.Saved()
	require.Len(t, saved, 2)
	for _, m := range saved {
		assert.GreaterOrEqual(t, m.CPU.Usage, 92.0, "each trigger collects under high load")
	}
	assert.Equal(t, source.LoadNormal, src.Level())
}

func TestTriggerTestAlertsUnsupported(t *testing.T) {
	c := newCollector(fixedSource{}, &fakeStore{}, &recorder{})
	_, err := c.TriggerTestAlerts(context.Background())
	assert.ErrorIs(t, err, ErrLoadSimulationUnsupported)
}
