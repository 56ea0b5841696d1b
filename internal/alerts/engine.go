package alerts

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"systempulse/internal/models"
)

const (
	HistoryCapacity       = 100
	DefaultCooldown       = 60 * time.Second
	DefaultHistoryLimit   = 50
	NetworkUsageThreshold = 500.0
	statsWindow           = 24 * time.Hour
)

// DefaultThresholds is the threshold table seeded at startup.
func DefaultThresholds() []models.AlertThreshold {
	return []models.AlertThreshold{
		{Metric: models.AlertMetricCPU, WarningThreshold: 70, CriticalThreshold: 90, Enabled: true},
		{Metric: models.AlertMetricMemory, WarningThreshold: 80, CriticalThreshold: 95, Enabled: true},
		{Metric: models.AlertMetricDisk, WarningThreshold: 85, CriticalThreshold: 95, Enabled: true},
		{Metric: models.AlertMetricLoad, WarningThreshold: 2.0, CriticalThreshold: 4.0, Enabled: true},
	}
}

type check struct {
	metric  string
	display string
	unit    string
	value   func(models.SystemMetrics) float64
}

// checks run in this order on every evaluation; network_usage follows them.
var checks = []check{
	{models.AlertMetricCPU, "CPU Usage", "%", func(m models.SystemMetrics) float64 { return m.CPU.Usage }},
	{models.AlertMetricMemory, "Memory Usage", "%", func(m models.SystemMetrics) float64 { return m.Memory.Usage }},
	{models.AlertMetricDisk, "Disk Usage", "%", func(m models.SystemMetrics) float64 { return m.Disk.Usage }},
	{models.AlertMetricLoad, "Load Average (1min)", "", func(m models.SystemMetrics) float64 { return m.System.LoadAverage[0] }},
}

type cooldownKey struct {
	metric string
	level  models.AlertLevel
}

type Engine struct {
	log      zerolog.Logger
	now      func() time.Time
	cooldown time.Duration

	mu         sync.Mutex
	thresholds []models.AlertThreshold
	lastFired  map[cooldownKey]time.Time
	history    *ring
}

func NewEngine(logger zerolog.Logger, cooldown time.Duration) *Engine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Engine{
		log:        logger,
		now:        time.Now,
		cooldown:   cooldown,
		thresholds: DefaultThresholds(),
		lastFired:  map[cooldownKey]time.Time{},
		history:    newRing(HistoryCapacity),
	}
}

// Check evaluates one snapshot and returns the alerts that fired, in check order.
func (e *Engine) Check(m models.SystemMetrics) []models.AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.AlertEvent
	for _, c := range checks {
		if ev, ok := e.checkThreshold(c, c.value(m)); ok {
			out = append(out, ev)
		}
	}

	total := m.Network.Download + m.Network.Upload
	if total > NetworkUsageThreshold {
		msg := fmt.Sprintf("High network usage: %.1f MB/s", total)
		if ev, ok := e.fire(models.AlertMetricNetwork, total, models.LevelWarning, msg, NetworkUsageThreshold); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (e *Engine) checkThreshold(c check, value float64) (models.AlertEvent, bool) {
	th, ok := e.lookup(c.metric)
	if !ok || !th.Enabled {
		return models.AlertEvent{}, false
	}
	var level models.AlertLevel
	var bound float64
	switch {
	case value >= th.CriticalThreshold:
		level, bound = models.LevelCritical, th.CriticalThreshold
	case value >= th.WarningThreshold:
		level, bound = models.LevelWarning, th.WarningThreshold
	default:
		return models.AlertEvent{}, false
	}
	label := "WARNING"
	if level == models.LevelCritical {
		label = "CRITICAL"
	}
	msg := fmt.Sprintf("%s: %s is at %s%s (threshold: %s%s)", label, c.display, formatValue(value), c.unit, formatValue(bound), c.unit)
	return e.fire(c.metric, value, level, msg, bound)
}

// fire applies the per (metric, level) cooldown and records the alert.
func (e *Engine) fire(metric string, value float64, level models.AlertLevel, msg string, threshold float64) (models.AlertEvent, bool) {
	now := e.now()
	key := cooldownKey{metric: metric, level: level}
	if last, ok := e.lastFired[key]; ok && now.Sub(last) < e.cooldown {
		return models.AlertEvent{}, false
	}
	e.lastFired[key] = now
	ev := models.AlertEvent{Metric: metric, Value: value, Level: level, Message: msg, Threshold: threshold, TS: now.UTC()}
	e.history.push(ev)
	e.log.Warn().Str("level", string(level)).Str("metric", metric).Float64("value", value).Msg(msg)
	return ev, true
}

func (e *Engine) lookup(metric string) (models.AlertThreshold, bool) {
	for _, th := range e.thresholds {
		if th.Metric == metric {
			return th, true
		}
	}
	return models.AlertThreshold{}, false
}

// History returns up to limit alerts, newest first.
func (e *Engine) History(limit int) []models.AlertEvent {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	e.mu.Lock()
	items := e.history.items()
	e.mu.Unlock()

	if limit > len(items) {
		limit = len(items)
	}
	out := make([]models.AlertEvent, 0, limit)
	for i := len(items) - 1; i >= len(items)-limit; i-- {
		ev := items[i]
		ev.ID = alertID(ev)
		out = append(out, ev)
	}
	return out
}

func (e *Engine) Thresholds() []models.AlertThreshold {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.AlertThreshold, len(e.thresholds))
	copy(out, e.thresholds)
	return out
}

// UpdateThreshold merges patch into the threshold for metric. It reports false
// when the metric is unknown or the merged bounds would not keep warning < critical.
func (e *Engine) UpdateThreshold(metric string, patch models.ThresholdPatch) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, th := range e.thresholds {
		if th.Metric != metric {
			continue
		}
		if patch.WarningThreshold != nil {
			th.WarningThreshold = *patch.WarningThreshold
		}
		if patch.CriticalThreshold != nil {
			th.CriticalThreshold = *patch.CriticalThreshold
		}
		if patch.Enabled != nil {
			th.Enabled = *patch.Enabled
		}
		if th.WarningThreshold >= th.CriticalThreshold {
			return false
		}
		e.thresholds[i] = th
		e.log.Info().Str("metric", metric).Float64("warning", th.WarningThreshold).Float64("critical", th.CriticalThreshold).Bool("enabled", th.Enabled).Msg("threshold updated")
		return true
	}
	return false
}

func (e *Engine) ClearCooldowns() {
	e.mu.Lock()
	clear(e.lastFired)
	e.mu.Unlock()
	e.log.Info().Msg("alert cooldowns cleared")
}

// Stats summarizes the in-memory history; the breakdowns cover the last 24h.
func (e *Engine) Stats() models.AlertStats {
	e.mu.Lock()
	items := e.history.items()
	now := e.now()
	e.mu.Unlock()

	st := models.AlertStats{Total: len(items), ByLevel: map[string]int{}, ByMetric: map[string]int{}}
	for _, ev := range items {
		if now.Sub(ev.TS) >= statsWindow {
			continue
		}
		st.Last24h++
		st.ByLevel[string(ev.Level)]++
		st.ByMetric[ev.Metric]++
	}
	if len(items) > 0 {
		last := items[len(items)-1]
		last.ID = alertID(last)
		st.LastAlert = &last
	}
	return st
}

func alertID(ev models.AlertEvent) string {
	return fmt.Sprintf("%s_%d", ev.Metric, ev.TS.UnixMilli())
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
