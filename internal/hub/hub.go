package hub

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"systempulse/internal/models"
)

type Group string

const (
	GroupAll     Group = "all"
	GroupMetrics Group = "metrics_subscribers"
)

const DefaultQueueSize = 64

type ConnMeta struct {
	Address   string
	UserAgent string
}

type ClientInfo struct {
	ID            string    `json:"id"`
	Address       string    `json:"address"`
	UserAgent     string    `json:"userAgent"`
	ConnectedAt   time.Time `json:"connectedAt"`
	Subscriptions []string  `json:"subscriptions"`
}

type ConnectedInfo struct {
	Total   int            `json:"total"`
	Groups  map[string]int `json:"groups"`
	Clients []ClientInfo   `json:"clients"`
}

type subscriber struct {
	id          string
	meta        ConnMeta
	connectedAt time.Time
	groups      map[Group]bool
	send        chan models.Envelope
	dropped     int
}

// Hub owns the live subscriber registry and the last broadcast snapshot.
// Every send is non-blocking: a subscriber whose queue is full misses the frame.
type Hub struct {
	log       zerolog.Logger
	version   string
	queueSize int
	now       func() time.Time
	started   time.Time

	mu   sync.Mutex
	subs map[string]*subscriber
	last *models.MetricsUpdate
}

func New(logger zerolog.Logger, version string) *Hub {
	return &Hub{
		log:       logger,
		version:   version,
		queueSize: DefaultQueueSize,
		now:       time.Now,
		started:   time.Now(),
		subs:      map[string]*subscriber{},
	}
}

// Connect registers a subscriber in the "all" group and queues the welcome
// frames plus the last snapshot. The returned channel is closed on Disconnect.
func (h *Hub) Connect(meta ConnMeta) (string, <-chan models.Envelope) {
	now := h.now()
	s := &subscriber{
		id:          uuid.NewString(),
		meta:        meta,
		connectedAt: now.UTC(),
		groups:      map[Group]bool{GroupAll: true},
		send:        make(chan models.Envelope, h.queueSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s.id] = s
	h.enqueue(s, models.EventConnectionEstablished, models.Welcome{
		Message:      "Connected to SystemPulse!",
		ClientID:     s.id,
		TotalClients: len(h.subs),
		Timestamp:    now.UTC(),
	})
	h.enqueue(s, models.EventServerInfo, models.ServerInfo{
		Version:   h.version,
		Uptime:    now.Sub(h.started).Seconds(),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Timestamp: now.UTC(),
	})
	if h.last != nil {
		h.enqueue(s, models.EventMetricsUpdate, *h.last)
	}
	h.log.Info().Str("client", s.id).Str("addr", meta.Address).Int("total", len(h.subs)).Msg("client connected")
	return s.id, s.send
}

// Disconnect drops the subscriber. It reports false for an unknown id.
func (h *Hub) Disconnect(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subs[id]
	if !ok {
		return false
	}
	delete(h.subs, id)
	close(s.send)
	h.log.Info().Str("client", id).Int("total", len(h.subs)).Int("dropped_frames", s.dropped).Msg("client disconnected")
	return true
}

// Subscribe adds the subscriber to the metrics group and immediately re-sends
// the last snapshot to that subscriber only.
func (h *Hub) Subscribe(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subs[id]
	if !ok {
		return false
	}
	s.groups[GroupMetrics] = true
	h.enqueue(s, models.EventSubscriptionConfirmed, models.SubscriptionConfirmed{
		Type:      "metrics",
		Message:   "Successfully subscribed to real-time metrics",
		Timestamp: h.now().UTC(),
	})
	if h.last != nil {
		h.enqueue(s, models.EventMetricsRealtime, h.realtime(*h.last))
	}
	h.log.Debug().Str("client", id).Msg("subscribed to metrics")
	return true
}

func (h *Hub) Unsubscribe(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subs[id]
	if !ok {
		return false
	}
	delete(s.groups, GroupMetrics)
	h.enqueue(s, models.EventSubscriptionConfirmed, models.SubscriptionConfirmed{
		Type:      "metrics",
		Message:   "Successfully unsubscribed from real-time metrics",
		Timestamp: h.now().UTC(),
	})
	h.log.Debug().Str("client", id).Msg("unsubscribed from metrics")
	return true
}

// BroadcastMetrics stores the snapshot as the last known state and sends it to
// every subscriber as metrics_update, then again to the metrics group as
// metrics_realtime.
func (h *Hub) BroadcastMetrics(m models.SystemMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	payload := models.MetricsUpdate{
		Type:             models.EventMetricsUpdate,
		Data:             m,
		ConnectedClients: len(h.subs),
		Timestamp:        h.now().UTC(),
	}
	h.last = &payload
	h.emit(GroupAll, models.EventMetricsUpdate, payload)
	h.emit(GroupMetrics, models.EventMetricsRealtime, h.realtime(payload))
	h.log.Debug().Int("clients", len(h.subs)).Msg("metrics broadcast")
}

// BroadcastAlert sends system_alert to everyone; critical alerts are followed
// by a priority_alert frame.
func (h *Hub) BroadcastAlert(ev models.AlertEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := models.AlertMessage{
		Type: models.EventSystemAlert,
		Data: models.AlertData{
			Level:     ev.Level,
			Message:   ev.Message,
			Metric:    ev.Metric,
			Value:     ev.Value,
			Threshold: ev.Threshold,
		},
		Timestamp: h.now().UTC(),
	}
	h.emit(GroupAll, models.EventSystemAlert, msg)
	if ev.Level == models.LevelCritical {
		msg.Type = models.EventPriorityAlert
		msg.Priority = "high"
		h.emit(GroupAll, models.EventPriorityAlert, msg)
	}
	h.log.Warn().Str("metric", ev.Metric).Str("level", string(ev.Level)).Msg("alert broadcast")
}

func (h *Hub) BroadcastNotification(n models.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n.Type = models.EventNotification
	n.Timestamp = h.now().UTC()
	h.emit(GroupAll, models.EventNotification, n)
	h.log.Info().Str("message", n.Message).Msg("notification broadcast")
}

// SendToClient queues one frame for id. It reports false if id is not connected.
func (h *Hub) SendToClient(id, event string, data any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subs[id]
	if !ok {
		return false
	}
	h.enqueue(s, event, data)
	return true
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// LastSnapshot returns a copy of the last broadcast payload.
func (h *Hub) LastSnapshot() (models.MetricsUpdate, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return models.MetricsUpdate{}, false
	}
	return *h.last, true
}

func (h *Hub) ConnectedInfo() ConnectedInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	info := ConnectedInfo{Total: len(h.subs), Groups: h.groupCounts(), Clients: make([]ClientInfo, 0, len(h.subs))}
	for _, s := range h.subs {
		groups := make([]string, 0, len(s.groups))
		for g := range s.groups {
			groups = append(groups, string(g))
		}
		sort.Strings(groups)
		info.Clients = append(info.Clients, ClientInfo{
			ID:            s.id,
			Address:       s.meta.Address,
			UserAgent:     s.meta.UserAgent,
			ConnectedAt:   s.connectedAt,
			Subscriptions: groups,
		})
	}
	sort.Slice(info.Clients, func(i, j int) bool {
		if info.Clients[i].ConnectedAt.Equal(info.Clients[j].ConnectedAt) {
			return info.Clients[i].ID < info.Clients[j].ID
		}
		return info.Clients[i].ConnectedAt.Before(info.Clients[j].ConnectedAt)
	})
	return info
}

func (h *Hub) Performance() models.PerformanceUpdate {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	return models.PerformanceUpdate{
		ConnectedClients: len(h.subs),
		Groups:           h.groupCounts(),
		HasLastSnapshot:  h.last != nil,
		Uptime:           now.Sub(h.started).Seconds(),
		Goroutines:       runtime.NumGoroutine(),
		HeapAllocBytes:   ms.HeapAlloc,
		Timestamp:        now.UTC(),
	}
}

// Cleanup drops every subscriber and forgets the last snapshot. Safe to call twice.
func (h *Hub) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.subs)
	for id, s := range h.subs {
		close(s.send)
		delete(h.subs, id)
	}
	h.last = nil
	if n > 0 {
		h.log.Info().Int("clients", n).Msg("hub cleaned up")
	}
}

func (h *Hub) realtime(p models.MetricsUpdate) models.MetricsRealtime {
	return models.MetricsRealtime{MetricsUpdate: p, Subscribers: h.groupCounts()[string(GroupMetrics)]}
}

func (h *Hub) groupCounts() map[string]int {
	counts := map[string]int{string(GroupAll): 0, string(GroupMetrics): 0}
	for _, s := range h.subs {
		for g := range s.groups {
			counts[string(g)]++
		}
	}
	return counts
}

// emit and enqueue expect h.mu to be held.
func (h *Hub) emit(g Group, event string, data any) {
	for _, s := range h.subs {
		if s.groups[g] {
			h.enqueue(s, event, data)
		}
	}
}

func (h *Hub) enqueue(s *subscriber, event string, data any) {
	select {
	case s.send <- models.Envelope{Event: event, Data: data}:
	default:
		s.dropped++
		h.log.Debug().Str("client", s.id).Str("event", event).Msg("send queue full, frame dropped")
	}
}
