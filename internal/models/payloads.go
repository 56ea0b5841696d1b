package models

import "time"

// Event kinds on the real-time channel.
const (
	EventPing                  = "ping"
	EventSubscribeMetrics      = "subscribe_metrics"
	EventUnsubscribeMetrics    = "unsubscribe_metrics"
	EventRequestCurrentMetrics = "request_current_metrics"
	EventGetServerStats        = "get_server_stats"

	EventConnectionEstablished = "connection_established"
	EventServerInfo            = "server_info"
	EventPong                  = "pong"
	EventSubscriptionConfirmed = "subscription_confirmed"
	EventMetricsUpdate         = "metrics_update"
	EventMetricsRealtime       = "metrics_realtime"
	EventSystemAlert           = "system_alert"
	EventPriorityAlert         = "priority_alert"
	EventNotification          = "notification"
	EventPerformanceUpdate     = "performance_update"
)

// Envelope is the frame written to and read from a subscriber.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type Welcome struct {
	Message      string    `json:"message"`
	ClientID     string    `json:"clientId"`
	TotalClients int       `json:"totalClients"`
	Timestamp    time.Time `json:"timestamp"`
}

type ServerInfo struct {
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
	GoVersion string    `json:"goVersion"`
	Platform  string    `json:"platform"`
	Timestamp time.Time `json:"timestamp"`
}

type Pong struct {
	Message   string    `json:"message"`
	ClientID  string    `json:"clientId"`
	Timestamp time.Time `json:"timestamp"`
}

type SubscriptionConfirmed struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type MetricsUpdate struct {
	Type             string        `json:"type"`
	Data             SystemMetrics `json:"data"`
	ConnectedClients int           `json:"connectedClients"`
	Timestamp        time.Time     `json:"timestamp"`
}

// MetricsRealtime is the subscribers-only variant of MetricsUpdate.
type MetricsRealtime struct {
	MetricsUpdate
	Subscribers int `json:"subscribers"`
}

type AlertData struct {
	Level     AlertLevel `json:"level"`
	Message   string     `json:"message"`
	Metric    string     `json:"metric"`
	Value     float64    `json:"value"`
	Threshold float64    `json:"threshold"`
}

type AlertMessage struct {
	Type      string    `json:"type"`
	Priority  string    `json:"priority,omitempty"`
	Data      AlertData `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type Notification struct {
	Type      string    `json:"type"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message"`
	Level     string    `json:"level,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type PerformanceUpdate struct {
	ConnectedClients int            `json:"connectedClients"`
	Groups           map[string]int `json:"groups"`
	HasLastSnapshot  bool           `json:"hasLastSnapshot"`
	Uptime           float64        `json:"uptime"`
	Goroutines       int            `json:"goroutines"`
	HeapAllocBytes   uint64         `json:"heapAllocBytes"`
	Timestamp        time.Time      `json:"timestamp"`
}
