package models

import "time"

type CPUStats struct {
	Usage float64 `json:"usage"`
	Cores int     `json:"cores"`
}

type UsageStats struct {
	Total int64   `json:"total"`
	Used  int64   `json:"used"`
	Free  int64   `json:"free"`
	Usage float64 `json:"usage"`
}

type NetworkStats struct {
	Download float64 `json:"download"`
	Upload   float64 `json:"upload"`
}

type HostStats struct {
	Uptime      int64      `json:"uptime"`
	LoadAverage [3]float64 `json:"loadAverage"`
}

// SystemMetrics is one immutable reading of the host at Timestamp.
type SystemMetrics struct {
	Timestamp time.Time    `json:"timestamp"`
	CPU       CPUStats     `json:"cpu"`
	Memory    UsageStats   `json:"memory"`
	Disk      UsageStats   `json:"disk"`
	Network   NetworkStats `json:"network"`
	System    HostStats    `json:"system"`
}

const (
	MetricTypeCPU     = "cpu"
	MetricTypeMemory  = "memory"
	MetricTypeDisk    = "disk"
	MetricTypeNetwork = "network"
	MetricTypeSystem  = "system"
)

// MetricTypes lists persisted categories in the order a snapshot is split.
var MetricTypes = []string{MetricTypeCPU, MetricTypeMemory, MetricTypeDisk, MetricTypeNetwork, MetricTypeSystem}

// MetricRecord is one persisted row. Only the fields of its MetricType are set.
type MetricRecord struct {
	ID              int64     `json:"id"`
	TS              time.Time `json:"timestamp"`
	MetricType      string    `json:"metricType"`
	CPUUsage        *float64  `json:"cpuUsage,omitempty"`
	CPUCores        *int64    `json:"cpuCores,omitempty"`
	LoadAvg1        *float64  `json:"loadAvg1,omitempty"`
	LoadAvg5        *float64  `json:"loadAvg5,omitempty"`
	LoadAvg15       *float64  `json:"loadAvg15,omitempty"`
	MemoryTotal     *int64    `json:"memoryTotal,omitempty"`
	MemoryUsed      *int64    `json:"memoryUsed,omitempty"`
	MemoryFree      *int64    `json:"memoryFree,omitempty"`
	MemoryUsage     *float64  `json:"memoryUsage,omitempty"`
	DiskTotal       *int64    `json:"diskTotal,omitempty"`
	DiskUsed        *int64    `json:"diskUsed,omitempty"`
	DiskFree        *int64    `json:"diskFree,omitempty"`
	DiskUsage       *float64  `json:"diskUsage,omitempty"`
	NetworkDownload *float64  `json:"networkDownload,omitempty"`
	NetworkUpload   *float64  `json:"networkUpload,omitempty"`
	Uptime          *int64    `json:"uptime,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// SplitSnapshot decomposes a snapshot into one record per category.
func SplitSnapshot(m SystemMetrics) []MetricRecord {
	ts := m.Timestamp.UTC()
	cores := int64(m.CPU.Cores)
	return []MetricRecord{
		{TS: ts, MetricType: MetricTypeCPU, CPUUsage: ptr(m.CPU.Usage), CPUCores: &cores},
		{TS: ts, MetricType: MetricTypeMemory, MemoryTotal: ptr(m.Memory.Total), MemoryUsed: ptr(m.Memory.Used), MemoryFree: ptr(m.Memory.Free), MemoryUsage: ptr(m.Memory.Usage)},
		{TS: ts, MetricType: MetricTypeDisk, DiskTotal: ptr(m.Disk.Total), DiskUsed: ptr(m.Disk.Used), DiskFree: ptr(m.Disk.Free), DiskUsage: ptr(m.Disk.Usage)},
		{TS: ts, MetricType: MetricTypeNetwork, NetworkDownload: ptr(m.Network.Download), NetworkUpload: ptr(m.Network.Upload)},
		{TS: ts, MetricType: MetricTypeSystem, Uptime: ptr(m.System.Uptime), LoadAvg1: ptr(m.System.LoadAverage[0]), LoadAvg5: ptr(m.System.LoadAverage[1]), LoadAvg15: ptr(m.System.LoadAverage[2])},
	}
}

func ptr[T any](v T) *T { return &v }

type AggregateBucket struct {
	Bucket             time.Time `json:"timeBucket"`
	AvgCPUUsage        *float64  `json:"avgCpuUsage"`
	AvgMemoryUsage     *float64  `json:"avgMemoryUsage"`
	AvgDiskUsage       *float64  `json:"avgDiskUsage"`
	AvgNetworkDownload *float64  `json:"avgNetworkDownload"`
	AvgNetworkUpload   *float64  `json:"avgNetworkUpload"`
	MaxCPUUsage        *float64  `json:"maxCpuUsage"`
	MaxMemoryUsage     *float64  `json:"maxMemoryUsage"`
	MaxDiskUsage       *float64  `json:"maxDiskUsage"`
	Count              int64     `json:"count"`
}

type StoreStats struct {
	Total  int64      `json:"total"`
	Oldest *time.Time `json:"oldestTimestamp"`
	Newest *time.Time `json:"newestTimestamp"`
}

const (
	AlertMetricCPU     = "cpu_usage"
	AlertMetricMemory  = "memory_usage"
	AlertMetricDisk    = "disk_usage"
	AlertMetricLoad    = "load_average"
	AlertMetricNetwork = "network_usage"
)

type AlertLevel string

const (
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

type AlertThreshold struct {
	Metric            string  `json:"metric"`
	WarningThreshold  float64 `json:"warningThreshold"`
	CriticalThreshold float64 `json:"criticalThreshold"`
	Enabled           bool    `json:"enabled"`
}

// ThresholdPatch carries the fields of a partial threshold update; nil means keep.
type ThresholdPatch struct {
	WarningThreshold  *float64 `json:"warningThreshold,omitempty"`
	CriticalThreshold *float64 `json:"criticalThreshold,omitempty"`
	Enabled           *bool    `json:"enabled,omitempty"`
}

type AlertEvent struct {
	ID        string     `json:"id,omitempty"`
	Metric    string     `json:"metric"`
	Value     float64    `json:"value"`
	Level     AlertLevel `json:"level"`
	Message   string     `json:"message"`
	Threshold float64    `json:"threshold"`
	TS        time.Time  `json:"timestamp"`
}

type AlertStats struct {
	Total     int            `json:"total"`
	Last24h   int            `json:"last24h"`
	ByLevel   map[string]int `json:"byLevel"`
	ByMetric  map[string]int `json:"byMetric"`
	LastAlert *AlertEvent    `json:"lastAlert"`
}
