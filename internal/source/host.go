package source

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"systempulse/internal/models"
)

// Host reads the local machine. Network rates are derived from the byte
// counter delta between consecutive calls and reported in MB/s.
type Host struct {
	diskPath string

	mu      sync.Mutex
	prevNet *netSample
}

type netSample struct {
	at   time.Time
	recv uint64
	sent uint64
}

func NewHost(diskPath string) *Host { return &Host{diskPath: diskPath} }

func (h *Host) Current() models.SystemMetrics {
	now := time.Now().UTC()
	m := models.SystemMetrics{Timestamp: now}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPU.Usage = round(pct[0], 1)
	}
	if n, err := cpu.Counts(true); err == nil {
		m.CPU.Cores = n
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		m.Memory = models.UsageStats{Total: int64(vm.Total), Used: int64(vm.Used), Free: int64(vm.Total - vm.Used)}
		m.Memory.Usage = usagePct(m.Memory.Used, m.Memory.Total)
	}

	if du, err := disk.Usage(h.diskPath); err == nil {
		m.Disk = models.UsageStats{Total: int64(du.Total), Used: int64(du.Used), Free: int64(du.Total - du.Used)}
		m.Disk.Usage = usagePct(m.Disk.Used, m.Disk.Total)
	}

	if counters, err := net.IOCounters(false); err == nil && len(counters) > 0 {
		h.mu.Lock()
		cur := &netSample{at: now, recv: counters[0].BytesRecv, sent: counters[0].BytesSent}
		if h.prevNet != nil {
			secs := cur.at.Sub(h.prevNet.at).Seconds()
			if secs > 0 && cur.recv >= h.prevNet.recv && cur.sent >= h.prevNet.sent {
				m.Network.Download = round(float64(cur.recv-h.prevNet.recv)/secs/1e6, 1)
				m.Network.Upload = round(float64(cur.sent-h.prevNet.sent)/secs/1e6, 1)
			}
		}
		h.prevNet = cur
		h.mu.Unlock()
	}

	if avg, err := load.Avg(); err == nil {
		m.System.LoadAverage = [3]float64{round(avg.Load1, 2), round(avg.Load5, 2), round(avg.Load15, 2)}
	}
	if up, err := host.Uptime(); err == nil {
		m.System.Uptime = int64(up)
	}
	return m
}
