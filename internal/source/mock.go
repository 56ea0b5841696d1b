package source

import (
	"math/rand/v2"
	"sync"
	"time"

	"systempulse/internal/models"
)

const (
	mockCores       = 8
	mockMemoryBytes = int64(16) << 30
	mockDiskBytes   = int64(500) << 30
)

// Mock generates synthetic snapshots. SimulateLoad(LoadHigh) pushes every
// reading past the default critical thresholds until reset.
type Mock struct {
	mu    sync.Mutex
	rng   *rand.Rand
	level LoadLevel
	now   func() time.Time
}

func NewMock() *Mock {
	return NewMockWithSeed(uint64(time.Now().UnixNano()))
}

func NewMockWithSeed(seed uint64) *Mock {
	return &Mock{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), level: LoadNormal, now: time.Now}
}

func (m *Mock) SimulateLoad(level LoadLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if level != LoadHigh {
		level = LoadNormal
	}
	m.level = level
}

func (m *Mock) Level() LoadLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func (m *Mock) Current() models.SystemMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cpu, memFrac, diskFrac, down, up float64
	var loads [3]float64
	if m.level == LoadHigh {
		cpu = m.between(92, 100)
		memFrac = m.between(0.96, 0.99)
		diskFrac = m.between(0.96, 0.99)
		down = m.between(300, 400)
		up = m.between(250, 300)
		for i := range loads {
			loads[i] = round(m.between(4.5, 6), 2)
		}
	} else {
		cpu = m.between(0, 100)
		memFrac = m.between(0.3, 0.7)
		diskFrac = m.between(0.2, 0.8)
		down = m.between(0, 100)
		up = m.between(0, 50)
		for i := range loads {
			loads[i] = round(m.between(0, 2), 2)
		}
	}

	memUsed := int64(float64(mockMemoryBytes) * memFrac)
	diskUsed := int64(float64(mockDiskBytes) * diskFrac)
	return models.SystemMetrics{
		Timestamp: m.now().UTC(),
		CPU:       models.CPUStats{Usage: round(cpu, 1), Cores: mockCores},
		Memory: models.UsageStats{
			Total: mockMemoryBytes,
			Used:  memUsed,
			Free:  mockMemoryBytes - memUsed,
			Usage: usagePct(memUsed, mockMemoryBytes),
		},
		Disk: models.UsageStats{
			Total: mockDiskBytes,
			Used:  diskUsed,
			Free:  mockDiskBytes - diskUsed,
			Usage: usagePct(diskUsed, mockDiskBytes),
		},
		Network: models.NetworkStats{Download: round(down, 1), Upload: round(up, 1)},
		System:  models.HostStats{Uptime: m.rng.Int64N(86400), LoadAverage: loads},
	}
}

func (m *Mock) between(lo, hi float64) float64 {
	return lo + m.rng.Float64()*(hi-lo)
}
