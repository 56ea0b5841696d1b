package source

import (
	"fmt"
	"math"

	"systempulse/internal/models"
)

// Source produces one snapshot per call.
type Source interface {
	Current() models.SystemMetrics
}

type LoadLevel string

const (
	LoadNormal LoadLevel = "normal"
	LoadHigh   LoadLevel = "high"
)

// LoadSimulator is implemented by sources that can be biased toward a load regime.
type LoadSimulator interface {
	SimulateLoad(level LoadLevel)
}

// New returns the source registered under kind ("mock" or "host").
func New(kind string) (Source, error) {
	switch kind {
	case "", "mock":
		return NewMock(), nil
	case "host":
		return NewHost("/"), nil
	default:
		return nil, fmt.Errorf("unknown metrics source %q", kind)
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func usagePct(used, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return round(float64(used)/float64(total)*100, 1)
}
