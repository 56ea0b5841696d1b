package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockNormalRanges(t *testing.T) {
	m := NewMockWithSeed(42)
	for i := 0; i < 200; i++ {
		s := m.Current()
		assert.GreaterOrEqual(t, s.CPU.Usage, 0.0)
		assert.LessOrEqual(t, s.CPU.Usage, 100.0)
		assert.Equal(t, 8, s.CPU.Cores)
		assert.Equal(t, s.Memory.Total, s.Memory.Used+s.Memory.Free)
		assert.Equal(t, s.Disk.Total, s.Disk.Used+s.Disk.Free)
		assert.GreaterOrEqual(t, s.Memory.Usage, 30.0)
		assert.LessOrEqual(t, s.Memory.Usage, 70.0)
		assert.LessOrEqual(t, s.Network.Download, 100.0)
		assert.LessOrEqual(t, s.Network.Upload, 50.0)
		assert.Less(t, s.System.Uptime, int64(86400))
		for _, l := range s.System.LoadAverage {
			assert.GreaterOrEqual(t, l, 0.0)
			assert.LessOrEqual(t, l, 2.0)
		}
	}
}

func TestMockHighLoadCrossesCriticalDefaults(t *testing.T) {
	m := NewMockWithSeed(7)
	m.SimulateLoad(LoadHigh)
	require.Equal(t, LoadHigh, m.Level())

	s := m.Current()
	assert.GreaterOrEqual(t, s.CPU.Usage, 90.0)
	assert.GreaterOrEqual(t, s.Memory.Usage, 95.0)
	assert.GreaterOrEqual(t, s.Disk.Usage, 95.0)
	assert.GreaterOrEqual(t, s.System.LoadAverage[0], 4.0)
	assert.Greater(t, s.Network.Download+s.Network.Upload, 500.0)

	m.SimulateLoad("low")
	assert.Equal(t, LoadNormal, m.Level())
}

func TestUsagePct(t *testing.T) {
	assert.Equal(t, 33.3, usagePct(1, 3))
	assert.Equal(t, 0.0, usagePct(5, 0))
	assert.Equal(t, 1.24, round(1.2351, 2))
}

func TestNewSource(t *testing.T) {
	s, err := New("mock")
	require.NoError(t, err)
	_, ok := s.(LoadSimulator)
	assert.True(t, ok)

	s, err = New("host")
	require.NoError(t, err)
	_, ok = s.(LoadSimulator)
	assert.False(t, ok)

	_, err = New("snmp")
	assert.Error(t, err)
}
