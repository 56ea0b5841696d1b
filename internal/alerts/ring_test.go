package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"systempulse/internal/models"
)

func TestRingEvictsOldest(t *testing.T) {
	r := newRing(3)
	assert.Empty(t, r.items())
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		r.push(models.AlertEvent{Metric: m})
	}
	var got []string
	for _, ev := range r.items() {
		got = append(got, ev.Metric)
	}
	assert.Equal(t, []string{"c", "d", "e"}, got)
}
