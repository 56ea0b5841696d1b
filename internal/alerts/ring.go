package alerts

import "systempulse/internal/models"

// ring is a fixed-capacity FIFO; pushing into a full ring evicts the oldest entry.
type ring struct {
	buf  []models.AlertEvent
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]models.AlertEvent, capacity)}
}

func (r *ring) push(ev models.AlertEvent) {
	idx := (r.head + r.size) % len(r.buf)
	if r.size == len(r.buf) {
		r.buf[r.head] = ev
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[idx] = ev
	r.size++
}

// items returns a copy, oldest first.
func (r *ring) items() []models.AlertEvent {
	out := make([]models.AlertEvent, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
