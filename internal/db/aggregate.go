package db

import (
	"time"

	"systempulse/internal/models"
)

type series struct {
	sum   float64
	max   float64
	count int
}

func (s *series) add(v *float64) {
	if v == nil {
		return
	}
	if s.count == 0 || *v > s.max {
		s.max = *v
	}
	s.sum += *v
	s.count++
}

func (s series) avg() *float64 {
	if s.count == 0 {
		return nil
	}
	v := s.sum / float64(s.count)
	return &v
}

func (s series) peak() *float64 {
	if s.count == 0 {
		return nil
	}
	v := s.max
	return &v
}

type bucketAcc struct {
	start          time.Time
	rows           int64
	cpu, mem, disk series
	down, up       series
}

// aggregate expects recs sorted by ts ascending.
func aggregate(recs []models.MetricRecord, width time.Duration) []models.AggregateBucket {
	var accs []*bucketAcc
	var cur *bucketAcc
	for _, rec := range recs {
		start := rec.TS.UTC().Truncate(width)
		if cur == nil || !cur.start.Equal(start) {
			cur = &bucketAcc{start: start}
			accs = append(accs, cur)
		}
		cur.rows++
		cur.cpu.add(rec.CPUUsage)
		cur.mem.add(rec.MemoryUsage)
		cur.disk.add(rec.DiskUsage)
		cur.down.add(rec.NetworkDownload)
		cur.up.add(rec.NetworkUpload)
	}
	out := make([]models.AggregateBucket, 0, len(accs))
	for _, a := range accs {
		out = append(out, models.AggregateBucket{
			Bucket:             a.start,
			AvgCPUUsage:        a.cpu.avg(),
			AvgMemoryUsage:     a.mem.avg(),
			AvgDiskUsage:       a.disk.avg(),
			AvgNetworkDownload: a.down.avg(),
			AvgNetworkUpload:   a.up.avg(),
			MaxCPUUsage:        a.cpu.peak(),
			MaxMemoryUsage:     a.mem.peak(),
			MaxDiskUsage:       a.disk.peak(),
			Count:              a.rows,
		})
	}
	return out
}
