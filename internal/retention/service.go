package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"systempulse/internal/models"
)

type Store interface {
	OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.MetricRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Service struct {
	repo          Store
	retentionDays int
	archiveDir    string
	log           zerolog.Logger
	now           func() time.Time
}

type Result struct {
	Cutoff   time.Time
	Archived int
	Deleted  int64
	File     string
}

// archiveRow is the parquet layout of a metrics row; times are unix millis.
type archiveRow struct {
	ID              int64    `parquet:"id"`
	TS              int64    `parquet:"ts_ms"`
	MetricType      string   `parquet:"metric_type"`
	CPUUsage        *float64 `parquet:"cpu_usage"`
	CPUCores        *int64   `parquet:"cpu_cores"`
	LoadAvg1        *float64 `parquet:"load_avg_1"`
	LoadAvg5        *float64 `parquet:"load_avg_5"`
	LoadAvg15       *float64 `parquet:"load_avg_15"`
	MemoryTotal     *int64   `parquet:"memory_total"`
	MemoryUsed      *int64   `parquet:"memory_used"`
	MemoryFree      *int64   `parquet:"memory_free"`
	MemoryUsage     *float64 `parquet:"memory_usage"`
	DiskTotal       *int64   `parquet:"disk_total"`
	DiskUsed        *int64   `parquet:"disk_used"`
	DiskFree        *int64   `parquet:"disk_free"`
	DiskUsage       *float64 `parquet:"disk_usage"`
	NetworkDownload *float64 `parquet:"network_download"`
	NetworkUpload   *float64 `parquet:"network_upload"`
	Uptime          *int64   `parquet:"uptime"`
	CreatedAt       int64    `parquet:"created_at_ms"`
}

func NewService(repo Store, days int, archiveDir string, logger zerolog.Logger) *Service {
	if days <= 0 {
		days = 30
	}
	return &Service{repo: repo, retentionDays: days, archiveDir: archiveDir, log: logger, now: time.Now}
}

func (s *Service) Run(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("retention cleanup failed")
		return
	}
	s.log.Info().
		Time("cutoff", res.Cutoff).
		Int("archived", res.Archived).
		Int64("deleted", res.Deleted).
		Str("file", res.File).
		Msg("retention cleanup completed")
}

// RunOnce archives expired rows when an archive dir is set, then deletes them.
// Nothing is deleted if the archive could not be written.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	res := Result{Cutoff: s.now().UTC().AddDate(0, 0, -s.retentionDays)}
	if s.archiveDir != "" {
		recs, err := s.repo.OlderThan(ctx, res.Cutoff, 0)
		if err != nil {
			return res, fmt.Errorf("load expired rows: %w", err)
		}
		if len(recs) > 0 {
			file, err := s.archive(recs)
			if err != nil {
				return res, err
			}
			res.Archived, res.File = len(recs), file
		}
	}
	n, err := s.repo.DeleteOlderThan(ctx, res.Cutoff)
	if err != nil {
		return res, fmt.Errorf("delete expired rows: %w", err)
	}
	res.Deleted = n
	return res, nil
}

func (s *Service) archive(recs []models.MetricRecord) (string, error) {
	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir archive dir: %w", err)
	}
	rows := make([]archiveRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, archiveRow{
			ID:              r.ID,
			TS:              r.TS.UnixMilli(),
			MetricType:      r.MetricType,
			CPUUsage:        r.CPUUsage,
			CPUCores:        r.CPUCores,
			LoadAvg1:        r.LoadAvg1,
			LoadAvg5:        r.LoadAvg5,
			LoadAvg15:       r.LoadAvg15,
			MemoryTotal:     r.MemoryTotal,
			MemoryUsed:      r.MemoryUsed,
			MemoryFree:      r.MemoryFree,
			MemoryUsage:     r.MemoryUsage,
			DiskTotal:       r.DiskTotal,
			DiskUsed:        r.DiskUsed,
			DiskFree:        r.DiskFree,
			DiskUsage:       r.DiskUsage,
			NetworkDownload: r.NetworkDownload,
			NetworkUpload:   r.NetworkUpload,
			Uptime:          r.Uptime,
			CreatedAt:       r.CreatedAt.UnixMilli(),
		})
	}
	path := filepath.Join(s.archiveDir, fmt.Sprintf("metrics-%d.parquet", s.now().Unix()))
	if err := parquet.WriteFile(path, rows); err != nil {
		return "", fmt.Errorf("write archive %s: %w", path, err)
	}
	return path, nil
}
