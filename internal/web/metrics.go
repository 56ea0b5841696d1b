package web

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"systempulse/internal/db"
	"systempulse/internal/models"
)

func (s *Server) handleCurrent(c echo.Context) error {
	return c.JSON(http.StatusOK, s.src.Current())
}

func (s *Server) handleSaveCurrent(c echo.Context) error {
	m := s.src.Current()
	if err := s.repo.SaveSnapshot(c.Request().Context(), m); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "save metrics: "+err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]any{"message": "Metrics saved", "metrics": m})
}

type formattedUsage struct {
	models.UsageStats
	TotalFormatted string `json:"totalFormatted"`
	UsedFormatted  string `json:"usedFormatted"`
	FreeFormatted  string `json:"freeFormatted"`
}

type formattedHost struct {
	models.HostStats
	UptimeFormatted string `json:"uptimeFormatted"`
}

type formattedMetrics struct {
	Timestamp time.Time           `json:"timestamp"`
	CPU       models.CPUStats     `json:"cpu"`
	Memory    formattedUsage      `json:"memory"`
	Disk      formattedUsage      `json:"disk"`
	Network   models.NetworkStats `json:"network"`
	System    formattedHost       `json:"system"`
}

func (s *Server) handleFormatted(c echo.Context) error {
	m := s.src.Current()
	return c.JSON(http.StatusOK, formattedMetrics{
		Timestamp: m.Timestamp,
		CPU:       m.CPU,
		Memory:    formatUsage(m.Memory),
		Disk:      formatUsage(m.Disk),
		Network:   m.Network,
		System:    formattedHost{HostStats: m.System, UptimeFormatted: formatUptime(m.System.Uptime)},
	})
}

func formatUsage(u models.UsageStats) formattedUsage {
	return formattedUsage{
		UsageStats:     u,
		TotalFormatted: formatBytes(u.Total),
		UsedFormatted:  formatBytes(u.Used),
		FreeFormatted:  formatBytes(u.Free),
	}
}

func formatBytes(v int64) string {
	if v < 0 {
		v = 0
	}
	return humanize.IBytes(uint64(v))
}

func formatUptime(seconds int64) string {
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

func (s *Server) handleHistory(c echo.Context) error {
	q := db.HistoryQuery{Order: strings.ToUpper(c.QueryParam("order"))}
	var err error
	if q.MetricType, err = metricTypeParam(c); err != nil {
		return err
	}
	if q.Start, err = timeParam(c, "startDate"); err != nil {
		return err
	}
	if q.End, err = timeParam(c, "endDate"); err != nil {
		return err
	}
	if q.Limit, err = intParam(c, "limit", db.DefaultHistoryLimit, 1, db.MaxHistoryLimit); err != nil {
		return err
	}
	if q.Offset, err = intParam(c, "offset", 0, 0, -1); err != nil {
		return err
	}
	if q.Order != "" && q.Order != "ASC" && q.Order != "DESC" {
		return echo.NewHTTPError(http.StatusBadRequest, "order must be ASC or DESC")
	}
	recs, err := s.repo.History(c.Request().Context(), q)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, nonNil(recs))
}

func (s *Server) handleLatest(c echo.Context) error {
	recs, err := s.repo.Latest(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, nonNil(recs))
}

func (s *Server) handleAggregated(c echo.Context) error {
	metricType, err := metricTypeParam(c)
	if err != nil {
		return err
	}
	start, err := timeParam(c, "startDate")
	if err != nil {
		return err
	}
	end, err := timeParam(c, "endDate")
	if err != nil {
		return err
	}
	to := time.Now().UTC()
	if end != nil {
		to = *end
	}
	from := to.Add(-parseRange(c.QueryParam("range")))
	if start != nil {
		from = *start
	}
	buckets, err := s.repo.Aggregated(c.Request().Context(), metricType, c.QueryParam("interval"), from, to)
	if errors.Is(err, db.ErrUnknownInterval) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, nonNil(buckets))
}

func (s *Server) handleStoreStats(c echo.Context) error {
	st, err := s.repo.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleCollect(c echo.Context) error {
	m, fired, err := s.collector.CollectNow(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "collected and broadcast, but: "+err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Metrics collected",
		"metrics": m,
		"alerts":  nonNil(fired),
	})
}

func (s *Server) handleCollectorStart(c echo.Context) error {
	started := s.collector.Start(s.base)
	msg := "Metrics collection started"
	if !started {
		msg = "Metrics collection already running"
	}
	return c.JSON(http.StatusOK, map[string]any{"message": msg, "status": s.collector.Status()})
}

func (s *Server) handleCollectorStop(c echo.Context) error {
	stopped := s.collector.Stop()
	msg := "Metrics collection stopped"
	if !stopped {
		msg = "Metrics collection was not running"
	}
	return c.JSON(http.StatusOK, map[string]any{"message": msg, "status": s.collector.Status()})
}

func (s *Server) handleCollectorStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.collector.Status())
}

func metricTypeParam(c echo.Context) (string, error) {
	v := c.QueryParam("metricType")
	if v == "" || v == db.MetricTypeAll {
		return db.MetricTypeAll, nil
	}
	if !slices.Contains(models.MetricTypes, v) {
		return "", echo.NewHTTPError(http.StatusBadRequest, "unknown metricType "+strconv.Quote(v))
	}
	return v, nil
}

func timeParam(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}

// intParam parses an integer query value; max < 0 means unbounded.
func intParam(c echo.Context, name string, def, min, max int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || (max >= 0 && n > max) {
		if max >= 0 {
			return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be an integer between %d and %d", name, min, max))
		}
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be an integer >= %d", name, min))
	}
	return n, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
