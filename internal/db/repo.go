package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"systempulse/internal/models"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
	DefaultInterval     = "1m"
	MetricTypeAll       = "all"
)

var ErrUnknownInterval = errors.New("unknown aggregation interval")

// Intervals are the accepted aggregation bucket widths.
var Intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"1d":  24 * time.Hour,
}

func ParseInterval(s string) (time.Duration, error) {
	if s == "" {
		s = DefaultInterval
	}
	d, ok := Intervals[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownInterval, s)
	}
	return d, nil
}

type HistoryQuery struct {
	MetricType string
	Start      *time.Time
	End        *time.Time
	Limit      int
	Offset     int
	Order      string
}

func (q HistoryQuery) normalized() HistoryQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if strings.ToUpper(q.Order) == "ASC" {
		q.Order = "ASC"
	} else {
		q.Order = "DESC"
	}
	if q.MetricType == "" {
		q.MetricType = MetricTypeAll
	}
	return q
}

type Repository struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

func NewRepository(db *sql.DB, driver string) (*Repository, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db, d: d, now: time.Now}, nil
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Driver() string { return r.d.name }

func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

const recordColumns = `id,ts,metric_type,cpu_usage,cpu_cores,load_avg_1,load_avg_5,load_avg_15,
	memory_total,memory_used,memory_free,memory_usage,disk_total,disk_used,disk_free,disk_usage,
	network_download,network_upload,uptime,created_at`

// SaveSnapshot writes the five category rows of m in one transaction.
func (r *Repository) SaveSnapshot(ctx context.Context, m models.SystemMetrics) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = r.now()
	}
	return r.InsertRecords(ctx, models.SplitSnapshot(m))
}

func (r *Repository) InsertRecords(ctx context.Context, recs []models.MetricRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, r.d.rebind(`INSERT INTO metrics
		(ts,metric_type,cpu_usage,cpu_cores,load_avg_1,load_avg_5,load_avg_15,
		memory_total,memory_used,memory_free,memory_usage,disk_total,disk_used,disk_free,disk_usage,
		network_download,network_upload,uptime,created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()
	created := r.now().UTC()
	for _, rec := range recs {
		_, err := stmt.ExecContext(ctx,
			rec.TS.UTC(), rec.MetricType, val(rec.CPUUsage), val(rec.CPUCores), val(rec.LoadAvg1), val(rec.LoadAvg5), val(rec.LoadAvg15),
			val(rec.MemoryTotal), val(rec.MemoryUsed), val(rec.MemoryFree), val(rec.MemoryUsage),
			val(rec.DiskTotal), val(rec.DiskUsed), val(rec.DiskFree), val(rec.DiskUsage),
			val(rec.NetworkDownload), val(rec.NetworkUpload), val(rec.Uptime), created)
		if err != nil {
			return fmt.Errorf("insert %s row: %w", rec.MetricType, err)
		}
	}
	return tx.Commit()
}

func (r *Repository) History(ctx context.Context, q HistoryQuery) ([]models.MetricRecord, error) {
	q = q.normalized()
	var where []string
	var args []any
	if q.MetricType != MetricTypeAll {
		where = append(where, "metric_type = ?")
		args = append(args, q.MetricType)
	}
	if q.Start != nil {
		where = append(where, "ts >= ?")
		args = append(args, q.Start.UTC())
	}
	if q.End != nil {
		where = append(where, "ts <= ?")
		args = append(args, q.End.UTC())
	}
	query := `SELECT ` + recordColumns + ` FROM metrics`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY ts %s, id %s LIMIT ? OFFSET ?", q.Order, q.Order)
	args = append(args, q.Limit, q.Offset)
	return r.queryRecords(ctx, query, args...)
}

// Latest returns the newest row of every category that has one.
func (r *Repository) Latest(ctx context.Context) ([]models.MetricRecord, error) {
	out := make([]models.MetricRecord, 0, len(models.MetricTypes))
	for _, t := range models.MetricTypes {
		recs, err := r.queryRecords(ctx, `SELECT `+recordColumns+` FROM metrics WHERE metric_type = ? ORDER BY ts DESC, id DESC LIMIT 1`, t)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Range returns rows between start and end inclusive, oldest first.
func (r *Repository) Range(ctx context.Context, metricType string, start, end time.Time) ([]models.MetricRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM metrics WHERE ts >= ? AND ts <= ?`
	args := []any{start.UTC(), end.UTC()}
	if metricType != "" && metricType != MetricTypeAll {
		query += " AND metric_type = ?"
		args = append(args, metricType)
	}
	return r.queryRecords(ctx, query+" ORDER BY ts ASC, id ASC", args...)
}

// Aggregated buckets Range rows by interval. Buckets are aligned to UTC and
// come back oldest first; empty buckets are omitted.
func (r *Repository) Aggregated(ctx context.Context, metricType, interval string, start, end time.Time) ([]models.AggregateBucket, error) {
	width, err := ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	recs, err := r.Range(ctx, metricType, start, end)
	if err != nil {
		return nil, err
	}
	return aggregate(recs, width), nil
}

func (r *Repository) Stats(ctx context.Context) (models.StoreStats, error) {
	var st models.StoreStats
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metrics`).Scan(&st.Total); err != nil {
		return st, err
	}
	if st.Total == 0 {
		return st, nil
	}
	var oldest, newest time.Time
	if err := r.db.QueryRowContext(ctx, `SELECT ts FROM metrics ORDER BY ts ASC LIMIT 1`).Scan(&oldest); err != nil {
		return st, err
	}
	if err := r.db.QueryRowContext(ctx, `SELECT ts FROM metrics ORDER BY ts DESC LIMIT 1`).Scan(&newest); err != nil {
		return st, err
	}
	oldest, newest = oldest.UTC(), newest.UTC()
	st.Oldest, st.Newest = &oldest, &newest
	return st, nil
}

// OlderThan returns rows with ts before cutoff, oldest first. A limit of zero
// or less returns every such row.
func (r *Repository) OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.MetricRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM metrics WHERE ts < ? ORDER BY ts ASC, id ASC`
	if limit <= 0 {
		return r.queryRecords(ctx, query, cutoff.UTC())
	}
	return r.queryRecords(ctx, query+` LIMIT ?`, cutoff.UTC(), limit)
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.d.rebind(`DELETE FROM metrics WHERE ts < ?`), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) SaveTelegramSettings(ctx context.Context, token, chatID string) error {
	for k, v := range map[string]string{"telegram_token": token, "telegram_chat_id": chatID} {
		if _, err := r.db.ExecContext(ctx, r.d.rebind(`INSERT INTO settings(key,value) VALUES (?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`), k, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) LoadTelegramSettings(ctx context.Context) (token, chatID string, err error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key,value FROM settings WHERE key IN ('telegram_token','telegram_chat_id')`)
	if err != nil {
		return "", "", err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return "", "", err
		}
		switch k {
		case "telegram_token":
			token = v
		case "telegram_chat_id":
			chatID = v
		}
	}
	return token, chatID, rows.Err()
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]models.MetricRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.MetricRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (models.MetricRecord, error) {
	var rec models.MetricRecord
	var cpuUsage, load1, load5, load15, memUsage, diskUsage, down, up sql.NullFloat64
	var cores, memTotal, memUsed, memFree, diskTotal, diskUsed, diskFree, uptime sql.NullInt64
	err := rows.Scan(&rec.ID, &rec.TS, &rec.MetricType, &cpuUsage, &cores, &load1, &load5, &load15,
		&memTotal, &memUsed, &memFree, &memUsage, &diskTotal, &diskUsed, &diskFree, &diskUsage,
		&down, &up, &uptime, &rec.CreatedAt)
	if err != nil {
		return rec, err
	}
	rec.TS = rec.TS.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.CPUUsage, rec.CPUCores = nullFloat(cpuUsage), nullInt(cores)
	rec.LoadAvg1, rec.LoadAvg5, rec.LoadAvg15 = nullFloat(load1), nullFloat(load5), nullFloat(load15)
	rec.MemoryTotal, rec.MemoryUsed, rec.MemoryFree, rec.MemoryUsage = nullInt(memTotal), nullInt(memUsed), nullInt(memFree), nullFloat(memUsage)
	rec.DiskTotal, rec.DiskUsed, rec.DiskFree, rec.DiskUsage = nullInt(diskTotal), nullInt(diskUsed), nullInt(diskFree), nullFloat(diskUsage)
	rec.NetworkDownload, rec.NetworkUpload = nullFloat(down), nullFloat(up)
	rec.Uptime = nullInt(uptime)
	return rec, nil
}

func val[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
