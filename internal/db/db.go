package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrUnsupportedDriver = errors.New("unsupported database driver")

type Options struct {
	Driver string
	Path   string
	DSN    string
}

// dialect holds the few statements that differ between SQLite and Postgres.
type dialect struct {
	name     string
	idColumn string
	tsType   string
	realType string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		name:     DriverSQLite,
		idColumn: "id INTEGER PRIMARY KEY AUTOINCREMENT",
		tsType:   "DATETIME",
		realType: "REAL",
	},
	DriverPostgres: {
		name:     DriverPostgres,
		idColumn: "id BIGSERIAL PRIMARY KEY",
		tsType:   "TIMESTAMPTZ",
		realType: "DOUBLE PRECISION",
	},
}

func dialectFor(driver string) (dialect, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	return d, nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (d dialect) rebind(query string) string {
	if d.name != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func Open(opts Options) (*sql.DB, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return openSQLite(opts.Path)
	case DriverPostgres:
		return openPostgres(opts.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}
}

func openSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openPostgres(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres driver needs APP_DB_DSN")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(10)
	return db, nil
}

func Migrate(db *sql.DB, driver string) error {
	d, err := dialectFor(driver)
	if err != nil {
		return err
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS metrics (
			%[1]s,
			ts %[2]s NOT NULL,
			metric_type TEXT NOT NULL,
			cpu_usage %[3]s,
			cpu_cores BIGINT,
			load_avg_1 %[3]s,
			load_avg_5 %[3]s,
			load_avg_15 %[3]s,
			memory_total BIGINT,
			memory_used BIGINT,
			memory_free BIGINT,
			memory_usage %[3]s,
			disk_total BIGINT,
			disk_used BIGINT,
			disk_free BIGINT,
			disk_usage %[3]s,
			network_download %[3]s,
			network_upload %[3]s,
			uptime BIGINT,
			created_at %[2]s NOT NULL
		);`, d.idColumn, d.tsType, d.realType),
		`CREATE TABLE IF NOT EXISTS settings (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_ts ON metrics(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_ts_type ON metrics(ts, metric_type);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}
