package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr              string
	DataDir           string
	DBDriver          string
	DBPath            string
	DBDSN             string
	MetricsSource     string
	PersistInterval   time.Duration
	BroadcastInterval time.Duration
	AlertCooldown     time.Duration
	RetentionDays     int
	RetentionInterval time.Duration
	ArchiveDir        string
	LogLevel          string
	LogFormat         string
	LogCaller         bool
	FrontendURL       string
	ValkeyAddr        string
	ValkeyPassword    string
	ValkeyPrefix      string
	TelegramBotToken  string
	TelegramChatID    string
}

func Load() Config {
	dataDir := getenv("APP_DATA_DIR", "./data")
	return Config{
		Addr:              getenv("APP_ADDR", ":3001"),
		DataDir:           dataDir,
		DBDriver:          strings.ToLower(getenv("APP_DB_DRIVER", "sqlite")),
		DBPath:            getenv("APP_DB_PATH", dataDir+"/systempulse.db"),
		DBDSN:             os.Getenv("APP_DB_DSN"),
		MetricsSource:     strings.ToLower(getenv("APP_METRICS_SOURCE", "mock")),
		PersistInterval:   getenvDuration("APP_PERSIST_INTERVAL", 30*time.Second),
		BroadcastInterval: getenvDuration("APP_BROADCAST_INTERVAL", 2*time.Second),
		AlertCooldown:     getenvDuration("APP_ALERT_COOLDOWN", time.Minute),
		RetentionDays:     getenvInt("APP_RETENTION_DAYS", 30),
		RetentionInterval: getenvDuration("APP_RETENTION_INTERVAL", 6*time.Hour),
		ArchiveDir:        os.Getenv("APP_ARCHIVE_DIR"),
		LogLevel:          getenv("APP_LOG_LEVEL", "info"),
		LogFormat:         getenv("APP_LOG_FORMAT", "console"),
		LogCaller:         getenvBool("APP_LOG_CALLER", false),
		FrontendURL:       getenv("FRONTEND_URL", "http://localhost:3000"),
		ValkeyAddr:        os.Getenv("VALKEY_ADDR"),
		ValkeyPassword:    os.Getenv("VALKEY_PASSWORD"),
		ValkeyPrefix:      getenv("VALKEY_CHANNEL_PREFIX", "systempulse"),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    os.Getenv("TELEGRAM_CHAT_ID"),
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil || dur <= 0 {
		return d
	}
	return dur
}

func getenvBool(k string, d bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return d
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	return d
}
