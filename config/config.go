package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

type LimiterConfig struct {
	MaxConcurrent  int
	MinInterval    time.Duration
	Reservoir      int
	RefillInterval time.Duration
	MaxRetries     int
	BaseDelay      time.Duration
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	Path     string
}

type Config struct {
	BinanceAPIKey    string
	BinanceAPISecret string
	Exchanges        []string

	Database DatabaseConfig

	LogFile        string
	LogLevel       string
	TelegramOutput bool
	TelegramToken  string
	TelegramChatID string

	HTTPAddress   string
	WSMessageRate float64

	SnapshotInterval time.Duration
	QueueInterval    time.Duration
	PendingInterval  time.Duration
	CleanupInterval  time.Duration
	QueueRetention   time.Duration
	HistoryMaxWindow time.Duration
	ShutdownDrain    time.Duration

	QueueBatchSize   int
	PendingBatchSize int
	SnapshotSymbols  []string

	Limiter LimiterConfig
}

// Load reads the env file at path, if present, and builds the configuration
// from the process environment.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	r := &reader{}
	cfg := &Config{
		BinanceAPIKey:    os.Getenv("binanceAPIKey"),
		BinanceAPISecret: os.Getenv("binanceAPISecret"),
		Exchanges:        r.list("exchanges", "binance"),
		Database: DatabaseConfig{
			Driver:   r.str("databaseDriver", "mysql"),
			Host:     r.str("databaseHost", "localhost"),
			Port:     r.str("databasePort", "3306"),
			Name:     r.str("databaseName", "aoordersync"),
			User:     os.Getenv("databaseUser"),
			Password: os.Getenv("databasePassword"),
			Path:     r.str("databasePath", "aoordersync.db"),
		},
		LogFile:          os.Getenv("logFile"),
		LogLevel:         r.str("logLevel", "info"),
		TelegramOutput:   r.boolean("telegramOutput", false),
		TelegramToken:    os.Getenv("telegramToken"),
		TelegramChatID:   os.Getenv("telegramChatId"),
		HTTPAddress:      r.str("httpAddress", ":8080"),
		WSMessageRate:    r.float("wsMessageRate", 10),
		SnapshotInterval: r.duration("snapshotInterval", "60s"),
		QueueInterval:    r.duration("queueInterval", "5s"),
		PendingInterval:  r.duration("pendingInterval", "2h"),
		CleanupInterval:  r.duration("cleanupInterval", "1h"),
		QueueRetention:   r.duration("queueRetention", "7d"),
		HistoryMaxWindow: r.duration("historyMaxWindow", "24h"),
		ShutdownDrain:    r.duration("shutdownDrainTimeout", "10s"),
		QueueBatchSize:   r.integer("queueBatchSize", 50),
		PendingBatchSize: r.integer("pendingBatchSize", 100),
		SnapshotSymbols:  r.list("snapshotSymbols", ""),
		Limiter: LimiterConfig{
			MaxConcurrent:  r.integer("limiterMaxConcurrent", 5),
			MinInterval:    r.duration("limiterMinInterval", "100ms"),
			Reservoir:      r.integer("limiterReservoir", 1000),
			RefillInterval: r.duration("limiterRefillInterval", "1m"),
			MaxRetries:     r.integer("limiterMaxRetries", 3),
			BaseDelay:      r.duration("limiterBaseDelay", "500ms"),
		},
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.TelegramOutput && (cfg.TelegramToken == "" || cfg.TelegramChatID == "") {
		return &models.ValidationError{Field: "telegramOutput", Reason: "requires telegramToken and telegramChatId"}
	}
	if cfg.Database.Driver != "mysql" && cfg.Database.Driver != "sqlite" {
		return &models.ValidationError{Field: "databaseDriver", Reason: "must be mysql or sqlite"}
	}
	if cfg.Limiter.MaxConcurrent < 1 {
		return &models.ValidationError{Field: "limiterMaxConcurrent", Reason: "must be at least 1"}
	}
	if cfg.HistoryMaxWindow <= 0 {
		return &models.ValidationError{Field: "historyMaxWindow", Reason: "must be positive"}
	}
	if len(cfg.Exchanges) == 0 {
		return &models.ValidationError{Field: "exchanges", Reason: "at least one exchange is required"}
	}
	return nil
}

// reader keeps the first parse error so FromEnv can build the struct in one pass.
type reader struct {
	err error
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = &models.ValidationError{Field: key, Reason: "cannot be parsed", Err: err}
	}
}

func (r *reader) str(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func (r *reader) list(key, fallback string) []string {
	var out []string
	for _, item := range strings.Split(r.str(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (r *reader) duration(key, fallback string) time.Duration {
	d, err := str2duration.ParseDuration(r.str(key, fallback))
	if err != nil {
		r.fail(key, err)
	}
	return d
}

func (r *reader) integer(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, err)
	}
	return n
}

func (r *reader) float(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(key, err)
	}
	return f
}

func (r *reader) boolean(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.fail(key, err)
	}
	return b
}
