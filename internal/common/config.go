package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Render   RenderConfig   `yaml:"render"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Ingest   IngestConfig   `yaml:"ingest"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig describes where artifacts live and how they are addressed.
type StoreConfig struct {
	Root       string `yaml:"root"`        // durable directory holding one subdirectory per cache key
	Mount      string `yaml:"mount"`       // public URL prefix the static layer serves Root under
	UploadRoot string `yaml:"upload_root"` // sources must live below this directory; empty disables the check
	// in-progress directories older than this are treated as crashed runs
	SweepGrace time.Duration `yaml:"sweep_grace"`
}

// RenderConfig holds external renderer settings
type RenderConfig struct {
	Soffice          string        `yaml:"soffice"`
	Magick           string        `yaml:"magick"`
	DPI              int           `yaml:"dpi"`
	OfficeTimeout    time.Duration `yaml:"office_timeout"`
	RasterizeTimeout time.Duration `yaml:"rasterize_timeout"`
}

// RedisConfig holds the cross-process lease settings; empty Addr disables the lease.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	LeaseTTL     time.Duration `yaml:"lease_ttl"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // sqlite or postgres; empty disables the journal
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// QueueConfig sizes the background warm-up worker pool
type QueueConfig struct {
	Workers int           `yaml:"workers"`
	Size    int           `yaml:"size"`
	Timeout time.Duration `yaml:"timeout"`
}

// IngestConfig lists directories whose new uploads are converted ahead of time.
type IngestConfig struct {
	WatchDirs []string      `yaml:"watch_dirs"`
	Debounce  time.Duration `yaml:"debounce"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":8081",
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Root:       "./converted",
			Mount:      "converted",
			SweepGrace: 10 * time.Minute,
		},
		Render: RenderConfig{
			Soffice:          "soffice",
			Magick:           "magick",
			DPI:              150,
			OfficeTimeout:    60 * time.Second,
			RasterizeTimeout: 120 * time.Second,
		},
		Redis: RedisConfig{
			Prefix:       "docrender:",
			LeaseTTL:     4 * time.Minute,
			PollInterval: 500 * time.Millisecond,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Queue: QueueConfig{
			Workers: 2,
			Size:    64,
			Timeout: 5 * time.Minute,
		},
		Ingest: IngestConfig{
			Debounce: 2 * time.Second,
		},
		LogLevel: "info",
	}
}

// LoadConfig layers defaults, an optional YAML file, a .env file and the environment,
// in that order of precedence.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "parse config file", err)
		}
	}

	_ = godotenv.Load() // a missing .env is fine
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Store.Root = getEnv("ARTIFACT_ROOT", c.Store.Root)
	c.Store.Mount = getEnv("ARTIFACT_MOUNT", c.Store.Mount)
	c.Store.UploadRoot = getEnv("UPLOAD_ROOT", c.Store.UploadRoot)
	c.Store.SweepGrace = getEnvAsDuration("SWEEP_GRACE", c.Store.SweepGrace)

	c.Render.Soffice = getEnv("SOFFICE_BIN", c.Render.Soffice)
	c.Render.Magick = getEnv("MAGICK_BIN", c.Render.Magick)
	c.Render.DPI = getEnvAsInt("RASTER_DPI", c.Render.DPI)
	c.Render.OfficeTimeout = getEnvAsDuration("OFFICE_TIMEOUT", c.Render.OfficeTimeout)
	c.Render.RasterizeTimeout = getEnvAsDuration("RASTERIZE_TIMEOUT", c.Render.RasterizeTimeout)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Redis.Prefix = getEnv("REDIS_PREFIX", c.Redis.Prefix)
	c.Redis.LeaseTTL = getEnvAsDuration("REDIS_LEASE_TTL", c.Redis.LeaseTTL)
	c.Redis.PollInterval = getEnvAsDuration("REDIS_POLL_INTERVAL", c.Redis.PollInterval)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)

	c.Queue.Workers = getEnvAsInt("QUEUE_WORKERS", c.Queue.Workers)
	c.Queue.Size = getEnvAsInt("QUEUE_SIZE", c.Queue.Size)
	c.Queue.Timeout = getEnvAsDuration("QUEUE_TIMEOUT", c.Queue.Timeout)

	c.Ingest.WatchDirs = getEnvAsList("WATCH_DIRS", c.Ingest.WatchDirs)
	c.Ingest.Debounce = getEnvAsDuration("WATCH_DEBOUNCE", c.Ingest.Debounce)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Store.Root == "" {
		return NewAppError("CONFIG_ERROR", "ARTIFACT_ROOT is required", ErrInvalidInput)
	}
	if c.Store.Mount == "" {
		return NewAppError("CONFIG_ERROR", "ARTIFACT_MOUNT is required", ErrInvalidInput)
	}
	if c.Render.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("RASTER_DPI must be positive, got %d", c.Render.DPI), ErrInvalidInput)
	}
	if c.Render.OfficeTimeout <= 0 || c.Render.RasterizeTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "stage timeouts must be positive", ErrInvalidInput)
	}
	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("DB_DRIVER %q is not one of sqlite|postgres", c.Database.Driver), ErrInvalidInput)
	}
	if c.Database.Driver != "" && c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required when DB_DRIVER is set", ErrInvalidInput)
	}
	if c.Redis.Addr != "" && c.Redis.LeaseTTL < time.Second {
		return NewAppError("CONFIG_ERROR", "REDIS_LEASE_TTL must be at least 1s", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
