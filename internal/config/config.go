// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	// InstanceID names this process among those sharing a job store.
	// It must stay the same across restarts of the same instance.
	InstanceID string

	Server   ServerConfig
	Log      LogConfig
	Store    StoreConfig
	Queue    QueueConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Render   RenderConfig
	Assets   AssetConfig
	Output   OutputConfig
	Reaper   ReaperConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	MaxBodyBytes       int64
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string
	Format string
	Source bool
}

// StoreConfig selects the job store backend.
type StoreConfig struct {
	Driver     string // memory, redis, postgres, sqlite
	SQLitePath string
}

// QueueConfig selects the queue between the API and the worker pool.
type QueueConfig struct {
	Driver   string // memory, redis
	Name     string
	Capacity int
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RenderConfig holds encoder and worker settings.
type RenderConfig struct {
	TempRoot    string
	FFmpegPath  string
	FFprobePath string
	Concurrency int
	Timeout     time.Duration
	Preset      string
	CRF         int
}

// AssetConfig bounds remote asset downloads.
type AssetConfig struct {
	Timeout  time.Duration
	MaxBytes int64
}

// OutputConfig selects where finished renders are published.
type OutputConfig struct {
	Provider  string // none, localfs, gdrive, s3
	LocalRoot string
	GDrive    GDriveConfig
	S3        S3Config
}

// GDriveConfig holds the OAuth client and target folder for Drive uploads.
type GDriveConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FolderID     string
}

// S3Config holds the bucket and credentials for S3 uploads.
// Empty keys fall back to the default AWS credential chain.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// ReaperConfig controls expiry of finished jobs. A zero Retention disables it.
type ReaperConfig struct {
	Retention time.Duration
	Interval  time.Duration
}

var (
	storeDrivers    = []string{"memory", "redis", "postgres", "sqlite"}
	queueDrivers    = []string{"memory", "redis"}
	outputProviders = []string{"none", "localfs", "gdrive", "s3"}
)

// Load reads configuration from environment, with optional .env file.
// Malformed numbers, durations and unknown drivers are reported as errors.
func Load() (*Config, error) {
	_ = godotenv.Load()

	p := &parser{}

	cfg := &Config{
		InstanceID: getEnv("INSTANCE_ID", defaultInstanceID()),
		Server: ServerConfig{
			Port:               getEnv("HTTP_PORT", "8080"),
			MaxBodyBytes:       p.int64("MAX_BODY_MB", 50) << 20,
			CORSAllowedOrigins: splitTrim(getEnv("CORS_ALLOWED_ORIGINS", "*"), ","),
			ShutdownTimeout:    p.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Source: p.bool("LOG_SOURCE", false),
		},
		Store: StoreConfig{
			Driver:     p.oneOf("JOB_STORE", "memory", storeDrivers),
			SQLitePath: getEnv("SQLITE_PATH", "videoproc.db"),
		},
		Queue: QueueConfig{
			Driver:   p.oneOf("JOB_QUEUE", "memory", queueDrivers),
			Name:     getEnv("QUEUE_NAME", "videoproc:render-queue"),
			Capacity: p.int("QUEUE_CAPACITY", 100),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       p.int("REDIS_DB", 0),
		},
		Render: RenderConfig{
			TempRoot:    getEnv("TEMP_ROOT", filepath.Join(os.TempDir(), "videoproc")),
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: disabledAsEmpty(getEnv("FFPROBE_PATH", "ffprobe")),
			Concurrency: p.int("RENDER_CONCURRENCY", 2),
			Timeout:     p.duration("RENDER_TIMEOUT", 30*time.Minute),
			Preset:      getEnv("X264_PRESET", "veryfast"),
			CRF:         p.int("X264_CRF", 23),
		},
		Assets: AssetConfig{
			Timeout:  p.duration("ASSET_TIMEOUT", 2*time.Minute),
			MaxBytes: p.int64("ASSET_MAX_BYTES", 2<<30),
		},
		Output: OutputConfig{
			Provider:  p.oneOf("OUTPUT_PROVIDER", "none", outputProviders),
			LocalRoot: getEnv("OUTPUT_LOCAL_ROOT", ""),
			GDrive: GDriveConfig{
				ClientID:     getEnv("GDRIVE_CLIENT_ID", ""),
				ClientSecret: getEnv("GDRIVE_CLIENT_SECRET", ""),
				RefreshToken: getEnv("GDRIVE_REFRESH_TOKEN", ""),
				FolderID:     getEnv("GDRIVE_FOLDER_ID", ""),
			},
			S3: S3Config{
				Bucket:          getEnv("S3_BUCKET", ""),
				Region:          getEnv("AWS_REGION", "us-east-1"),
				AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
				Endpoint:        getEnv("S3_ENDPOINT", ""),
			},
		},
		Reaper: ReaperConfig{
			Retention: p.duration("JOB_RETENTION", 0),
			Interval:  p.duration("REAPER_INTERVAL", 5*time.Minute),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Render.Concurrency < 1:
		return fmt.Errorf("RENDER_CONCURRENCY must be at least 1, got %d", c.Render.Concurrency)
	case c.Queue.Capacity < 1:
		return fmt.Errorf("QUEUE_CAPACITY must be at least 1, got %d", c.Queue.Capacity)
	case c.Server.MaxBodyBytes <= 0:
		return fmt.Errorf("MAX_BODY_MB must be positive")
	case c.Render.CRF < 0 || c.Render.CRF > 51:
		return fmt.Errorf("X264_CRF must be within 0-51, got %d", c.Render.CRF)
	case c.Store.Driver == "postgres" && c.Database.URL == "":
		return fmt.Errorf("DATABASE_URL is required when JOB_STORE=postgres")
	case c.Output.Provider == "localfs" && c.Output.LocalRoot == "":
		return fmt.Errorf("OUTPUT_LOCAL_ROOT is required when OUTPUT_PROVIDER=localfs")
	case c.Output.Provider == "s3" && c.Output.S3.Bucket == "":
		return fmt.Errorf("S3_BUCKET is required when OUTPUT_PROVIDER=s3")
	case c.Output.Provider == "gdrive" && (c.Output.GDrive.ClientID == "" ||
		c.Output.GDrive.ClientSecret == "" || c.Output.GDrive.RefreshToken == ""):
		return fmt.Errorf("GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required when OUTPUT_PROVIDER=gdrive")
	}
	return nil
}

func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "videoproc"
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Store.Driver == "redis" || c.Queue.Driver == "redis"
}

// parser records the first malformed value it sees.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (p *parser) int(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) int64(key string, fallback int64) int64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) bool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	if d < 0 {
		p.fail(key, v, fmt.Errorf("must not be negative"))
		return fallback
	}
	return d
}

func (p *parser) oneOf(key, fallback string, allowed []string) string {
	v := strings.ToLower(getEnv(key, fallback))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	p.fail(key, v, fmt.Errorf("expected one of %s", strings.Join(allowed, ", ")))
	return fallback
}

// disabledAsEmpty maps "none" and "off" to "" so optional tools can be
// switched off explicitly.
func disabledAsEmpty(v string) string {
	switch strings.ToLower(v) {
	case "none", "off":
		return ""
	}
	return v
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
