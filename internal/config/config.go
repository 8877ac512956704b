// Package config loads ClearSkies runtime configuration from defaults, an
// optional YAML file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clearskies/clearskies/internal/database"
	"github.com/clearskies/clearskies/internal/featureflags"
	"github.com/clearskies/clearskies/internal/satellite"
	"github.com/clearskies/clearskies/internal/telemetry"
	"github.com/clearskies/clearskies/internal/worker"
)

// DefaultPath is read when CONFIG_PATH is unset and the file exists.
const DefaultPath = "configs/config.yaml"

// History and feature flag store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config aggregates runtime configuration used by the API and the worker.
type Config struct {
	Env       string           `yaml:"env"`
	LogLevel  string           `yaml:"logLevel"`
	Server    ServerConfig     `yaml:"server"`
	Auth      AuthConfig       `yaml:"auth"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Sources   SourcesConfig    `yaml:"sources"`
	Narration NarrationConfig  `yaml:"narration"`
	History   HistoryConfig    `yaml:"history"`
	Flags     FlagsConfig      `yaml:"featureFlags"`
	Database  database.Config  `yaml:"database"`
	Worker    WorkerConfig     `yaml:"worker"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            string           `yaml:"port"`
	ReadTimeout     time.Duration    `yaml:"readTimeout"`
	WriteTimeout    time.Duration    `yaml:"writeTimeout"`
	IdleTimeout     time.Duration    `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration    `yaml:"shutdownTimeout"`
	RequireTLS      bool             `yaml:"requireTls"`
	CORSOrigins     []string         `yaml:"corsOrigins"`
	RateLimits      RateLimitsConfig `yaml:"rateLimits"`
}

// RateLimitsConfig sets requests per minute for each endpoint category.
// Zero keeps the built-in budget.
type RateLimitsConfig struct {
	Token     int `yaml:"token"`
	Dashboard int `yaml:"dashboard"`
	Sections  int `yaml:"sections"`
	Admin     int `yaml:"admin"`
}

// AuthConfig holds the shared API key. An empty key disables authentication.
type AuthConfig struct {
	APIKey string `yaml:"apiKey"`
}

// SourcesConfig configures the upstream data sources.
type SourcesConfig struct {
	OpenAQ      OpenAQConfig      `yaml:"openaq"`
	OpenWeather OpenWeatherConfig `yaml:"openweather"`
	Geocoding   GeocodingConfig   `yaml:"geocoding"`
	Satellite   SatelliteConfig   `yaml:"satellite"`
	Wildfire    WildfireConfig    `yaml:"wildfire"`
}

// OpenAQConfig configures the ground-sensor client.
type OpenAQConfig struct {
	APIKey       string        `yaml:"apiKey"`
	BaseURL      string        `yaml:"baseUrl"`
	RadiusMeters int           `yaml:"radiusMeters"`
	MaxStations  int           `yaml:"maxStations"`
	CacheTTL     time.Duration `yaml:"cacheTtl"`
}

// OpenWeatherConfig configures the weather client. Without a key the
// weather source reports itself as not configured.
type OpenWeatherConfig struct {
	APIKey   string        `yaml:"apiKey"`
	BaseURL  string        `yaml:"baseUrl"`
	CacheTTL time.Duration `yaml:"cacheTtl"`
}

// WildfireConfig configures the NASA FIRMS active fire lookup. Without a
// map key wildfire context reports itself as not configured.
type WildfireConfig struct {
	MapKey   string        `yaml:"mapKey"`
	BaseURL  string        `yaml:"baseUrl"`
	Source   string        `yaml:"source"`
	DayRange int           `yaml:"dayRange"`
	RadiusKm float64       `yaml:"radiusKm"`
	CacheTTL time.Duration `yaml:"cacheTtl"`
}

// GeocodingConfig configures reverse geocoding.
type GeocodingConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"baseUrl"`
}

// SatelliteConfig configures where NO2 grid snapshots live and how they
// are refreshed.
type SatelliteConfig struct {
	// Dir holds snapshots when no bucket is configured.
	Dir string `yaml:"dir"`

	Bucket BucketConfig `yaml:"bucket"`

	// SnapshotURL is polled by the worker for new snapshots.
	SnapshotURL   string `yaml:"snapshotUrl"`
	SnapshotToken string `yaml:"snapshotToken"`

	// Scale and Factor convert raw columns to ppb: raw/Scale*Factor.
	Scale  float64 `yaml:"scale"`
	Factor float64 `yaml:"factor"`

	MaxCellDistanceKm float64 `yaml:"maxCellDistanceKm"`
}

// BucketConfig describes an S3-compatible bucket. It is used when Bucket is set.
type BucketConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
}

// NarrationConfig configures the language model and its cache.
type NarrationConfig struct {
	GeminiAPIKey    string        `yaml:"geminiApiKey"`
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"baseUrl"`
	Temperature     float64       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"maxOutputTokens"`
	Timeout         time.Duration `yaml:"timeout"`

	// RequestsPerMinute is the local call budget; Burst the bucket size.
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	Burst             int `yaml:"burst"`

	CacheTTL time.Duration `yaml:"cacheTtl"`

	// ValkeyAddr shares the cache between instances. Empty keeps it in memory.
	ValkeyAddr string `yaml:"valkeyAddr"`
}

// HistoryConfig selects the history store.
type HistoryConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlitePath"`
}

// FlagsConfig selects the feature flag store.
type FlagsConfig struct {
	Driver   string          `yaml:"driver"`
	CacheTTL time.Duration   `yaml:"cacheTtl"`
	// Defaults sets the state of switches that have never been changed
	// through the admin API.
	Defaults map[string]bool `yaml:"defaults"`
}

// WorkerConfig configures background jobs.
type WorkerConfig struct {
	Port string `yaml:"port"`

	// Schedule is a cron spec with an optional seconds field.
	Schedule string `yaml:"schedule"`

	PubSub  PubSubConfig         `yaml:"pubsub"`
	Refresh worker.RefreshConfig `yaml:"refresh"`
}

// PubSubConfig enables message-triggered jobs when both fields are set.
type PubSubConfig struct {
	ProjectID    string `yaml:"projectId"`
	Subscription string `yaml:"subscription"`
}

// Enabled reports whether Pub/Sub triggering is configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Subscription != ""
}

// UsesPostgres reports whether any store needs the database pool.
func (c *Config) UsesPostgres() bool {
	return c.History.Driver == DriverPostgres || c.Flags.Driver == DriverPostgres
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Env, "APP_ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Server.Port, "APP_PORT")
	setBool(&cfg.Server.RequireTLS, "REQUIRE_TLS")
	setList(&cfg.Server.CORSOrigins, "CORS_ALLOWED_ORIGINS")
	setString(&cfg.Auth.APIKey, "API_KEY")

	setBool(&cfg.Telemetry.Enabled, "OTEL_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setFloat(&cfg.Telemetry.SampleRatio, "OTEL_TRACES_SAMPLER_ARG")

	setString(&cfg.Sources.OpenAQ.APIKey, "OPENAQ_API_KEY")
	setString(&cfg.Sources.OpenAQ.BaseURL, "OPENAQ_BASE_URL")
	setString(&cfg.Sources.OpenWeather.APIKey, "OPENWEATHER_API_KEY")
	setString(&cfg.Sources.OpenWeather.BaseURL, "OPENWEATHER_BASE_URL")
	setBool(&cfg.Sources.Geocoding.Enabled, "GEOCODING_ENABLED")
	setString(&cfg.Sources.Wildfire.MapKey, "FIRMS_MAP_KEY")
	setFloat(&cfg.Sources.Wildfire.RadiusKm, "FIRMS_RADIUS_KM")

	sat := &cfg.Sources.Satellite
	setString(&sat.Dir, "SATELLITE_DIR")
	setString(&sat.Bucket.Endpoint, "SATELLITE_BUCKET_ENDPOINT")
	setString(&sat.Bucket.AccessKey, "SATELLITE_BUCKET_ACCESS_KEY")
	setString(&sat.Bucket.SecretKey, "SATELLITE_BUCKET_SECRET_KEY")
	setString(&sat.Bucket.Bucket, "SATELLITE_BUCKET")
	setString(&sat.Bucket.Region, "SATELLITE_BUCKET_REGION")
	setString(&sat.Bucket.Prefix, "SATELLITE_BUCKET_PREFIX")
	setString(&sat.SnapshotURL, "SATELLITE_SNAPSHOT_URL")
	setString(&sat.SnapshotToken, "SATELLITE_SNAPSHOT_TOKEN")
	setFloat(&sat.Scale, "SATELLITE_SCALE")
	setFloat(&sat.Factor, "SATELLITE_FACTOR")

	setString(&cfg.Narration.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.Narration.Model, "GEMINI_MODEL")
	setInt(&cfg.Narration.RequestsPerMinute, "NARRATION_REQUESTS_PER_MINUTE")
	setDuration(&cfg.Narration.CacheTTL, "NARRATION_CACHE_TTL")
	setString(&cfg.Narration.ValkeyAddr, "VALKEY_ADDR")

	setString(&cfg.History.Driver, "HISTORY_DRIVER")
	setString(&cfg.History.SQLitePath, "HISTORY_SQLITE_PATH")
	setString(&cfg.Flags.Driver, "FEATURE_FLAGS_DRIVER")

	db := &cfg.Database
	setString(&db.Host, "DB_HOST")
	setInt(&db.Port, "DB_PORT")
	setString(&db.User, "DB_USER")
	setString(&db.Password, "DB_PASSWORD")
	setString(&db.Database, "DB_NAME")
	setString(&db.SSLMode, "DB_SSLMODE")

	setString(&cfg.Worker.Port, "WORKER_PORT")
	setString(&cfg.Worker.Schedule, "WORKER_SCHEDULE")
	setString(&cfg.Worker.PubSub.ProjectID, "PUBSUB_PROJECT_ID")
	setString(&cfg.Worker.PubSub.Subscription, "PUBSUB_SUBSCRIPTION")
	setInt(&cfg.Worker.Refresh.Concurrency, "WORKER_CONCURRENCY")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Env:      "development",
		LogLevel: "info",
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    45 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Telemetry: telemetry.Config{
			ServiceName:  "clearskies-api",
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1,
			Insecure:     true,
		},
		Sources: SourcesConfig{
			OpenAQ: OpenAQConfig{
				RadiusMeters: 25000,
				MaxStations:  10,
				CacheTTL:     15 * time.Minute,
			},
			OpenWeather: OpenWeatherConfig{
				CacheTTL: 10 * time.Minute,
			},
			Geocoding: GeocodingConfig{Enabled: true},
			Satellite: SatelliteConfig{
				Dir:               "data/satellite",
				Scale:             1e15,
				Factor:            20,
				MaxCellDistanceKm: 25,
			},
			Wildfire: WildfireConfig{
				DayRange: 1,
				RadiusKm: 100,
				CacheTTL: 30 * time.Minute,
			},
		},
		Narration: NarrationConfig{
			Temperature:       0.7,
			MaxOutputTokens:   2048,
			Timeout:           15 * time.Second,
			RequestsPerMinute: 30,
			Burst:             5,
			CacheTTL:          10 * time.Minute,
		},
		History: HistoryConfig{
			Driver:     DriverSQLite,
			SQLitePath: "data/history.db",
		},
		Flags: FlagsConfig{
			Driver:   DriverMemory,
			CacheTTL: time.Minute,
		},
		Database: database.DefaultConfig(),
		Worker: WorkerConfig{
			Port:     "8081",
			Schedule: "0 */30 * * * *",
			Refresh:  worker.DefaultRefreshConfig(),
		},
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %q is not a valid port", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server timeouts must be positive"))
	}
	if rl := c.Server.RateLimits; rl.Token < 0 || rl.Dashboard < 0 || rl.Sections < 0 || rl.Admin < 0 {
		errs = append(errs, errors.New("server.rateLimits must not be negative"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampleRatio %v must be within [0, 1]", c.Telemetry.SampleRatio))
	}
	if c.Sources.OpenAQ.RadiusMeters <= 0 || c.Sources.OpenAQ.RadiusMeters > 25000 {
		errs = append(errs, fmt.Errorf("sources.openaq.radiusMeters %d must be within (0, 25000]", c.Sources.OpenAQ.RadiusMeters))
	}
	if c.Sources.Satellite.Scale <= 0 || c.Sources.Satellite.Factor <= 0 {
		errs = append(errs, errors.New("sources.satellite scale and factor must be positive"))
	}
	if wf := c.Sources.Wildfire; wf.RadiusKm <= 0 || wf.RadiusKm > 500 || wf.DayRange < 1 || wf.DayRange > 10 {
		errs = append(errs, fmt.Errorf("sources.wildfire radiusKm %v must be within (0, 500] and dayRange %d within [1, 10]", wf.RadiusKm, wf.DayRange))
	}
	if c.Narration.RequestsPerMinute < 0 || c.Narration.Burst < 0 {
		errs = append(errs, errors.New("narration rate budget must not be negative"))
	}

	switch c.History.Driver {
	case DriverMemory, DriverPostgres:
	case DriverSQLite:
		if c.History.SQLitePath == "" {
			errs = append(errs, errors.New("history.sqlitePath is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("history.driver %q must be memory, sqlite or postgres", c.History.Driver))
	}
	switch c.Flags.Driver {
	case DriverMemory, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("featureFlags.driver %q must be memory or postgres", c.Flags.Driver))
	}
	for key := range c.Flags.Defaults {
		if !featureflags.IsKnown(key) {
			errs = append(errs, fmt.Errorf("featureFlags.defaults: unknown flag %q", key))
		}
	}

	if c.UsesPostgres() && (c.Database.MaxOpenConns <= 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns) {
		errs = append(errs, errors.New("database pool sizes must satisfy 0 <= maxIdleConns <= maxOpenConns and maxOpenConns > 0"))
	}
	if c.Worker.Refresh.Concurrency < 0 {
		errs = append(errs, errors.New("worker.refresh.concurrency must not be negative"))
	}
	if c.Worker.Schedule == "" && !c.Worker.PubSub.Enabled() {
		errs = append(errs, errors.New("worker needs a schedule or a pubsub subscription"))
	}
	if c.Worker.Schedule != "" {
		if _, err := worker.ParseSchedule(c.Worker.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("worker.schedule: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Calibration returns the satellite conversion constants.
func (s SatelliteConfig) Calibration() satellite.Calibration {
	return satellite.Calibration{Scale: s.Scale, Factor: s.Factor}
}
