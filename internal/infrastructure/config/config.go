package config

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/ratelimit"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	Dispatcher DispatcherConfig
	HTTP       HTTPConfig
	Sync       SyncConfig
	Shopify    ShopifyCredentials
	NetSuite   NetSuiteCredentials
	RateLimits *RateLimits
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// DispatcherConfig holds event dispatch configuration
type DispatcherConfig struct {
	Enabled          bool
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// SyncConfig holds reconciliation defaults
type SyncConfig struct {
	InventoryThreshold string // decimal string, absolute units
	SnapshotBeforeSync bool
	BatchSize          int
}

// ShopifyCredentials holds the default Shopify API credentials
type ShopifyCredentials struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
}

// NetSuiteCredentials holds the default NetSuite API credentials
type NetSuiteCredentials struct {
	AccountID   string
	AccessToken string
}

// RateLimits resolves per-platform request quotas. Overrides from the
// config file are applied on top of the built-in defaults and can be
// swapped at runtime through Reload, so it doubles as the gate's hot
// reloadable limits provider.
type RateLimits struct {
	mu        sync.RWMutex
	overrides map[platform.Code]ratelimit.Limits
}

// LimitsFor returns the current quota for a platform.
func (r *RateLimits) LimitsFor(code platform.Code) ratelimit.Limits {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limits, ok := r.overrides[code]; ok {
		return limits
	}
	return ratelimit.DefaultLimits(code)
}

// Reload replaces the overrides atomically.
func (r *RateLimits) Reload(overrides map[platform.Code]ratelimit.Limits) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides = overrides
}

// SetOverride replaces one platform's quota at runtime. A subsequent config
// file reload replaces runtime overrides wholesale.
func (r *RateLimits) SetOverride(code platform.Code, limits ratelimit.Limits) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overrides == nil {
		r.overrides = make(map[platform.Code]ratelimit.Limits)
	}
	r.overrides[code] = limits
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SYNCBRIDGE_ prefix (e.g., SYNCBRIDGE_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("SYNCBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Dispatcher: DispatcherConfig{
			Enabled:          v.GetBool("dispatcher.enabled"),
			PollInterval:     v.GetDuration("dispatcher.poll_interval"),
			CleanupEnabled:   v.GetBool("dispatcher.cleanup_enabled"),
			CleanupRetention: v.GetDuration("dispatcher.cleanup_retention"),
			CleanupInterval:  v.GetDuration("dispatcher.cleanup_interval"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Sync: SyncConfig{
			InventoryThreshold: v.GetString("sync.inventory_threshold"),
			SnapshotBeforeSync: v.GetBool("sync.snapshot_before_sync"),
			BatchSize:          v.GetInt("sync.batch_size"),
		},
		Shopify: ShopifyCredentials{
			ShopDomain:  v.GetString("shopify.shop_domain"),
			AccessToken: v.GetString("shopify.access_token"),
			APIVersion:  v.GetString("shopify.api_version"),
		},
		NetSuite: NetSuiteCredentials{
			AccountID:   v.GetString("netsuite.account_id"),
			AccessToken: v.GetString("netsuite.access_token"),
		},
		RateLimits: &RateLimits{overrides: readLimitOverrides(v)},
	}

	// Re-read quota overrides whenever the file changes on disk. Other
	// sections require a restart.
	v.OnConfigChange(func(fsnotify.Event) {
		cfg.RateLimits.Reload(readLimitOverrides(v))
	})
	v.WatchConfig()

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// readLimitOverrides parses the [ratelimits.<platform>] sections.
func readLimitOverrides(v *viper.Viper) map[platform.Code]ratelimit.Limits {
	overrides := make(map[platform.Code]ratelimit.Limits)
	for _, code := range []platform.Code{platform.CodeShopify, platform.CodeNetSuite} {
		key := "ratelimits." + strings.ToLower(string(code))
		if !v.IsSet(key) {
			continue
		}
		defaults := ratelimit.DefaultLimits(code)
		limits := ratelimit.Limits{
			MaxRequestsPerMinute: v.GetInt(key + ".max_requests_per_minute"),
			MaxRequestsPerHour:   v.GetInt(key + ".max_requests_per_hour"),
			BurstLimit:           v.GetInt(key + ".burst_limit"),
			BaseBackoff:          v.GetDuration(key + ".base_backoff"),
			BackoffMultiplier:    v.GetFloat64(key + ".backoff_multiplier"),
			MaxBackoff:           v.GetDuration(key + ".max_backoff"),
		}
		if limits.MaxRequestsPerMinute == 0 {
			limits.MaxRequestsPerMinute = defaults.MaxRequestsPerMinute
		}
		if limits.MaxRequestsPerHour == 0 {
			limits.MaxRequestsPerHour = defaults.MaxRequestsPerHour
		}
		if limits.BurstLimit == 0 {
			limits.BurstLimit = defaults.BurstLimit
		}
		if limits.BaseBackoff == 0 {
			limits.BaseBackoff = defaults.BaseBackoff
		}
		if limits.BackoffMultiplier == 0 {
			limits.BackoffMultiplier = defaults.BackoffMultiplier
		}
		if limits.MaxBackoff == 0 {
			limits.MaxBackoff = defaults.MaxBackoff
		}
		overrides[code] = limits
	}
	return overrides
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "syncbridge-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "syncbridge"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Dispatcher.PollInterval == 0 {
		cfg.Dispatcher.PollInterval = 2 * time.Second
	}
	if cfg.Dispatcher.CleanupRetention == 0 {
		cfg.Dispatcher.CleanupRetention = 168 * time.Hour
	}
	if cfg.Dispatcher.CleanupInterval == 0 {
		cfg.Dispatcher.CleanupInterval = time.Hour
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	// NOTE: CORS origins are intentionally not given a default fallback to "*".
	// An empty list means no cross-origin requests are allowed until explicitly configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-User-ID", "Idempotency-Key"}
	}
	if cfg.Sync.InventoryThreshold == "" {
		cfg.Sync.InventoryThreshold = "0"
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 100
	}
	if cfg.Shopify.APIVersion == "" {
		cfg.Shopify.APIVersion = "2024-01"
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = &RateLimits{}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		// CORS must not use wildcard with credentials
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
