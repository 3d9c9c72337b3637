package config

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Retention RetentionConfig `mapstructure:"retention"`
	Viewer    ViewerConfig    `mapstructure:"viewer"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port                   string `mapstructure:"port"`
	Mode                   string `mapstructure:"mode"` // gin mode: debug, release, test
	LogLevel               string `mapstructure:"log_level"`
	ReadOnly               bool   `mapstructure:"read_only"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`

	// Proxies whose X-Forwarded-For is believed when keying the login limiter.
	// Empty trusts none, so the peer address is used.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type CaptureConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	IncludePaths        []string `mapstructure:"include_paths"`
	ExcludedPaths       []string `mapstructure:"excluded_paths"`
	MaxRequestBodySize  int      `mapstructure:"max_request_body_size"`  // characters
	MaxResponseBodySize int      `mapstructure:"max_response_body_size"` // characters
	MaxBufferBytes      int64    `mapstructure:"max_buffer_bytes"`
	LogRequestHeaders   bool     `mapstructure:"log_request_headers"`
	SensitiveHeaders    []string `mapstructure:"sensitive_headers"`
	LoggerName          string   `mapstructure:"logger_name"`
	QueueSize           int      `mapstructure:"queue_size"`
	Workers             int      `mapstructure:"workers"`
}

type DatabaseConfig struct {
	Provider               string `mapstructure:"provider"`
	ConnectionString       string `mapstructure:"connection_string"`
	AccessLogTable         string `mapstructure:"access_log_table"`
	AdminAccountTable      string `mapstructure:"admin_account_table"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	MemoryMaxRecords       int    `mapstructure:"memory_max_records"`
}

type RetentionConfig struct {
	Days     int    `mapstructure:"days"`
	Schedule string `mapstructure:"schedule"` // cron spec, empty disables the scheduler
}

type ViewerConfig struct {
	RoutePrefix string `mapstructure:"route_prefix"`
}

type AuthConfig struct {
	JWTSecret              string `mapstructure:"jwt_secret"`
	JWTIssuer              string `mapstructure:"jwt_issuer"`
	JWTAudience            string `mapstructure:"jwt_audience"`
	JWTExpirationMinutes   int    `mapstructure:"jwt_expiration_minutes"`
	EnableDefaultAdmin     bool   `mapstructure:"enable_default_admin"`
	DefaultAdminUsername   string `mapstructure:"default_admin_username"`
	DefaultAdminPassword   string `mapstructure:"default_admin_password"`
	PasswordHashIterations int    `mapstructure:"password_hash_iterations"`
	LoginRatePerMinute     int    `mapstructure:"login_rate_per_minute"`
	LoginBurst             int    `mapstructure:"login_burst"`
}

type ReplayConfig struct {
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	UserAgentProduct   string `mapstructure:"user_agent_product"`
}

type ProxyConfig struct {
	UpstreamURL string `mapstructure:"upstream_url"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// e.g. LOGREPLAY_DATABASE_PROVIDER=postgres
	v.SetEnvPrefix("logreplay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.read_only", false)
	v.SetDefault("server.shutdown_timeout_seconds", 5)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("capture.enabled", true)
	v.SetDefault("capture.include_paths", []string{"/api/"})
	v.SetDefault("capture.excluded_paths", []string{"/health", "/metrics", "/swagger", "/log-viewer"})
	v.SetDefault("capture.max_request_body_size", 102400)
	v.SetDefault("capture.max_response_body_size", 102400)
	v.SetDefault("capture.max_buffer_bytes", 10<<20)
	v.SetDefault("capture.log_request_headers", true)
	v.SetDefault("capture.sensitive_headers", []string{
		"Authorization", "Cookie", "Set-Cookie", "X-API-Key", "X-Auth-Token", "Proxy-Authorization",
	})
	v.SetDefault("capture.logger_name", "ApiAccessLog")
	v.SetDefault("capture.queue_size", 1000)
	v.SetDefault("capture.workers", 4)

	v.SetDefault("database.provider", "sqlite")
	v.SetDefault("database.connection_string", "logs/access.db")
	v.SetDefault("database.access_log_table", "access_logs")
	v.SetDefault("database.admin_account_table", "admin_accounts")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_minutes", 60)
	v.SetDefault("database.memory_max_records", 10000)

	v.SetDefault("retention.days", 90)
	v.SetDefault("retention.schedule", "@daily")

	v.SetDefault("viewer.route_prefix", "/api/logs")

	v.SetDefault("auth.jwt_secret", "ApiAccessLogAdminSecretKey2025!@#MinLength32Chars")
	v.SetDefault("auth.jwt_issuer", "ApiAccessLog")
	v.SetDefault("auth.jwt_audience", "ApiAccessLogAdmin")
	v.SetDefault("auth.jwt_expiration_minutes", 60)
	v.SetDefault("auth.enable_default_admin", true)
	v.SetDefault("auth.default_admin_username", "admin")
	v.SetDefault("auth.default_admin_password", "Admin@123")
	v.SetDefault("auth.password_hash_iterations", 10000)
	v.SetDefault("auth.login_rate_per_minute", 10)
	v.SetDefault("auth.login_burst", 5)

	v.SetDefault("replay.timeout_seconds", 30)
	v.SetDefault("replay.insecure_skip_verify", false)
	v.SetDefault("replay.user_agent_product", "LogReplay/1.0")

	v.SetDefault("proxy.upstream_url", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	return v
}

// Load reads .env, config.yaml and LOGREPLAY_* variables on top of the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}
	return unmarshal(v)
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	defaults := newViper()
	for _, key := range defaults.AllKeys() {
		v.SetDefault(key, defaults.Get(key))
	}
	cfg, err := unmarshal(v)
	if err != nil {
		panic(fmt.Sprintf("config: built-in defaults are invalid: %v", err))
	}
	return cfg
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Viewer.RoutePrefix = "/" + strings.Trim(strings.TrimSpace(c.Viewer.RoutePrefix), "/")
	c.Database.Provider = strings.ToLower(strings.TrimSpace(c.Database.Provider))
	c.Metrics.Path = "/" + strings.Trim(c.Metrics.Path, "/")

	// Viewer traffic is never captured.
	for _, p := range c.Capture.ExcludedPaths {
		if strings.EqualFold(p, c.Viewer.RoutePrefix) {
			return
		}
	}
	c.Capture.ExcludedPaths = append(c.Capture.ExcludedPaths, c.Viewer.RoutePrefix)
}

// Validate reports the first option that would leave a component unusable.
func (c *Config) Validate() error {
	switch {
	case c.Database.Provider == "":
		return errors.New("config: database.provider is required")
	case len(c.Auth.JWTSecret) < 32:
		return errors.New("config: auth.jwt_secret must be at least 32 bytes")
	case c.Auth.JWTExpirationMinutes <= 0:
		return errors.New("config: auth.jwt_expiration_minutes must be positive")
	case c.Auth.PasswordHashIterations < 1000:
		return errors.New("config: auth.password_hash_iterations must be at least 1000")
	case c.Capture.MaxRequestBodySize < 0 || c.Capture.MaxResponseBodySize < 0:
		return errors.New("config: capture body sizes must not be negative")
	case c.Capture.MaxBufferBytes <= 0:
		return errors.New("config: capture.max_buffer_bytes must be positive")
	case c.Retention.Days < 0:
		return errors.New("config: retention.days must not be negative")
	case c.Replay.TimeoutSeconds <= 0:
		return errors.New("config: replay.timeout_seconds must be positive")
	}
	for _, name := range []string{c.Database.AccessLogTable, c.Database.AdminAccountTable} {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("config: %q is not a valid table name", name)
		}
	}
	if c.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
			return fmt.Errorf("config: retention.schedule: %w", err)
		}
	}
	return nil
}
