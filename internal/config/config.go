package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Dispatch  DispatchConfig  `yaml:"dispatch" mapstructure:"dispatch"`
	Logger    LoggerConfig    `yaml:"logger" mapstructure:"logger"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Security  SecurityConfig  `yaml:"security" mapstructure:"security"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Tracing   TracingConfig   `yaml:"tracing" mapstructure:"tracing"`
}

type ServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	DBName          string        `yaml:"db_name" mapstructure:"db_name"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// DispatchConfig tunes the assignment core. The response timeout is a
// deliberate constant, not derived from travel time.
type DispatchConfig struct {
	SearchRadiusKm  float64         `yaml:"search_radius_km" mapstructure:"search_radius_km"`
	ResponseTimeout time.Duration   `yaml:"response_timeout" mapstructure:"response_timeout"`
	MaxRejections   int             `yaml:"max_rejections" mapstructure:"max_rejections"`
	RunnerUpCount   int             `yaml:"runner_up_count" mapstructure:"runner_up_count"`
	TieThresholdKm  float64         `yaml:"tie_threshold_km" mapstructure:"tie_threshold_km"`
	TravelMode      string          `yaml:"travel_mode" mapstructure:"travel_mode"`
	Scheduler       SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
}

// SchedulerConfig selects the durable (redis) timer backend for
// multi-instance deployments; the in-process supervisor is the default.
type SchedulerConfig struct {
	Durable      bool          `yaml:"durable" mapstructure:"durable"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type SecurityConfig struct {
	CORSEnabled           bool     `yaml:"cors_enabled" mapstructure:"cors_enabled"`
	CORSAllowedOrigins    []string `yaml:"cors_allowed_origins" mapstructure:"cors_allowed_origins"`
	EnableSecurityHeaders bool     `yaml:"enable_security_headers" mapstructure:"enable_security_headers"`
}

type AuthConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	JWTSecret     string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration" mapstructure:"token_duration"`
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	WindowDuration    time.Duration `yaml:"window_duration" mapstructure:"window_duration"`
}

type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	ServiceName    string  `yaml:"service_name" mapstructure:"service_name"`
	JaegerEndpoint string  `yaml:"jaeger_endpoint" mapstructure:"jaeger_endpoint"`
	SampleRate     float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("HD")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "dispatch")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.db_name", "dispatch")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")

	viper.SetDefault("dispatch.search_radius_km", 10.0)
	viper.SetDefault("dispatch.response_timeout", "30s")
	viper.SetDefault("dispatch.max_rejections", 3)
	viper.SetDefault("dispatch.runner_up_count", 2)
	viper.SetDefault("dispatch.tie_threshold_km", 0.1)
	viper.SetDefault("dispatch.travel_mode", "bike")
	viper.SetDefault("dispatch.scheduler.durable", false)
	viper.SetDefault("dispatch.scheduler.poll_interval", "1s")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "json")
	viper.SetDefault("logger.output_path", "stdout")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9091)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("security.cors_enabled", true)
	viper.SetDefault("security.cors_allowed_origins", []string{"*"})
	viper.SetDefault("security.enable_security_headers", true)

	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwt_secret", "your-secret-key-change-in-production")
	viper.SetDefault("auth.token_duration", "24h")

	viper.SetDefault("rate_limit.enabled", false)
	viper.SetDefault("rate_limit.requests_per_minute", 100)
	viper.SetDefault("rate_limit.window_duration", "1m")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service_name", "helper-dispatch")
	viper.SetDefault("tracing.jaeger_endpoint", "")
	viper.SetDefault("tracing.sample_rate", 1.0)
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if config.Dispatch.SearchRadiusKm <= 0 {
		return fmt.Errorf("dispatch search_radius_km must be positive, got: %v", config.Dispatch.SearchRadiusKm)
	}

	if config.Dispatch.ResponseTimeout <= 0 {
		return fmt.Errorf("dispatch response_timeout must be positive, got: %v", config.Dispatch.ResponseTimeout)
	}

	if config.Dispatch.MaxRejections < 0 {
		return fmt.Errorf("dispatch max_rejections must be non-negative, got: %d", config.Dispatch.MaxRejections)
	}

	if config.Dispatch.TieThresholdKm < 0 {
		return fmt.Errorf("dispatch tie_threshold_km must be non-negative, got: %v", config.Dispatch.TieThresholdKm)
	}

	if config.Metrics.Port <= 0 || config.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Metrics.Port)
	}

	return nil
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetMetricsAddr() string {
	return fmt.Sprintf(":%d", c.Metrics.Port)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
