package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig contains Redis event fan-out configuration
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// WorkflowConfig contains workflow engine settings
type WorkflowConfig struct {
	EscalationSweepSchedule string `mapstructure:"escalation_sweep_schedule"`
	MetricsRefreshSchedule  string `mapstructure:"metrics_refresh_schedule"`
}

// AnalyticsConfig contains risk scoring policy knobs
type AnalyticsConfig struct {
	Weights        WeightsConfig `mapstructure:"weights"`
	TrendThreshold float64       `mapstructure:"trend_threshold"`
	AnomalyStdDevs float64       `mapstructure:"anomaly_std_devs"`
}

// WeightsConfig contains the severity weighting for risk scores
type WeightsConfig struct {
	Critical float64 `mapstructure:"critical"`
	High     float64 `mapstructure:"high"`
	Medium   float64 `mapstructure:"medium"`
	Low      float64 `mapstructure:"low"`
}

// MonitoringConfig contains metrics endpoint settings
type MonitoringConfig struct {
	EnableMetrics bool   `mapstructure:"enable_metrics"`
	MetricsPath   string `mapstructure:"metrics_path"`
}

// LoggingConfig contains logger construction settings
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
	}
	viper.SetEnvPrefix("REMEDIATION")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and environment cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.database", 0)
	viper.SetDefault("redis.channel_prefix", "remediation")

	viper.SetDefault("workflow.escalation_sweep_schedule", "0 * * * * *")
	viper.SetDefault("workflow.metrics_refresh_schedule", "*/30 * * * * *")

	viper.SetDefault("analytics.weights.critical", 10.0)
	viper.SetDefault("analytics.weights.high", 5.0)
	viper.SetDefault("analytics.weights.medium", 2.0)
	viper.SetDefault("analytics.weights.low", 1.0)
	viper.SetDefault("analytics.trend_threshold", 0.10)
	viper.SetDefault("analytics.anomaly_std_devs", 2.0)

	viper.SetDefault("monitoring.enable_metrics", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	viper.SetDefault("logging.development", false)
	viper.SetDefault("logging.level", "info")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.Port)
	}

	if c.Workflow.EscalationSweepSchedule == "" {
		return fmt.Errorf("escalation sweep schedule is required")
	}

	weights := c.Analytics.Weights
	if weights.Critical < weights.High || weights.High < weights.Medium || weights.Medium < weights.Low {
		return fmt.Errorf("risk weights must be monotonic: critical >= high >= medium >= low")
	}

	return nil
}

// GetRedisAddr returns the Redis connection address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// InitLogger initializes the logger based on configuration
func (c *Config) InitLogger() (*zap.Logger, error) {
	var zapConfig zap.Config
	if c.Logging.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	if c.Logging.Level != "" {
		level, err := zap.ParseAtomicLevel(c.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
		}
		zapConfig.Level = level
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}
