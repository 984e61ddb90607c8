package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Catalog        CatalogConfig        `mapstructure:"catalog"`
	Tracking       TrackingConfig       `mapstructure:"tracking"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
	APIPath string `mapstructure:"api_path"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections" validate:"min=1"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size" validate:"min=1"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		FeedEvents string `mapstructure:"feed_events"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CatalogConfig struct {
	BlacklistFile  string `mapstructure:"blacklist_file"`
	ItemWindowDays int    `mapstructure:"item_window_days" validate:"min=1"`
	FlowWindowDays int    `mapstructure:"flow_window_days" validate:"min=1"`
	UserWindowDays int    `mapstructure:"user_window_days" validate:"min=1"`
}

type TrackingConfig struct {
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	FlushThreshold int           `mapstructure:"flush_threshold" validate:"min=1"`
	ActivityTTL    time.Duration `mapstructure:"activity_ttl"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
}

type RecommendationConfig struct {
	Bandit BanditConfig `mapstructure:"bandit"`
}

type BanditConfig struct {
	Preset string       `mapstructure:"preset" validate:"oneof=conservative aggressive"`
	VMP    BanditParams `mapstructure:"vmp"`
	AU     BanditParams `mapstructure:"au"`
	NU     BanditParams `mapstructure:"nu"`
}

type BanditParams struct {
	Alpha float64 `mapstructure:"alpha" validate:"gt=0"`
	Beta  float64 `mapstructure:"beta" validate:"gt=0"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindLegacyEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		bareSecondsHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, err
	}

	if config.Recommendation.Bandit.Preset == "aggressive" {
		config.Recommendation.Bandit.VMP = BanditParams{Alpha: 1.5, Beta: 0.8}
		config.Recommendation.Bandit.AU = BanditParams{Alpha: 1.8, Beta: 1.0}
		config.Recommendation.Bandit.NU = BanditParams{Alpha: 2.5, Beta: 1.3}
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// bareSecondsHookFunc decodes unit-less numeric values into durations
// as seconds. The legacy *_SECONDS environment variables carry plain
// integers; values with a unit suffix fall through to the standard
// duration parsing.
func bareSecondsHookFunc() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v) * time.Second, nil
		case string:
			if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return time.Duration(secs) * time.Second, nil
			}
		}
		return data, nil
	}
}

// bindLegacyEnv keeps the flat environment names the deployment already
// uses wired to their nested keys.
func bindLegacyEnv() {
	_ = viper.BindEnv("server.api_path", "API_PATH")
	_ = viper.BindEnv("tracking.flush_interval", "FLUSH_INTERVAL_SECONDS")
	_ = viper.BindEnv("tracking.flush_threshold", "FLUSH_THRESHOLD_ACTIVITIES")
	_ = viper.BindEnv("tracking.activity_ttl", "ACTIVITY_TTL_SECONDS")
	_ = viper.BindEnv("tracking.session_ttl", "SESSION_TTL_SECONDS")
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "5005")
	viper.SetDefault("server.mode", "development")
	viper.SetDefault("server.api_path", "")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.url", "localhost:6379")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults: empty broker list disables the feed-event producer
	viper.SetDefault("kafka.brokers", []string{})
	viper.SetDefault("kafka.topics.feed_events", "feed-events")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Catalog defaults
	viper.SetDefault("catalog.blacklist_file", "data/blacklist.csv")
	viper.SetDefault("catalog.item_window_days", 360)
	viper.SetDefault("catalog.flow_window_days", 90)
	viper.SetDefault("catalog.user_window_days", 90)

	// Tracking defaults
	viper.SetDefault("tracking.flush_interval", "900s")
	viper.SetDefault("tracking.flush_threshold", 50)
	viper.SetDefault("tracking.activity_ttl", "86400s")
	viper.SetDefault("tracking.session_ttl", "3600s")

	// Bandit tunings: conservative is the primary preset
	viper.SetDefault("recommendation.bandit.preset", "conservative")
	viper.SetDefault("recommendation.bandit.vmp.alpha", 1.5)
	viper.SetDefault("recommendation.bandit.vmp.beta", 0.8)
	viper.SetDefault("recommendation.bandit.au.alpha", 1.3)
	viper.SetDefault("recommendation.bandit.au.beta", 0.7)
	viper.SetDefault("recommendation.bandit.nu.alpha", 1.8)
	viper.SetDefault("recommendation.bandit.nu.beta", 0.9)

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
