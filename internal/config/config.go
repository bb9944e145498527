package config

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	Port        string `mapstructure:"PORT"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// RedisURL enables the cross-process presence mirror when set.
	RedisURL string `mapstructure:"REDIS_URL"`

	WSAckTimeout time.Duration `mapstructure:"WS_ACK_TIMEOUT"`
	WSSendBuffer int           `mapstructure:"WS_SEND_BUFFER"`
	WSRateLimit  float64       `mapstructure:"WS_RATE_LIMIT"`
	WSRateBurst  int           `mapstructure:"WS_RATE_BURST"`

	EventRetention     time.Duration `mapstructure:"EVENT_RETENTION"`
	EventPruneSchedule string        `mapstructure:"EVENT_PRUNE_SCHEDULE"`
	InitialReplayLimit int           `mapstructure:"INITIAL_REPLAY_LIMIT"`
}

var AppConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("WS_ACK_TIMEOUT", "10s")
	v.SetDefault("WS_SEND_BUFFER", 64)
	v.SetDefault("WS_RATE_LIMIT", 10)
	v.SetDefault("WS_RATE_BURST", 20)
	v.SetDefault("EVENT_RETENTION", "720h")
	v.SetDefault("EVENT_PRUNE_SCHEDULE", "@every 1h")
	v.SetDefault("INITIAL_REPLAY_LIMIT", 200)
}

// Load reads configuration from a .env file in dir (if present) and the environment.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	setDefaults(v)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Println("Warning: .env file not found, loading from environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("config: DATABASE_URL is required")
	case c.JWTSecret == "":
		return errors.New("config: JWT_SECRET is required")
	case c.WSAckTimeout <= 0:
		return errors.New("config: WS_ACK_TIMEOUT must be positive")
	case c.WSSendBuffer <= 0:
		return errors.New("config: WS_SEND_BUFFER must be positive")
	case c.WSRateLimit <= 0 || c.WSRateBurst <= 0:
		return errors.New("config: WS_RATE_LIMIT and WS_RATE_BURST must be positive")
	case c.EventRetention <= 0:
		return errors.New("config: EVENT_RETENTION must be positive")
	}
	return nil
}

// LoadConfig loads the configuration from a .env file and environment variables
// into AppConfig.
func LoadConfig() {
	cfg, err := Load(".")
	if err != nil {
		log.Fatalf("Unable to load config, %v", err)
	}
	AppConfig = cfg
}
