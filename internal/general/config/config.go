package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. FLEET_DATABASE_PASSWORD.
const EnvPrefix = "FLEET"

type Config struct {
	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"database"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"database"`
	RabbitMQ struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
	} `mapstructure:"rabbitmq"`
	Services struct {
		CarServicePort int `mapstructure:"car_service"`
		CarAgentPort   int `mapstructure:"car_agent"`
	} `mapstructure:"services"`
	JWT struct {
		SecretKey   string        `mapstructure:"secret_key"`
		TTL         time.Duration `mapstructure:"ttl"`
		IssueTokens bool          `mapstructure:"issue_tokens"` // enables POST /tokens
	} `mapstructure:"jwt"`
	Fleet struct {
		AckTimeout          time.Duration `mapstructure:"ack_timeout"`
		ReservationHold     time.Duration `mapstructure:"reservation_hold"`
		ReservationCooldown time.Duration `mapstructure:"reservation_cooldown"`
		NotifyAttempts      int           `mapstructure:"notify_attempts"`
	} `mapstructure:"fleet"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
// An optional .env next to the working directory is loaded first; FLEET_* variables override file values.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// bindEnvKeys registers every key so AutomaticEnv also applies to keys missing from the file.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"database.host", "database.port", "database.user", "database.password", "database.database", "database.max_conns",
		"rabbitmq.host", "rabbitmq.port", "rabbitmq.user", "rabbitmq.password",
		"services.car_service", "services.car_agent",
		"jwt.secret_key", "jwt.ttl", "jwt.issue_tokens",
		"fleet.ack_timeout", "fleet.reservation_hold", "fleet.reservation_cooldown", "fleet.notify_attempts",
		"log.level", "log.format",
	} {
		_ = v.BindEnv(key)
	}
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 16
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Services
	if cfg.Services.CarServicePort == 0 {
		cfg.Services.CarServicePort = 3000
	}
	if cfg.Services.CarAgentPort == 0 {
		cfg.Services.CarAgentPort = 3001
	}

	// Fleet
	if cfg.Fleet.AckTimeout == 0 {
		cfg.Fleet.AckTimeout = 5 * time.Second
	}
	if cfg.Fleet.ReservationHold == 0 {
		cfg.Fleet.ReservationHold = 2 * time.Hour
	}
	if cfg.Fleet.ReservationCooldown == 0 {
		cfg.Fleet.ReservationCooldown = 120 * time.Minute
	}
	if cfg.Fleet.NotifyAttempts == 0 {
		cfg.Fleet.NotifyAttempts = 3
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	// JWT
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = 24 * time.Hour
	}
	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.database is required")
	}
	if c.Database.MaxConns < 1 {
		problems = append(problems, "database.max_conns must be positive")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Services
	if c.Services.CarServicePort <= 0 || c.Services.CarServicePort > 65535 {
		problems = append(problems, "services.car_service must be in 1..65535")
	}
	if c.Services.CarAgentPort <= 0 || c.Services.CarAgentPort > 65535 {
		problems = append(problems, "services.car_agent must be in 1..65535")
	}

	// Fleet
	if c.Fleet.AckTimeout < 0 {
		problems = append(problems, "fleet.ack_timeout must be positive")
	}
	if c.Fleet.ReservationHold < 0 {
		problems = append(problems, "fleet.reservation_hold must be positive")
	}
	if c.Fleet.ReservationCooldown < 0 {
		problems = append(problems, "fleet.reservation_cooldown must be positive")
	}
	if c.Fleet.NotifyAttempts < 1 {
		problems = append(problems, "fleet.notify_attempts must be at least 1")
	}

	// Log
	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, "log.format must be json or console")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
