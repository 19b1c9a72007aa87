// Package config provides Viper-based configuration loading for the quiz race server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings for the score cache.
type RedisConfig struct {
	// Host is the Redis server host.
	Host string `mapstructure:"host"`
	// Port is the Redis server port.
	Port int `mapstructure:"port"`
	// Password is the Redis AUTH password (empty = no auth).
	Password string `mapstructure:"password"`
	// DB is the Redis logical database index.
	DB int `mapstructure:"db"`
}

// Addr returns the "host:port" Redis address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GameConfig holds gameplay timing and scoring settings.
type GameConfig struct {
	// Countdown is the pre-game countdown duration before the first question.
	Countdown time.Duration `mapstructure:"countdown"`
	// PositionTick is the interval between race position broadcasts.
	PositionTick time.Duration `mapstructure:"position_tick"`
	// MatchTimeout is how long a matchmaking request waits before failing.
	MatchTimeout time.Duration `mapstructure:"match_timeout"`
	// MatchSweepInterval is how often the matchmaking queue is swept for stale entries.
	MatchSweepInterval time.Duration `mapstructure:"match_sweep_interval"`
	// ScoreBand is the maximum total-score difference between matched players.
	ScoreBand int `mapstructure:"score_band"`
	// QuestionCount is how many questions a session is built from.
	QuestionCount int `mapstructure:"question_count"`
	// SessionTimeLimit is the hard cap on a session's duration once in progress.
	SessionTimeLimit time.Duration `mapstructure:"session_time_limit"`
	// BasePoints is the score awarded for a correct answer before bonuses.
	BasePoints int `mapstructure:"base_points"`
	// SpeedBonusMax is the maximum extra points for an instant correct answer.
	SpeedBonusMax int `mapstructure:"speed_bonus_max"`
	// NitroStreak is the consecutive-correct streak that triggers a nitro boost.
	NitroStreak int `mapstructure:"nitro_streak"`
	// PositionDivisor converts cumulative score into a race position.
	PositionDivisor int `mapstructure:"position_divisor"`
}

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Game     GameConfig     `mapstructure:"game"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateRedis(c.Redis); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	var errs []string
	if r.Host == "" {
		errs = append(errs, "redis.host must not be empty")
	}
	if r.Port < 1 || r.Port > 65535 {
		errs = append(errs, fmt.Sprintf("redis.port must be 1-65535, got %d", r.Port))
	}
	if r.DB < 0 {
		errs = append(errs, fmt.Sprintf("redis.db must be >= 0, got %d", r.DB))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.Countdown <= 0 {
		errs = append(errs, "game.countdown must be > 0")
	}
	if g.PositionTick <= 0 {
		errs = append(errs, "game.position_tick must be > 0")
	}
	if g.MatchTimeout <= 0 {
		errs = append(errs, "game.match_timeout must be > 0")
	}
	if g.MatchSweepInterval <= 0 {
		errs = append(errs, "game.match_sweep_interval must be > 0")
	}
	if g.ScoreBand < 0 {
		errs = append(errs, fmt.Sprintf("game.score_band must be >= 0, got %d", g.ScoreBand))
	}
	if g.QuestionCount < 1 {
		errs = append(errs, fmt.Sprintf("game.question_count must be >= 1, got %d", g.QuestionCount))
	}
	if g.SessionTimeLimit <= 0 {
		errs = append(errs, "game.session_time_limit must be > 0")
	}
	if g.BasePoints < 1 {
		errs = append(errs, fmt.Sprintf("game.base_points must be >= 1, got %d", g.BasePoints))
	}
	if g.SpeedBonusMax < 0 {
		errs = append(errs, fmt.Sprintf("game.speed_bonus_max must be >= 0, got %d", g.SpeedBonusMax))
	}
	if g.NitroStreak < 1 {
		errs = append(errs, fmt.Sprintf("game.nitro_streak must be >= 1, got %d", g.NitroStreak))
	}
	if g.PositionDivisor < 1 {
		errs = append(errs, fmt.Sprintf("game.position_divisor must be >= 1, got %d", g.PositionDivisor))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with QUIZRACE_ prefix
	v.SetEnvPrefix("QUIZRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "quizrace")
	v.SetDefault("database.password", "quizrace")
	v.SetDefault("database.name", "quizrace")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("game.countdown", "10s")
	v.SetDefault("game.position_tick", "1s")
	v.SetDefault("game.match_timeout", "30s")
	v.SetDefault("game.match_sweep_interval", "10s")
	v.SetDefault("game.score_band", 200)
	v.SetDefault("game.question_count", 10)
	v.SetDefault("game.session_time_limit", "10m")
	v.SetDefault("game.base_points", 100)
	v.SetDefault("game.speed_bonus_max", 50)
	v.SetDefault("game.nitro_streak", 3)
	v.SetDefault("game.position_divisor", 10)
}

// DefaultGameConfig returns the standard gameplay settings used when no
// configuration file is present (primarily for tests).
func DefaultGameConfig() GameConfig {
	return GameConfig{
		Countdown:          10 * time.Second,
		PositionTick:       time.Second,
		MatchTimeout:       30 * time.Second,
		MatchSweepInterval: 10 * time.Second,
		ScoreBand:          200,
		QuestionCount:      10,
		SessionTimeLimit:   10 * time.Minute,
		BasePoints:         100,
		SpeedBonusMax:      50,
		NitroStreak:        3,
		PositionDivisor:    10,
	}
}
