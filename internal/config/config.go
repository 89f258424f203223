// Package config provides Viper-based configuration loading for the turn
// server and its tools.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
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
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// SchedulerConfig controls the periodic guild sweep.
type SchedulerConfig struct {
	// TickInterval is how often every registered guild is signalled. Zero
	// disables the sweep; turns then only advance on explicit signals.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// MaxParallelGuilds bounds how many guilds one sweep processes at once.
	MaxParallelGuilds int `mapstructure:"max_parallel_guilds"`
	// Guilds is the initial set of guild IDs the sweep visits.
	Guilds []string `mapstructure:"guilds"`
}

// CombatConfig locates combat content and bounds automatic turn processing.
type CombatConfig struct {
	MaxAutoTurns  int    `mapstructure:"max_auto_turns"`
	AbilitiesDir  string `mapstructure:"abilities_dir"`
	ConditionsDir string `mapstructure:"conditions_dir"`
}

// AIConfig locates the NPC strategy book.
type AIConfig struct {
	StrategyFile string `mapstructure:"strategy_file"`
}

// RulesConfig locates the tenant-independent rule defaults.
type RulesConfig struct {
	DefaultsFile string `mapstructure:"defaults_file"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ServerConfig holds the gRPC listener settings.
type ServerConfig struct {
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" gRPC address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.GRPCHost, s.GRPCPort)
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Combat    CombatConfig    `mapstructure:"combat"`
	AI        AIConfig        `mapstructure:"ai"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	add(validateServer(c.Server))
	add(validateLogging(c.Logging))
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		add(validateDatabase(c.Database))
	default:
		errs = append(errs, fmt.Sprintf("storage.driver must be one of [memory, postgres], got %q", c.Storage.Driver))
	}
	add(validateScheduler(c.Scheduler))
	add(validateCombat(c.Combat))
	add(validateTracing(c.Tracing))
	if c.AI.StrategyFile == "" {
		errs = append(errs, "ai.strategy_file must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.GRPCHost == "" {
		errs = append(errs, "server.grpc_host must not be empty")
	}
	if s.GRPCPort < 1 || s.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.grpc_port must be 1-65535, got %d", s.GRPCPort))
	}
	return joined(errs)
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
	return joined(errs)
}

func validateScheduler(s SchedulerConfig) error {
	var errs []string
	if s.TickInterval < 0 {
		errs = append(errs, "scheduler.tick_interval must not be negative")
	}
	if s.MaxParallelGuilds < 1 {
		errs = append(errs, fmt.Sprintf("scheduler.max_parallel_guilds must be >= 1, got %d", s.MaxParallelGuilds))
	}
	return joined(errs)
}

func validateCombat(c CombatConfig) error {
	var errs []string
	if c.MaxAutoTurns < 1 {
		errs = append(errs, fmt.Sprintf("combat.max_auto_turns must be >= 1, got %d", c.MaxAutoTurns))
	}
	if c.AbilitiesDir == "" {
		errs = append(errs, "combat.abilities_dir must not be empty")
	}
	if c.ConditionsDir == "" {
		errs = append(errs, "combat.conditions_dir must not be empty")
	}
	return joined(errs)
}

func validateTracing(t TracingConfig) error {
	if !t.Enabled {
		return nil
	}
	var errs []string
	if t.Endpoint == "" {
		errs = append(errs, "tracing.endpoint must not be empty when tracing is enabled")
	}
	if t.ServiceName == "" {
		errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_ratio must be within [0, 1], got %g", t.SampleRatio))
	}
	return joined(errs)
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

func joined(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// GUILDTURN_COMBAT_MAX_AUTO_TURNS overrides combat.max_auto_turns
	v.SetEnvPrefix("GUILDTURN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
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

// Defaults returns a Viper instance holding only the built-in defaults.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_host", "127.0.0.1")
	v.SetDefault("server.grpc_port", 50061)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "guildturn")
	v.SetDefault("database.password", "guildturn")
	v.SetDefault("database.name", "guildturn")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.driver", DriverMemory)

	v.SetDefault("scheduler.tick_interval", "0s")
	v.SetDefault("scheduler.max_parallel_guilds", 4)

	v.SetDefault("combat.max_auto_turns", 50)
	v.SetDefault("combat.abilities_dir", "content/abilities")
	v.SetDefault("combat.conditions_dir", "content/conditions")

	v.SetDefault("ai.strategy_file", "content/ai/strategies.yaml")
	v.SetDefault("rules.defaults_file", "content/rules/defaults.yaml")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "guildturn")
	v.SetDefault("tracing.sample_ratio", 1.0)
}
