// Package config provides Viper-based configuration loading for the shared-target engine.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Name identifies this server instance in logs and broadcasts.
	Name string `mapstructure:"name"`
	// ContentDir is the root directory holding target templates and the dungeon layout.
	ContentDir string `mapstructure:"content_dir"`
}

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
	// ApplicationName tags engine sessions in pg_stat_activity.
	ApplicationName string `mapstructure:"application_name"`
	// StatementTimeout bounds every statement, including the versioned target
	// update; zero keeps the server default.
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
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

// StorageConfig selects the persistence backend for shared targets and contributions.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite", or "postgres".
	Driver string `mapstructure:"driver"`
	// SQLitePath is the database file used when Driver is "sqlite".
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// Components raises the level of single engine components above Level,
	// keyed by component name: pool, completion, mechanic, regen, dice,
	// broadcast, scripting, tasks.
	Components map[string]string `mapstructure:"components"`
}

// levelRank orders the accepted log levels from most to least verbose.
var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// GameServerConfig holds the gRPC listener settings for the game server.
type GameServerConfig struct {
	// GRPCHost is the bind address for the gRPC health service.
	GRPCHost string `mapstructure:"grpc_host"`
	// GRPCPort is the TCP port for the gRPC health service.
	GRPCPort int `mapstructure:"grpc_port"`
	// ScriptDir holds Lua narrative hooks; empty disables scripting.
	ScriptDir string `mapstructure:"script_dir"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GameServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.GRPCHost, g.GRPCPort)
}

// KindPolicy is the per-kind tuning table for shared targets.
type KindPolicy struct {
	// RegenRate is the fraction of max HP healed per regen interval.
	RegenRate float64 `mapstructure:"regen_rate"`
	// RegenIntervalHours is the length of one regen interval.
	RegenIntervalHours float64 `mapstructure:"regen_interval_hours"`
	// XPMultiplier scales the target's base XP reward for every contributor.
	XPMultiplier float64 `mapstructure:"xp_multiplier"`
	// GoldMultiplier scales the target's base gold reward for every contributor.
	GoldMultiplier float64 `mapstructure:"gold_multiplier"`
	// KillerBonusFraction is the extra share of the scaled gold given to the final blow.
	KillerBonusFraction float64 `mapstructure:"killer_bonus_fraction"`
	// Phases are descending HP-ratio thresholds; crossing each advances the phase by one.
	Phases []float64 `mapstructure:"phases"`
	// MaxActive caps concurrently active targets of this kind; 0 means unlimited.
	MaxActive int `mapstructure:"max_active"`
	// SpawnReplacement spawns a weaker non-pooled successor on completion.
	SpawnReplacement bool `mapstructure:"spawn_replacement"`
	// ActivateNext activates the next queued target of this kind on completion.
	ActivateNext bool `mapstructure:"activate_next"`
}

// EngineConfig holds shared-target engine tuning.
type EngineConfig struct {
	// Kinds maps target kind ("bounty", "raid_boss", "breach_emergence", "floor_boss") to policy.
	Kinds map[string]KindPolicy `mapstructure:"kinds"`
	// RaidHPPerPlayer is the raid boss HP contributed by each active player.
	RaidHPPerPlayer int `mapstructure:"raid_hp_per_player"`
	// RaidHPCap is the maximum raid boss HP.
	RaidHPCap int `mapstructure:"raid_hp_cap"`
	// EmergenceHPMin and EmergenceHPMax bound the breach creature's rolled HP.
	EmergenceHPMin int `mapstructure:"emergence_hp_min"`
	EmergenceHPMax int `mapstructure:"emergence_hp_max"`
	// MinionRespawn is how often breach minions respawn around the emergence creature.
	MinionRespawn time.Duration `mapstructure:"minion_respawn"`
	// Lockout is how long a raid participant must wait before re-engaging.
	Lockout time.Duration `mapstructure:"lockout"`
	// MessageLimit truncates broadcast text to fit the radio payload.
	MessageLimit int `mapstructure:"message_limit"`
	// EpochStart anchors day 1 of the current epoch, in RFC 3339 form.
	EpochStart string `mapstructure:"epoch_start"`
	// DayLength is the wall-clock length of one epoch day.
	DayLength time.Duration `mapstructure:"day_length"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	GameServer GameServerConfig `mapstructure:"gameserver"`
	Engine     EngineConfig     `mapstructure:"engine"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Storage.Driver == "postgres" {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGameServer(c.GameServer); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateEngine(c.Engine); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	if s.Name == "" {
		return errors.New("server.name must not be empty")
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	validDrivers := map[string]bool{"memory": true, "sqlite": true, "postgres": true}
	if !validDrivers[s.Driver] {
		return fmt.Errorf("storage.driver must be one of [memory, sqlite, postgres], got %q", s.Driver)
	}
	if s.Driver == "sqlite" && s.SQLitePath == "" {
		return errors.New("storage.sqlite_path must not be empty when storage.driver is sqlite")
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
	if d.StatementTimeout < 0 {
		errs = append(errs, fmt.Sprintf("database.statement_timeout must be >= 0, got %s", d.StatementTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGameServer(g GameServerConfig) error {
	var errs []string
	if g.GRPCHost == "" {
		errs = append(errs, "gameserver.grpc_host must not be empty")
	}
	if g.GRPCPort < 1 || g.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("gameserver.grpc_port must be 1-65535, got %d", g.GRPCPort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	base, ok := levelRank[l.Level]
	if !ok {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	var errs []string
	for name, level := range l.Components {
		rank, ok := levelRank[level]
		switch {
		case !ok:
			errs = append(errs, fmt.Sprintf("logging.components.%s must be one of [debug, info, warn, error], got %q", name, level))
		case rank < base:
			errs = append(errs, fmt.Sprintf("logging.components.%s (%s) must not be below logging.level (%s)", name, level, l.Level))
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateEngine(e EngineConfig) error {
	var errs []string
	kinds := make([]string, 0, len(e.Kinds))
	for k := range e.Kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		if err := validateKindPolicy(k, e.Kinds[k]); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if e.RaidHPPerPlayer < 1 {
		errs = append(errs, fmt.Sprintf("engine.raid_hp_per_player must be >= 1, got %d", e.RaidHPPerPlayer))
	}
	if e.RaidHPCap < e.RaidHPPerPlayer {
		errs = append(errs, "engine.raid_hp_cap must be >= engine.raid_hp_per_player")
	}
	if e.EmergenceHPMin < 1 || e.EmergenceHPMax < e.EmergenceHPMin {
		errs = append(errs, fmt.Sprintf("engine.emergence_hp range invalid: [%d, %d]", e.EmergenceHPMin, e.EmergenceHPMax))
	}
	if e.Lockout < 0 {
		errs = append(errs, "engine.lockout must not be negative")
	}
	if e.MinionRespawn < 0 {
		errs = append(errs, "engine.minion_respawn must not be negative")
	}
	if e.MessageLimit < 1 {
		errs = append(errs, fmt.Sprintf("engine.message_limit must be >= 1, got %d", e.MessageLimit))
	}
	if _, err := e.EpochStartTime(); err != nil {
		errs = append(errs, err.Error())
	}
	if e.DayLength <= 0 {
		errs = append(errs, "engine.day_length must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// EpochStartTime parses EpochStart.
//
// Postcondition: Returns the epoch anchor in UTC or a non-nil error.
func (e EngineConfig) EpochStartTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, e.EpochStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("engine.epoch_start must be RFC 3339, got %q", e.EpochStart)
	}
	return t.UTC(), nil
}

// Policy returns the policy for kind and whether one is configured.
func (e EngineConfig) Policy(kind string) (KindPolicy, bool) {
	p, ok := e.Kinds[kind]
	return p, ok
}

func validateKindPolicy(kind string, p KindPolicy) error {
	validKinds := map[string]bool{"bounty": true, "raid_boss": true, "breach_emergence": true, "floor_boss": true}
	if !validKinds[kind] {
		return fmt.Errorf("engine.kinds: unknown kind %q", kind)
	}
	var errs []string
	if p.RegenRate <= 0 || p.RegenRate >= 1 {
		errs = append(errs, fmt.Sprintf("engine.kinds.%s.regen_rate must be in (0,1), got %v", kind, p.RegenRate))
	}
	if p.RegenIntervalHours <= 0 {
		errs = append(errs, fmt.Sprintf("engine.kinds.%s.regen_interval_hours must be positive", kind))
	}
	if p.XPMultiplier < 0 || p.GoldMultiplier < 0 || p.KillerBonusFraction < 0 {
		errs = append(errs, fmt.Sprintf("engine.kinds.%s reward multipliers must not be negative", kind))
	}
	for i, th := range p.Phases {
		if th <= 0 || th >= 1 {
			errs = append(errs, fmt.Sprintf("engine.kinds.%s.phases[%d] must be in (0,1)", kind, i))
		}
		if i > 0 && th >= p.Phases[i-1] {
			errs = append(errs, fmt.Sprintf("engine.kinds.%s.phases must be strictly descending", kind))
		}
	}
	if p.MaxActive < 0 {
		errs = append(errs, fmt.Sprintf("engine.kinds.%s.max_active must be >= 0", kind))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
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

	// Environment variable overrides with MMUD_ prefix
	v.SetEnvPrefix("MMUD")
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

// Defaults returns a Viper instance populated only with default values.
//
// Postcondition: LoadFromViper(Defaults()) succeeds.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "mmud")
	v.SetDefault("server.content_dir", "content")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mmud")
	v.SetDefault("database.password", "mmud")
	v.SetDefault("database.name", "mmud")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.application_name", "mmud-pool")
	v.SetDefault("database.statement_timeout", "5s")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "mmud.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("gameserver.grpc_host", "127.0.0.1")
	v.SetDefault("gameserver.grpc_port", 50051)
	v.SetDefault("gameserver.script_dir", "")

	v.SetDefault("engine.kinds", map[string]any{
		"bounty": map[string]any{
			"regen_rate":            0.05,
			"regen_interval_hours":  8,
			"xp_multiplier":         2,
			"gold_multiplier":       3,
			"killer_bonus_fraction": 0.5,
			"max_active":            2,
			"spawn_replacement":     true,
			"activate_next":         true,
		},
		"raid_boss": map[string]any{
			"regen_rate":            0.03,
			"regen_interval_hours":  8,
			"xp_multiplier":         3,
			"gold_multiplier":       3,
			"killer_bonus_fraction": 0.5,
			"phases":                []float64{0.66, 0.33},
			"max_active":            1,
		},
		"breach_emergence": map[string]any{
			"regen_rate":           0.03,
			"regen_interval_hours": 8,
			"max_active":           1,
		},
		"floor_boss": map[string]any{
			"regen_rate":           0.03,
			"regen_interval_hours": 8,
		},
	})
	v.SetDefault("engine.raid_hp_per_player", 300)
	v.SetDefault("engine.raid_hp_cap", 6000)
	v.SetDefault("engine.emergence_hp_min", 500)
	v.SetDefault("engine.emergence_hp_max", 800)
	v.SetDefault("engine.minion_respawn", "8h")
	v.SetDefault("engine.lockout", "24h")
	v.SetDefault("engine.message_limit", 150)
	v.SetDefault("engine.epoch_start", "2026-01-01T00:00:00Z")
	v.SetDefault("engine.day_length", "24h")
}
