// Package config handles pktcraft configuration loading using viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/pktcraft/pkg/layers"
)

// ErrInvalidConfig is returned for configuration values that cannot be used.
var ErrInvalidConfig = errors.New("pktcraft: invalid config")

// Config is the top-level configuration. Maps to the `pktcraft:` root key
// in YAML.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Decode DecodeConfig `mapstructure:"decode"`
	Output OutputConfig `mapstructure:"output"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`   // trace / debug / info / warn / error
	Format  string           `mapstructure:"format"`  // text / json
	Pattern string           `mapstructure:"pattern"` // text format only
	Time    string           `mapstructure:"time"`    // time layout for %time
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations. The console output
// always writes to stderr.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Decode ───

// DecodeConfig holds the default parse options used by the CLI.
type DecodeConfig struct {
	FirstLayer string `mapstructure:"first_layer"`
	MaxLayers  int    `mapstructure:"max_layers"`

	firstLayer layers.Kind
}

// FirstLayerKind returns the parsed FirstLayer. Valid after
// ValidateAndApplyDefaults.
func (d DecodeConfig) FirstLayerKind() layers.Kind { return d.firstLayer }

// ─── Output ───

// OutputConfig selects how results are printed.
type OutputConfig struct {
	Format string `mapstructure:"format"` // text / json / yaml / protobuf
}

// ─── Loading ───

const (
	DefaultLogPattern = "%time [%level] %field %msg\n"
	DefaultLogTime    = "2006-01-02 15:04:05.000"
	DefaultMaxLayers  = 16
)

// configRoot is the top-level wrapper matching the YAML structure `pktcraft: ...`.
type configRoot struct {
	Pktcraft Config `mapstructure:"pktcraft"`
}

// Load loads configuration from path. An empty path yields the defaults,
// still subject to PKTCRAFT_* environment overrides
// (e.g. key "pktcraft.log.level" → env "PKTCRAFT_LOG_LEVEL").
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Pktcraft

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "pktcraft." prefix to match the YAML root wrapper; a
// default is also what lets AutomaticEnv see a key.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("pktcraft.log.level", "info")
	v.SetDefault("pktcraft.log.format", "text")
	v.SetDefault("pktcraft.log.pattern", DefaultLogPattern)
	v.SetDefault("pktcraft.log.time", DefaultLogTime)
	v.SetDefault("pktcraft.log.outputs.file.enabled", false)
	v.SetDefault("pktcraft.log.outputs.file.path", "pktcraft.log")
	v.SetDefault("pktcraft.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("pktcraft.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("pktcraft.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("pktcraft.log.outputs.file.rotation.compress", true)

	// Decode defaults
	v.SetDefault("pktcraft.decode.first_layer", "ethernet")
	v.SetDefault("pktcraft.decode.max_layers", DefaultMaxLayers)

	// Output defaults
	v.SetDefault("pktcraft.output.format", "text")
}

// ValidateAndApplyDefaults validates configuration and fills in values left
// empty by a config that bypassed Load.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: log level %q (must be trace/debug/info/warn/error)", ErrInvalidConfig, cfg.Log.Level)
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: log format %q (must be json/text)", ErrInvalidConfig, cfg.Log.Format)
	}
	if cfg.Log.Pattern == "" {
		cfg.Log.Pattern = DefaultLogPattern
	}
	if cfg.Log.Time == "" {
		cfg.Log.Time = DefaultLogTime
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", ErrInvalidConfig)
	}

	// ── Decode ──
	if cfg.Decode.FirstLayer == "" {
		cfg.Decode.FirstLayer = "ethernet"
	}
	kind, err := layers.ParseKind(cfg.Decode.FirstLayer)
	if err != nil {
		return fmt.Errorf("%w: decode.first_layer: %w", ErrInvalidConfig, err)
	}
	cfg.Decode.firstLayer = kind
	if cfg.Decode.MaxLayers == 0 {
		cfg.Decode.MaxLayers = DefaultMaxLayers
	}
	if cfg.Decode.MaxLayers < 1 {
		return fmt.Errorf("%w: decode.max_layers %d (must be at least 1)", ErrInvalidConfig, cfg.Decode.MaxLayers)
	}

	// ── Output ──
	cfg.Output.Format = strings.ToLower(cfg.Output.Format)
	if cfg.Output.Format == "" {
		cfg.Output.Format = "text"
	}
	switch cfg.Output.Format {
	case "text", "json", "yaml", "protobuf":
	default:
		return fmt.Errorf("%w: output format %q (must be text/json/yaml/protobuf)", ErrInvalidConfig, cfg.Output.Format)
	}
	return nil
}
