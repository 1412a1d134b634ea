// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Archive() ArchiveConfig

	// Archive Setters
	SetArchiveDecompress(bool)
	SetArchiveConcurrency(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	ArchiveCfg ArchiveConfig `mapstructure:"archive" yaml:"archive"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Archive() ArchiveConfig { return c.ArchiveCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetArchiveDecompress(b bool)  { c.ArchiveCfg.Decompress = b }
func (c *Config) SetArchiveConcurrency(n int) { c.ArchiveCfg.Concurrency = n }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ArchiveConfig controls how session archives are read.
type ArchiveConfig struct {
	// MaxHeaderBytes caps the bytes scanned for a start line and header block.
	MaxHeaderBytes int  `mapstructure:"max_header_bytes" yaml:"max_header_bytes"`
	Decompress     bool `mapstructure:"decompress" yaml:"decompress"`
	// Concurrency is the number of sessions read in parallel by bulk commands.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "saz-cli")
	v.SetDefault("logger.log_file", "") // stdout only unless a file is configured
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Archive --
	v.SetDefault("archive.max_header_bytes", 64<<10)
	v.SetDefault("archive.decompress", true)
	v.SetDefault("archive.concurrency", 4)
}

// ConfigureEnv makes every key overridable through SAZ_-prefixed environment
// variables, e.g. SAZ_ARCHIVE_CONCURRENCY.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix("SAZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LoggerCfg.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be either 'console' or 'json'")
	}
	if err := c.ArchiveCfg.Validate(); err != nil {
		return fmt.Errorf("archive configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the archive settings.
func (a *ArchiveConfig) Validate() error {
	if a.MaxHeaderBytes <= 0 {
		return fmt.Errorf("max_header_bytes must be a positive integer")
	}
	if a.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	return nil
}
