// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "console", cfg.Logger().Format)
	assert.Equal(t, "saz-cli", cfg.Logger().ServiceName)
	assert.Empty(t, cfg.Logger().LogFile)
	assert.Equal(t, 65536, cfg.Archive().MaxHeaderBytes)
	assert.True(t, cfg.Archive().Decompress)
	assert.Equal(t, 4, cfg.Archive().Concurrency)
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.NoError(t, cfg.Validate())

		badFormat := *cfg
		badFormat.LoggerCfg.Format = "xml"
		err := badFormat.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger.format must be either 'console' or 'json'")

		jsonFormat := *cfg
		jsonFormat.LoggerCfg.Format = "JSON"
		assert.NoError(t, jsonFormat.Validate())
	})

	t.Run("Archive Validation", func(t *testing.T) {
		valid := ArchiveConfig{MaxHeaderBytes: 1024, Concurrency: 1}
		assert.NoError(t, valid.Validate())

		noHeaderBudget := valid
		noHeaderBudget.MaxHeaderBytes = 0
		err := noHeaderBudget.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max_header_bytes must be a positive integer")

		noWorkers := valid
		noWorkers.Concurrency = -2
		err = noWorkers.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "concurrency must be a positive integer")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
logger:
  level: debug
archive:
  concurrency: 8
  decompress: false
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logger().Level)
		assert.Equal(t, 8, cfg.Archive().Concurrency)
		assert.False(t, cfg.Archive().Decompress)
		// Defaults fill whatever the file leaves out.
		assert.Equal(t, 65536, cfg.Archive().MaxHeaderBytes)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("archive.max_header_bytes", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "max_header_bytes must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString("archive:\n  concurrency: 2\n")))

		t.Setenv("SAZ_ARCHIVE_CONCURRENCY", "16")
		t.Setenv("SAZ_LOGGER_LEVEL", "warn")
		ConfigureEnv(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		// The environment overrides the config file.
		assert.Equal(t, 16, cfg.Archive().Concurrency)
		assert.Equal(t, "warn", cfg.Logger().Level)
	})
}

func TestConfigSetters(t *testing.T) {
	var cfg Interface = NewDefaultConfig()
	cfg.SetArchiveDecompress(false)
	cfg.SetArchiveConcurrency(12)
	assert.False(t, cfg.Archive().Decompress)
	assert.Equal(t, 12, cfg.Archive().Concurrency)
}
