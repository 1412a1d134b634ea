// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/saz-cli/internal/config"
	"github.com/xkilldash9x/saz-cli/internal/observability"
	"github.com/xkilldash9x/saz-cli/pkg/saz"
)

type contextKey string

// configKey stores the validated configuration in a command's context.
const configKey contextKey = "config"

// flagBindings maps command-line flags onto configuration keys. A flag only
// overrides the config file and environment when it is set explicitly.
var flagBindings = map[string]string{
	"max-header-bytes": "archive.max_header_bytes",
	"decompress":       "archive.decompress",
	"concurrency":      "archive.concurrency",
}

// NewRootCommand builds a fresh command tree. Each execution gets its own flags
// and configuration.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "saz",
		Short:         "Inspect captured HTTP session archives",
		Long:          `saz reads session archives (zip files with raw/<id>_c.txt, _s.txt and _m.xml entries) and reconstructs the captured HTTP requests, responses and timing metadata.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting saz-cli", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().Int("max-header-bytes", 0, "maximum bytes scanned for a start line and headers")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newDumpCmd())
	return rootCmd
}

// Execute runs the command tree with the given context.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		}
		return err
	}
	return nil
}

// initializeConfig reads the config file and environment, then binds any flags the
// running command defines.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("invalid config path %q: %w", cfgFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	config.ConfigureEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for flag, key := range flagBindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag --%s: %w", flag, err)
			}
		}
	}
	return nil
}

// getConfigFromContext retrieves the configuration stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in command context")
	}
	return cfg, nil
}

// openArchive expands path and indexes the archive with the configured limits.
func openArchive(path string, cfg config.Interface) (*saz.Archive, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("invalid archive path %q: %w", path, err)
	}
	return saz.OpenFile(expanded,
		saz.WithLogger(observability.GetLogger()),
		saz.WithMaxHeaderBytes(cfg.Archive().MaxHeaderBytes),
	)
}
