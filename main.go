package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kubev2v/hypervisor-collector/cmd"
	"github.com/kubev2v/hypervisor-collector/internal/config"
	"github.com/kubev2v/hypervisor-collector/pkg/logger"
)

func main() {
	// default configuration
	cfg := config.NewConfigurationWithOptionsAndDefaults(
		config.WithLogFormat("console"),
		config.WithLogLevel("info"),
	)

	rootCmd := &cobra.Command{
		Use:           "hypervisor-collector",
		Short:         "Collect hypervisor inventories and upload them to SUSE Customer Center",
		Version:       cmd.Version,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			if err := validateConfig(cfg); err != nil {
				return err
			}

			l, err := logger.Init(cfg.LogFormat, cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(l)
			return nil
		},
	}
	registerLoggingFlags(rootCmd, cfg)

	rootCmd.AddCommand(cmd.NewRunCommand(cfg))

	err := rootCmd.Execute()
	_ = zap.L().Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func validateConfig(cfg *config.Configuration) error {
	switch cfg.LogFormat {
	case "console":
	case "json":
	default:
		return fmt.Errorf("invalid log-format: %s", cfg.LogFormat)
	}

	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %s", cfg.LogLevel)
	}

	return nil
}

func registerLoggingFlags(cmd *cobra.Command, config *config.Configuration) {
	cmd.PersistentFlags().StringVar(&config.LogFormat, "log-format", config.LogFormat, "format of the logs: console or json")
	cmd.PersistentFlags().StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	cmd.PersistentFlags().StringVar(&config.LogFile, "log-file", config.LogFile, "also write the logs to this file, created with mode 0600")
}
