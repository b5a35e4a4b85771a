package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hupe1980/simlink/config"
	"github.com/hupe1980/simlink/logging"
)

func main() {
	for _, envFile := range []string{
		".env",
		"../.env",
		"../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "simlink",
		Short:         "simlink drives simulation models through their engine server.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newSchemaCmd(flags),
		newRunCmd(flags),
		newSimulateCmd(flags),
	)
	return rootCmd
}

// load reads the configuration and resolves the model path from args.
func (g *globalFlags) load(args []string) (*config.File, logging.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	if len(args) > 0 {
		cfg.Model = args[0]
	}
	return cfg, cfg.Logger(os.Stderr), nil
}

func requireModel(cfg *config.File) error {
	if cfg.Model == "" {
		return fmt.Errorf("no model given: pass a path or set model in the configuration or %s", config.EnvModel)
	}
	return nil
}
