package cli

import (
	"os"

	"github.com/rangesecurity/chainsync/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func RootCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:           "chainsync",
		Short:         "chainsync ingests a cosmos chain into a relational ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, cfg); err != nil {
				return err
			}
			if err := setupLogging(cfg.Log); err != nil {
				return err
			}
			cmd.SetContext(config.WithContext(cmd.Context(), cfg))
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "path to a yaml config file")
	flags.Int64("start-height", 0, "height treated as synced when the cursor is empty")
	flags.String("node.rpc", "", "cometbft rpc url")
	flags.String("node.api", "", "cosmos rest api url")
	flags.String("db.url", "", "database url, postgres:// or sqlite:")
	flags.String("redis.url", "", "redis url for telemetry streams")
	flags.String("metrics.addr", "", "listen address of the prometheus endpoint")
	flags.String("log.level", "", "zerolog level (debug, info, warn, error)")
	flags.Bool("log.console", false, "human readable log output")

	cmd.AddCommand(
		SyncCommand(),
		ValidatorIndexerCommand(),
		AnalyzerCommand(),
		DBCommand(),
	)
	return cmd
}

// flags set on the command line override every other config source
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("start-height") {
		if cfg.StartHeight, err = flags.GetInt64("start-height"); err != nil {
			return err
		}
	}
	stringFlags := map[string]*string{
		"node.rpc":     &cfg.Node.RPCURL,
		"node.api":     &cfg.Node.APIURL,
		"db.url":       &cfg.Database.URL,
		"redis.url":    &cfg.Telemetry.RedisURL,
		"metrics.addr": &cfg.Metrics.Addr,
		"log.level":    &cfg.Log.Level,
	}
	for name, target := range stringFlags {
		if !flags.Changed(name) {
			continue
		}
		if *target, err = flags.GetString(name); err != nil {
			return err
		}
	}
	if flags.Changed("log.console") {
		if cfg.Log.Console, err = flags.GetBool("log.console"); err != nil {
			return err
		}
	}
	return cfg.Validate()
}

func setupLogging(cfg config.LogConfig) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}
