package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/killpoints/internal/config"
	"github.com/okian/killpoints/pkg/logger"
)

const envConfig = "KILLPOINTS_CONFIG"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries what PersistentPreRunE loaded to the subcommands.
type cli struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "killpoints",
		Short:         "Kill-points scoring engine and leaderboard",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (overrides "+envConfig+")")
	root.AddCommand(serveCmd(c))
	root.AddCommand(pointsCmd(c))
	root.AddCommand(breakdownCmd(c))
	root.AddCommand(explainCmd(c))
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	if c.configPath != "" {
		if err := os.Setenv(envConfig, c.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	opts := []logger.Option{logger.WithJSON(cfg.LogJSON)}
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile, 0))
	}
	if err := logger.Init(opts...); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}
