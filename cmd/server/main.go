package main

import (
	"os"

	"github.com/spf13/cobra"

	"tejas.dev/portfolio-api/internal/config"
	"tejas.dev/portfolio-api/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "portfolio-api",
	Short: "Portfolio chat backend",
	Long: `Answers questions about the portfolio owner from the documents in the
data directory. Without a subcommand it starts the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger.Init(cfg.LogLevel)
		appConfig = cfg
		return nil
	},
	RunE: runServe,
}

// appConfig is loaded once before any command runs.
var appConfig *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
