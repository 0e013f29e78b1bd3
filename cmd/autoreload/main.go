package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"autoreload-go/internal/logger"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "autoreload",
	Short: "Reload when files in a template directory change",
	Long: `autoreload reports the latest modification time of a watched template
directory and reloads clients when it moves forward.

  autoreload serve             # answer change polls over HTTP
  autoreload poll --url ...    # poll an endpoint and run a command on change
  autoreload scan <directory>  # print the latest modification time once`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(serveCmd, pollCmd, scanCmd)
}

func initLogging(level, format string) error {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return err
	}
	cfg := logger.DefaultConfig()
	cfg.Level = lvl
	cfg.Format = format
	logger.Init(cfg)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
