// Package commands provides the CLI commands for LocalGPT.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/localgpt/localgpt/internal/config"
	"github.com/localgpt/localgpt/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "localgpt",
	Short: "LocalGPT - a conversational assistant that can act on your machine",
	Long: `LocalGPT runs conversations with a language model over TCP and lets
either side of the conversation launch programs, run sandboxed Python and
scrape websites.

Run 'localgpt serve' to start the session server and 'localgpt chat' to
talk to it.`,
	Version:           Version,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("localgpt %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(mcpCmd)
}

// setup loads .env and configures logging. Without --print-logs logs go to a
// file in the state directory.
func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(logLevel)
	if printLogs {
		cfg.Pretty = true
	} else {
		paths := config.GetPaths()
		if err := paths.EnsurePaths(); err != nil {
			return err
		}
		cfg.Output = io.Discard
		cfg.LogToFile = true
		cfg.LogDir = paths.State
	}
	logging.Init(cfg)
	return nil
}

// Execute runs the root command.
func Execute() error {
	defer logging.Close()
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
