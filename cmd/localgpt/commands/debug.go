package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/localgpt/localgpt/internal/config"
	"github.com/localgpt/localgpt/internal/logging"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug utilities",
	Long:  `Debug utilities for troubleshooting LocalGPT configuration and setup.`,
}

var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runDebugConfig,
}

var debugPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show system paths",
	RunE:  runDebugPaths,
}

func init() {
	debugCmd.AddCommand(debugConfigCmd)
	debugCmd.AddCommand(debugPathsCmd)
}

func runDebugConfig(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	// API keys stay out of the dump
	for name, p := range appConfig.Provider {
		if p.APIKey != "" {
			p.APIKey = "***"
		}
		if p.Options != nil {
			opts := *p.Options
			if opts.APIKey != "" {
				opts.APIKey = "***"
			}
			p.Options = &opts
		}
		appConfig.Provider[name] = p
	}

	data, err := json.MarshalIndent(appConfig, "", "  ")
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runDebugPaths(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "LocalGPT System Paths:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Config:     %s\n", paths.Config)
	fmt.Fprintf(out, "  Data:       %s\n", paths.Data)
	fmt.Fprintf(out, "  Cache:      %s\n", paths.Cache)
	fmt.Fprintf(out, "  State:      %s\n", paths.State)
	fmt.Fprintf(out, "  Memory:     %s\n", paths.MemoryPath())
	fmt.Fprintf(out, "  Knowledge:  %s\n", paths.KnowledgePath())
	fmt.Fprintf(out, "  Venv:       %s\n", paths.VenvPath())
	if logFile := logging.GetLogFilePath(); logFile != "" {
		fmt.Fprintf(out, "  Log file:   %s\n", logFile)
	}
	return nil
}
