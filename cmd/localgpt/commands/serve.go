package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/localgpt/localgpt/internal/capability"
	"github.com/localgpt/localgpt/internal/config"
	"github.com/localgpt/localgpt/internal/dispatch"
	"github.com/localgpt/localgpt/internal/event"
	"github.com/localgpt/localgpt/internal/executor"
	"github.com/localgpt/localgpt/internal/logging"
	"github.com/localgpt/localgpt/internal/prompt"
	"github.com/localgpt/localgpt/internal/provider"
	"github.com/localgpt/localgpt/internal/server"
	"github.com/localgpt/localgpt/internal/session"
	"github.com/localgpt/localgpt/internal/storage"
	"github.com/localgpt/localgpt/pkg/types"
)

var (
	serveHost    string
	servePort    int
	serveFraming string
	serveAdmin   string
	serveRestore bool
	serveDir     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the LocalGPT session server",
	Long: `Start the session server. Each TCP connection is one conversation
with the configured model.

Flags override the server section of the configuration.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (default 0.0.0.0)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default 9999)")
	serveCmd.Flags().StringVar(&serveFraming, "framing", "", "Message framing: raw or length")
	serveCmd.Flags().StringVar(&serveAdmin, "admin", "", "Admin HTTP address, e.g. 127.0.0.1:9998")
	serveCmd.Flags().BoolVar(&serveRestore, "restore", false, "Resume the most recent chat memory in new sessions")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, appConfig)

	descriptors, err := prompt.Load(workDir, appConfig.Descriptors)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	completer, err := provider.New(ctx, appConfig)
	if err != nil {
		return err
	}

	bus := event.Default()
	memory := capability.NewMemoryManager(storage.New(appConfig.Memory.Dir), appConfig.Memory.MaxFileSize,
		capability.WithChatLimit(appConfig.Memory.MaxChatSize))
	launcher := capability.NewLauncher(bus)
	exec := executor.New(appConfig.Executor, millis(appConfig.Timeouts.Executor))
	defer exec.Close()

	dispatcher := dispatch.New(launcher, exec, dispatch.WithLaunchTimeout(millis(appConfig.Timeouts.Launch)))

	sessions := session.NewService(session.Config{
		SystemPrompt: descriptors.SystemPrompt(),
		Completer:    completer,
		Dispatcher:   dispatcher,
		Memory:       capability.NewNative(launcher, memory),
		Bus:          bus,
		SoftCap:      appConfig.Session.SoftCap,
		KeepRecent:   appConfig.Session.KeepRecent,
		Restore:      appConfig.Session.Restore,
	})

	srv, err := server.New(&server.Config{
		Host:       appConfig.Server.Host,
		Port:       appConfig.Server.Port,
		Framing:    appConfig.Server.Framing,
		BufferSize: appConfig.Server.BufferSize,
		Admin:      appConfig.Server.Admin,
	}, sessions, bus, server.WithPrograms(launcher))
	if err != nil {
		return err
	}

	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe() }()

	fmt.Fprintf(cmd.OutOrStdout(), "LocalGPT %s listening on %s:%d (model %s)\n",
		Version, appConfig.Server.Host, appConfig.Server.Port, appConfig.Model)

	select {
	case err := <-served:
		if !errors.Is(err, server.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("server shutdown incomplete")
	}
	sessions.CloseAll()
	if err := launcher.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("launched programs still running")
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
	return nil
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
func applyServeFlags(cmd *cobra.Command, cfg *types.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = serveHost
	}
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("framing") {
		cfg.Server.Framing = serveFraming
	}
	if flags.Changed("admin") {
		cfg.Server.Admin = serveAdmin
	}
	if flags.Changed("restore") {
		cfg.Session.Restore = serveRestore
	}
}
