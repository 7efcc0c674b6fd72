package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/localgpt/localgpt/internal/capability"
	"github.com/localgpt/localgpt/internal/config"
	"github.com/localgpt/localgpt/internal/dispatch"
	"github.com/localgpt/localgpt/internal/event"
	"github.com/localgpt/localgpt/internal/executor"
	"github.com/localgpt/localgpt/internal/logging"
	"github.com/localgpt/localgpt/internal/mcpserver"
)

var mcpSSE string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the LocalGPT capabilities as MCP tools over stdio",
	Long: `Run an MCP server on stdin/stdout exposing launch_program,
run_code_in_virtual_env and scrape_website as tools.

With --sse the tools are served over HTTP server-sent events instead.
Logs never go to stdout; use --print-logs to see them on stderr.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpSSE, "sse", "", "Serve over SSE on this address, e.g. 127.0.0.1:9997")
}

func runMCP(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	launcher := capability.NewLauncher(event.Default())
	exec := executor.New(appConfig.Executor, millis(appConfig.Timeouts.Executor))
	defer exec.Close()

	dispatcher := dispatch.New(launcher, exec, dispatch.WithLaunchTimeout(millis(appConfig.Timeouts.Launch)))

	s := mcpserver.NewServer(dispatcher, Version)
	if mcpSSE != "" {
		err = serveSSE(cmd, s)
	} else {
		logging.Info().Msg("serving MCP over stdio")
		err = server.ServeStdio(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := launcher.Shutdown(ctx); serr != nil {
		logging.Warn().Err(serr).Msg("launched programs still running")
	}
	return err
}

func serveSSE(cmd *cobra.Command, s *server.MCPServer) error {
	sse := server.NewSSEServer(s, server.WithBaseURL("http://"+mcpSSE))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() { served <- sse.Start(mcpSSE) }()

	logging.Info().Str("addr", mcpSSE).Msg("serving MCP over SSE")
	fmt.Fprintf(cmd.OutOrStdout(), "LocalGPT MCP tools at http://%s/sse\n", mcpSSE)

	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sse.Shutdown(shutdownCtx)
}
