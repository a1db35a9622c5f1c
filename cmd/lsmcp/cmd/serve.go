package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lsmcp/lsmcp/internal/config"
	"github.com/lsmcp/lsmcp/internal/daemon"
	"github.com/lsmcp/lsmcp/internal/logging"
	"github.com/lsmcp/lsmcp/internal/output"
)

func newServeCmd() *cobra.Command {
	var runDaemon bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server fronting the project's symbol index and
language server.

By default, serve runs a single-project stdio server for the current
directory - the mode AI coding assistants launch directly. With
--daemon, it instead runs the long-lived background process that holds
one index/language-server pair per project root and answers
JSON-RPC-over-socket requests from multiple CLI invocations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runDaemon {
				return runServeDaemon(cmd.Context(), cmd)
			}

			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}
			return runServeStdio(cmd.Context(), root)
		},
	}

	cmd.Flags().BoolVar(&runDaemon, "daemon", false, "Run the background JSON-RPC daemon instead of a single-project stdio server")

	cmd.AddCommand(newServeStopCmd())

	return cmd
}

// runServeStdio opens a single project directly and drives its MCP
// server over stdio - the composition root a supervising AI client
// invokes once per session.
func runServeStdio(ctx context.Context, root string) error {
	project, err := daemon.OpenProject(ctx, root, slog.Default())
	if err != nil {
		return fmt.Errorf("open project %s: %w", root, err)
	}

	return project.MCPServer().Serve(ctx, "stdio", "")
}

func runServeDaemon(ctx context.Context, cmd *cobra.Command) error {
	out := output.NewAuto(cmd.OutOrStdout())
	cfg := daemon.DefaultConfig()

	logCfg := logging.DefaultConfig()
	logCfg.Level = "debug"
	logCfg.WriteToStderr = true
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	out.Status("", "Starting lsmcp daemon...")
	out.Status("", fmt.Sprintf("Socket: %s", cfg.SocketPath))
	out.Status("", fmt.Sprintf("Logs: %s", logging.DefaultLogPath()))
	out.Status("", "Press Ctrl+C to stop")
	out.Newline()

	d, err := daemon.NewDaemon(cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Start(ctx)
}

func newServeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long:  `Send SIGTERM to the running daemon for graceful shutdown, escalating to SIGKILL if it does not exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeStop(cmd)
		},
	}
}

func runServeStop(cmd *cobra.Command) error {
	out := output.NewAuto(cmd.OutOrStdout())
	cfg := daemon.DefaultConfig()

	pidFile := daemon.NewPIDFile(cfg.PIDPath)

	if !pidFile.IsRunning() {
		out.Status("", "Daemon is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("failed to read PID: %w", err)
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Success(fmt.Sprintf("Daemon stopped (was pid: %d)", pid))
			return nil
		}
	}

	out.Status("", "Daemon not responding, sending SIGKILL...")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}

	out.Success("Daemon killed")
	return nil
}
