// Package cmd provides the CLI commands for lsmcp.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lsmcp/lsmcp/internal/config"
	"github.com/lsmcp/lsmcp/internal/logging"
	"github.com/lsmcp/lsmcp/internal/preflight"
	"github.com/lsmcp/lsmcp/internal/profiling"
	"github.com/lsmcp/lsmcp/pkg/version"
)

// Profiling flags.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// Debug logging flag.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the lsmcp CLI.
func NewRootCmd() *cobra.Command {
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "lsmcp",
		Short: "Persistent symbol index and LSP bridge for AI coding assistants",
		Long: `lsmcp maintains a persistent workspace symbol index fed by a
language server, exposed over the Model Context Protocol so AI coding
assistants can query symbols, jump to definitions, and request hovers,
references, and renames without re-launching the language server on
every call.

It runs entirely locally with zero configuration required.

Just run 'lsmcp' in your project directory to get started.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runSmartDefault(cmd.Context(), cmd, skipCheck)
		},
	}

	cmd.SetVersionTemplate("lsmcp version {{.Version}}\n")

	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.lsmcp/logs/")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}

	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}

	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	if loggingCleanup != nil {
		slog.Info("debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// runSmartDefault implements the zero-config flow: find the project
// root, run preflight checks, then serve the MCP stdio transport
// directly. The MCP protocol requires stdout be reserved exclusively
// for JSON-RPC messages, so nothing is written to stdout before the
// server starts; use 'lsmcp status' or 'lsmcp doctor' for diagnostics.
func runSmartDefault(ctx context.Context, _ *cobra.Command, skipCheck bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	dataDir := filepath.Join(root, ".lsmcp")
	if !skipCheck && preflight.NeedsCheck(dataDir) {
		checker := preflight.New(preflight.WithOutput(logDiscard{}))
		results := checker.RunAll(ctx, root)

		if checker.HasCriticalFailures(results) {
			slog.Error("system check failed - run 'lsmcp doctor' for diagnostics")
			return fmt.Errorf("system check failed")
		}

		if err := preflight.MarkPassed(dataDir); err != nil {
			slog.Debug("failed to mark preflight as passed", slog.String("error", err.Error()))
		}
	}

	return runServeStdio(ctx, root)
}

// logDiscard is an io.Writer that drops everything written to it,
// keeping preflight's printed output off stdout during stdio serve.
type logDiscard struct{}

func (logDiscard) Write(p []byte) (int, error) { return len(p), nil }
