package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lsmcp/lsmcp/internal/config"
	"github.com/lsmcp/lsmcp/internal/daemon"
	"github.com/lsmcp/lsmcp/internal/mcp"
	"github.com/lsmcp/lsmcp/internal/output"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool
	var local bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and daemon health",
		Long: `Display information about the current project's symbol index:
  - Number of indexed files and symbols
  - Last update time and commit hash
  - Background daemon status, if running`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, jsonOutput, local)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&local, "local", false, "Bypass the daemon and inspect in-process")

	return cmd
}

// statusReport is the combined index + daemon view printed by status.
type statusReport struct {
	Index  mcp.IndexStatusOutput `json:"index"`
	Daemon *daemon.StatusResult  `json:"daemon,omitempty"`
}

func runStatus(cmd *cobra.Command, jsonOutput, local bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	var indexStatus mcp.IndexStatusOutput
	if err := dispatchTool(cmd.Context(), root, "index_status", map[string]any{}, local, &indexStatus); err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	report := statusReport{Index: indexStatus}

	cfg := daemon.DefaultConfig()
	client := daemon.NewClient(cfg)
	if client.IsRunning() {
		if daemonStatus, err := client.Status(cmd.Context()); err == nil {
			report.Daemon = daemonStatus
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out := output.NewAuto(cmd.OutOrStdout())
	out.Status("", fmt.Sprintf("Project:        %s (%s)", report.Index.Project.Name, report.Index.Project.Type))
	out.Status("", fmt.Sprintf("Root:           %s", report.Index.Project.RootPath))
	out.Status("", fmt.Sprintf("Files indexed:  %d", report.Index.Stats.TotalFiles))
	out.Status("", fmt.Sprintf("Symbols:        %d", report.Index.Stats.TotalSymbols))
	if report.Index.Stats.LastUpdate != "" {
		out.Status("", fmt.Sprintf("Last update:    %s", report.Index.Stats.LastUpdate))
	}
	if report.Index.Stats.LastCommitHash != "" {
		out.Status("", fmt.Sprintf("Last commit:    %s", report.Index.Stats.LastCommitHash))
	}

	out.Newline()
	if report.Daemon == nil {
		out.Status("", "Daemon:         not running")
	} else {
		out.Status("", fmt.Sprintf("Daemon:         running (pid %d, uptime %s, %d project(s) loaded)",
			report.Daemon.PID, report.Daemon.Uptime, report.Daemon.ProjectsLoaded))
	}

	return nil
}
