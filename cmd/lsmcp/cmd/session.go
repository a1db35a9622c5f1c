package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lsmcp/lsmcp/internal/config"
	"github.com/lsmcp/lsmcp/internal/mcp"
	"github.com/lsmcp/lsmcp/internal/output"
	"github.com/lsmcp/lsmcp/internal/session"
)

// defaultSessionsDir mirrors the daemon's ~/.lsmcp layout (see
// internal/daemon.DefaultConfig) so session bindings live alongside
// the daemon's own state.
func defaultSessionsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".lsmcp", "sessions")
}

func newSessionManager() (*session.Manager, error) {
	return session.NewManager(session.ManagerConfig{StoragePath: defaultSessionsDir()})
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage named bindings between project roots and their symbol caches",
		Long: `A session is a named, persistent binding between a project root and
the on-disk directory holding its symbol cache and last-known index
stats. Sessions survive daemon restarts, so running 'lsmcp session open
work' again from the same project root reattaches to the same cache
instead of starting cold. Opening an existing session name from a
different project root is rejected.`,
	}

	cmd.AddCommand(newSessionOpenCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionDeleteCmd())
	cmd.AddCommand(newSessionPruneCmd())

	return cmd
}

func newSessionOpenCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "open <name>",
		Short: "Bind the current project to a named session and record its index stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionOpen(cmd, args[0], local)
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Bypass the daemon when collecting index stats")
	return cmd
}

func runSessionOpen(cmd *cobra.Command, name string, local bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	mgr, err := newSessionManager()
	if err != nil {
		return fmt.Errorf("open session manager: %w", err)
	}

	sess, err := mgr.Open(name, root)
	if err != nil {
		return err
	}

	var status mcp.IndexStatusOutput
	if err := dispatchTool(cmd.Context(), root, "index_status", map[string]any{}, local, &status); err == nil {
		sess.UpdateIndexStats(status.Stats.TotalFiles, status.Stats.TotalSymbols)
	}
	if err := mgr.Save(sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	out := output.NewAuto(cmd.OutOrStdout())
	out.Success(fmt.Sprintf("Session '%s' bound to %s", sess.Name, sess.ProjectPath))
	out.Status("", fmt.Sprintf("Files indexed: %d, symbols: %d", sess.IndexStats.FileCount, sess.IndexStats.SymbolCount))
	return nil
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newSessionManager()
			if err != nil {
				return fmt.Errorf("open session manager: %w", err)
			}
			sessions, err := mgr.List()
			if err != nil {
				return err
			}

			out := output.NewAuto(cmd.OutOrStdout())
			if len(sessions) == 0 {
				out.Status("", "No sessions saved")
				return nil
			}
			for _, s := range sessions {
				marker := ""
				if !s.Valid {
					marker = " (project missing)"
				}
				out.Status("", fmt.Sprintf("%-20s %s  last used %s  %d files, %d symbols%s",
					s.Name, s.ProjectPath, s.LastUsed.Format(time.RFC3339), s.FileCount, s.SymbolCount, marker))
			}
			return nil
		},
	}
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a session and its cached index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newSessionManager()
			if err != nil {
				return fmt.Errorf("open session manager: %w", err)
			}
			if err := mgr.Delete(args[0]); err != nil {
				return err
			}
			output.NewAuto(cmd.OutOrStdout()).Success(fmt.Sprintf("Deleted session '%s'", args[0]))
			return nil
		},
	}
}

func newSessionPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions unused for longer than a given duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newSessionManager()
			if err != nil {
				return fmt.Errorf("open session manager: %w", err)
			}
			n, err := mgr.Prune(olderThan)
			if err != nil {
				return err
			}
			output.NewAuto(cmd.OutOrStdout()).Success(fmt.Sprintf("Pruned %d session(s)", n))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Prune sessions not used within this duration")
	return cmd
}
