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
	"github.com/lsmcp/lsmcp/internal/mcp"
	"github.com/lsmcp/lsmcp/internal/output"
)

// skippedDirs are never descended into while discovering files to index.
var skippedDirs = map[string]bool{
	".git":         true,
	".lsmcp":       true,
	"node_modules": true,
	"vendor":       true,
}

type indexOptions struct {
	incremental  bool
	skipFailures bool
	local        bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [paths...]",
		Short: "Index workspace files into the symbol index",
		Long: `Index one or more files into the persistent symbol index.

With no paths, every recognized file under the project root is
discovered and indexed. With --incremental, no paths are walked at
all; instead the index compares the workspace against its last known
VCS commit and indexes only what changed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.incremental, "incremental", false, "Reindex only files changed since the last indexed commit")
	cmd.Flags().BoolVar(&opts.skipFailures, "skip-failures", false, "Continue past a single file's failure instead of aborting the batch")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Bypass the daemon and index in-process")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, args []string, opts indexOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}

	out := output.NewAuto(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	if opts.incremental {
		var result mcp.UpdateIncrementalOutput
		if err := dispatchTool(ctx, root, "update_incremental", map[string]any{}, opts.local, &result); err != nil {
			return fmt.Errorf("update_incremental failed: %w", err)
		}
		out.Success(fmt.Sprintf("Updated %d file(s), removed %d", len(result.Updated), len(result.Removed)))
		for _, e := range result.Errors {
			out.Warning(e)
		}
		return nil
	}

	paths := args
	if len(paths) == 0 {
		paths, err = discoverFiles(root)
		if err != nil {
			return fmt.Errorf("discover files under %s: %w", root, err)
		}
		slog.Info("index_discovered_files", slog.Int("count", len(paths)))
	}

	var result mcp.IndexFilesOutput
	toolArgs := map[string]any{"paths": paths, "skip_failures": opts.skipFailures}
	if err := dispatchTool(ctx, root, "index_files", toolArgs, opts.local, &result); err != nil {
		return fmt.Errorf("index_files failed: %w", err)
	}

	out.Success(fmt.Sprintf("Indexed %d file(s)", len(result.Indexed)))
	for _, e := range result.Errors {
		out.Warning(fmt.Sprintf("%s: %s", e.URI, e.Error))
	}
	return nil
}

// discoverFiles walks root collecting candidate source file paths
// relative to root, skipping VCS and dependency directories. The
// language server decides per-file recognition at index time.
func discoverFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	return paths, err
}

