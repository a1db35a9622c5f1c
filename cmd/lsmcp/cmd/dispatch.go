package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lsmcp/lsmcp/internal/daemon"
)

// dispatchTool calls a named MCP tool, preferring a running daemon
// (which keeps the index and language server warm across CLI
// invocations) and falling back to a one-shot in-process project.
// result is decoded into out, a pointer to the tool's output type.
func dispatchTool(ctx context.Context, root, name string, args map[string]any, local bool, out any) error {
	if !local {
		client := daemon.NewClient(daemon.DefaultConfig())
		if client.IsRunning() {
			if err := client.Call(ctx, name, root, args, out); err != nil {
				slog.Warn("daemon call failed, falling back to local", slog.String("error", err.Error()))
			} else {
				return nil
			}
		}
	}

	project, err := daemon.OpenProject(ctx, root, slog.Default())
	if err != nil {
		return err
	}
	result, err := project.CallTool(ctx, name, args)
	if err != nil {
		return err
	}
	return remarshal(result, out)
}

// remarshal round-trips v through JSON into out, for adapting
// project.CallTool's any-typed result onto a concrete output struct.
func remarshal(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal tool result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal tool result: %w", err)
	}
	return nil
}
