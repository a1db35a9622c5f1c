package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lsmcp/lsmcp/internal/config"
	"github.com/lsmcp/lsmcp/internal/mcp"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the symbol index and language server",
	}

	cmd.AddCommand(newQuerySymbolsCmd())
	cmd.AddCommand(newQueryHoverCmd())
	cmd.AddCommand(newQueryReferencesCmd())

	return cmd
}

func newQuerySymbolsCmd() *cobra.Command {
	var (
		name          string
		kinds         []string
		file          string
		containerName string
		jsonOutput    bool
		local         bool
	)

	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "Query the workspace symbol index",
		Long: `Query the persistent workspace symbol index by name substring,
kind, container, or file. An empty query matches every indexed symbol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}

			toolArgs := map[string]any{}
			if name != "" {
				toolArgs["name"] = name
			}
			if len(kinds) > 0 {
				toolArgs["kind"] = kinds
			}
			if file != "" {
				toolArgs["file"] = file
			}
			if containerName != "" {
				toolArgs["container_name"] = containerName
			}

			var result mcp.QuerySymbolsOutput
			if err := dispatchTool(cmd.Context(), root, "query_symbols", toolArgs, local, &result); err != nil {
				return fmt.Errorf("query_symbols failed: %w", err)
			}

			return printSymbols(cmd, result, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Substring to match against symbol names")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Filter by one or more symbol kinds")
	cmd.Flags().StringVar(&file, "file", "", "Restrict the query to a single file")
	cmd.Flags().StringVar(&containerName, "container", "", "Filter by exact enclosing container name")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&local, "local", false, "Bypass the daemon and query in-process")

	return cmd
}

func printSymbols(cmd *cobra.Command, result mcp.QuerySymbolsOutput, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	for _, s := range result.Symbols {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s:%d\n", s.Kind, s.Name, s.File, s.Range.StartLine+1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d symbol(s)\n", result.Count)
	return nil
}

func newQueryHoverCmd() *cobra.Command {
	var file string
	var line, character int
	var local bool

	cmd := &cobra.Command{
		Use:   "hover",
		Short: "Show hover information at a position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPositionQuery(cmd.Context(), cmd, "hover", file, line, character, local, func(result any) {
				r := result.(*mcp.HoverOutput)
				fmt.Fprintln(cmd.OutOrStdout(), r.Contents)
			})
		},
	}

	bindPositionFlags(cmd, &file, &line, &character, &local)
	return cmd
}

func newQueryReferencesCmd() *cobra.Command {
	var file string
	var line, character int
	var local, includeDeclaration bool

	cmd := &cobra.Command{
		Use:   "references",
		Short: "List references to the symbol at a position",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}

			var result mcp.ReferencesOutput
			toolArgs := map[string]any{
				"file": file, "line": line, "character": character,
				"include_declaration": includeDeclaration,
			}
			if err := dispatchTool(ctx, root, "references", toolArgs, local, &result); err != nil {
				return fmt.Errorf("references failed: %w", err)
			}

			for _, loc := range result.Locations {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%d\n", loc.File, loc.Range.StartLine+1)
			}
			return nil
		},
	}

	bindPositionFlags(cmd, &file, &line, &character, &local)
	cmd.Flags().BoolVar(&includeDeclaration, "include-declaration", false, "Include the declaration site")
	return cmd
}

func bindPositionFlags(cmd *cobra.Command, file *string, line, character *int, local *bool) {
	cmd.Flags().StringVar(file, "file", "", "File path, relative to the workspace root")
	cmd.Flags().IntVar(line, "line", 0, "Zero-based line number")
	cmd.Flags().IntVar(character, "character", 0, "Zero-based character offset")
	cmd.Flags().BoolVar(local, "local", false, "Bypass the daemon and query in-process")
	_ = cmd.MarkFlagRequired("file")
}

func runPositionQuery(ctx context.Context, cmd *cobra.Command, toolName, file string, line, character int, local bool, render func(any)) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	toolArgs := map[string]any{"file": file, "line": line, "character": character}

	switch toolName {
	case "hover":
		var result mcp.HoverOutput
		if err := dispatchTool(ctx, root, toolName, toolArgs, local, &result); err != nil {
			return fmt.Errorf("%s failed: %w", toolName, err)
		}
		render(&result)
		return nil
	default:
		return fmt.Errorf("unsupported query %q", toolName)
	}
}
