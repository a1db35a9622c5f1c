// Package main provides the entry point for the lsmcp CLI.
package main

import (
	"os"

	"github.com/lsmcp/lsmcp/cmd/lsmcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
