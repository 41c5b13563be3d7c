// Package cmd provides the CLI commands for dedupit.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snowpilotorg/dedupit/pkg/version"
)

// NewRootCmd creates the root command for the dedupit CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedupit",
		Short: "Entity deduplication service",
		Long: `Dedupit groups records that refer to the same real-world entity despite
typos, abbreviations, formatting differences, or stale mutable fields.

Candidate pairs come from approximate nearest-neighbor search over sentence
embeddings; an LLM adjudicates each pair and union-find closes the
transitive hull. Each group is merged into one canonical record.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("dedupit version {{.Version}}\n")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
