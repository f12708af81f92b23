// Package commands implements the rulecheck CLI, an operator tool for trying
// rules against sample events and reading notifier metrics.
package commands

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	faint  = color.New(color.Faint)
)

// NewRootCommand builds the rulecheck command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "rulecheck",
		Short: "Try CloudTrail notification rules against sample events",
		Long: `rulecheck evaluates include and ignore rules against CloudTrail events
exactly as the notifier does, so rule changes can be checked before deploy.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newEvalCommand(), newDefaultsCommand(), newStatsCommand())
	return root
}

// Execute runs the CLI and prints any error in red.
func Execute(version string) error {
	if err := NewRootCommand(version).Execute(); err != nil {
		red.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
