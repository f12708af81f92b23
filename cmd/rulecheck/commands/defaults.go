package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cloudtrail-notifier/internal/rules"
)

func newDefaultsCommand() *cobra.Command {
	var functionName string
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in include rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# default rules version %s\n", rules.DefaultRulesVersion)
			for _, r := range rules.DefaultRules(functionName) {
				fmt.Fprintln(out, r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&functionName, "function-name", rules.DefaultFunctionName, "Notifier function name watched by the default rules")
	return cmd
}
