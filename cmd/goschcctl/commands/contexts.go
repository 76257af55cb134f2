package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

type contextSummary struct {
	ID           string `json:"id"`
	InterfaceID  string `json:"interface_id"`
	ParserID     string `json:"parser_id"`
	RuleIDLength int    `json:"rule_id_length"`
	RuleCount    int    `json:"rule_count"`
}

func contextsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contexts",
		Short: "List configured SCHC contexts",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var contexts []contextSummary
			if err := getJSON("/v1/contexts", &contexts); err != nil {
				return fmt.Errorf("list contexts: %w", err)
			}
			fmt.Println(formatContexts(contexts, outputFormat))
			return nil
		},
	}
}
