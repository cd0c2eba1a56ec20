package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/highlight/internal/app"
)

var modalCmd = &cobra.Command{
	Use:   "modal <path>",
	Short: "Load a modal fragment and print it as markdown",
	Example: `  highlight modal /highlight/modal/help
  highlight modal /highlight/modal/lists`,
	Args: cobra.ExactArgs(1),
	RunE: runModal,
}

func init() {
	rootCmd.AddCommand(modalCmd)
}

func runModal(cmd *cobra.Command, args []string) error {
	client := app.NewClient(config, logger, nil, nil)
	defer client.Close()

	fmt.Fprintln(cmd.OutOrStdout(), client.Modal(cmd.Context(), args[0]))
	return nil
}
