package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/highlight/internal/app"
	"github.com/ternarybob/highlight/internal/models"
)

var pollCmd = &cobra.Command{
	Use:   "poll <task-id>",
	Short: "Track a task through the status route",
	Long:  `Polls the task status route until the task completes, fails or is not found.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := app.NewClient(config, logger, cmd.OutOrStdout(), nil)
	defer client.Close()

	state, err := client.Poll(ctx, args[0])
	if err != nil {
		return err
	}
	if state.Kind() != models.StatusCompleted {
		return fmt.Errorf("task %s ended in state %s", args[0], state)
	}
	return nil
}
