package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/highlight/internal/app"
	"github.com/ternarybob/highlight/internal/progress"
)

var (
	watchTaskID      string
	watchCheckTaskID string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a task's progress over the event channel",
	Long: `Opens a tracking page for an existing task, as if its URL carried task_id or
check_task_id, and prints progress until the task completes or fails.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchTaskID, "task-id", "", "Task id (task_id page parameter)")
	watchCmd.Flags().StringVar(&watchCheckTaskID, "check-task-id", "", "Task id (check_task_id page parameter)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	query := url.Values{}
	if watchTaskID != "" {
		query.Set(progress.ParamTaskID, watchTaskID)
	}
	if watchCheckTaskID != "" {
		query.Set(progress.ParamLegacyTaskID, watchCheckTaskID)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := app.NewClient(config, logger, cmd.OutOrStdout(), query)
	defer client.Close()

	phase, err := client.Watch(ctx)
	if err != nil {
		return err
	}
	if phase == progress.PhaseFailed {
		return fmt.Errorf("task failed: %s", client.Page.Status())
	}
	return nil
}
