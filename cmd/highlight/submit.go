package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/highlight/internal/app"
	"github.com/ternarybob/highlight/internal/progress"
	"github.com/ternarybob/highlight/internal/upload"
)

var (
	submitSource    string
	submitWordsFile string
	submitWords     string
	submitLists     []string
	submitOCR       bool
	submitAction    string
	submitWatch     bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Upload a document and its search words",
	Long: `Validates the form locally, uploads it and hands the task id to the progress
tracker. With --watch the command follows the task until it completes or fails.

Examples:
  highlight submit --source report.docx --words "alpha, beta" --watch
  highlight submit --source report.pdf --words-file words.txt --list narkot`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&submitSource, "source", "", "Source document (.docx, .pdf or .odt)")
	submitCmd.Flags().StringVar(&submitWordsFile, "words-file", "", "Words file (.docx, .xlsx or .txt)")
	submitCmd.Flags().StringVar(&submitWords, "words", "", "Words or phrases, one per line or comma separated")
	submitCmd.Flags().StringSliceVar(&submitLists, "list", nil, "Predefined list key (repeatable)")
	submitCmd.Flags().BoolVar(&submitOCR, "ocr", false, "Request OCR for scanned documents")
	submitCmd.Flags().StringVar(&submitAction, "action", "", "Form action path (overrides config)")
	submitCmd.Flags().BoolVarP(&submitWatch, "watch", "w", false, "Follow the task until it ends")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := app.NewClient(config, logger, cmd.OutOrStdout(), nil)
	defer client.Close()

	if submitWatch {
		if err := client.Controller.Initialize(ctx); err != nil {
			return err
		}
	}

	form := &upload.Form{
		Action:          submitAction,
		SourceFile:      submitSource,
		WordsFile:       submitWordsFile,
		WordsText:       submitWords,
		PredefinedLists: submitLists,
		UseOCR:          submitOCR,
	}
	switch {
	case submitWordsFile != "":
		form.InputMethod = upload.InputMethodFile
	case submitWords != "":
		form.InputMethod = upload.InputMethodText
	}

	taskID, err := client.Submit(ctx, form)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "task_id: %s\n", taskID)

	if !submitWatch {
		return nil
	}
	return waitForTask(ctx, client, taskID)
}

// waitForTask blocks until the tracked task ends and maps failure to an error exit
func waitForTask(ctx context.Context, client *app.Client, taskID string) error {
	phase, err := client.Wait(ctx, taskID)
	if err != nil {
		return err
	}
	if phase == progress.PhaseFailed {
		return fmt.Errorf("task %s failed: %s", taskID, client.Page.Status())
	}
	return nil
}
