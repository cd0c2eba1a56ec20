package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/common"
)

var (
	// Persistent flags
	configFiles []string
	serverURL   string
	serverPort  int
	serverHost  string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "highlight",
	Short: "Submit documents and track task progress",
	Long: `Highlight submits documents for analysis, follows task progress over the
event channel and navigates to the results once a task completes.

The serve command runs a development hub that implements the same routes.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server base URL used by client commands (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&serverPort, "port", "p", 0, "Hub port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&serverHost, "host", "", "Hub host (overrides config)")
}

// loadConfig runs the startup sequence shared by every command:
// config files -> env -> flags, then logger, then banner.
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == versionCmd.Name() {
		return nil
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("highlight.toml"); err == nil {
			configFiles = append(configFiles, "highlight.toml")
		} else if _, err := os.Stat("deployments/local/highlight.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/highlight.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration %v: %w", configFiles, err)
	}

	common.ApplyFlagOverrides(config, serverURL, serverPort, serverHost)

	logger = common.InitLogger(config)

	common.PrintBanner(config, logger)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("server_url", config.Server.URL).
		Str("log_level", config.Logging.Level).
		Msg("Configuration loaded")

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
