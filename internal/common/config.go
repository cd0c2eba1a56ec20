package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment" yaml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server" yaml:"server"`
	Channel     ChannelConfig  `toml:"channel" yaml:"channel"`
	Handoff     HandoffConfig  `toml:"handoff" yaml:"handoff"`
	Progress    ProgressConfig `toml:"progress" yaml:"progress"`
	Upload      UploadConfig   `toml:"upload" yaml:"upload"`
	Poll        PollConfig     `toml:"poll" yaml:"poll"`
	Rooms       RoomsConfig    `toml:"rooms" yaml:"rooms"`
	Storage     StorageConfig  `toml:"storage" yaml:"storage"`
	Logging     LoggingConfig  `toml:"logging" yaml:"logging"`
}

// ServerConfig holds both the address the client talks to (URL) and the address the
// development hub listens on (Host/Port).
type ServerConfig struct {
	URL  string `toml:"url" yaml:"url"` // Base URL used by client commands, e.g. "http://localhost:8085"
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
}

// ChannelConfig configures the event channel transport
type ChannelConfig struct {
	Path             string `toml:"path" yaml:"path"`                           // WebSocket path (default: "/ws")
	HandshakeTimeout string `toml:"handshake_timeout" yaml:"handshake_timeout"` // e.g. "10s"
	WriteTimeout     string `toml:"write_timeout" yaml:"write_timeout"`         // e.g. "5s"
}

// HandoffConfig configures the bounded retry used to hand a task id to the page controller
type HandoffConfig struct {
	MaxAttempts int    `toml:"max_attempts" yaml:"max_attempts"` // default: 10
	Interval    string `toml:"interval" yaml:"interval"`         // default: "100ms"
}

// ProgressConfig configures the page-level progress controller
type ProgressConfig struct {
	ResultsPath string `toml:"results_path" yaml:"results_path"` // default: "/highlight/results"
	PageKey     string `toml:"page_key" yaml:"page_key"`         // directory key of the controller (default: "highlight")
}

// UploadConfig configures form submission
type UploadConfig struct {
	Action       string `toml:"action" yaml:"action"`               // default: "/highlight/process_async"
	Kind         string `toml:"kind" yaml:"kind"`                   // "highlight" or "footnotes"
	Timeout      string `toml:"timeout" yaml:"timeout"`             // HTTP timeout (default: "60s")
	PreviewLimit int    `toml:"preview_limit" yaml:"preview_limit"` // non-JSON body preview length (default: 200)
}

// PollConfig configures the legacy status poller
type PollConfig struct {
	Interval   string `toml:"interval" yaml:"interval"`       // default: "3s"
	StatusPath string `toml:"status_path" yaml:"status_path"` // default: "/highlight/task_status"
}

// RoomsConfig configures the development hub's task progress rooms
type RoomsConfig struct {
	ProgressThrottle string `toml:"progress_throttle" yaml:"progress_throttle"` // min interval between progress events per room; empty = no throttling
	TaskTTL          string `toml:"task_ttl" yaml:"task_ttl"`                   // default: "1h"
	PurgeSchedule    string `toml:"purge_schedule" yaml:"purge_schedule"`       // cron expression (default: "@every 1m")
	Workers          int    `toml:"workers" yaml:"workers"`                     // simulated analysis workers (default: 2)
	QueueSize        int    `toml:"queue_size" yaml:"queue_size"`               // pending submissions before 500s (default: 64)
	Steps            int    `toml:"steps" yaml:"steps"`                         // simulated progress steps per task (default: 10)
	StepDelay        string `toml:"step_delay" yaml:"step_delay"`               // delay between simulated progress steps (default: "200ms")
	ListsDir         string `toml:"lists_dir" yaml:"lists_dir"`                 // directory with a predefined_lists.toml override
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger" yaml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" yaml:"path"`                         // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup" yaml:"reset_on_startup"` // Delete database on startup
}

type LoggingConfig struct {
	Level  string   `toml:"level" yaml:"level"`   // "debug", "info", "warn", "error"
	Output []string `toml:"output" yaml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			URL:  "http://localhost:8085",
			Host: "localhost",
			Port: 8085,
		},
		Channel: ChannelConfig{
			Path:             "/ws",
			HandshakeTimeout: "10s",
			WriteTimeout:     "5s",
		},
		Handoff: HandoffConfig{
			MaxAttempts: 10,
			Interval:    "100ms",
		},
		Progress: ProgressConfig{
			ResultsPath: "/highlight/results",
			PageKey:     "highlight",
		},
		Upload: UploadConfig{
			Action:       "/highlight/process_async",
			Kind:         "highlight",
			Timeout:      "60s",
			PreviewLimit: 200,
		},
		Poll: PollConfig{
			Interval:   "3s",
			StatusPath: "/highlight/task_status",
		},
		Rooms: RoomsConfig{
			ProgressThrottle: "",
			TaskTTL:          "1h",
			PurgeSchedule:    "@every 1m",
			Workers:          2,
			QueueSize:        64,
			Steps:            10,
			StepDelay:        "200ms",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/highlight.db",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// CLI flag overrides are applied afterwards by ApplyFlagOverrides.
// Files ending in .yaml/.yml are decoded as YAML, everything else as TOML.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = toml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("HIGHLIGHT_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if url := os.Getenv("HIGHLIGHT_SERVER_URL"); url != "" {
		config.Server.URL = url
	}
	if host := os.Getenv("HIGHLIGHT_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("HIGHLIGHT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	// Channel configuration
	if path := os.Getenv("HIGHLIGHT_CHANNEL_PATH"); path != "" {
		config.Channel.Path = path
	}
	if timeout := os.Getenv("HIGHLIGHT_CHANNEL_HANDSHAKE_TIMEOUT"); timeout != "" {
		config.Channel.HandshakeTimeout = timeout
	}

	// Hand-off configuration
	if attempts := os.Getenv("HIGHLIGHT_HANDOFF_MAX_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			config.Handoff.MaxAttempts = a
		}
	}
	if interval := os.Getenv("HIGHLIGHT_HANDOFF_INTERVAL"); interval != "" {
		config.Handoff.Interval = interval
	}

	// Upload configuration
	if action := os.Getenv("HIGHLIGHT_UPLOAD_ACTION"); action != "" {
		config.Upload.Action = action
	}

	// Poll configuration
	if interval := os.Getenv("HIGHLIGHT_POLL_INTERVAL"); interval != "" {
		config.Poll.Interval = interval
	}

	// Storage configuration
	if badgerPath := os.Getenv("HIGHLIGHT_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("HIGHLIGHT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("HIGHLIGHT_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, serverURL string, port int, host string) {
	if serverURL != "" {
		config.Server.URL = serverURL
	}
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDuration parses a duration string, falling back to def when empty or invalid
func ParseDuration(value string, def time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// ValidatePurgeSchedule validates the cron expression used to purge expired task records.
// Descriptors such as "@every 1m" are accepted.
func ValidatePurgeSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid purge schedule: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ChannelURL returns the WebSocket URL derived from the server URL and channel path
func (c *Config) ChannelURL() string {
	base := strings.TrimRight(c.Server.URL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	path := c.Channel.Path
	if path == "" {
		path = "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// ResolveURL joins a path onto the configured server URL. Absolute URLs are returned unchanged.
func (c *Config) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(c.Server.URL, "/") + path
}
