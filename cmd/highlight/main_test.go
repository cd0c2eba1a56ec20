package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Highlight version")
}

func TestLoadConfig_FlagsOverrideFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "highlight.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nurl = \"http://files:1\"\nport = 9000\n\n[logging]\nlevel = \"warn\"\n"), 0644))

	origFiles, origURL, origPort := configFiles, serverURL, serverPort
	defer func() {
		configFiles, serverURL, serverPort = origFiles, origURL, origPort
	}()

	configFiles = []string{path}
	serverURL = "http://flags:2"
	serverPort = 0

	require.NoError(t, loadConfig(submitCmd, nil))
	assert.Equal(t, "http://flags:2", config.Server.URL)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.NotNil(t, logger)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	origFiles := configFiles
	defer func() { configFiles = origFiles }()

	configFiles = []string{filepath.Join(t.TempDir(), "missing.toml")}
	assert.Error(t, loadConfig(submitCmd, nil))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range []string{"serve", "submit", "watch", "poll", "modal", "version"} {
		assert.True(t, names[name], name)
	}
}
