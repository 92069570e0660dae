package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRootCommand(t *testing.T) {
	tempDir := t.TempDir()

	oldCwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(oldCwd)
	os.Chdir(tempDir)

	t.Run("creates root command", func(t *testing.T) {
		cmd := NewRootCommand()
		if cmd == nil {
			t.Fatal("NewRootCommand returned nil")
		}

		if cmd.Use != "strata" {
			t.Errorf("expected Use to be 'strata', got %s", cmd.Use)
		}

		if cmd.Version == "" {
			t.Error("expected Version to be set")
		}
	})

	t.Run("has expected subcommands", func(t *testing.T) {
		cmd := NewRootCommand()

		expectedCommands := []string{
			"plan",
			"apply",
			"status",
			"version",
		}

		for _, expectedCmd := range expectedCommands {
			found := false
			for _, subCmd := range cmd.Commands() {
				if subCmd.Name() == expectedCmd {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected command %s not found", expectedCmd)
			}
		}
	})

	t.Run("has expected flags", func(t *testing.T) {
		cmd := NewRootCommand()

		expectedFlags := []string{
			"config",
			"url",
			"dir",
			"debug",
			"verbose",
		}

		for _, expectedFlag := range expectedFlags {
			flag := cmd.PersistentFlags().Lookup(expectedFlag)
			if flag == nil {
				t.Errorf("expected flag %s not found", expectedFlag)
			}
		}
	})

	t.Run("persistent pre-run with valid config", func(t *testing.T) {
		configContent := `version: "1.0"
project: "billing"
database:
  url: "postgres://localhost:5432/billing"
units:
  directory: "./schema_units"
`
		configFile := filepath.Join(tempDir, "valid.yaml")
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatal(err)
		}

		databaseURL = ""
		unitsDir = ""
		strataConfig = nil

		cmd := NewRootCommand()
		cmd.SetArgs([]string{"--config", configFile, "version"})

		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetErr(&buf)

		if err := cmd.Execute(); err != nil {
			t.Fatalf("command execution failed: %v", err)
		}

		if strataConfig == nil {
			t.Fatal("expected strataConfig to be loaded")
		}
		if strataConfig.Project != "billing" {
			t.Errorf("expected project billing, got %s", strataConfig.Project)
		}
		if databaseURL != "postgres://localhost:5432/billing" {
			t.Errorf("expected database URL from config, got %s", databaseURL)
		}
		if unitsDir != "./schema_units" {
			t.Errorf("expected units dir from config, got %s", unitsDir)
		}
	})

	t.Run("persistent pre-run with invalid config", func(t *testing.T) {
		configContent := `invalid: yaml: content:
  - bad
    - format
`
		configFile := filepath.Join(tempDir, "invalid.yaml")
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatal(err)
		}

		cmd := NewRootCommand()
		cmd.SetArgs([]string{"--config", configFile, "--verbose", "version"})

		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetErr(&buf)

		if err := cmd.Execute(); err != nil {
			t.Fatalf("command execution failed: %v", err)
		}

		if !strings.Contains(buf.String(), "Warning: failed to load config file") {
			t.Error("expected warning about failed config loading")
		}
	})

	t.Run("url flag overrides config", func(t *testing.T) {
		configContent := `database:
  url: "postgres://localhost:5432/config"
`
		configFile := filepath.Join(tempDir, "url_test.yaml")
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatal(err)
		}

		cmd := NewRootCommand()
		cmd.SetArgs([]string{"--config", configFile, "--url", "postgres://localhost:5432/override", "version"})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("command execution failed: %v", err)
		}

		if databaseURL != "postgres://localhost:5432/override" {
			t.Errorf("expected database URL to be overridden, got %s", databaseURL)
		}
	})

	t.Run("units dir defaults to migrations", func(t *testing.T) {
		databaseURL = ""
		unitsDir = ""
		strataConfig = nil

		cmd := NewRootCommand()
		cmd.SetArgs([]string{"version"})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("command execution failed: %v", err)
		}

		if unitsDir != "./migrations" {
			t.Errorf("expected default units dir, got %s", unitsDir)
		}
	})
}
