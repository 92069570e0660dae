package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadStrataConfig(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("full config", func(t *testing.T) {
		content := `version: "1.0"
project: "billing"
database:
  driver: postgres
  url: "postgres://localhost:5432/billing"
  schema: app
  max_connections: 10
units:
  directory: "./db/units"
history:
  enabled: true
  table: billing_runs
`
		path := filepath.Join(tempDir, "strata.yaml")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		config, err := LoadStrataConfig(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if config.Database.Schema != "app" {
			t.Errorf("expected schema app, got %s", config.Database.Schema)
		}
		if config.Units.Directory != "./db/units" {
			t.Errorf("expected units directory ./db/units, got %s", config.Units.Directory)
		}
		if !config.History.Enabled {
			t.Error("expected history enabled")
		}
		if config.History.Table != "billing_runs" {
			t.Errorf("expected history table billing_runs, got %s", config.History.Table)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		path := filepath.Join(tempDir, "minimal.yaml")
		if err := os.WriteFile(path, []byte("project: minimal\n"), 0644); err != nil {
			t.Fatal(err)
		}

		config, err := LoadStrataConfig(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if config.Database.Driver != "postgres" {
			t.Errorf("expected default driver postgres, got %s", config.Database.Driver)
		}
		if config.Database.Schema != "public" {
			t.Errorf("expected default schema public, got %s", config.Database.Schema)
		}
		if config.Database.Host != "localhost" || config.Database.Port != "5432" {
			t.Errorf("expected default host/port, got %s:%s", config.Database.Host, config.Database.Port)
		}
		if config.Database.MaxConnections != 25 {
			t.Errorf("expected default max connections 25, got %d", config.Database.MaxConnections)
		}
		if config.Units.Directory != "./migrations" {
			t.Errorf("expected default units directory, got %s", config.Units.Directory)
		}
		if config.History.Table != "strata_runs" {
			t.Errorf("expected default history table, got %s", config.History.Table)
		}
	})

	t.Run("missing explicit path", func(t *testing.T) {
		_, err := LoadStrataConfig(filepath.Join(tempDir, "nope.yaml"))
		if err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("no config anywhere", func(t *testing.T) {
		oldCwd, err := os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
		defer os.Chdir(oldCwd)
		os.Chdir(t.TempDir())

		config, err := LoadStrataConfig("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config != nil {
			t.Error("expected nil config when nothing exists")
		}
	})
}
