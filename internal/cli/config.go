package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StrataConfig represents the strata.yaml configuration structure
type StrataConfig struct {
	Version string `yaml:"version"`
	Project string `yaml:"project"`

	Database struct {
		Driver         string `yaml:"driver"`
		URL            string `yaml:"url"`
		Host           string `yaml:"host"`
		Port           string `yaml:"port"`
		User           string `yaml:"user"`
		Password       string `yaml:"password"`
		Name           string `yaml:"name"`
		SSLMode        string `yaml:"sslmode"`
		Schema         string `yaml:"schema"`
		MaxConnections int    `yaml:"max_connections"`
	} `yaml:"database"`

	Units struct {
		Directory string `yaml:"directory"`
	} `yaml:"units"`

	History struct {
		Enabled bool   `yaml:"enabled"`
		Table   string `yaml:"table"`
	} `yaml:"history"`
}

func LoadStrataConfig(path string) (*StrataConfig, error) {
	if path == "" {
		locations := []string{"strata.yaml", "strata.yml", ".strata.yaml", ".strata.yml"}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
		if path == "" {
			return nil, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config StrataConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Database.Driver == "" {
		config.Database.Driver = "postgres"
	}
	if config.Database.Host == "" {
		config.Database.Host = "localhost"
	}
	if config.Database.Port == "" {
		config.Database.Port = "5432"
	}
	if config.Database.Schema == "" {
		config.Database.Schema = "public"
	}
	if config.Database.MaxConnections == 0 {
		config.Database.MaxConnections = 25
	}
	if config.Units.Directory == "" {
		config.Units.Directory = "./migrations"
	}
	if config.History.Table == "" {
		config.History.Table = "strata_runs"
	}

	return &config, nil
}
