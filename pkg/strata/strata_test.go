package strata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	config := NewConfig()

	assert.Equal(t, "public", config.Schema)
	assert.Equal(t, "./migrations", config.UnitsDir)
	assert.Equal(t, "strata_runs", config.HistoryTable)
	assert.False(t, config.AllowDestructive)
	assert.False(t, config.TrackHistory)
}

func TestNewWithConfigRequiresURL(t *testing.T) {
	_, err := NewWithConfig(NewConfig())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}

func TestVersionInfo(t *testing.T) {
	assert.True(t, strings.HasPrefix(VersionInfo(), "Strata "))
	assert.Contains(t, FullVersionInfo(), "Go Version:")
}
