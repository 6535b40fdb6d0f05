package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/config"
)

func TestLoadCreatesDefaultWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	m, err := config.NewManager(path)
	require.NoError(t, err)

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "safe", cfg.Safety.CLIMaxRisk)

	_, err = m.Load()
	require.NoError(t, err)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	m, err := config.NewManager(path)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.LLM.Model = "gpt-4o"
	require.NoError(t, m.Save(cfg))

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", loaded.LLM.Model)
}
