package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	opts, err := Load("", false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigPath(), opts.ConfigPath)
	assert.Equal(t, 4, opts.MaxWorkers)
	assert.False(t, opts.Verbose)
	assert.Equal(t, filepath.Join(filepath.Dir(opts.ConfigPath), "audit"), opts.AuditDir)
}

func TestLoadFlagOverridesEnvironment(t *testing.T) {
	t.Setenv("FLEETSHELL_CONFIG", "/env/config.json")

	opts, err := Load("/flag/config.json", true)
	require.NoError(t, err)
	assert.Equal(t, "/flag/config.json", opts.ConfigPath)
	assert.True(t, opts.Verbose)
}

func TestLoadEnvironmentUsedWhenNoFlag(t *testing.T) {
	t.Setenv("FLEETSHELL_CONFIG", "/env/config.json")
	t.Setenv("FLEETSHELL_MAX_WORKERS", "8")
	t.Setenv("FLEETSHELL_VERBOSE", "true")

	opts, err := Load("", false)
	require.NoError(t, err)
	assert.Equal(t, "/env/config.json", opts.ConfigPath)
	assert.Equal(t, 8, opts.MaxWorkers)
	assert.True(t, opts.Verbose)
}
