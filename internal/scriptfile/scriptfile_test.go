package scriptfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dr-natetorious/fleetshell/internal/variables"
)

func TestParseWithFrontMatter(t *testing.T) {
	data := []byte("---\nvariables:\n  target: web1\n  retries: 3\n---\nconnect $target\n")

	f, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "web1", f.Include.Variables["target"])
	assert.Equal(t, 3, f.Include.Variables["retries"])
	assert.Equal(t, "connect $target\n", f.Body)
}

func TestParseWithoutFrontMatter(t *testing.T) {
	data := []byte("connect web1\nlist-systems\n")

	f, err := Parse(data)
	require.NoError(t, err)
	assert.Empty(t, f.Include.Variables)
	assert.Equal(t, string(data), f.Body)
}

func TestSeedDoesNotClobberBoundVariable(t *testing.T) {
	data := []byte("---\nvariables:\n  target: web1\n  cleanup_days: 7\n---\nnoop\n")
	f, err := Parse(data)
	require.NoError(t, err)

	mgr := variables.NewManager() // cleanup_days already bound to 30 by default
	f.Seed(mgr)

	target, ok := mgr.Get("target")
	require.True(t, ok)
	assert.Equal(t, "web1", target)

	cleanupDays, _ := mgr.Get("cleanup_days")
	assert.Equal(t, int64(30), cleanupDays)
}
