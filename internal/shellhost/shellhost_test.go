package shellhost

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dr-natetorious/fleetshell/internal/config"
)

func newTestHost(t *testing.T) *Host {
	t.Helper()
	dir := t.TempDir()
	opts := &config.Options{
		ConfigPath: filepath.Join(dir, "config.json"),
		AuditDir:   filepath.Join(dir, "audit"),
		MaxWorkers: 2,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := New(opts, logger)
	require.NoError(t, err)
	h.out = io.Discard
	return h
}

func TestDispatchLineRunsCommand(t *testing.T) {
	h := newTestHost(t)

	code, done := h.dispatchLine("add-system web1 web1.example.com")
	assert.Equal(t, 0, code)
	assert.False(t, done)

	_, ok := h.Store().GetSystem("web1")
	assert.True(t, ok)
}

func TestDispatchLineBlankLineIsNoop(t *testing.T) {
	h := newTestHost(t)
	code, done := h.dispatchLine("   ")
	assert.Equal(t, 0, code)
	assert.False(t, done)
}

func TestDispatchLineExitStopsTheLoop(t *testing.T) {
	h := newTestHost(t)
	code, done := h.dispatchLine("exit 3")
	assert.Equal(t, 3, code)
	assert.True(t, done)
}

func TestDispatchLineErrorDoesNotStopTheLoop(t *testing.T) {
	h := newTestHost(t)
	code, done := h.dispatchLine("no-such-command")
	assert.Equal(t, 0, code)
	assert.False(t, done)
}

func TestRunScriptFileExecutesBody(t *testing.T) {
	h := newTestHost(t)

	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fixture.fsh")
	body := "---\nvariables:\n  hostname: web1.example.com\n---\nadd-system web1 $hostname\n"
	require.NoError(t, os.WriteFile(scriptPath, []byte(body), 0o644))

	code, err := h.RunScriptFile(scriptPath)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	_, ok := h.Store().GetSystem("web1")
	assert.True(t, ok)
}

func TestRunScriptFileMissingFileErrors(t *testing.T) {
	h := newTestHost(t)
	code, err := h.RunScriptFile(filepath.Join(t.TempDir(), "missing.fsh"))
	require.Error(t, err)
	assert.Equal(t, 1, code)
}

func TestPromptTextReflectsCurrentServer(t *testing.T) {
	h := newTestHost(t)
	assert.Contains(t, h.promptText(), "fleetshell>")

	h.SetCurrentServer("web1")
	assert.Contains(t, h.promptText(), "fleetshell(web1)>")
}
