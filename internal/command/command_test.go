package command

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/dr-natetorious/fleetshell/internal/remoteagent"
	"github.com/dr-natetorious/fleetshell/internal/shellerr"
	"github.com/dr-natetorious/fleetshell/internal/store"
	"github.com/dr-natetorious/fleetshell/internal/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeShell is a minimal Shell implementation for exercising commands
// without a real shell host.
type fakeShell struct {
	out           bytes.Buffer
	store         *store.Store
	vars          *variables.Manager
	dispatcher    *remoteagent.Dispatcher
	currentServer string
	exitCode      int
	exited        bool
	discoverErr   error
}

func newFakeShell() *fakeShell {
	return &fakeShell{
		store:      store.New(),
		vars:       variables.NewManager(),
		dispatcher: remoteagent.NewDispatcher(),
	}
}

func (f *fakeShell) Println(args ...any) { fmt.Fprintln(&f.out, args...) }
func (f *fakeShell) Printf(format string, args ...any) { fmt.Fprintf(&f.out, format, args...) }
func (f *fakeShell) Store() *store.Store { return f.store }
func (f *fakeShell) Variables() *variables.Manager { return f.vars }
func (f *fakeShell) Dispatcher() *remoteagent.Dispatcher { return f.dispatcher }
func (f *fakeShell) CurrentServer() string { return f.currentServer }
func (f *fakeShell) SetCurrentServer(name string) { f.currentServer = name }
func (f *fakeShell) RunDiscovery(ctx context.Context) error {
	return f.discoverErr
}
func (f *fakeShell) Exit(code int) error {
	f.exited = true
	f.exitCode = code
	return &shellerr.ShellExit{Code: code}
}

type callCounter struct {
	n int
}

func TestPositionalAndNamedMix(t *testing.T) {
	// connect declares server_name (position 0, mandatory) and port
	// (default 22); "connect prod01 -port 2222" binds both and runs the
	// execute callback exactly once.
	counter := &callCounter{}
	cmd, err := Register[connectArgs]("connect", "connect", func(a *connectArgs, shell Shell) (bool, error) {
		counter.n++
		assert.Equal(t, "prod01", a.ServerName)
		assert.Equal(t, 2222, a.Port)
		return true, nil
	})
	require.NoError(t, err)

	runnable, err := cmd.Parse("prod01 -port 2222")
	require.NoError(t, err)

	ok, err := runnable.Run(newFakeShell())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, counter.n)
}

func TestMissingMandatoryParameterFails(t *testing.T) {
	cmd, err := Register[connectArgs]("connect", "connect", runConnect)
	require.NoError(t, err)

	_, err = cmd.Parse("-port 2222")
	require.Error(t, err)
	var missing *shellerr.MissingMandatoryParameter
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "server_name", missing.Name)
}

func TestUnknownParameterFails(t *testing.T) {
	cmd, err := Register[connectArgs]("connect", "connect", runConnect)
	require.NoError(t, err)

	_, err = cmd.Parse("prod01 -bogus value")
	require.Error(t, err)
	var unknown *shellerr.UnknownParameter
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "-bogus", unknown.Name)
}

func TestRegistryLastWinsOnDuplicateName(t *testing.T) {
	r := NewRegistry()
	first, err := Register[varsArgs]("dup", "first", func(*varsArgs, Shell) (bool, error) { return true, nil })
	require.NoError(t, err)
	second, err := Register[varsArgs]("dup", "second", func(*varsArgs, Shell) (bool, error) { return false, nil })
	require.NoError(t, err)

	r.Register(first, "dup")
	r.Register(second, "dup")

	cmd, ok := r.Lookup("dup")
	require.True(t, ok)
	assert.Equal(t, "second", cmd.Description())
}

func TestExitRaisesShellExit(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)
	shell := newFakeShell()

	ok, err := r.ExecuteCommand("exit", "42", shell)
	assert.True(t, ok)
	require.Error(t, err)
	var exitErr *shellerr.ShellExit
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 42, exitErr.Code)
	assert.True(t, shell.exited)
	assert.Equal(t, 42, shell.exitCode)
}

func TestExitSynonymsShareCommand(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)

	quit, ok := r.Lookup("quit")
	require.True(t, ok)
	bye, ok := r.Lookup("bye")
	require.True(t, ok)
	assert.Same(t, quit, bye)
}

func TestAddSystemDuplicateReportsExistingName(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)
	shell := newFakeShell()

	ok, err := r.ExecuteCommand("add-system", "existing existing.example.com", shell)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.ExecuteCommand("add-system", "existing existing.example.com", shell)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, "System with name 'existing' already exists", err.Error())
}

func TestListSystemsFiltersByTag(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)
	shell := newFakeShell()

	_, err = r.ExecuteCommand("add-system", "web1 web1.example.com", shell)
	require.NoError(t, err)
	sys, ok := shell.Store().GetSystem("web1")
	require.True(t, ok)
	sys.AddTag("prod")

	ok2, err := r.ExecuteCommand("list-systems", "-tag prod", shell)
	require.NoError(t, err)
	assert.True(t, ok2)
	assert.Contains(t, shell.out.String(), "web1")
}

func TestSetAndUnsetVariable(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)
	shell := newFakeShell()

	ok, err := r.ExecuteCommand("set", `count 3`, shell)
	require.NoError(t, err)
	assert.True(t, ok)
	v, found := shell.Variables().Get("count")
	require.True(t, found)
	assert.EqualValues(t, 3, v)

	ok, err = r.ExecuteCommand("unset", "count", shell)
	require.NoError(t, err)
	assert.True(t, ok)
	_, found = shell.Variables().Get("count")
	assert.False(t, found)
}

func TestEchoPrintsArgumentText(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)
	shell := newFakeShell()

	ok, err := r.ExecuteCommand("echo", `"failed: boom" extra words`, shell)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "failed: boom extra words\n", shell.out.String())
}

func TestCompletionsForCommandNames(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)

	got := r.Completions("con")
	require.Len(t, got, 3) // config-load, config-save, connect
	var texts []string
	for _, c := range got {
		texts = append(texts, c.Text)
	}
	assert.Contains(t, texts, "connect")
	for _, c := range got {
		assert.Equal(t, -3, c.StartPosition)
		assert.NotEmpty(t, c.DisplayMeta)
	}
}

func TestCompletionsForParameterNames(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)

	got := r.Completions("connect prod01 -p")
	require.NotEmpty(t, got)
	assert.Equal(t, "-port", got[0].Text)
	assert.Equal(t, -2, got[0].StartPosition)
	assert.Equal(t, "parameter", got[0].DisplayMeta)
}

func TestUnknownCommandFails(t *testing.T) {
	r, err := NewBuiltinRegistry()
	require.NoError(t, err)
	_, err = r.ExecuteCommand("does-not-exist", "", newFakeShell())
	require.Error(t, err)
	assert.Equal(t, "Unknown command: does-not-exist", err.Error())
}
