package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dr-natetorious/fleetshell/internal/command"
	"github.com/dr-natetorious/fleetshell/internal/remoteagent"
	"github.com/dr-natetorious/fleetshell/internal/store"
	"github.com/dr-natetorious/fleetshell/internal/updateinfo"
	"github.com/dr-natetorious/fleetshell/internal/variables"
)

// fakeShell is a minimal command.Shell good enough to drive Pipeline without
// a real shell host: it records printed output and exit calls instead of
// touching a terminal.
type fakeShell struct {
	st         *store.Store
	vars       *variables.Manager
	dispatcher *remoteagent.Dispatcher
	current    string

	output      []string
	discoverErr error
	discoverRan bool
}

func newFakeShell() *fakeShell {
	return &fakeShell{
		st:         store.New(),
		vars:       variables.NewManager(),
		dispatcher: remoteagent.NewDispatcher(),
	}
}

func (f *fakeShell) Println(args ...any) { f.output = append(f.output, fmt.Sprintln(args...)) }
func (f *fakeShell) Printf(format string, args ...any) { f.output = append(f.output, fmt.Sprintf(format, args...)) }
func (f *fakeShell) Store() *store.Store { return f.st }
func (f *fakeShell) Variables() *variables.Manager { return f.vars }
func (f *fakeShell) Dispatcher() *remoteagent.Dispatcher { return f.dispatcher }
func (f *fakeShell) CurrentServer() string { return f.current }
func (f *fakeShell) SetCurrentServer(name string) { f.current = name }
func (f *fakeShell) RunDiscovery(ctx context.Context) error {
	f.discoverRan = true
	return f.discoverErr
}
func (f *fakeShell) Exit(code int) error { return fmt.Errorf("exit %d", code) }

func newTestPipeline(t *testing.T) (*Pipeline, *fakeShell) {
	t.Helper()
	registry, err := command.NewBuiltinRegistry()
	require.NoError(t, err)
	shell := newFakeShell()
	return New(registry, shell.vars, shell), shell
}

func TestExecuteRunsRegisteredCommand(t *testing.T) {
	p, shell := newTestPipeline(t)

	node, err := p.Execute("add-system web1 web1.example.com")
	require.NoError(t, err)
	assert.Equal(t, updateinfo.StatusCompleted, node.ToDict(false).Status)

	_, ok := shell.st.GetSystem("web1")
	assert.True(t, ok)
}

func TestExecuteViewDirectiveBypassesRegistry(t *testing.T) {
	p, _ := newTestPipeline(t)

	var fired []string
	p.RegisterEventHandler("view_switched", func(args ...any) {
		if len(args) > 0 {
			if name, ok := args[0].(string); ok {
				fired = append(fired, name)
			}
		}
	})

	node, err := p.Execute("view editor")
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, "editor", fired[0])
	assert.Equal(t, "editor", node.ToDict(false).Output["view"])
}

func TestExecuteParseErrorProducesFailedNode(t *testing.T) {
	p, _ := newTestPipeline(t)

	node, err := p.Execute("if (unterminated")
	require.Error(t, err)
	snap := node.ToDict(false)
	assert.Equal(t, updateinfo.StatusFailed, snap.Status)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "ParseError", snap.Error.Type)
}

func TestExecuteScriptRunsMultipleStatements(t *testing.T) {
	p, shell := newTestPipeline(t)

	body := "add-system web1 web1.example.com\nadd-system web2 web2.example.com\n"
	_, err := p.ExecuteScript("fixture.fsh", body)
	require.NoError(t, err)

	_, ok1 := shell.st.GetSystem("web1")
	_, ok2 := shell.st.GetSystem("web2")
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestExecuteUnknownCommandFails(t *testing.T) {
	p, _ := newTestPipeline(t)

	node, err := p.Execute("totally-unknown-command")
	require.Error(t, err)
	assert.Equal(t, updateinfo.StatusFailed, node.ToDict(false).Status)
}
