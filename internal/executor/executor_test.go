package executor

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dr-natetorious/fleetshell/internal/command"
	"github.com/dr-natetorious/fleetshell/internal/remoteagent"
	"github.com/dr-natetorious/fleetshell/internal/script"
	"github.com/dr-natetorious/fleetshell/internal/shellerr"
	"github.com/dr-natetorious/fleetshell/internal/store"
	"github.com/dr-natetorious/fleetshell/internal/updateinfo"
	"github.com/dr-natetorious/fleetshell/internal/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeShell is a minimal command.Shell for exercising the interpreter
// without a real shell host, mirroring internal/command's own test fixture.
type fakeShell struct {
	out           bytes.Buffer
	store         *store.Store
	vars          *variables.Manager
	dispatcher    *remoteagent.Dispatcher
	currentServer string
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
func (f *fakeShell) RunDiscovery(ctx context.Context) error { return nil }
func (f *fakeShell) Exit(code int) error { return &shellerr.ShellExit{Code: code} }

func newInterpreter(t *testing.T) (*Interpreter, *fakeShell) {
	t.Helper()
	registry, err := command.NewBuiltinRegistry()
	require.NoError(t, err)
	shell := newFakeShell()
	root := updateinfo.NewRoot("test")
	return New(registry, shell, shell.vars, root), shell
}

func run(t *testing.T, in *Interpreter, src string) (any, error) {
	t.Helper()
	block, err := script.ParseScript(src)
	require.NoError(t, err)
	return in.Run(block)
}

func TestSetVariableAndCommandSeeIt(t *testing.T) {
	in, shell := newInterpreter(t)
	_, err := run(t, in, "$name = \"prod01\"\n$greeting = $name\nset literal '\"hi\"'\n")
	require.NoError(t, err)
	v, ok := shell.vars.Get("greeting")
	require.True(t, ok)
	assert.Equal(t, "prod01", v)
	v, ok = shell.vars.Get("literal")
	require.True(t, ok)
	assert.Equal(t, "hi", v)
}

func TestForEachProducesOrderedChildren(t *testing.T) {
	in, _ := newInterpreter(t)
	_, err := run(t, in, "foreach $n in [1, 2, 3]:\n    $last = $n\n")
	require.NoError(t, err)

	require.Len(t, in.node.Children, 1) // the foreach's own statement node
	loopNode := in.node.Children[0]
	require.Len(t, loopNode.Children, 3)
	for _, c := range loopNode.Children {
		assert.Equal(t, updateinfo.StatusCompleted, c.Status)
	}
	v, ok := in.scope.manager.Get("last")
	require.True(t, ok)
	assert.EqualValues(t, 3, v)
}

func TestForEachBreakStopsEarly(t *testing.T) {
	in, _ := newInterpreter(t)
	_, err := run(t, in, "$count = 0\nforeach $n in [1, 2, 3, 4]:\n    $count = $n\n    if $n == 2:\n        break\n")
	require.NoError(t, err)
	v, _ := in.scope.manager.Get("count")
	assert.EqualValues(t, 2, v)
}

func TestTryCatchBindsStructuredError(t *testing.T) {
	in, shell := newInterpreter(t)
	_, err := shell.store.AddSystem(store.NewSystem("existing", &store.Endpoint{Hostname: "existing"}))
	require.NoError(t, err)

	_, err = run(t, in, "try:\n    add-system existing existing\ncatch:\n    $message = $error[\"message\"]\n")
	require.NoError(t, err)

	v, ok := in.scope.manager.Get("message")
	require.True(t, ok)
	assert.Equal(t, "System with name 'existing' already exists", v)
}

func TestTryCatchBindsStructuredErrorDotAccess(t *testing.T) {
	in, shell := newInterpreter(t)
	_, err := shell.store.AddSystem(store.NewSystem("existing", &store.Endpoint{Hostname: "existing"}))
	require.NoError(t, err)

	_, err = run(t, in, "try:\n    add-system existing existing\ncatch:\n    $message = $error.message\n")
	require.NoError(t, err)

	v, ok := in.scope.manager.Get("message")
	require.True(t, ok)
	assert.Equal(t, "System with name 'existing' already exists", v)

	expanded := in.scope.ExpandVariables("failed: ${error.message}")
	assert.Equal(t, "failed: System with name 'existing' already exists", expanded)
}

func TestCatchEchoesErrorMessage(t *testing.T) {
	in, shell := newInterpreter(t)
	_, err := shell.store.AddSystem(store.NewSystem("existing", &store.Endpoint{Hostname: "existing.example.com"}))
	require.NoError(t, err)

	_, err = run(t, in, "try:\n    add-system existing existing.example.com\ncatch:\n    echo \"failed: ${error.message}\"\n")
	require.NoError(t, err)
	assert.Contains(t, shell.out.String(), "failed: System with name 'existing' already exists")
}

func TestForEachEchoesEachItem(t *testing.T) {
	in, shell := newInterpreter(t)
	shell.vars.SetValue("hosts", []any{"a", "b", "c"})

	_, err := run(t, in, "foreach $h in $hosts:\n    echo $h\n")
	require.NoError(t, err)

	require.Len(t, in.node.Children, 1)
	loopNode := in.node.Children[0]
	require.Len(t, loopNode.Children, 3)
	for i, want := range []string{"echo a", "echo b", "echo c"} {
		require.Len(t, loopNode.Children[i].Children, 1)
		assert.Equal(t, want, loopNode.Children[i].Children[0].Command)
	}
	assert.Equal(t, "a\nb\nc\n", shell.out.String())
}

func TestWhileLoopCounts(t *testing.T) {
	in, _ := newInterpreter(t)
	_, err := run(t, in, "$i = 0\nwhile $i < 3:\n    $i = $i + 1\n")
	require.NoError(t, err)
	v, _ := in.scope.manager.Get("i")
	assert.EqualValues(t, 3, v)
}

func TestFunctionDefinitionAndReturn(t *testing.T) {
	in, _ := newInterpreter(t)
	_, err := run(t, in, "function double($x):\n    return $x * 2\n$result = 21\ndouble 21\n")
	require.NoError(t, err)
	// The function was registered and callable without error; exercise the
	// call path directly for its return value.
	v, rerr := in.callFunction(in.sh.functions["double"], "double", "21", updateinfo.NewRoot("double 21"))
	require.NoError(t, rerr)
	assert.EqualValues(t, 42, v)
}

func TestReturnOutsideFunctionFails(t *testing.T) {
	in, _ := newInterpreter(t)
	_, err := run(t, in, "return 1\n")
	require.Error(t, err)
	var outside *shellerr.ReturnOutsideFunction
	require.ErrorAs(t, err, &outside)
}

func TestParallelBlockRunsEveryStatement(t *testing.T) {
	in, _ := newInterpreter(t)
	_, err := run(t, in, "parallel -max 2:\n    set a 1\n    set b 2\n    set c 3\n")
	require.NoError(t, err)
	require.Len(t, in.node.Children, 1)
	assert.Len(t, in.node.Children[0].Children, 3)
}

func TestParallelForeachCreatesEveryChild(t *testing.T) {
	in, _ := newInterpreter(t)
	_, err := run(t, in, "parallel -max 4 [1, 2, 3, 4, 5, 6, 7, 8, 9, 10] as $i:\n    $x = $i\n")
	require.NoError(t, err)
	require.Len(t, in.node.Children, 1)
	children := in.node.Children[0].Children
	require.Len(t, children, 10)
	for _, c := range children {
		assert.Equal(t, updateinfo.StatusCompleted, c.Status)
	}
}

func TestParallelBoundNeverExceeded(t *testing.T) {
	in, _ := newInterpreter(t)

	var mu sync.Mutex
	current, peak := 0, 0
	_, err := in.runParallel(20, 4, func(int) (any, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, peak)
	assert.Equal(t, 0, current)
}

func TestCommandBindsUnderscore(t *testing.T) {
	in, shell := newInterpreter(t)
	_, err := shell.store.AddSystem(store.NewSystem("web1", &store.Endpoint{Hostname: "web1"}))
	require.NoError(t, err)
	_, err = run(t, in, "list-systems\n")
	require.NoError(t, err)
	v, ok := in.scope.resolve("_")
	require.True(t, ok)
	assert.Contains(t, fmt.Sprintf("%v", v), "web1")
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	in, _ := newInterpreter(t)
	_, err := run(t, in, "set a '\"1\"' | set b '\"2\"'\n")
	require.NoError(t, err)
	v, ok := in.scope.manager.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
	v, ok = in.scope.manager.Get("b")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}
