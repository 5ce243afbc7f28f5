// Package executor implements script.Executor: the interpreter that runs a
// parsed script AST (internal/script) against a shell's command registry,
// variable table, and update-info log.
//
// Every statement a script runs attaches a child node (internal/updateinfo)
// under the caller's current node, so a script's whole execution renders as
// one tree the shell host can inspect or print after the fact. Parallel
// constructs fan workers out through a single bounded semaphore+WaitGroup
// primitive (runParallel), capping how many workers run at once per
// parallel block.
package executor

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/dr-natetorious/fleetshell/internal/command"
	"github.com/dr-natetorious/fleetshell/internal/coerce"
	"github.com/dr-natetorious/fleetshell/internal/script"
	"github.com/dr-natetorious/fleetshell/internal/shellerr"
	"github.com/dr-natetorious/fleetshell/internal/shlex"
	"github.com/dr-natetorious/fleetshell/internal/updateinfo"
	"github.com/dr-natetorious/fleetshell/internal/variables"
)

// DefaultMaxConcurrent is the bound applied to a parallel construct that
// doesn't declare its own (a bare `parallel:` block, or a tagged
// CodeBlock{BlockType: "parallel"} produced outside the dedicated
// `parallel` grammar production).
const DefaultMaxConcurrent = 10

// control-flow sentinels. break/continue carry no payload; a function
// return carries its value. None of the three is a "real" failure: try/catch
// lets them pass through untouched instead of running the catch block.
var (
	errBreak    = fmt.Errorf("break")
	errContinue = fmt.Errorf("continue")
)

type returnSignal struct{ value any }

func (r *returnSignal) Error() string { return "return" }

func isControlFlow(err error) bool {
	if err == errBreak || err == errContinue {
		return true
	}
	_, isReturn := err.(*returnSignal)
	if isReturn {
		return true
	}
	_, isExit := err.(*shellerr.ShellExit)
	return isExit
}

// funcDef is a registered user-defined function: its formal parameters and
// body, shared read-only once RegisterFunction returns.
type funcDef struct {
	params []script.FunctionParam
	body   *script.CodeBlock
}

// shared is the state every frame of one top-level dispatch holds in
// common: the command registry, the shell host, the function table. It's
// built once per Interpreter tree and never copied.
type shared struct {
	registry *command.Registry
	shell    command.Shell
	manager  *variables.Manager

	mu        sync.Mutex
	functions map[string]*funcDef
}

// Interpreter is one execution frame. It implements script.Executor.
// Frames are lightweight and constructed explicitly whenever a new scope
// is needed — never mutated in place across goroutines — so ExecuteForEach,
// ExecuteParallelBlock, function calls, and try/catch each build their own
// child frame around a child Scope and child updateinfo.Node.
type Interpreter struct {
	sh         *shared
	scope      *Scope
	node       *updateinfo.Node
	inFunction bool
}

// New builds the root Interpreter for one script or one pipeline-dispatched
// command, attached to root as its update-info node.
func New(registry *command.Registry, shell command.Shell, manager *variables.Manager, root *updateinfo.Node) *Interpreter {
	return &Interpreter{
		sh:    &shared{registry: registry, shell: shell, manager: manager, functions: map[string]*funcDef{}},
		scope: newScope(manager),
		node:  root,
	}
}

func (in *Interpreter) frame(scope *Scope, node *updateinfo.Node) *Interpreter {
	return &Interpreter{sh: in.sh, scope: scope, node: node, inFunction: in.inFunction}
}

// Run executes block as the root of this Interpreter's frame, starting and
// completing the root node around it.
func (in *Interpreter) Run(block *script.CodeBlock) (any, error) {
	in.node.Start()
	v, err := block.Execute(in)
	if err != nil && !isControlFlow(err) {
		in.node.SetError(errorTypeName(err), err.Error(), "")
		return v, err
	}
	// A control-flow error (break/continue/return/exit unwound past the
	// top level) isn't a failure of this node — it's the mechanism by
	// which the top level learns the script asked to stop.
	in.node.Complete(err == nil || isControlFlow(err))
	return v, err
}

// ExecuteCommand runs one command line: a user-defined function if name
// resolves to one, otherwise a registry dispatch. Either way a child node
// is created for this invocation and the command's captured stdout-
// equivalent output is bound to the implicit $_ variable for the next
// pipeline stage.
func (in *Interpreter) ExecuteCommand(name, argsText string) (any, error) {
	expanded := in.scope.ExpandVariables(argsText)
	child := in.node.CreateChildNode(strings.TrimSpace(name + " " + expanded))
	child.Start()

	in.sh.mu.Lock()
	fn, isFunction := in.sh.functions[name]
	in.sh.mu.Unlock()
	if isFunction {
		v, err := in.callFunction(fn, name, expanded, child)
		if err != nil && !isControlFlow(err) {
			child.SetError(errorTypeName(err), err.Error(), "")
			return v, err
		}
		child.Complete(true)
		return v, nil
	}

	rec := &recordingShell{Shell: in.sh.shell}
	ok, err := in.sh.registry.ExecuteCommand(name, expanded, rec)
	child.AddOutput("stdout", rec.buf.String())
	in.scope.bindComputed("_", strings.TrimRight(rec.buf.String(), "\n"))
	if err != nil {
		if exit, isExit := err.(*shellerr.ShellExit); isExit {
			child.Complete(true)
			return ok, exit
		}
		child.SetError(errorTypeName(err), err.Error(), "")
		return ok, err
	}
	child.Complete(ok)
	return ok, nil
}

func (in *Interpreter) callFunction(fn *funcDef, name, argsText string, node *updateinfo.Node) (any, error) {
	args, err := shlex.Split(argsText)
	if err != nil {
		return nil, &shellerr.ParseError{Message: fmt.Sprintf("error parsing arguments for function %q: %v", name, err)}
	}
	callScope := in.scope.snapshot()
	for i, p := range fn.params {
		switch {
		case i < len(args):
			v, err := callScope.Evaluate(variables.StripSigils(args[i]))
			if err != nil {
				// a bare literal token (e.g. "prod01") isn't valid
				// expression syntax; fall back to binding it as a
				// plain string argument.
				v = args[i]
			}
			callScope.bindLocal(p.Name, v)
		case p.HasDefault:
			v, err := callScope.Evaluate(p.Default)
			if err != nil {
				return nil, &shellerr.VariableEvaluationError{Cause: err}
			}
			callScope.bindLocal(p.Name, v)
		default:
			return nil, &shellerr.MissingFunctionArgument{Function: name, Param: p.Name}
		}
	}

	callFrame := in.frame(callScope, node)
	callFrame.inFunction = true
	v, err := fn.body.Execute(callFrame)
	if ret, ok := err.(*returnSignal); ok {
		return ret.value, nil
	}
	return v, err
}

// SetVariable implements `$name = expression`.
func (in *Interpreter) SetVariable(name, expr string) (any, error) {
	v, err := in.scope.SetVariable(name, expr)
	if err != nil {
		return nil, &shellerr.VariableEvaluationError{Cause: err}
	}
	return v, nil
}

// ExecuteSequential runs stmts in order, stopping at the first error or
// control-flow signal (break/continue/return/exit).
func (in *Interpreter) ExecuteSequential(stmts []script.Statement) (any, error) {
	var result any
	for _, stmt := range stmts {
		v, err := stmt.Execute(in)
		if err != nil {
			return result, err
		}
		result = v
	}
	return result, nil
}

// ExecuteParallelStatements runs stmts concurrently, bounded by
// DefaultMaxConcurrent: the path taken for a CodeBlock tagged "parallel"
// directly (as opposed to a `parallel:` ParallelBlock, which carries its
// own declared bound).
func (in *Interpreter) ExecuteParallelStatements(stmts []script.Statement) (any, error) {
	return in.runParallel(len(stmts), DefaultMaxConcurrent, func(i int) (any, error) {
		child := in.node.CreateChildNode("parallel statement")
		child.Start()
		v, err := stmts[i].Execute(in.frame(in.scope.snapshot(), child))
		if err != nil && !isControlFlow(err) {
			child.SetError(errorTypeName(err), err.Error(), "")
		} else {
			child.Complete(true)
		}
		return v, err
	})
}

// ExecuteForEach runs body once per item in collectionExpr, sequentially,
// with itemVar bound in a frame-private scope so it never leaks into the
// caller's variables.
func (in *Interpreter) ExecuteForEach(itemVar, collectionExpr string, body *script.CodeBlock) (any, error) {
	items, err := in.evalCollection(collectionExpr)
	if err != nil {
		return nil, err
	}

	loop := in.node.CreateChildNode(fmt.Sprintf("foreach %s in %s", itemVar, collectionExpr))
	loop.Start()
	var result any
	for _, item := range items {
		iterScope := in.scope.child()
		iterScope.bindLocal(itemVar, item)
		child := loop.CreateChildNode(fmt.Sprintf("foreach %s", itemVar))
		child.Start()

		v, err := body.Execute(in.frame(iterScope, child))
		if err == errBreak {
			child.Complete(true)
			break
		}
		if err == errContinue {
			child.Complete(true)
			continue
		}
		if err != nil {
			child.SetError(errorTypeName(err), err.Error(), "")
			loop.SetError(errorTypeName(err), err.Error(), "")
			return result, err
		}
		child.Complete(true)
		result = v
	}
	loop.Complete(true)
	return result, nil
}

// ExecuteParallelForeach runs body once per item in collectionExpr,
// fanned out across up to maxConcurrent goroutines; each worker starts
// from a snapshot of the scope taken at dispatch time and never writes
// back to it, so iterations can never race with each other.
func (in *Interpreter) ExecuteParallelForeach(itemVar, collectionExpr string, body *script.CodeBlock, maxConcurrent int) (any, error) {
	items, err := in.evalCollection(collectionExpr)
	if err != nil {
		return nil, err
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	loop := in.node.CreateChildNode(fmt.Sprintf("parallel %s as %s", collectionExpr, itemVar))
	loop.Start()
	v, err := in.runParallel(len(items), maxConcurrent, func(i int) (any, error) {
		iterScope := in.scope.snapshot()
		iterScope.bindLocal(itemVar, items[i])
		child := loop.CreateChildNode(fmt.Sprintf("foreach %s", itemVar))
		child.Start()
		v, err := body.Execute(in.frame(iterScope, child))
		if err != nil && !isControlFlow(err) {
			child.SetError(errorTypeName(err), err.Error(), "")
			return v, err
		}
		child.Complete(true)
		return v, nil
	})
	if err != nil {
		loop.SetError(errorTypeName(err), err.Error(), "")
	} else {
		loop.Complete(true)
	}
	return v, err
}

// ExecuteParallelBlock runs body's statements concurrently as one unit,
// bounded by maxConcurrent.
func (in *Interpreter) ExecuteParallelBlock(body *script.CodeBlock, maxConcurrent int) (any, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	stmts := body.Statements
	block := in.node.CreateChildNode("parallel")
	block.Start()
	v, err := in.runParallel(len(stmts), maxConcurrent, func(i int) (any, error) {
		child := block.CreateChildNode("parallel statement")
		child.Start()
		v, err := stmts[i].Execute(in.frame(in.scope.snapshot(), child))
		if err != nil && !isControlFlow(err) {
			child.SetError(errorTypeName(err), err.Error(), "")
			return v, err
		}
		child.Complete(true)
		return v, nil
	})
	if err != nil {
		block.SetError(errorTypeName(err), err.Error(), "")
	} else {
		block.Complete(true)
	}
	return v, err
}

// runParallel is the bounded fan-out primitive shared by every parallel
// construct: a semaphore channel caps concurrency, a WaitGroup tracks
// completion, and a buffered result channel collects outcomes.
func (in *Interpreter) runParallel(n, maxConcurrent int, work func(i int) (any, error)) (any, error) {
	if n == 0 {
		return nil, nil
	}
	sem := make(chan struct{}, maxConcurrent)
	type outcome struct {
		value any
		err   error
	}
	resultCh := make(chan outcome, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			v, err := work(i)
			resultCh <- outcome{value: v, err: err}
		}(i)
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var firstErr error
	var last any
	for res := range resultCh {
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		last = res.value
	}
	return last, firstErr
}

// ExecuteRemoteBlock resolves systemExpr to one or more registered systems
// and runs body once per system, with targetVar (or "target" by default)
// bound to the system's name and the shell's current-server context
// switched to it for the duration. The concrete wire transport a remote
// block would eventually dispatch over is out of scope here, matching this
// module's RemoteAgent stub (internal/remoteagent); what's modeled is the
// scoping and dispatch shape the grammar requires.
func (in *Interpreter) ExecuteRemoteBlock(systemExpr string, body *script.CodeBlock, targetVar string) (any, error) {
	if targetVar == "" {
		targetVar = "target"
	}
	v, err := in.scope.Evaluate(systemExpr)
	if err != nil {
		return nil, &shellerr.VariableEvaluationError{Cause: err}
	}
	names, err := toStringSlice(v)
	if err != nil {
		return nil, err
	}

	previous := in.sh.shell.CurrentServer()
	defer in.sh.shell.SetCurrentServer(previous)

	var result any
	for _, name := range names {
		if _, ok := in.sh.shell.Store().GetSystem(name); !ok {
			return result, &shellerr.ServerNotFoundError{Name: name}
		}
		in.sh.shell.SetCurrentServer(name)

		remoteScope := in.scope.child()
		remoteScope.bindLocal(targetVar, name)
		child := in.node.CreateChildNode(fmt.Sprintf("remote %s", name))
		child.Start()

		rv, err := body.Execute(in.frame(remoteScope, child))
		if err == errBreak {
			child.Complete(true)
			break
		}
		if err == errContinue {
			child.Complete(true)
			continue
		}
		if err != nil {
			child.SetError(errorTypeName(err), err.Error(), "")
			return result, err
		}
		child.Complete(true)
		result = rv
	}
	return result, nil
}

// ExecuteTryCatch runs tryBlock; on a non-control-flow error it binds
// $error (type/message/traceback, matching updateinfo.ErrorInfo's shape)
// and runs catchBlock, then always runs finallyBlock if present. A
// break/continue/return/exit signal from tryBlock passes straight through
// without touching catchBlock, and finallyBlock still runs.
func (in *Interpreter) ExecuteTryCatch(tryBlock, catchBlock, finallyBlock *script.CodeBlock) (any, error) {
	tryChild := in.node.CreateChildNode("try")
	tryChild.Start()
	result, err := tryBlock.Execute(in.frame(in.scope.child(), tryChild))

	if err != nil && !isControlFlow(err) {
		tryChild.SetError(errorTypeName(err), err.Error(), "")

		catchScope := in.scope.child()
		catchScope.bindComputed("error", map[string]any{
			"type":      errorTypeName(err),
			"message":   err.Error(),
			"traceback": "",
		})
		catchChild := in.node.CreateChildNode("catch")
		catchChild.Start()
		cv, cerr := catchBlock.Execute(in.frame(catchScope, catchChild))
		if cerr != nil {
			catchChild.SetError(errorTypeName(cerr), cerr.Error(), "")
			result, err = cv, cerr
		} else {
			catchChild.Complete(true)
			result, err = cv, nil
		}
	} else {
		tryChild.Complete(err == nil)
	}

	if finallyBlock != nil {
		finallyChild := in.node.CreateChildNode("finally")
		finallyChild.Start()
		_, ferr := finallyBlock.Execute(in.frame(in.scope.child(), finallyChild))
		if ferr != nil {
			finallyChild.SetError(errorTypeName(ferr), ferr.Error(), "")
			return result, ferr
		}
		finallyChild.Complete(true)
	}

	return result, err
}

// ExecuteBreak and ExecuteContinue unwind to the nearest enclosing loop via
// sentinel errors; ExecuteForEach/ExecuteParallelForeach recognize and
// absorb them.
func (in *Interpreter) ExecuteBreak() (any, error) { return nil, errBreak }
func (in *Interpreter) ExecuteContinue() (any, error) { return nil, errContinue }

// ExecuteIf runs the first block whose condition evaluates truthy, or
// elseBlock if none does.
func (in *Interpreter) ExecuteIf(conditions []string, blocks []*script.CodeBlock, elseBlock *script.CodeBlock) (any, error) {
	for i, cond := range conditions {
		v, err := in.scope.Evaluate(cond)
		if err != nil {
			return nil, &shellerr.VariableEvaluationError{Cause: err}
		}
		if truthy(v) {
			child := in.node.CreateChildNode("if")
			child.Start()
			result, err := blocks[i].Execute(in.frame(in.scope.child(), child))
			if err != nil && !isControlFlow(err) {
				child.SetError(errorTypeName(err), err.Error(), "")
				return result, err
			}
			child.Complete(true)
			return result, err
		}
	}
	if elseBlock != nil {
		child := in.node.CreateChildNode("else")
		child.Start()
		result, err := elseBlock.Execute(in.frame(in.scope.child(), child))
		if err != nil && !isControlFlow(err) {
			child.SetError(errorTypeName(err), err.Error(), "")
			return result, err
		}
		child.Complete(true)
		return result, err
	}
	return nil, nil
}

// ExecuteWhile runs body repeatedly while condition evaluates truthy.
func (in *Interpreter) ExecuteWhile(condition string, body *script.CodeBlock) (any, error) {
	var result any
	for {
		v, err := in.scope.Evaluate(condition)
		if err != nil {
			return result, &shellerr.VariableEvaluationError{Cause: err}
		}
		if !truthy(v) {
			return result, nil
		}
		child := in.node.CreateChildNode("while")
		child.Start()
		rv, err := body.Execute(in.frame(in.scope.child(), child))
		if err == errBreak {
			child.Complete(true)
			return result, nil
		}
		if err == errContinue {
			child.Complete(true)
			continue
		}
		if err != nil {
			child.SetError(errorTypeName(err), err.Error(), "")
			return result, err
		}
		child.Complete(true)
		result = rv
	}
}

// RegisterFunction records a function definition in the shared function
// table, reachable from ExecuteCommand under its own name.
func (in *Interpreter) RegisterFunction(name string, parameters []script.FunctionParam, body *script.CodeBlock) (any, error) {
	in.sh.mu.Lock()
	defer in.sh.mu.Unlock()
	in.sh.functions[name] = &funcDef{params: parameters, body: body}
	return nil, nil
}

// ExecuteReturn unwinds to the enclosing function call via a returnSignal
// sentinel carrying the evaluated expression's value (nil if expr is
// empty). It's an error to return outside any function frame.
func (in *Interpreter) ExecuteReturn(expr string) (any, error) {
	if !in.inFunction {
		return nil, &shellerr.ReturnOutsideFunction{}
	}
	if strings.TrimSpace(expr) == "" {
		return nil, &returnSignal{}
	}
	v, err := in.scope.Evaluate(expr)
	if err != nil {
		return nil, &shellerr.VariableEvaluationError{Cause: err}
	}
	return nil, &returnSignal{value: v}
}

// ExecutePipeline runs commands in order, each stage's captured stdout
// feeding the next stage's implicit $_ (ExecuteCommand already binds $_
// after every command it runs, pipeline or not, so this is a thin
// sequential driver over ExecuteCommand).
func (in *Interpreter) ExecutePipeline(commands []*script.CommandStatement) (any, error) {
	var result any
	for _, cmd := range commands {
		v, err := in.ExecuteCommand(cmd.CommandName, cmd.ArgsText)
		if err != nil {
			return result, err
		}
		result = v
	}
	return result, nil
}

// evalCollection evaluates expr and normalizes the result to a []any via
// the same sequence-coercion C1 uses for list-typed parameters (JSON, then
// Python-literal, then CSV fallback for a string; pass-through for an
// already-evaluated []any).
func (in *Interpreter) evalCollection(expr string) ([]any, error) {
	v, err := in.scope.Evaluate(expr)
	if err != nil {
		return nil, &shellerr.VariableEvaluationError{Cause: err}
	}
	return toStringableSlice(v)
}

func toStringableSlice(v any) ([]any, error) {
	converted, err := coerce.Convert(v, coerce.List(coerce.Any()))
	if err != nil {
		return nil, fmt.Errorf("cannot iterate over %v: %w", v, err)
	}
	return converted.([]any), nil
}

func toStringSlice(v any) ([]string, error) {
	items, err := toStringableSlice(v)
	if err != nil {
		if s, ok := v.(string); ok {
			return []string{s}, nil
		}
		return nil, err
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = fmt.Sprintf("%v", it)
	}
	return out, nil
}

// truthy applies the sandboxed language's notion of truthiness: the zero
// value of any supported type is false, everything else is true.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// errorTypeName renders err's Go type as a bare identifier (stripping the
// package path and pointer marker), so $error.type reads like an exception
// class name (e.g. "ServerAlreadyExistsError") rather than a Go type string.
func errorTypeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// recordingShell wraps a command.Shell, capturing everything a command
// prints so it can be attached to that command's update-info node as
// Outputs["stdout"] and fed to the next pipeline stage's $_. Every other
// call is forwarded unchanged.
type recordingShell struct {
	command.Shell
	buf strings.Builder
}

func (r *recordingShell) Println(args ...any) {
	fmt.Fprintln(&r.buf, args...)
	r.Shell.Println(args...)
}

func (r *recordingShell) Printf(format string, args ...any) {
	fmt.Fprintf(&r.buf, format, args...)
	r.Shell.Printf(format, args...)
}
