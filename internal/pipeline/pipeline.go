// Package pipeline is the per-prompt-line dispatcher: it expands variable
// references in one line (or a whole script body), hands the result to the
// parser and executor, and attaches the result to a fresh updateinfo.Node
// for the shell host to log and display. It also owns the small set of
// pipeline-level directives — right now just `view <name>` — that bypass
// the command registry entirely and instead fire an event for the shell
// host to react to.
package pipeline

import (
	"regexp"
	"strings"
	"sync"

	"github.com/dr-natetorious/fleetshell/internal/command"
	"github.com/dr-natetorious/fleetshell/internal/executor"
	"github.com/dr-natetorious/fleetshell/internal/script"
	"github.com/dr-natetorious/fleetshell/internal/updateinfo"
	"github.com/dr-natetorious/fleetshell/internal/variables"
)

// DefaultViews lists the view names the shell host recognizes out of the
// box. Views beyond this set are still accepted by `view`; the handler is
// what decides whether a name is meaningful.
var DefaultViews = []string{"simple", "editor"}

var viewCommandPattern = regexp.MustCompile(`(?i)^view\s+(\S+)\s*$`)

// EventHandler receives the arguments passed to TriggerEvent.
type EventHandler func(args ...any)

// Pipeline wires a command registry, variable manager, and shell host
// together into one per-line execution path.
type Pipeline struct {
	registry  *command.Registry
	variables *variables.Manager
	shell     command.Shell

	mu       sync.Mutex
	handlers map[string][]EventHandler
}

// New builds a Pipeline over the given registry/variables/shell.
func New(registry *command.Registry, vars *variables.Manager, shell command.Shell) *Pipeline {
	return &Pipeline{
		registry:  registry,
		variables: vars,
		shell:     shell,
		handlers:  map[string][]EventHandler{},
	}
}

// RegisterEventHandler subscribes fn to events named name (currently only
// "view_switched" is fired).
func (p *Pipeline) RegisterEventHandler(name string, fn EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[name] = append(p.handlers[name], fn)
}

// TriggerEvent invokes every handler registered under name, in registration
// order.
func (p *Pipeline) TriggerEvent(name string, args ...any) {
	p.mu.Lock()
	hs := append([]EventHandler(nil), p.handlers[name]...)
	p.mu.Unlock()
	for _, h := range hs {
		h(args...)
	}
}

// Execute runs one prompt line end to end: variable expansion, the `view`
// directive check, parse, and (if it parsed) interpretation. It always
// returns a Node describing what happened, even on a parse failure, plus
// the error the interpreter or parser produced (nil on success, and
// non-nil-but-control-flow for exit/break/continue/return escaping to the
// top level).
func (p *Pipeline) Execute(line string) (*updateinfo.Node, error) {
	expanded := p.variables.ExpandVariables(line)

	if name, ok := parseViewCommand(expanded); ok {
		root := updateinfo.NewRoot(line)
		root.Start()
		root.AddOutput("view", name)
		p.TriggerEvent("view_switched", name)
		root.Complete(true)
		return root, nil
	}

	root := updateinfo.NewRoot(line)
	stmt, err := script.ParseLine(expanded)
	if err != nil {
		root.Start()
		root.SetError("ParseError", err.Error(), "")
		return root, err
	}

	interp := executor.New(p.registry, p.shell, p.variables, root)
	_, err = interp.Run(asBlock(stmt))
	return root, err
}

// ExecuteScript runs a whole script body (the statements loaded from a
// .fsh file, after any scriptfile front matter has been stripped) as one
// interpreter dispatch under a single root Node.
func (p *Pipeline) ExecuteScript(name, body string) (*updateinfo.Node, error) {
	root := updateinfo.NewRoot(name)
	block, err := script.ParseScript(body)
	if err != nil {
		root.Start()
		root.SetError("ParseError", err.Error(), "")
		return root, err
	}

	interp := executor.New(p.registry, p.shell, p.variables, root)
	_, err = interp.Run(block)
	return root, err
}

func asBlock(stmt script.Statement) *script.CodeBlock {
	if cb, ok := stmt.(*script.CodeBlock); ok {
		return cb
	}
	return &script.CodeBlock{Statements: []script.Statement{stmt}}
}

func parseViewCommand(line string) (string, bool) {
	m := viewCommandPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return m[1], true
}
