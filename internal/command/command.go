// Package command implements the declarative command registry: parameter
// binding over a shell argument string, dispatch by name, and the built-in
// command roster (connect, add-system, variable commands, discovery, exit).
package command

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/dr-natetorious/fleetshell/internal/coerce"
	"github.com/dr-natetorious/fleetshell/internal/params"
	"github.com/dr-natetorious/fleetshell/internal/remoteagent"
	"github.com/dr-natetorious/fleetshell/internal/shellerr"
	"github.com/dr-natetorious/fleetshell/internal/shlex"
	"github.com/dr-natetorious/fleetshell/internal/store"
	"github.com/dr-natetorious/fleetshell/internal/variables"
)

// Shell is the subset of shell host state a command body needs: output
// sink, config store, variable table, connection dispatcher, current-server
// context, and the control operations (exit, discovery) a few built-ins
// trigger. The concrete shell host implements it.
type Shell interface {
	Println(args ...any)
	Printf(format string, args ...any)

	Store() *store.Store
	Variables() *variables.Manager
	Dispatcher() *remoteagent.Dispatcher

	CurrentServer() string
	SetCurrentServer(name string)

	RunDiscovery(ctx context.Context) error
	Exit(code int) error
}

// Command is the uniform command interface: every registered command can
// describe itself (for help/completion) and run against parsed arguments.
type Command interface {
	Name() string
	Description() string
	Parse(argsText string) (Runnable, error)
	ParamNames() []string
}

// Runnable is a command instance with arguments already bound, ready to
// execute against the shell.
type Runnable interface {
	Run(shell Shell) (bool, error)
}

// declarative wraps a struct type whose fields carry `param:"..."` tags,
// plus the function that executes a bound instance. It is the generic,
// type-erased command adapter: one instance handles any command struct
// shape, closing over a reflect.Type and an execute callback instead of
// requiring a new type per command.
type declarative struct {
	name        string
	description string
	structType  reflect.Type
	defs        []*params.Definition
	paramNames  []string
	execute     func(instance any, shell Shell) (bool, error)
}

// Register builds a Command from a zero-value command struct (whose fields
// carry `param` tags) and an execute function: an explicit, type-erased
// closure, so a concrete command is a plain struct plus a function rather
// than a new type implementing Command.
func Register[T any](name, description string, execute func(cmd *T, shell Shell) (bool, error)) (Command, error) {
	var zero T
	t := reflect.TypeOf(zero)
	defs, err := params.Describe(t)
	if err != nil {
		return nil, fmt.Errorf("command %q: %w", name, err)
	}
	var paramNames []string
	for _, d := range defs {
		paramNames = append(paramNames, d.AllParamNames()...)
	}
	return &declarative{
		name:        name,
		description: description,
		structType:  t,
		defs:        defs,
		paramNames:  paramNames,
		execute: func(instance any, shell Shell) (bool, error) {
			cmd := instance.(*T)
			return execute(cmd, shell)
		},
	}, nil
}

func (d *declarative) Name() string { return d.name }
func (d *declarative) Description() string { return d.description }
func (d *declarative) ParamNames() []string { return d.paramNames }

// boundRunnable pairs a declarative command with one populated instance.
type boundRunnable struct {
	cmd      *declarative
	instance any
}

func (b *boundRunnable) Run(shell Shell) (bool, error) {
	return b.cmd.execute(b.instance, shell)
}

// Parse tokenizes argsText and runs the two-pass named/positional binding
// algorithm, coercing every bound value through C1 and reporting any
// unbound mandatory parameter.
func (d *declarative) Parse(argsText string) (Runnable, error) {
	instancePtr := reflect.New(d.structType)
	instance := instancePtr.Elem()

	args, err := shlex.Split(argsText)
	if err != nil {
		return nil, &shellerr.ParseError{Message: fmt.Sprintf("error parsing arguments: %v", err)}
	}

	paramByName := map[string]*params.Definition{}
	for _, def := range d.defs {
		for _, spelling := range def.AllParamNames() {
			paramByName[spelling] = def
		}
	}

	var positional []*params.Definition
	for _, def := range d.defs {
		if def.Position != nil {
			positional = append(positional, def)
		}
	}

	provided := map[string]bool{}
	consumed := make([]bool, len(args))

	// First pass: named parameters.
	i := 0
	for i < len(args) {
		arg := args[i]
		if len(arg) == 0 || arg[0] != '-' {
			i++
			continue
		}
		def, ok := paramByName[arg]
		if !ok {
			return nil, &shellerr.UnknownParameter{Command: d.name, Name: arg}
		}
		consumed[i] = true
		var valueText string
		hasValue := i+1 < len(args) && (len(args[i+1]) == 0 || args[i+1][0] != '-')
		if hasValue {
			valueText = args[i+1]
			consumed[i+1] = true
			i += 2
		} else {
			valueText = ""
			i++
		}
		if err := bindValue(instance, def, valueText); err != nil {
			return nil, err
		}
		provided[def.Name] = true
	}

	// Second pass: remaining tokens bind positional parameters in order.
	var leftover []string
	for idx, arg := range args {
		if !consumed[idx] {
			leftover = append(leftover, arg)
		}
	}
	posIdx := 0
	for _, value := range leftover {
		if posIdx >= len(positional) {
			break
		}
		def := positional[posIdx]
		posIdx++
		if provided[def.Name] {
			continue
		}
		if err := bindValue(instance, def, value); err != nil {
			return nil, err
		}
		provided[def.Name] = true
	}

	// Default-fill and mandatory check.
	for _, def := range d.defs {
		if provided[def.Name] {
			continue
		}
		if def.Mandatory {
			return nil, &shellerr.MissingMandatoryParameter{Command: d.name, Name: def.Name}
		}
		if def.HasDefault {
			if err := bindValue(instance, def, def.Default); err != nil {
				return nil, err
			}
		}
	}

	return &boundRunnable{cmd: d, instance: instancePtr.Interface()}, nil
}

func bindValue(instance reflect.Value, def *params.Definition, raw string) error {
	if raw == "" && def.Type.Kind == coerce.KindBool {
		return def.SetField(instance, true)
	}
	converted, err := coerce.Convert(raw, def.Type)
	if err != nil {
		return &shellerr.TypeConversionError{Cause: fmt.Errorf("cannot convert %q to %s for parameter '%s': %w", raw, def.Type.Name(), def.Name, err)}
	}
	return def.SetField(instance, converted)
}

// Registry is the name→Command table. Registration is last-wins: a second
// Register call under a name already present silently replaces it, and the
// registry makes no promise about enumeration order beyond the sorted view
// ListCommands produces for display purposes.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry builds an empty command registry.
func NewRegistry() *Registry {
	return &Registry{commands: map[string]Command{}}
}

// Register binds cmd under every name in names (cmd.Name() itself must be
// included by the caller if it should be reachable under its own name).
// Later registrations under the same name win.
func (r *Registry) Register(cmd Command, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.commands[n] = cmd
	}
}

// Lookup finds the command registered under name.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// ListCommands returns every distinct registered command, deduplicated
// across alias spellings and sorted by primary name, for help/completion.
func (r *Registry) ListCommands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[Command]bool{}
	var out []Command
	for _, cmd := range r.commands {
		if !seen[cmd] {
			seen[cmd] = true
			out = append(out, cmd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Completion is one structured suggestion: the replacement text, the offset
// relative to the cursor where the replacement begins (always negative or
// zero — it spans back over the word being completed), and the display
// strings a completion UI would render. The UI consuming these is external;
// this is just the protocol.
type Completion struct {
	Text          string
	StartPosition int
	Display       string
	DisplayMeta   string
}

// Completions suggests completions for the command-line prefix typed so
// far: command names while the first word is being typed, and the resolved
// command's `-parameter` spellings after it.
func (r *Registry) Completions(prefix string) []Completion {
	var out []Completion

	firstWordDone := strings.ContainsAny(prefix, " \t")
	if !firstWordDone {
		for _, cmd := range r.ListCommands() {
			if strings.HasPrefix(cmd.Name(), prefix) {
				out = append(out, Completion{
					Text:          cmd.Name(),
					StartPosition: -len(prefix),
					Display:       cmd.Name(),
					DisplayMeta:   cmd.Description(),
				})
			}
		}
		return out
	}

	fields := strings.Fields(prefix)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := r.Lookup(fields[0])
	if !ok {
		return nil
	}
	var lastWord string
	if !strings.HasSuffix(prefix, " ") && !strings.HasSuffix(prefix, "\t") {
		lastWord = fields[len(fields)-1]
	}
	for _, spelling := range cmd.ParamNames() {
		if strings.HasPrefix(spelling, lastWord) {
			out = append(out, Completion{
				Text:          spelling,
				StartPosition: -len(lastWord),
				Display:       spelling,
				DisplayMeta:   "parameter",
			})
		}
	}
	return out
}

// ExecuteCommand looks up name, parses argsText into a bound instance, and
// runs it: the three-step dispatch sequence (lookup → parse → execute).
func (r *Registry) ExecuteCommand(name, argsText string, shell Shell) (bool, error) {
	cmd, ok := r.Lookup(name)
	if !ok {
		return false, &shellerr.UnknownCommand{Name: name}
	}
	runnable, err := cmd.Parse(argsText)
	if err != nil {
		return false, err
	}
	return runnable.Run(shell)
}
