package command

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dr-natetorious/fleetshell/internal/shellerr"
	"github.com/dr-natetorious/fleetshell/internal/shlex"
	"github.com/dr-natetorious/fleetshell/internal/store"
)

// NewBuiltinRegistry builds a Registry preloaded with the concrete command
// roster this shell ships: echo, exit and its synonyms, connection
// management, system CRUD, the variable triad, discovery, config
// persistence, and help.
func NewBuiltinRegistry() (*Registry, error) {
	r := NewRegistry()

	r.Register(echoCommand{}, "echo")

	exitCmd, err := Register[exitArgs]("exit", "Exit the shell, optionally with a status code.", runExit)
	if err != nil {
		return nil, err
	}
	r.Register(exitCmd, "exit", "quit", "bye")

	connectCmd, err := Register[connectArgs]("connect", "Connect to a registered system.", runConnect)
	if err != nil {
		return nil, err
	}
	r.Register(connectCmd, "connect")

	disconnectCmd, err := Register[disconnectArgs]("disconnect", "Disconnect from a system.", runDisconnect)
	if err != nil {
		return nil, err
	}
	r.Register(disconnectCmd, "disconnect")

	addSystemCmd, err := Register[addSystemArgs]("add-system", "Register a new system in the config store.", runAddSystem)
	if err != nil {
		return nil, err
	}
	r.Register(addSystemCmd, "add-system")

	removeSystemCmd, err := Register[removeSystemArgs]("remove-system", "Remove a system from the config store.", runRemoveSystem)
	if err != nil {
		return nil, err
	}
	r.Register(removeSystemCmd, "remove-system")

	listSystemsCmd, err := Register[listSystemsArgs]("list-systems", "List registered systems, optionally filtered by tag or role.", runListSystems)
	if err != nil {
		return nil, err
	}
	r.Register(listSystemsCmd, "list-systems")

	setCmd, err := Register[setArgs]("set", "Bind a variable to the result of evaluating an expression.", runSet)
	if err != nil {
		return nil, err
	}
	r.Register(setCmd, "set")

	unsetCmd, err := Register[unsetArgs]("unset", "Remove a variable binding.", runUnset)
	if err != nil {
		return nil, err
	}
	r.Register(unsetCmd, "unset")

	varsCmd, err := Register[varsArgs]("vars", "List every bound variable.", runVars)
	if err != nil {
		return nil, err
	}
	r.Register(varsCmd, "vars")

	discoverCmd, err := Register[discoverArgs]("discover", "Run the discovery coordinator over registered systems.", runDiscover)
	if err != nil {
		return nil, err
	}
	r.Register(discoverCmd, "discover")

	saveCmd, err := Register[configSaveArgs]("config-save", "Save the config store to a JSON file.", runConfigSave)
	if err != nil {
		return nil, err
	}
	r.Register(saveCmd, "config-save")

	loadCmd, err := Register[configLoadArgs]("config-load", "Load the config store from a JSON file.", runConfigLoad)
	if err != nil {
		return nil, err
	}
	r.Register(loadCmd, "config-load")

	helpCmd, err := Register[helpArgs]("help", "Show help for one command, or list all commands.", helpRunnerFor(r))
	if err != nil {
		return nil, err
	}
	r.Register(helpCmd, "help")

	return r, nil
}

// --- echo ---

// echoCommand prints its argument text. It implements Command directly
// rather than going through declarative binding: echo takes the whole rest
// of the line, not a fixed parameter table, so Parse just captures the raw
// text and Run unquotes it token by token.
type echoCommand struct{}

func (echoCommand) Name() string { return "echo" }
func (echoCommand) Description() string { return "Print the argument text." }
func (echoCommand) ParamNames() []string { return nil }

func (echoCommand) Parse(argsText string) (Runnable, error) {
	return &echoRunnable{text: argsText}, nil
}

type echoRunnable struct{ text string }

func (r *echoRunnable) Run(shell Shell) (bool, error) {
	words, err := shlex.Split(r.text)
	if err != nil {
		return false, &shellerr.ParseError{Message: fmt.Sprintf("error parsing echo arguments: %v", err)}
	}
	shell.Println(strings.Join(words, " "))
	return true, nil
}

// --- exit / quit / bye ---

type exitArgs struct {
	Code int `param:"code,position=0,default=0"`
}

func runExit(a *exitArgs, shell Shell) (bool, error) {
	return true, shell.Exit(a.Code)
}

// --- connect ---

type connectArgs struct {
	ServerName string `param:"server_name,mandatory,alias=n"`
	Port       int    `param:"port,default=22"`
}

func runConnect(a *connectArgs, shell Shell) (bool, error) {
	sys, ok := shell.Store().GetSystem(a.ServerName)
	if !ok {
		endpoint := &store.Endpoint{Hostname: a.ServerName, Port: a.Port}
		sys = store.NewSystem(a.ServerName, endpoint)
		if _, err := shell.Store().AddSystem(sys); err != nil {
			return false, err
		}
	}
	if _, err := sys.Connect(shell.Dispatcher()); err != nil {
		return false, &shellerr.ServerConnectionError{System: a.ServerName, Cause: err}
	}
	shell.SetCurrentServer(a.ServerName)
	shell.Printf("Connected to %s\n", a.ServerName)
	return true, nil
}

// --- disconnect ---

type disconnectArgs struct {
	ServerName string `param:"server_name,position=0,default="`
}

func runDisconnect(a *disconnectArgs, shell Shell) (bool, error) {
	name := a.ServerName
	if name == "" {
		name = shell.CurrentServer()
	}
	if name == "" {
		return false, &shellerr.ServerNotConnectedError{Name: ""}
	}
	sys, ok := shell.Store().GetSystem(name)
	if !ok {
		return false, &shellerr.ServerNotFoundError{Name: name}
	}
	if !sys.IsConnected() {
		return false, &shellerr.ServerNotConnectedError{Name: name}
	}
	if agent := sys.Endpoint.Agent(); agent != nil {
		agent.Disconnect()
	}
	if shell.CurrentServer() == name {
		shell.SetCurrentServer("")
	}
	shell.Printf("Disconnected from %s\n", name)
	return true, nil
}

// --- add-system ---

type addSystemArgs struct {
	Name        string `param:"name,mandatory,position=0"`
	Hostname    string `param:"hostname,mandatory,position=1"`
	Port        int    `param:"port,default=22"`
	Description string `param:"description,default="`
}

func runAddSystem(a *addSystemArgs, shell Shell) (bool, error) {
	endpoint := &store.Endpoint{Hostname: a.Hostname, Port: a.Port}
	sys := store.NewSystem(a.Name, endpoint)
	sys.Description = a.Description
	if _, err := shell.Store().AddSystem(sys); err != nil {
		return false, err
	}
	shell.Printf("Added system %s (%s:%d)\n", a.Name, a.Hostname, a.Port)
	return true, nil
}

// --- remove-system ---

type removeSystemArgs struct {
	Name string `param:"name,mandatory,position=0"`
}

func runRemoveSystem(a *removeSystemArgs, shell Shell) (bool, error) {
	if !shell.Store().RemoveSystem(a.Name) {
		return false, &shellerr.ServerNotFoundError{Name: a.Name}
	}
	shell.Printf("Removed system %s\n", a.Name)
	return true, nil
}

// --- list-systems ---

type listSystemsArgs struct {
	Tag  string `param:"tag,default="`
	Role string `param:"role,default="`
}

func runListSystems(a *listSystemsArgs, shell Shell) (bool, error) {
	var systems []*store.System
	switch {
	case a.Tag != "":
		systems = shell.Store().FilterByTags([]string{a.Tag})
	case a.Role != "":
		systems = shell.Store().FilterByRole(a.Role)
	default:
		systems = shell.Store().ListSystems()
	}
	for _, sys := range systems {
		status := "disconnected"
		if sys.IsConnected() {
			status = "connected"
		}
		shell.Printf("%s  %s:%d  [%s]\n", sys.Name, sys.Endpoint.Hostname, sys.Endpoint.Port, status)
	}
	return true, nil
}

// --- set / unset / vars ---

type setArgs struct {
	Name string `param:"name,mandatory,position=0"`
	Expr string `param:"expr,mandatory,position=1"`
}

func runSet(a *setArgs, shell Shell) (bool, error) {
	v, err := shell.Variables().Set(a.Name, a.Expr)
	if err != nil {
		return false, &shellerr.VariableEvaluationError{Cause: err}
	}
	shell.Printf("%s = %v\n", a.Name, v)
	return true, nil
}

type unsetArgs struct {
	Name string `param:"name,mandatory,position=0"`
}

func runUnset(a *unsetArgs, shell Shell) (bool, error) {
	shell.Variables().Unset(a.Name)
	shell.Printf("Unset %s\n", a.Name)
	return true, nil
}

type varsArgs struct{}

func runVars(_ *varsArgs, shell Shell) (bool, error) {
	all := shell.Variables().List()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		shell.Printf("%s = %v\n", name, all[name])
	}
	return true, nil
}

// --- discover ---

type discoverArgs struct{}

func runDiscover(_ *discoverArgs, shell Shell) (bool, error) {
	if err := shell.RunDiscovery(context.Background()); err != nil {
		return false, err
	}
	shell.Println("Discovery complete")
	return true, nil
}

// --- config-save / config-load ---

type configSaveArgs struct {
	Path string `param:"path,default=config.json,type=path"`
}

func runConfigSave(a *configSaveArgs, shell Shell) (bool, error) {
	if err := shell.Store().SaveJSON(a.Path); err != nil {
		return false, &shellerr.DiskOperationError{Path: a.Path, Cause: err}
	}
	shell.Printf("Saved config to %s\n", a.Path)
	return true, nil
}

type configLoadArgs struct {
	Path string `param:"path,default=config.json,type=path"`
}

func runConfigLoad(a *configLoadArgs, shell Shell) (bool, error) {
	if err := shell.Store().LoadInto(a.Path); err != nil {
		return false, &shellerr.DiskOperationError{Path: a.Path, Cause: err}
	}
	shell.Printf("Loaded config from %s\n", a.Path)
	return true, nil
}

// --- help ---

type helpArgs struct {
	Name string `param:"name,position=0,default="`
}

// helpRunnerFor closes over the registry so help can enumerate or look up
// commands without the registry importing this package's own command set.
func helpRunnerFor(r *Registry) func(*helpArgs, Shell) (bool, error) {
	return func(a *helpArgs, shell Shell) (bool, error) {
		if a.Name == "" {
			for _, cmd := range r.ListCommands() {
				shell.Printf("%-16s %s\n", cmd.Name(), cmd.Description())
			}
			return true, nil
		}
		cmd, ok := r.Lookup(a.Name)
		if !ok {
			return false, &shellerr.UnknownCommand{Name: a.Name}
		}
		shell.Printf("%s: %s\n", cmd.Name(), cmd.Description())
		if names := cmd.ParamNames(); len(names) > 0 {
			shell.Printf("  parameters: %v\n", names)
		}
		return true, nil
	}
}
