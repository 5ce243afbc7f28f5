// Package shellhost implements the concrete command.Shell: it owns every
// component one shell session wires together (config store, variable
// table, remote dispatcher, discovery coordinator, command pipeline, audit
// log) and drives the read-eval-print loop that dispatches each line into
// the pipeline: chzyer/readline when stdin is a terminal, a bufio.Scanner
// loop otherwise, with golang.org/x/term deciding which.
package shellhost

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/dr-natetorious/fleetshell/internal/audit"
	"github.com/dr-natetorious/fleetshell/internal/command"
	"github.com/dr-natetorious/fleetshell/internal/config"
	"github.com/dr-natetorious/fleetshell/internal/discovery"
	"github.com/dr-natetorious/fleetshell/internal/pipeline"
	"github.com/dr-natetorious/fleetshell/internal/remoteagent"
	"github.com/dr-natetorious/fleetshell/internal/scriptfile"
	"github.com/dr-natetorious/fleetshell/internal/shellerr"
	"github.com/dr-natetorious/fleetshell/internal/store"
	"github.com/dr-natetorious/fleetshell/internal/variables"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5599dd")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#cc3333"))
)

// Host implements command.Shell and drives the interactive REPL / one-shot
// script runner.
type Host struct {
	registry    *command.Registry
	varManager  *variables.Manager
	cfgStore    *store.Store
	dispatcher  *remoteagent.Dispatcher
	coordinator *discovery.Coordinator
	pl          *pipeline.Pipeline
	auditLogger *audit.Logger

	opts   *config.Options
	logger *slog.Logger
	out    io.Writer

	mu            sync.Mutex
	currentServer string
}

// New builds a fully-wired Host. Loading opts.ConfigPath is best-effort:
// an absent file just starts from an empty store, but a present, unreadable
// or unparsable one is reported.
func New(opts *config.Options, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfgStore := store.New()
	if _, err := os.Stat(opts.ConfigPath); err == nil {
		loaded, loadErr := store.LoadJSON(opts.ConfigPath)
		if loadErr != nil {
			return nil, fmt.Errorf("load config store: %w", loadErr)
		}
		cfgStore = loaded
	}

	registry, err := command.NewBuiltinRegistry()
	if err != nil {
		return nil, fmt.Errorf("build command registry: %w", err)
	}

	h := &Host{
		registry:   registry,
		varManager: variables.NewManager(),
		cfgStore:   cfgStore,
		dispatcher: remoteagent.NewDispatcher(),
		opts:       opts,
		logger:     logger,
		out:        os.Stdout,
	}

	h.coordinator = discovery.NewCoordinator(opts.MaxWorkers, logger)
	h.coordinator.Register(discovery.NewMountPointsPlugin())
	h.coordinator.Register(discovery.NewDiskSpacePlugin(discovery.DiskSpacePluginConfig{}))

	fileStore, err := audit.NewFileStore(opts.AuditDir)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	h.auditLogger = audit.NewLogger(fileStore)

	h.pl = pipeline.New(h.registry, h.varManager, h)
	h.pl.RegisterEventHandler("view_switched", func(args ...any) {
		if len(args) == 0 {
			return
		}
		h.logger.Info("view switched", "view", args[0])
	})

	return h, nil
}

// --- command.Shell ---

func (h *Host) Println(args ...any) { fmt.Fprintln(h.out, args...) }

func (h *Host) Printf(format string, args ...any) { fmt.Fprintf(h.out, format, args...) }

// Store returns the config store.
func (h *Host) Store() *store.Store { return h.cfgStore }

// Variables returns the variable manager.
func (h *Host) Variables() *variables.Manager { return h.varManager }

// Dispatcher returns the remote-agent dispatcher.
func (h *Host) Dispatcher() *remoteagent.Dispatcher { return h.dispatcher }

// CurrentServer returns the name of the system `connect` last set as
// current, or "" if none.
func (h *Host) CurrentServer() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentServer
}

// SetCurrentServer updates the current-server context.
func (h *Host) SetCurrentServer(name string) {
	h.mu.Lock()
	h.currentServer = name
	h.mu.Unlock()
}

// RunDiscovery runs every registered discovery plugin against every known
// system, auditing the outcome.
func (h *Host) RunDiscovery(ctx context.Context) error {
	results, err := h.coordinator.Run(ctx, h.cfgStore, nil, nil, true)
	for _, r := range results {
		ok := r.Err == nil
		errMsg := ""
		if r.Err != nil {
			errMsg = r.Err.Error()
		}
		if logErr := h.auditLogger.LogDiscovery(ctx, r.Plugin, r.Duration.Milliseconds(), ok, errMsg); logErr != nil {
			h.logger.Warn("failed to record discovery audit event", "plugin", r.Plugin, "error", logErr)
		}
	}
	return err
}

// Exit unwinds the REPL with the given process exit code.
func (h *Host) Exit(code int) error {
	return &shellerr.ShellExit{Code: code}
}

// --- REPL ---

const historyFileName = ".fleetshell_history"

// Run drives the interactive loop until EOF, an interrupt at the top
// level, or `exit`/`quit`/`bye`. It returns the process exit code.
func (h *Host) Run() int {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return h.runReadline()
	}
	return h.runPlain(os.Stdin)
}

func (h *Host) runReadline() int {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          h.promptText(),
		HistoryFile:     filepath.Join(os.TempDir(), historyFileName),
		HistoryLimit:    500,
		AutoComplete:    h.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		h.logger.Warn("readline init failed, falling back to plain mode", "error", err)
		return h.runPlain(os.Stdin)
	}
	defer rl.Close()

	for {
		rl.SetPrompt(h.promptText())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			// A ^C at the prompt drops whatever partial line was typed and
			// ends the session cleanly, the same way EOF does.
			return 0
		}
		if errors.Is(err, io.EOF) {
			return 0
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Error: %v", err)))
			continue
		}

		if code, done := h.dispatchLine(line); done {
			return code
		}
	}
}

func (h *Host) runPlain(in io.Reader) int {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(h.out, h.promptText())
	for scanner.Scan() {
		if code, done := h.dispatchLine(scanner.Text()); done {
			return code
		}
		fmt.Fprint(h.out, h.promptText())
	}
	return 0
}

// dispatchLine runs one line through the pipeline, auditing and printing
// any error, and reports whether the REPL should stop (and with what
// code).
func (h *Host) dispatchLine(line string) (code int, done bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return 0, false
	}

	node, err := h.pl.Execute(trimmed)
	if logErr := h.auditLogger.LogNode(context.Background(), audit.EventCommand, node); logErr != nil {
		h.logger.Warn("failed to record command audit event", "error", logErr)
	}

	if err == nil {
		return 0, false
	}

	var exit *shellerr.ShellExit
	if errors.As(err, &exit) {
		return exit.Code, true
	}

	fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Error: %s", err)))
	if h.opts.Verbose {
		if node.Err != nil && node.Err.Traceback != "" {
			fmt.Fprintln(os.Stderr, node.Err.Traceback)
		}
	}
	return 0, false
}

// RunScriptFile loads path (stripping any scriptfile front matter, seeding
// its variable defaults), runs it as one script, audits the result, and
// returns the process exit code implied by its outcome.
func (h *Host) RunScriptFile(path string) (int, error) {
	f, err := scriptfile.Load(path)
	if err != nil {
		return 1, err
	}
	f.Seed(h.varManager)

	node, err := h.pl.ExecuteScript(path, f.Body)
	if logErr := h.auditLogger.LogNode(context.Background(), audit.EventScript, node); logErr != nil {
		h.logger.Warn("failed to record script audit event", "error", logErr)
	}

	if err == nil {
		return 0, nil
	}

	var exit *shellerr.ShellExit
	if errors.As(err, &exit) {
		return exit.Code, nil
	}
	return 1, err
}

func (h *Host) promptText() string {
	server := h.CurrentServer()
	if server == "" {
		return promptStyle.Render("fleetshell>") + " "
	}
	return promptStyle.Render(fmt.Sprintf("fleetshell(%s)>", server)) + " "
}

func (h *Host) completer() readline.AutoCompleter {
	var items []readline.PrefixCompleterInterface
	for _, cmd := range h.registry.ListCommands() {
		items = append(items, readline.PcItem(cmd.Name()))
	}
	return readline.NewPrefixCompleter(items...)
}
