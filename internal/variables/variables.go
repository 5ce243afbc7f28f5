// Package variables implements the shell's variable table: a name→value
// store with built-in defaults, sandboxed expression assignment, and
// $name / ${expr} text interpolation.
package variables

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dr-natetorious/fleetshell/internal/coerce"
	"github.com/dr-natetorious/fleetshell/internal/evalexpr"
)

// Manager owns the variable table for one shell session.
type Manager struct {
	mu   sync.RWMutex
	vars map[string]any
	eval *evalexpr.Evaluator
}

// NewManager builds a Manager pre-populated with the built-in defaults:
// servers, paths, cleanup_days=30, verbose=false.
func NewManager() *Manager {
	m := &Manager{
		vars: map[string]any{
			"servers": []any{"server1", "server2", "production", "staging"},
			"paths": map[string]any{
				"log":  "/var/log",
				"temp": "/tmp",
				"home": "/home",
			},
			"cleanup_days": int64(30),
			"verbose":      false,
		},
	}
	m.eval = evalexpr.New(m.resolve)
	return m
}

func (m *Manager) resolve(name string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[name]
	return v, ok
}

// Get returns the raw value bound to name, or (nil, false) if unbound.
func (m *Manager) Get(name string) (any, bool) {
	return m.resolve(name)
}

// GetDefault returns the value bound to name, or def if unbound.
func (m *Manager) GetDefault(name string, def any) any {
	if v, ok := m.Get(name); ok {
		return v
	}
	return def
}

// GetTyped returns the value bound to name (or def) coerced to t.
func (m *Manager) GetTyped(name string, t *coerce.Type, def any) (any, error) {
	return coerce.Convert(m.GetDefault(name, def), t)
}

// Set evaluates valueExpr in the sandboxed expression language and binds
// the result to name.
func (m *Manager) Set(name, valueExpr string) (any, error) {
	v, err := m.eval.Evaluate(StripSigils(valueExpr))
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.vars[name] = v
	m.mu.Unlock()
	return v, nil
}

// SetValue binds value to name directly, without evaluating an expression.
// The executor uses this to bind an already-computed value ($_ after a
// command, $error in a catch block) into the global table; foreach items
// and function parameters stay frame-local and never pass through here.
func (m *Manager) SetValue(name string, value any) any {
	m.mu.Lock()
	m.vars[name] = value
	m.mu.Unlock()
	return value
}

// SetTyped evaluates valueExpr and coerces the result to t before binding.
func (m *Manager) SetTyped(name, valueExpr string, t *coerce.Type) (any, error) {
	v, err := m.eval.Evaluate(StripSigils(valueExpr))
	if err != nil {
		return nil, err
	}
	cv, err := coerce.Convert(v, t)
	if err != nil {
		return nil, fmt.Errorf("cannot convert value to %s: %w", t.Name(), err)
	}
	m.mu.Lock()
	m.vars[name] = cv
	m.mu.Unlock()
	return cv, nil
}

// Evaluate evaluates expr against the current variable table without
// binding the result anywhere.
func (m *Manager) Evaluate(expr string) (any, error) {
	return m.eval.Evaluate(StripSigils(expr))
}

// Unset removes name from the table. Per this shell's chosen semantics an
// unset of a name that was never bound still reports success, since the
// caller's postcondition ("name is not set") already holds.
func (m *Manager) Unset(name string) bool {
	m.mu.Lock()
	delete(m.vars, name)
	m.mu.Unlock()
	return true
}

// List returns a snapshot copy of every bound variable.
func (m *Manager) List() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.vars))
	for k, v := range m.vars {
		out[k] = v
	}
	return out
}

var (
	complexRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)
	// SimpleRefPattern matches a bare $name reference. RE2 has no lookaround,
	// so the not-preceded-by-backslash / not-followed-by-brace conditions are
	// checked by ExpandSimpleRefs inspecting the surrounding bytes by hand.
	SimpleRefPattern = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)
	sigilPattern     = SimpleRefPattern
)

// ExpandSimpleRefs replaces bare $name references in text by calling resolve
// for each name, skipping (and leaving verbatim) any match that is escaped
// with a preceding backslash or immediately followed by `{` — the latter is
// left for the complex-ref ${...} pass. A name that
// resolve reports unbound is also left verbatim. Shared by
// Manager.ExpandVariables and executor.Scope.ExpandVariables.
func ExpandSimpleRefs(text string, resolve func(name string) (any, bool)) string {
	locs := SimpleRefPattern.FindAllStringSubmatchIndex(text, -1)
	if locs == nil {
		return text
	}
	var sb strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		nameStart, nameEnd := loc[2], loc[3]
		if start > 0 && text[start-1] == '\\' {
			continue
		}
		if end < len(text) && text[end] == '{' {
			continue
		}
		sb.WriteString(text[last:start])
		name := text[nameStart:nameEnd]
		if v, ok := resolve(name); ok {
			sb.WriteString(fmt.Sprintf("%v", v))
		} else {
			sb.WriteString(text[start:end])
		}
		last = end
	}
	sb.WriteString(text[last:])
	return sb.String()
}

// StripSigils translates the script engine's $name variable syntax into the
// bare identifiers the sandboxed expression evaluator expects. The parser
// reinserts the $ sigil when it reserializes statement text into an AST
// expression field (CollectionExpr, Condition, ...); Evaluate/Set must undo
// that before handing the text to evalexpr, which parses plain Go-expression
// syntax and has no notion of $-prefixed identifiers.
func StripSigils(expr string) string {
	return sigilPattern.ReplaceAllString(expr, "$1")
}

// ExpandVariables expands ${expr} and $name references in text. ${expr} is
// evaluated in the sandboxed expression language; $name looks up a single
// variable directly. A reference that fails to evaluate, or a $name that
// isn't bound, is left untouched in the output.
func (m *Manager) ExpandVariables(text string) string {
	text = complexRefPattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := complexRefPattern.FindStringSubmatch(match)[1]
		v, err := m.eval.Evaluate(expr)
		if err != nil {
			return match
		}
		return fmt.Sprintf("%v", v)
	})
	return ExpandSimpleRefs(text, m.Get)
}
