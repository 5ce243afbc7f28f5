package executor

import (
	"fmt"
	"regexp"

	"github.com/dr-natetorious/fleetshell/internal/evalexpr"
	"github.com/dr-natetorious/fleetshell/internal/variables"
)

// Scope is one lexical frame's variable view: a local overlay (loop items,
// function parameters, $error/$_ bindings) layered over the shell's shared
// global variables.Manager. Every Interpreter frame carries its own Scope;
// a statement that opens a new frame (foreach body, function call,
// try/catch) builds a child Scope rather than mutating its parent's, so
// concurrent frames (parallel block workers) never share mutable state.
type Scope struct {
	manager *variables.Manager
	locals  map[string]any

	// isolated marks a frame whose writes never reach the shared manager:
	// used for parallel workers and function calls, so a worker's `$x = ...`
	// can't race with a sibling worker's read of the same name, and a
	// function's locals don't leak into its caller. Reads still fall
	// through to whatever was captured in locals at snapshot time.
	isolated bool
}

func newScope(manager *variables.Manager) *Scope {
	return &Scope{manager: manager, locals: map[string]any{}}
}

// child builds a new frame layered on s: it sees everything s sees right
// now, and inherits s's isolation, but its own bindings and further writes
// never affect s.
func (s *Scope) child() *Scope {
	locals := make(map[string]any, len(s.locals))
	for k, v := range s.locals {
		locals[k] = v
	}
	return &Scope{manager: s.manager, locals: locals, isolated: s.isolated}
}

// snapshot freezes every variable currently visible (global table plus
// local overlay) into a standalone isolated frame. Each parallel worker
// starts from a snapshot taken at dispatch time: it reads a consistent
// view of the outer scope and can never race with, or mutate, it.
func (s *Scope) snapshot() *Scope {
	locals := s.manager.List()
	for k, v := range s.locals {
		locals[k] = v
	}
	return &Scope{manager: s.manager, locals: locals, isolated: true}
}

func (s *Scope) resolve(name string) (any, bool) {
	if v, ok := s.locals[name]; ok {
		return v, true
	}
	if s.isolated {
		return nil, false
	}
	return s.manager.Get(name)
}

// bindLocal binds name in this frame only, regardless of isolation — used
// for loop items and function parameters, which are always frame-private.
func (s *Scope) bindLocal(name string, value any) {
	if s.locals == nil {
		s.locals = map[string]any{}
	}
	s.locals[name] = value
}

// bindComputed binds an already-evaluated value for an implicit variable
// ($_ from a pipeline stage, $error in a catch block): local-only inside
// an isolated frame, global otherwise.
func (s *Scope) bindComputed(name string, value any) {
	if s.isolated {
		s.bindLocal(name, value)
		return
	}
	s.manager.SetValue(name, value)
}

// Evaluate runs expr (in the script engine's $name-prefixed syntax) against
// this frame's view, global table first, local overlay taking precedence.
func (s *Scope) Evaluate(expr string) (any, error) {
	ev := evalexpr.New(s.resolve)
	return ev.Evaluate(variables.StripSigils(expr))
}

// SetVariable evaluates expr and binds the result to name: globally unless
// this frame is isolated, in which case the binding stays frame-local.
func (s *Scope) SetVariable(name, expr string) (any, error) {
	v, err := s.Evaluate(expr)
	if err != nil {
		return nil, err
	}
	s.bindComputed(name, v)
	return v, nil
}

var scopeComplexRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandVariables mirrors variables.Manager.ExpandVariables but resolves
// references against this frame (so a command running inside a foreach or
// function body sees the loop item / parameter, not just globals). The
// simple-ref pass (escaping, deferral to this complex-ref pass) is shared
// with variables.Manager via variables.ExpandSimpleRefs.
func (s *Scope) ExpandVariables(text string) string {
	text = scopeComplexRef.ReplaceAllStringFunc(text, func(match string) string {
		expr := scopeComplexRef.FindStringSubmatch(match)[1]
		v, err := s.Evaluate(expr)
		if err != nil {
			return match
		}
		return fmt.Sprintf("%v", v)
	})
	return variables.ExpandSimpleRefs(text, s.resolve)
}
