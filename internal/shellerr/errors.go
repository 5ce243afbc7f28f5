// Package shellerr centralizes the shell's error taxonomy so every
// component (parser, command dispatch, config store, discovery, shell
// host) raises the same named error shapes instead of ad hoc strings.
package shellerr

import "fmt"

// ParseError reports a lexer/parser failure over script or command text.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// TypeConversionError reports a failed type coercion; Cause is typically a
// *coerce.ConversionError.
type TypeConversionError struct {
	Cause error
}

func (e *TypeConversionError) Error() string { return e.Cause.Error() }
func (e *TypeConversionError) Unwrap() error { return e.Cause }

// UnknownCommand reports a command name with no registry entry.
type UnknownCommand struct {
	Name string
}

func (e *UnknownCommand) Error() string { return fmt.Sprintf("Unknown command: %s", e.Name) }

// UnknownParameter reports a "-name" token that doesn't match any of a
// command's parameter spellings.
type UnknownParameter struct {
	Command string
	Name    string
}

func (e *UnknownParameter) Error() string {
	return fmt.Sprintf("Unknown parameter: %s", e.Name)
}

// MissingMandatoryParameter reports a mandatory parameter left unbound
// after both binding passes.
type MissingMandatoryParameter struct {
	Command string
	Name    string
}

func (e *MissingMandatoryParameter) Error() string {
	return fmt.Sprintf("Missing required parameter: %s", e.Name)
}

// VariableEvaluationError reports a sandboxed expression evaluation
// failure; Cause is typically an *evalexpr.EvaluationError.
type VariableEvaluationError struct {
	Cause error
}

func (e *VariableEvaluationError) Error() string { return e.Cause.Error() }
func (e *VariableEvaluationError) Unwrap() error { return e.Cause }

// ServerConnectionError reports a failed attempt to connect to a system's
// endpoint.
type ServerConnectionError struct {
	System string
	Cause  error
}

func (e *ServerConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to '%s': %v", e.System, e.Cause)
}
func (e *ServerConnectionError) Unwrap() error { return e.Cause }

// ServerNotFoundError reports an operation against an unknown system name.
type ServerNotFoundError struct {
	Name string
}

func (e *ServerNotFoundError) Error() string {
	return fmt.Sprintf("system '%s' not found", e.Name)
}

// ServerAlreadyExistsError reports an add-system call for a name already
// registered.
type ServerAlreadyExistsError struct {
	Name string
}

func (e *ServerAlreadyExistsError) Error() string {
	return fmt.Sprintf("System with name '%s' already exists", e.Name)
}

// ServerNotConnectedError reports an operation requiring a live connection
// against a system that has none.
type ServerNotConnectedError struct {
	Name string
}

func (e *ServerNotConnectedError) Error() string {
	return fmt.Sprintf("system '%s' is not connected", e.Name)
}

// DiskOperationError reports a failed filesystem operation (config
// save/load, script read).
type DiskOperationError struct {
	Path  string
	Cause error
}

func (e *DiskOperationError) Error() string {
	return fmt.Sprintf("disk operation failed for %q: %v", e.Path, e.Cause)
}
func (e *DiskOperationError) Unwrap() error { return e.Cause }

// DiscoveryError reports a failure in dependency resolution or plugin
// execution during a discovery run.
type DiscoveryError struct {
	Message string
}

func (e *DiscoveryError) Error() string { return fmt.Sprintf("DiscoveryError: %s", e.Message) }

// ReturnOutsideFunction reports a `return` statement executed outside any
// function call frame.
type ReturnOutsideFunction struct{}

func (e *ReturnOutsideFunction) Error() string { return "return statement outside a function" }

// MissingFunctionArgument reports a function call that doesn't provide
// (or default) a mandatory parameter.
type MissingFunctionArgument struct {
	Function string
	Param    string
}

func (e *MissingFunctionArgument) Error() string {
	return fmt.Sprintf("function %q missing required argument '%s'", e.Function, e.Param)
}

// ShellExit is raised by the exit/quit/bye command to unwind the REPL loop
// with a specific process exit code.
type ShellExit struct {
	Code int
}

func (e *ShellExit) Error() string { return fmt.Sprintf("shell exit requested (code %d)", e.Code) }
