// Package updateinfo implements the hierarchical execution log every
// dispatched statement attaches to: a tree of Nodes carrying status,
// timings, log entries, outputs and errors for one (sub)command.
package updateinfo

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a Node's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// LogLevel is one of the five conventional severities.
type LogLevel string

const (
	LogDebug    LogLevel = "debug"
	LogInfo     LogLevel = "info"
	LogWarning  LogLevel = "warning"
	LogError    LogLevel = "error"
	LogCritical LogLevel = "critical"
)

// LogEntry is one timestamped log line attached to a Node.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
}

// ErrorInfo describes an error recorded on a Node.
type ErrorInfo struct {
	Type      string
	Message   string
	Traceback string
}

func (e *ErrorInfo) Error() string { return e.Type + ": " + e.Message }

// Node is one record in the execution tree. The parent link is purely
// informational and is never walked by ToDict or by FindNodeByID, which
// only searches the receiver's own subtree: a child rendered alone never
// mentions its parent.
type Node struct {
	mu sync.Mutex

	ID      string
	Command string
	Status  Status

	StartTime time.Time
	EndTime   time.Time

	Logs   []LogEntry
	Output map[string]any
	Err    *ErrorInfo

	Children []*Node
	parent   *Node
}

// NewRoot creates a detached root node for one prompt-line dispatch.
func NewRoot(command string) *Node {
	return &Node{
		ID:      uuid.NewString(),
		Command: command,
		Status:  StatusPending,
		Output:  map[string]any{},
	}
}

// CreateChildNode creates a child of n, attached under n's own lock so
// concurrent workers writing to the same parent's child list don't race.
func (n *Node) CreateChildNode(command string) *Node {
	child := &Node{
		ID:      uuid.NewString(),
		Command: command,
		Status:  StatusPending,
		Output:  map[string]any{},
		parent:  n,
	}
	n.mu.Lock()
	n.Children = append(n.Children, child)
	n.mu.Unlock()
	return child
}

// Start marks the node running and stamps its start time. A node's start
// always precedes any child's start, since children are only created after
// the parent's own Start call in the executor's dispatch path.
func (n *Node) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.StartTime = time.Now()
	n.Status = StatusRunning
}

// Complete marks the node finished, successfully or not.
func (n *Node) Complete(success bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.EndTime = time.Now()
	if success {
		n.Status = StatusCompleted
	} else {
		n.Status = StatusFailed
	}
}

// Cancel marks the node cancelled (a dropped partial node, e.g. on a
// top-level interrupt).
func (n *Node) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.EndTime = time.Now()
	n.Status = StatusCancelled
}

// AddLog appends one log entry, preserving insertion order under
// concurrent writers.
func (n *Node) AddLog(message string, level LogLevel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Logs = append(n.Logs, LogEntry{Timestamp: time.Now(), Level: level, Message: message})
}

// AddOutput records one named output value.
func (n *Node) AddOutput(key string, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Output == nil {
		n.Output = map[string]any{}
	}
	n.Output[key] = value
}

// SetError records error details and flips status to failed.
func (n *Node) SetError(errorType, message, traceback string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Err = &ErrorInfo{Type: errorType, Message: message, Traceback: traceback}
	n.Status = StatusFailed
}

// GetExecutionTime reports elapsed time: end-start if the node has
// finished, now-start if it's still running.
func (n *Node) GetExecutionTime() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.executionTimeLocked()
}

// executionTimeLocked is GetExecutionTime's body, callable from methods
// that already hold n.mu (sync.Mutex isn't reentrant).
func (n *Node) executionTimeLocked() time.Duration {
	if n.EndTime.IsZero() {
		return time.Since(n.StartTime)
	}
	return n.EndTime.Sub(n.StartTime)
}

// LogRecord pairs a log entry with the ID of the node it belongs to, for
// GetAllLogs's flattened pre-order walk.
type LogRecord struct {
	NodeID string
	Entry  LogEntry
}

// GetAllLogs walks n's subtree pre-order, returning every log entry
// alongside the ID of the node that owns it.
func (n *Node) GetAllLogs() []LogRecord {
	n.mu.Lock()
	out := make([]LogRecord, 0, len(n.Logs))
	for _, e := range n.Logs {
		out = append(out, LogRecord{NodeID: n.ID, Entry: e})
	}
	children := append([]*Node(nil), n.Children...)
	n.mu.Unlock()

	for _, c := range children {
		out = append(out, c.GetAllLogs()...)
	}
	return out
}

// FindNodeByID searches only n's own subtree (never upward through parent)
// for a node with the given ID, depth-first.
func (n *Node) FindNodeByID(id string) *Node {
	n.mu.Lock()
	children := append([]*Node(nil), n.Children...)
	match := n.ID == id
	n.mu.Unlock()

	if match {
		return n
	}
	for _, c := range children {
		if found := c.FindNodeByID(id); found != nil {
			return found
		}
	}
	return nil
}

// Snapshot is the serializable projection of a Node produced by ToDict. It
// never carries a parent reference.
type Snapshot struct {
	NodeID        string           `json:"node_id"`
	Command       string           `json:"command"`
	Status        Status           `json:"status"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       *time.Time       `json:"end_time,omitempty"`
	ExecutionTime time.Duration    `json:"execution_time"`
	Logs          []LogEntry       `json:"logs"`
	Output        map[string]any   `json:"output"`
	Error         *ErrorInfo       `json:"error,omitempty"`
	Children      []*Snapshot      `json:"child_nodes,omitempty"`
}

// ToDict renders n (and, if includeChildren, its whole subtree) as a
// Snapshot. Children is only populated when includeChildren is set.
func (n *Node) ToDict(includeChildren bool) *Snapshot {
	n.mu.Lock()
	s := &Snapshot{
		NodeID:        n.ID,
		Command:       n.Command,
		Status:        n.Status,
		StartTime:     n.StartTime,
		ExecutionTime: n.executionTimeLocked(),
		Logs:          append([]LogEntry(nil), n.Logs...),
		Output:        n.Output,
		Error:         n.Err,
	}
	if !n.EndTime.IsZero() {
		end := n.EndTime
		s.EndTime = &end
	}
	children := append([]*Node(nil), n.Children...)
	n.mu.Unlock()

	if includeChildren {
		for _, c := range children {
			s.Children = append(s.Children, c.ToDict(true))
		}
	}
	return s
}
