// Package remoteagent implements the RemoteAgent contract: an active
// connection to a remote system obtained by connecting to a ServerEndpoint.
//
// The concrete wire transport behind a connection is explicitly out of
// scope; what's modeled here is the channel-based dispatch shape used
// throughout this codebase's relay layer (a persistent per-endpoint tunnel
// of command/result envelopes) so a real transport can be dropped in later
// without touching callers.
package remoteagent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dr-natetorious/fleetshell/internal/resilience"
)

// Status is an endpoint's connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// CommandEnvelope wraps one command dispatched to a tunnel.
type CommandEnvelope struct {
	RequestID string
	Command   string
	Deadline  time.Time
}

// ResultEnvelope wraps one command's result.
type ResultEnvelope struct {
	RequestID string
	Output    string
	Err       error
}

// Tunnel is a persistent per-endpoint channel pair, the transport unit a
// RemoteAgent dispatches over.
type Tunnel struct {
	Hostname  string
	CommandCh chan *CommandEnvelope
	ResultCh  chan *ResultEnvelope
	Done      chan struct{}
}

// Executor runs a command that has arrived over a tunnel and produces its
// result. The default Executor used when none is supplied is a stub that
// performs no real remote execution (the concrete SSH/remote transport is
// outside this module's scope) — it exists so the contract has a usable,
// exercisable default.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// StubExecutor is the default Executor: it reports what it would have run
// without actually running anything remote.
type StubExecutor struct{}

func (StubExecutor) Execute(_ context.Context, command string) (string, error) {
	return fmt.Sprintf("Executed: %s", command), nil
}

// Dispatcher owns one Tunnel per endpoint hostname and routes
// command/result envelopes between Agents and their Executors, the same
// request/response-over-channels shape used for node command dispatch.
type Dispatcher struct {
	mu      sync.RWMutex
	tunnels map[string]*Tunnel
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{tunnels: make(map[string]*Tunnel)}
}

// Register opens a tunnel for hostname, replacing any prior tunnel for the
// same hostname.
func (d *Dispatcher) Register(hostname string, exec Executor) *Tunnel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.tunnels[hostname]; ok {
		close(existing.Done)
	}
	t := &Tunnel{
		Hostname:  hostname,
		CommandCh: make(chan *CommandEnvelope, 8),
		ResultCh:  make(chan *ResultEnvelope, 8),
		Done:      make(chan struct{}),
	}
	d.tunnels[hostname] = t
	go serve(t, exec)
	return t
}

// Deregister closes and removes hostname's tunnel.
func (d *Dispatcher) Deregister(hostname string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tunnels[hostname]; ok {
		close(t.Done)
		delete(d.tunnels, hostname)
	}
}

func serve(t *Tunnel, exec Executor) {
	for {
		select {
		case <-t.Done:
			return
		case env := <-t.CommandCh:
			ctx := context.Background()
			out, err := exec.Execute(ctx, env.Command)
			select {
			case t.ResultCh <- &ResultEnvelope{RequestID: env.RequestID, Output: out, Err: err}:
			case <-t.Done:
				return
			}
		}
	}
}

// sendTimeout bounds how long one command may spend in a tunnel, from
// dispatch to result.
const sendTimeout = 30 * time.Second

// Send routes command through hostname's tunnel and waits for its result,
// bounded by the envelope deadline.
func (d *Dispatcher) Send(ctx context.Context, hostname, requestID, command string) (string, error) {
	d.mu.RLock()
	t, ok := d.tunnels[hostname]
	d.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no tunnel for host %s", hostname)
	}
	env := &CommandEnvelope{RequestID: requestID, Command: command, Deadline: time.Now().Add(sendTimeout)}

	var output string
	err := resilience.WithTimeout(ctx, time.Until(env.Deadline), func(ctx context.Context) error {
		select {
		case t.CommandCh <- env:
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Done:
			return fmt.Errorf("tunnel closed for host %s", hostname)
		}
		select {
		case res := <-t.ResultCh:
			output = res.Output
			return res.Err
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Done:
			return fmt.Errorf("tunnel closed while waiting for result from host %s", hostname)
		}
	})
	return output, err
}

// Agent is an active connection to one remote system: Execute runs a
// command and returns its output, Cleanup performs endpoint teardown,
// Disconnect releases the tunnel and resets connection state.
type Agent struct {
	hostname     string
	dispatcher   *Dispatcher
	onDisconnect func()
	retry        resilience.RetryConfig

	mu     sync.Mutex
	nextID int
}

// NewAgent wraps a hostname's tunnel as a RemoteAgent. onDisconnect is
// invoked from Disconnect to let the owning endpoint reset its status.
func NewAgent(hostname string, dispatcher *Dispatcher, onDisconnect func()) *Agent {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.InitialDelay = 50 * time.Millisecond
	retry.RetryableErr = func(err error) bool {
		// A dropped/closed tunnel is worth one retry; ctx cancellation and
		// deadline exceeded never are.
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return &Agent{hostname: hostname, dispatcher: dispatcher, onDisconnect: onDisconnect, retry: retry}
}

// Execute runs command on the remote system and returns its output,
// retrying once on a transient tunnel failure.
func (a *Agent) Execute(ctx context.Context, command string) (string, error) {
	var output string
	err := resilience.Retry(ctx, a.retry, func(attempt int) error {
		a.mu.Lock()
		a.nextID++
		id := fmt.Sprintf("%s-%d", a.hostname, a.nextID)
		a.mu.Unlock()

		out, err := a.dispatcher.Send(ctx, a.hostname, id, command)
		if err != nil {
			return err
		}
		output = out
		return nil
	})
	return output, err
}

// Cleanup performs any remote-side cleanup this agent is responsible for.
func (a *Agent) Cleanup(ctx context.Context) (string, error) {
	return a.Execute(ctx, "__cleanup__")
}

// Disconnect tears down the tunnel and notifies the owning endpoint.
func (a *Agent) Disconnect() {
	a.dispatcher.Deregister(a.hostname)
	if a.onDisconnect != nil {
		a.onDisconnect()
	}
}
