package remoteagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubExecutorReportsCommand(t *testing.T) {
	out, err := StubExecutor{}.Execute(context.Background(), "uptime")
	require.NoError(t, err)
	assert.Equal(t, "Executed: uptime", out)
}

func TestAgentExecuteRoundTrip(t *testing.T) {
	d := NewDispatcher()
	d.Register("web1", StubExecutor{})
	agent := NewAgent("web1", d, nil)

	out, err := agent.Execute(context.Background(), "df -h")
	require.NoError(t, err)
	assert.Equal(t, "Executed: df -h", out)
}

func TestDisconnectClosesTunnelAndNotifies(t *testing.T) {
	d := NewDispatcher()
	d.Register("web1", StubExecutor{})

	notified := false
	agent := NewAgent("web1", d, func() { notified = true })
	agent.Disconnect()
	assert.True(t, notified)

	_, err := d.Send(context.Background(), "web1", "req-1", "uptime")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tunnel")
}

func TestRegisterReplacesPriorTunnel(t *testing.T) {
	d := NewDispatcher()
	first := d.Register("web1", StubExecutor{})
	second := d.Register("web1", StubExecutor{})
	assert.NotSame(t, first, second)

	select {
	case <-first.Done:
	default:
		t.Fatal("expected the replaced tunnel to be closed")
	}

	out, err := d.Send(context.Background(), "web1", "req-1", "uptime")
	require.NoError(t, err)
	assert.Equal(t, "Executed: uptime", out)
}

func TestSendHonorsContextCancellation(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.Register("web1", blockingExecutor{})
	_, err := d.Send(ctx, "web1", "req-1", "uptime")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type blockingExecutor struct{}

func (blockingExecutor) Execute(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
