package updateinfo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeLifecycle(t *testing.T) {
	root := NewRoot("echo hi")
	require.Equal(t, StatusPending, root.Status)

	root.Start()
	require.Equal(t, StatusRunning, root.Status)

	child := root.CreateChildNode("echo a")
	child.Start()
	time.Sleep(time.Millisecond)
	child.Complete(true)

	root.Complete(true)

	require.Len(t, root.Children, 1)
	assert.Equal(t, StatusCompleted, child.Status)
	assert.False(t, root.EndTime.Before(root.StartTime))
	assert.GreaterOrEqual(t, child.GetExecutionTime(), time.Duration(0))
}

func TestNodeInvariantEndAfterStatusTerminal(t *testing.T) {
	for _, tc := range []struct {
		name string
		run  func(*Node)
		want Status
	}{
		{"completed", func(n *Node) { n.Complete(true) }, StatusCompleted},
		{"failed", func(n *Node) { n.Complete(false) }, StatusFailed},
		{"cancelled", func(n *Node) { n.Cancel() }, StatusCancelled},
	} {
		n := NewRoot("x")
		n.Start()
		tc.run(n)
		assert.Equal(t, tc.want, n.Status)
		assert.False(t, n.EndTime.IsZero())
		assert.False(t, n.EndTime.Before(n.StartTime))
	}
}

func TestSetErrorFlipsStatus(t *testing.T) {
	n := NewRoot("boom")
	n.Start()
	n.SetError("ValueError", "bad things", "")
	assert.Equal(t, StatusFailed, n.Status)
	require.NotNil(t, n.Err)
	assert.Equal(t, "ValueError: bad things", n.Err.Error())
}

func TestFindNodeByIDOnlySearchesOwnSubtree(t *testing.T) {
	root := NewRoot("root")
	a := root.CreateChildNode("a")
	b := a.CreateChildNode("b")

	assert.Same(t, b, root.FindNodeByID(b.ID))
	assert.Same(t, b, a.FindNodeByID(b.ID))
	// b's subtree doesn't contain root or a: searching upward must fail.
	assert.Nil(t, b.FindNodeByID(root.ID))
	assert.Nil(t, b.FindNodeByID(a.ID))
}

func TestGetAllLogsPreOrder(t *testing.T) {
	root := NewRoot("root")
	root.AddLog("root-1", LogInfo)
	child := root.CreateChildNode("child")
	child.AddLog("child-1", LogWarning)
	root.AddLog("root-2", LogInfo)

	logs := root.GetAllLogs()
	require.Len(t, logs, 3)
	assert.Equal(t, "root-1", logs[0].Entry.Message)
	assert.Equal(t, "root-2", logs[1].Entry.Message)
	assert.Equal(t, "child-1", logs[2].Entry.Message)
	assert.Equal(t, child.ID, logs[2].NodeID)
}

func TestToDictNeverMentionsParent(t *testing.T) {
	root := NewRoot("root")
	child := root.CreateChildNode("child")
	child.AddOutput("stdout", "ok")

	childDict := child.ToDict(true)
	assert.Equal(t, child.ID, childDict.NodeID)
	assert.Empty(t, childDict.Children)

	rootDict := root.ToDict(true)
	require.Len(t, rootDict.Children, 1)
	assert.Equal(t, child.ID, rootDict.Children[0].NodeID)

	shallow := root.ToDict(false)
	assert.Nil(t, shallow.Children)
}
