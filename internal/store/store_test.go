package store

import (
	"path/filepath"
	"testing"

	"github.com/dr-natetorious/fleetshell/internal/remoteagent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSystem(name string) *System {
	return NewSystem(name, &Endpoint{Hostname: name + ".example.com", Port: 22})
}

func TestAddSystemDuplicateFails(t *testing.T) {
	s := New()
	_, err := s.AddSystem(newTestSystem("existing"))
	require.NoError(t, err)

	_, err = s.AddSystem(newTestSystem("existing"))
	require.Error(t, err)
	assert.Equal(t, "System with name 'existing' already exists", err.Error())
}

func TestRemoveSystem(t *testing.T) {
	s := New()
	s.AddSystem(newTestSystem("web1"))
	assert.True(t, s.RemoveSystem("web1"))
	assert.False(t, s.RemoveSystem("web1"))
}

func TestFilterByTagsRequiresAll(t *testing.T) {
	s := New()
	a := newTestSystem("a")
	a.AddTags([]string{"prod", "web"})
	b := newTestSystem("b")
	b.AddTags([]string{"prod"})
	s.AddSystem(a)
	s.AddSystem(b)

	matched := s.FilterByTags([]string{"prod", "web"})
	require.Len(t, matched, 1)
	assert.Equal(t, "a", matched[0].Name)
}

func TestFilterByRole(t *testing.T) {
	s := New()
	a := newTestSystem("a")
	a.AddRole("db", "database role")
	s.AddSystem(a)
	s.AddSystem(newTestSystem("b"))

	matched := s.FilterByRole("db")
	require.Len(t, matched, 1)
	assert.Equal(t, "a", matched[0].Name)
}

func TestConnectAndFilterConnected(t *testing.T) {
	s := New()
	a := newTestSystem("a")
	s.AddSystem(a)

	dispatcher := remoteagent.NewDispatcher()
	_, err := a.Connect(dispatcher)
	require.NoError(t, err)
	assert.True(t, a.IsConnected())
	assert.Len(t, s.FilterConnected(), 1)
}

func TestSaveAndLoadJSONResetsConnectionStatus(t *testing.T) {
	s := New()
	a := newTestSystem("a")
	s.AddSystem(a)
	dispatcher := remoteagent.NewDispatcher()
	a.Connect(dispatcher)
	require.Equal(t, remoteagent.StatusConnected, a.Endpoint.ConnectionStatus)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, s.SaveJSON(path))

	reloaded, err := LoadJSON(path)
	require.NoError(t, err)
	sys, ok := reloaded.GetSystem("a")
	require.True(t, ok)
	assert.Equal(t, remoteagent.StatusDisconnected, sys.Endpoint.ConnectionStatus)
}

func TestGlobalSettings(t *testing.T) {
	s := New()
	s.AddGlobalSetting("cleanup_days", 30, "")
	assert.Equal(t, 30, s.GetGlobalSetting("cleanup_days", nil))
	assert.True(t, s.RemoveGlobalSetting("cleanup_days"))
	assert.False(t, s.RemoveGlobalSetting("cleanup_days"))
}
