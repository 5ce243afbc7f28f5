package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dr-natetorious/fleetshell/internal/shellerr"
	"github.com/dr-natetorious/fleetshell/internal/store"
)

func newTestStore(names ...string) *store.Store {
	s := store.New()
	for _, n := range names {
		s.AddSystem(store.NewSystem(n, &store.Endpoint{Hostname: n + ".example.com", Port: 22}))
	}
	return s
}

func TestMountPointsPluginTagsEverySystem(t *testing.T) {
	st := newTestStore("web1", "web2")

	c := NewCoordinator(2, nil)
	c.Register(NewMountPointsPlugin())

	results, err := c.Run(context.Background(), st, []string{"mount_points"}, nil, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].SystemsUpdated)

	sys, ok := st.GetSystem("web1")
	require.True(t, ok)
	assert.True(t, sys.HasTag("has_mounts"))
}

func TestDiskSpaceDependsOnMountPoints(t *testing.T) {
	st := newTestStore("a", "b", "c")

	c := NewCoordinator(4, nil)
	c.Register(NewDiskSpacePlugin(DiskSpacePluginConfig{FreePercentThreshold: 100})) // force every system under threshold
	c.Register(NewMountPointsPlugin())

	results, err := c.Run(context.Background(), st, nil, nil, true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "mount_points", results[0].Plugin)
	assert.Equal(t, "disk_space", results[1].Plugin)

	for _, name := range []string{"a", "b", "c"} {
		sys, _ := st.GetSystem(name)
		assert.True(t, sys.HasTag("has_mounts"))
		assert.True(t, sys.HasRole("low_disk"))
	}
}

func TestRunUnknownPluginErrors(t *testing.T) {
	st := newTestStore("a")
	c := NewCoordinator(2, nil)
	_, err := c.Run(context.Background(), st, []string{"nonexistent"}, nil, false)
	require.Error(t, err)
}

type cyclicPlugin struct {
	name string
	deps []string
}

func (p *cyclicPlugin) Name() string { return p.name }
func (p *cyclicPlugin) Description() string { return "" }
func (p *cyclicPlugin) Dependencies() []string { return p.deps }
func (p *cyclicPlugin) Run(_ context.Context, systems []*store.System) (*Result, error) {
	return &Result{SystemsChecked: len(systems)}, nil
}

func TestCircularDependencyDetected(t *testing.T) {
	st := newTestStore("a")
	c := NewCoordinator(2, nil)
	c.Register(&cyclicPlugin{name: "x", deps: []string{"y"}})
	c.Register(&cyclicPlugin{name: "y", deps: []string{"x"}})

	_, err := c.Run(context.Background(), st, nil, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Circular dependencies detected")
}

type failingPlugin struct{}

func (p *failingPlugin) Name() string { return "broken" }
func (p *failingPlugin) Description() string { return "" }
func (p *failingPlugin) Dependencies() []string { return nil }
func (p *failingPlugin) Run(_ context.Context, systems []*store.System) (*Result, error) {
	return nil, errors.New("probe exploded")
}

func TestPluginFailureWrappedAsDiscoveryError(t *testing.T) {
	st := newTestStore("a")
	c := NewCoordinator(2, nil)
	c.Register(&failingPlugin{})

	_, err := c.Run(context.Background(), st, nil, nil, false)
	require.Error(t, err)
	var discErr *shellerr.DiscoveryError
	require.ErrorAs(t, err, &discErr)
	assert.Contains(t, discErr.Message, "broken")
	assert.Contains(t, discErr.Message, "probe exploded")
}

func TestRunTargetsSpecificSystems(t *testing.T) {
	st := newTestStore("x", "y", "z")
	c := NewCoordinator(2, nil)
	c.Register(NewMountPointsPlugin())

	results, err := c.Run(context.Background(), st, []string{"mount_points"}, []string{"x"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].SystemsChecked)

	sysX, _ := st.GetSystem("x")
	sysY, _ := st.GetSystem("y")
	assert.True(t, sysX.HasTag("has_mounts"))
	assert.False(t, sysY.HasTag("has_mounts"))
}
