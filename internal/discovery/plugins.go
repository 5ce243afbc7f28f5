package discovery

import (
	"context"
	"hash/fnv"

	"github.com/dr-natetorious/fleetshell/internal/store"
)

// MountPointsPlugin simulates a mount-point sweep: every system it
// examines gets the has_mounts tag, and a mount_count property derived
// deterministically from the system's name (there's no real remote probe
// behind this module — see internal/remoteagent's package doc).
type MountPointsPlugin struct{}

// NewMountPointsPlugin constructs the no-dependency mount_points plugin.
func NewMountPointsPlugin() *MountPointsPlugin { return &MountPointsPlugin{} }

func (p *MountPointsPlugin) Name() string { return "mount_points" }
func (p *MountPointsPlugin) Description() string { return "discovers mounted filesystems and tags systems with has_mounts" }
func (p *MountPointsPlugin) Dependencies() []string { return nil }

func (p *MountPointsPlugin) Run(_ context.Context, systems []*store.System) (*Result, error) {
	r := &Result{SystemsChecked: len(systems)}
	for _, sys := range systems {
		count := int(fnvHash(sys.Name)%4) + 1
		sys.AddTag("has_mounts")
		sys.AddProperty("mount_count", count)
		r.SystemsUpdated++
	}
	return r, nil
}

// DiskSpacePluginConfig tunes the low_disk role threshold.
type DiskSpacePluginConfig struct {
	// FreePercentThreshold is the free-space percentage below which a
	// system is assigned the low_disk role. Default 15.
	FreePercentThreshold int
}

// DiskSpacePlugin depends on mount_points having already tagged a system's
// mount_count, and assigns a low_disk role to any system whose simulated
// free space drops under its threshold.
type DiskSpacePlugin struct {
	cfg DiskSpacePluginConfig
}

// NewDiskSpacePlugin constructs the disk_space plugin with cfg. A zero
// FreePercentThreshold falls back to 15.
func NewDiskSpacePlugin(cfg DiskSpacePluginConfig) *DiskSpacePlugin {
	if cfg.FreePercentThreshold <= 0 {
		cfg.FreePercentThreshold = 15
	}
	return &DiskSpacePlugin{cfg: cfg}
}

func (p *DiskSpacePlugin) Name() string { return "disk_space" }
func (p *DiskSpacePlugin) Description() string { return "flags systems under a free-space threshold with the low_disk role" }
func (p *DiskSpacePlugin) Dependencies() []string { return []string{"mount_points"} }

func (p *DiskSpacePlugin) Run(_ context.Context, systems []*store.System) (*Result, error) {
	r := &Result{SystemsChecked: len(systems)}
	for _, sys := range systems {
		freePercent := int(fnvHash(sys.Name+"/disk") % 100)
		sys.AddProperty("disk_free_percent", freePercent)
		if freePercent < p.cfg.FreePercentThreshold {
			sys.AddRole("low_disk", "free disk space below threshold").
				AddProperty("free_percent", freePercent).
				AddProperty("threshold", p.cfg.FreePercentThreshold)
			r.SystemsUpdated++
		}
	}
	return r, nil
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
