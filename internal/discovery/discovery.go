// Package discovery implements the dependency-ordered plugin coordinator
// the `discover` command dispatches into: plugins declare what other
// plugins they depend on, the Coordinator partitions the requested subset
// into dependency "levels" via Kahn's algorithm, and fans each level out
// across a bounded worker pool — the same sem-channel/WaitGroup/buffered
// result-channel shape internal/executor's runParallel uses for statement
// fan-out, applied here to levels of plugins.
package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dr-natetorious/fleetshell/internal/shellerr"
	"github.com/dr-natetorious/fleetshell/internal/store"
)

// DefaultMaxConcurrent bounds how many plugins within one dependency level
// run at once.
const DefaultMaxConcurrent = 4

// Result reports one plugin's outcome against the systems it examined.
type Result struct {
	Plugin         string
	SystemsChecked int
	SystemsUpdated int
	Duration       time.Duration
	Err            error
}

// Plugin contributes tags/roles/properties to systems by examining them.
// Dependencies names other plugins that must have already run — a plugin
// that inspects disk thresholds after mount points are known, for
// instance, depends on the plugin that discovers mount points.
type Plugin interface {
	Name() string
	Description() string
	Dependencies() []string
	Run(ctx context.Context, systems []*store.System) (*Result, error)
}

// Coordinator owns the registered plugin set and runs a subset of them in
// dependency order.
type Coordinator struct {
	mu            sync.RWMutex
	plugins       map[string]Plugin
	maxConcurrent int
	logger        *slog.Logger
}

// NewCoordinator builds an empty Coordinator. maxConcurrent <= 0 falls back
// to DefaultMaxConcurrent; a nil logger discards log output.
func NewCoordinator(maxConcurrent int, logger *slog.Logger) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		plugins:       map[string]Plugin{},
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Register adds p, replacing any prior plugin of the same name.
func (c *Coordinator) Register(p Plugin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plugins[p.Name()] = p
}

// Names returns every registered plugin's name, sorted.
func (c *Coordinator) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.plugins))
	for name := range c.plugins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run executes pluginNames (or every registered plugin, if pluginNames is
// empty) against the systems in st matching targetSystems (or every
// system, if targetSystems is empty). When parallel is false, or the
// selection resolves to a single dependency level of one plugin, plugins
// run one at a time in dependency order; otherwise each dependency level
// fans out across a bounded worker pool.
func (c *Coordinator) Run(ctx context.Context, st *store.Store, pluginNames []string, targetSystems []string, parallel bool) ([]*Result, error) {
	selected, err := c.resolveSelection(pluginNames)
	if err != nil {
		return nil, err
	}

	levels, err := levelize(selected)
	if err != nil {
		return nil, err
	}

	systems := resolveSystems(st, targetSystems)

	var results []*Result
	for _, level := range levels {
		var levelResults []*Result
		if parallel && len(level) > 1 {
			levelResults = c.runLevelParallel(ctx, level, systems)
		} else {
			levelResults = c.runLevelSequential(ctx, level, systems)
		}
		results = append(results, levelResults...)
		for _, r := range levelResults {
			if r.Err != nil {
				return results, &shellerr.DiscoveryError{Message: fmt.Sprintf("plugin %s failed: %v", r.Plugin, r.Err)}
			}
		}
	}
	return results, nil
}

func (c *Coordinator) resolveSelection(pluginNames []string) (map[string]Plugin, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := pluginNames
	if len(names) == 0 {
		names = make([]string, 0, len(c.plugins))
		for name := range c.plugins {
			names = append(names, name)
		}
	}

	selected := make(map[string]Plugin, len(names))
	for _, name := range names {
		p, ok := c.plugins[name]
		if !ok {
			return nil, &shellerr.DiscoveryError{Message: fmt.Sprintf("unknown plugin %q", name)}
		}
		selected[name] = p
	}
	return selected, nil
}

func resolveSystems(st *store.Store, targetSystems []string) []*store.System {
	if len(targetSystems) == 0 {
		return st.ListSystems()
	}
	out := make([]*store.System, 0, len(targetSystems))
	for _, name := range targetSystems {
		if sys, ok := st.GetSystem(name); ok {
			out = append(out, sys)
		}
	}
	return out
}

// levelize partitions selected into dependency levels via Kahn's
// algorithm: level 0 holds every plugin whose dependencies are all outside
// the selection (already satisfied or irrelevant), and each subsequent
// level holds plugins whose in-selection dependencies were all satisfied
// by a prior level. A plugin dependency that never clears reports a
// *shellerr.DiscoveryError for a cycle.
func levelize(selected map[string]Plugin) ([][]Plugin, error) {
	inDegree := make(map[string]int, len(selected))
	dependents := make(map[string][]string, len(selected))

	for name, p := range selected {
		deg := 0
		for _, dep := range p.Dependencies() {
			if _, inSelection := selected[dep]; inSelection {
				deg++
				dependents[dep] = append(dependents[dep], name)
			}
		}
		inDegree[name] = deg
	}

	var levels [][]Plugin
	remaining := len(selected)
	satisfied := map[string]bool{}

	for remaining > 0 {
		var level []Plugin
		var levelNames []string
		for name, deg := range inDegree {
			if !satisfied[name] && deg == 0 {
				level = append(level, selected[name])
				levelNames = append(levelNames, name)
			}
		}
		if len(level) == 0 {
			return nil, &shellerr.DiscoveryError{Message: "Circular dependencies detected"}
		}
		sort.Slice(level, func(i, j int) bool { return level[i].Name() < level[j].Name() })

		for _, name := range levelNames {
			satisfied[name] = true
			remaining--
			for _, dependent := range dependents[name] {
				inDegree[dependent]--
			}
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func (c *Coordinator) runLevelSequential(ctx context.Context, level []Plugin, systems []*store.System) []*Result {
	out := make([]*Result, 0, len(level))
	for _, p := range level {
		out = append(out, c.runOne(ctx, p, systems))
	}
	return out
}

func (c *Coordinator) runLevelParallel(ctx context.Context, level []Plugin, systems []*store.System) []*Result {
	sem := make(chan struct{}, c.maxConcurrent)
	resultCh := make(chan *Result, len(level))

	var wg sync.WaitGroup
	for _, p := range level {
		wg.Add(1)
		go func(p Plugin) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			resultCh <- c.runOne(ctx, p, systems)
		}(p)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make([]*Result, 0, len(level))
	for r := range resultCh {
		out = append(out, r)
	}
	return out
}

func (c *Coordinator) runOne(ctx context.Context, p Plugin, systems []*store.System) *Result {
	start := time.Now()
	c.logger.Info("discovery plugin starting", "plugin", p.Name(), "systems", len(systems))
	r, err := p.Run(ctx, systems)
	if r == nil {
		r = &Result{}
	}
	r.Plugin = p.Name()
	r.Duration = time.Since(start)
	if err != nil {
		r.Err = err
		c.logger.Error("discovery plugin failed", "plugin", p.Name(), "error", err)
	} else {
		c.logger.Info("discovery plugin completed", "plugin", p.Name(), "checked", r.SystemsChecked, "updated", r.SystemsUpdated)
	}
	return r
}
