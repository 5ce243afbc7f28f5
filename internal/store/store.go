// Package store implements the in-memory system/role/endpoint/tag/property
// graph, with CRUD and filter operations and JSON persistence.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dr-natetorious/fleetshell/internal/remoteagent"
	"github.com/dr-natetorious/fleetshell/internal/shellerr"
)

// Setting is a single named configuration value with an optional
// human-readable description.
type Setting struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// Role groups an arbitrary property bag under a name, assignable to a
// System.
type Role struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// AddProperty sets a property on the role and returns it for chaining.
func (r *Role) AddProperty(key string, value any) *Role {
	if r.Properties == nil {
		r.Properties = map[string]any{}
	}
	r.Properties[key] = value
	return r
}

// GetProperty reads a role property, or def if unset.
func (r *Role) GetProperty(key string, def any) any {
	if v, ok := r.Properties[key]; ok {
		return v
	}
	return def
}

// Endpoint is a connection target: hostname, port, and live connection
// state. ConnectionStatus is empty on a new Endpoint (IsConnected treats
// that as not connected) and is reset to Disconnected on load — connections
// are never persisted or restored across a reload.
type Endpoint struct {
	Hostname         string             `json:"hostname"`
	Port             int                `json:"port"`
	ConnectionStatus remoteagent.Status `json:"connection_status"`
	LastConnected    string             `json:"last_connected,omitempty"`
	ErrorMessage     string             `json:"error_message,omitempty"`

	agent *remoteagent.Agent
}

// Connect opens a RemoteAgent for this endpoint through dispatcher.
func (e *Endpoint) Connect(dispatcher *remoteagent.Dispatcher) (*remoteagent.Agent, error) {
	e.ConnectionStatus = remoteagent.StatusConnecting
	dispatcher.Register(e.Hostname, remoteagent.StubExecutor{})
	agent := remoteagent.NewAgent(e.Hostname, dispatcher, func() {
		e.ConnectionStatus = remoteagent.StatusDisconnected
		e.agent = nil
	})
	e.ConnectionStatus = remoteagent.StatusConnected
	e.LastConnected = time.Now().UTC().Format(time.RFC3339)
	e.ErrorMessage = ""
	e.agent = agent
	return agent, nil
}

// Agent returns the endpoint's current RemoteAgent, or nil if disconnected.
func (e *Endpoint) Agent() *remoteagent.Agent { return e.agent }

// System is one managed node in the fleet: identity, endpoint, roles,
// tags, properties, and local settings.
type System struct {
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	LocalSettings map[string]*Setting `json:"local_settings,omitempty"`
	Roles         map[string]*Role    `json:"roles,omitempty"`
	Endpoint      *Endpoint           `json:"endpoint"`
	Tags          map[string]bool     `json:"tags,omitempty"`
	Properties    map[string]any      `json:"properties,omitempty"`
}

// NewSystem constructs a System with its nested maps initialized and the
// given endpoint.
func NewSystem(name string, endpoint *Endpoint) *System {
	return &System{
		Name:          name,
		LocalSettings: map[string]*Setting{},
		Roles:         map[string]*Role{},
		Endpoint:      endpoint,
		Tags:          map[string]bool{},
		Properties:    map[string]any{},
	}
}

// AddSetting adds or replaces a local setting.
func (s *System) AddSetting(key string, value any, description string) *System {
	s.LocalSettings[key] = &Setting{Key: key, Value: value, Description: description}
	return s
}

// GetSetting reads a local setting's value, or def if unset.
func (s *System) GetSetting(key string, def any) any {
	if v, ok := s.LocalSettings[key]; ok {
		return v.Value
	}
	return def
}

// RemoveSetting deletes a local setting, if present.
func (s *System) RemoveSetting(key string) *System {
	delete(s.LocalSettings, key)
	return s
}

// AddRole creates and attaches a role by name.
func (s *System) AddRole(name, description string) *Role {
	r := &Role{Name: name, Description: description, Properties: map[string]any{}}
	s.Roles[name] = r
	return r
}

// RemoveRole detaches a role, if present.
func (s *System) RemoveRole(name string) *System {
	delete(s.Roles, name)
	return s
}

// HasRole reports whether the system carries the named role.
func (s *System) HasRole(name string) bool {
	_, ok := s.Roles[name]
	return ok
}

// AddTag adds a single tag.
func (s *System) AddTag(tag string) *System {
	s.Tags[tag] = true
	return s
}

// AddTags adds every tag in tags.
func (s *System) AddTags(tags []string) *System {
	for _, t := range tags {
		s.Tags[t] = true
	}
	return s
}

// RemoveTag removes a tag, if present.
func (s *System) RemoveTag(tag string) *System {
	delete(s.Tags, tag)
	return s
}

// HasTag reports whether the system carries the given tag.
func (s *System) HasTag(tag string) bool {
	return s.Tags[tag]
}

// AddProperty sets a system-level property.
func (s *System) AddProperty(key string, value any) *System {
	s.Properties[key] = value
	return s
}

// GetProperty reads a system-level property, or def if unset.
func (s *System) GetProperty(key string, def any) any {
	if v, ok := s.Properties[key]; ok {
		return v
	}
	return def
}

// IsConnected reports whether the system's endpoint currently holds an
// active connection.
func (s *System) IsConnected() bool {
	return s.Endpoint != nil && s.Endpoint.ConnectionStatus == remoteagent.StatusConnected
}

// Connect opens a connection to the system's endpoint.
func (s *System) Connect(dispatcher *remoteagent.Dispatcher) (*remoteagent.Agent, error) {
	if s.Endpoint == nil {
		return nil, fmt.Errorf("system %q has no endpoint", s.Name)
	}
	return s.Endpoint.Connect(dispatcher)
}

// Store is the in-memory configuration graph: systems plus global
// settings, with JSON persistence.
type Store struct {
	mu             sync.RWMutex
	Systems        map[string]*System  `json:"systems"`
	GlobalSettings map[string]*Setting `json:"global_settings"`
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		Systems:        map[string]*System{},
		GlobalSettings: map[string]*Setting{},
	}
}

// AddSystem registers system, failing with *shellerr.ServerAlreadyExistsError
// if its name is already taken.
func (s *Store) AddSystem(system *System) (*System, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.Systems[system.Name]; exists {
		return nil, &shellerr.ServerAlreadyExistsError{Name: system.Name}
	}
	s.Systems[system.Name] = system
	return system, nil
}

// RemoveSystem removes a system by name, reporting whether it existed.
func (s *Store) RemoveSystem(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Systems[name]; ok {
		delete(s.Systems, name)
		return true
	}
	return false
}

// GetSystem looks up a system by name.
func (s *Store) GetSystem(name string) (*System, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sys, ok := s.Systems[name]
	return sys, ok
}

// ListSystems returns every system, ordered by name for deterministic
// output.
func (s *Store) ListSystems() []*System {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*System, 0, len(s.Systems))
	for _, sys := range s.Systems {
		out = append(out, sys)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindSystems returns every system for which predicate returns true.
func (s *Store) FindSystems(predicate func(*System) bool) []*System {
	var out []*System
	for _, sys := range s.ListSystems() {
		if predicate(sys) {
			out = append(out, sys)
		}
	}
	return out
}

// FilterByTags returns systems carrying every tag in tags.
func (s *Store) FilterByTags(tags []string) []*System {
	return s.FindSystems(func(sys *System) bool {
		for _, t := range tags {
			if !sys.HasTag(t) {
				return false
			}
		}
		return true
	})
}

// FilterByRole returns systems carrying the named role.
func (s *Store) FilterByRole(role string) []*System {
	return s.FindSystems(func(sys *System) bool { return sys.HasRole(role) })
}

// FilterConnected returns systems whose endpoint is currently connected.
func (s *Store) FilterConnected() []*System {
	return s.FindSystems((*System).IsConnected)
}

// AddGlobalSetting adds or replaces a store-wide setting.
func (s *Store) AddGlobalSetting(key string, value any, description string) *Setting {
	s.mu.Lock()
	defer s.mu.Unlock()
	setting := &Setting{Key: key, Value: value, Description: description}
	s.GlobalSettings[key] = setting
	return setting
}

// GetGlobalSetting reads a store-wide setting's value, or def if unset.
func (s *Store) GetGlobalSetting(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.GlobalSettings[key]; ok {
		return v.Value
	}
	return def
}

// RemoveGlobalSetting deletes a store-wide setting, reporting whether it
// existed.
func (s *Store) RemoveGlobalSetting(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.GlobalSettings[key]; ok {
		delete(s.GlobalSettings, key)
		return true
	}
	return false
}

// SaveJSON persists the store to path as JSON.
func (s *Store) SaveJSON(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal config store: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config store: %w", err)
	}
	return nil
}

// LoadInto replaces s's systems and global settings with the contents of
// path, for an in-place config-load against an already-constructed Store
// (as opposed to LoadJSON, which always builds a fresh one).
func (s *Store) LoadInto(path string) error {
	loaded, err := LoadJSON(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Systems = loaded.Systems
	s.GlobalSettings = loaded.GlobalSettings
	return nil
}

// LoadJSON reads a Store back from path. Every endpoint's ConnectionStatus
// is forced to Disconnected: live connections are never persisted.
func LoadJSON(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config store: %w", err)
	}
	s := New()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("unmarshal config store: %w", err)
	}
	for _, sys := range s.Systems {
		if sys.Endpoint != nil {
			sys.Endpoint.ConnectionStatus = remoteagent.StatusDisconnected
			sys.Endpoint.ErrorMessage = ""
		}
	}
	return s, nil
}
