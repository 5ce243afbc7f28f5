// Package config layers process-environment overrides (caarlos0/env) on
// top of the shell's command-line flags (--config/--verbose), producing
// one Options value the shell host builds its components from. The
// persisted system/settings document itself is handled separately by
// internal/store's own JSON load/save.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Options is the fully-resolved startup configuration: explicit flags,
// overlaid with environment variables, with built-in defaults underneath
// both.
type Options struct {
	ConfigPath string `env:"FLEETSHELL_CONFIG"`
	Verbose    bool   `env:"FLEETSHELL_VERBOSE"`
	MaxWorkers int    `env:"FLEETSHELL_MAX_WORKERS" envDefault:"4"`
	AuditDir   string `env:"FLEETSHELL_AUDIT_DIR"`
}

// Load resolves Options from, in increasing priority: built-in defaults,
// the process environment, then the explicit flagConfigPath/flagVerbose
// values (an empty flagConfigPath or false flagVerbose never overrides a
// value the environment already supplied).
func Load(flagConfigPath string, flagVerbose bool) (*Options, error) {
	opts := &Options{}
	if err := env.Parse(opts); err != nil {
		return nil, fmt.Errorf("parse environment config: %w", err)
	}

	if flagConfigPath != "" {
		opts.ConfigPath = flagConfigPath
	}
	if flagVerbose {
		opts.Verbose = true
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = DefaultConfigPath()
	}
	if opts.AuditDir == "" {
		opts.AuditDir = filepath.Join(filepath.Dir(opts.ConfigPath), "audit")
	}
	return opts, nil
}

// DefaultConfigPath is where the config store is read from and saved to
// absent an explicit --config flag or FLEETSHELL_CONFIG override:
// ~/.fleetshell/config.json, falling back to a relative path if the home
// directory can't be resolved.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fleetshell/config.json"
	}
	return filepath.Join(home, ".fleetshell", "config.json")
}
