package py2droid

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver"
)

// CPythonConfig holds the [cpython] section of build.toml.
type CPythonConfig struct {
	ApplyPatches  bool              `toml:"apply_patches"`
	BuildHosts    []string          `toml:"build_hosts"`
	ConfigureArgs []string          `toml:"configure_args"`
	ConfigureEnv  map[string]string `toml:"configure_env"`
	Version       string            `toml:"version"`
}

// ModuleConfig holds the [module] section of build.toml.
type ModuleConfig struct {
	Debloat         bool          `toml:"debloat"`
	DebloatPatterns []DebloatRule `toml:"debloat_patterns"`
	FixShebangs     bool          `toml:"fix_shebangs"`
	Include         []string      `toml:"include"`
	Name            string        `toml:"name"`
	Strip           bool          `toml:"strip"`
	StripArgs       []string      `toml:"strip_args"`
}

// Config is the fully validated build configuration.
type Config struct {
	CPython CPythonConfig
	Module  ModuleConfig
}

// KindSet selects which entry kinds a conditional debloat rule may remove.
type KindSet struct {
	File    bool
	Dir     bool
	Symlink bool
}

// DebloatRule is a tagged variant: a bare TOML string is an unconditional
// removal pattern; a table {pattern = "...", rm_if = [...]} removes matches
// only when their kind is in the rm_if set.
type DebloatRule struct {
	Pattern     string
	Conditional bool
	RemoveIf    KindSet
}

// UnmarshalTOML decodes either rule form.
func (r *DebloatRule) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case string:
		r.Pattern = val
		return nil
	case map[string]any:
		pattern, ok := val["pattern"].(string)
		if !ok {
			return fmt.Errorf("debloat rule table is missing a string 'pattern' field")
		}
		rawKinds, ok := val["rm_if"].([]any)
		if !ok {
			return fmt.Errorf("debloat rule %q is missing an 'rm_if' array", pattern)
		}
		r.Pattern = pattern
		r.Conditional = true
		for _, raw := range rawKinds {
			kind, ok := raw.(string)
			if !ok {
				return fmt.Errorf("debloat rule %q: rm_if entries must be strings", pattern)
			}
			switch strings.ToLower(kind) {
			case "file":
				r.RemoveIf.File = true
			case "dir":
				r.RemoveIf.Dir = true
			case "symlink":
				r.RemoveIf.Symlink = true
			default:
				return fmt.Errorf("debloat rule %q: unknown rm_if kind %q", pattern, kind)
			}
		}
		return nil
	default:
		return fmt.Errorf("debloat rule must be a pattern string or a {pattern, rm_if} table")
	}
}

// rawConfig mirrors the file layout so missing sections are detectable.
type rawConfig struct {
	CPython *CPythonConfig `toml:"cpython"`
	Module  *ModuleConfig  `toml:"module"`
}

// LoadConfig reads and validates the build configuration. Every problem it
// can detect is reported here, before any pipeline work begins.
func LoadConfig(path string) (*Config, error) {
	var raw rawConfig
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}

	if raw.CPython == nil || raw.Module == nil {
		return nil, fmt.Errorf("configuration file %s is missing the 'cpython' or 'module' section", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("configuration file %s has unknown keys: %v", path, undecoded)
	}

	cfg := &Config{CPython: *raw.CPython, Module: *raw.Module}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.CPython.Version = strings.TrimPrefix(c.CPython.Version, "v")
	if c.CPython.Version == "" {
		return fmt.Errorf("cpython.version must be set")
	}
	if _, err := semver.NewVersion(c.CPython.Version); err != nil {
		return fmt.Errorf("cpython.version %q is not a valid version: %w", c.CPython.Version, err)
	}

	if len(c.CPython.BuildHosts) == 0 {
		return fmt.Errorf("cpython.build_hosts must list at least one host triplet")
	}
	seen := make(map[string]bool, len(c.CPython.BuildHosts))
	for _, host := range c.CPython.BuildHosts {
		if host == "" {
			return fmt.Errorf("cpython.build_hosts contains an empty host triplet")
		}
		if seen[host] {
			return fmt.Errorf("cpython.build_hosts lists host %q twice", host)
		}
		seen[host] = true
	}

	if c.Module.Name == "" {
		return fmt.Errorf("module.name template must be set")
	}
	for _, rule := range c.Module.DebloatPatterns {
		if rule.Pattern == "" {
			return fmt.Errorf("module.debloat_patterns contains an empty pattern")
		}
		if rule.Conditional && !rule.RemoveIf.File && !rule.RemoveIf.Dir && !rule.RemoveIf.Symlink {
			return fmt.Errorf("debloat rule %q has an empty rm_if set", rule.Pattern)
		}
	}
	return nil
}
