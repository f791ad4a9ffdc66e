package config

// CapabilityConfig is one capability manifest entry. It declares whether the
// capability is enabled, how its tool is installed, which invocation level to
// use, and which target types it applies to. Entries are immutable for the
// duration of a run.
type CapabilityConfig struct {
	// Capability name; must match a registered capability
	Name string `yaml:"name" json:"name"`

	// Whether the capability runs at all
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Binary checked for on PATH before install; defaults to Name
	Tool string `yaml:"tool" json:"tool"`

	// Shell commands run in order when the tool is missing
	Install []string `yaml:"install" json:"install"`

	// Selected invocation level
	Level string `yaml:"level" json:"level"`

	// Per-level invocation settings
	Levels map[string]LevelConfig `yaml:"levels" json:"levels"`

	// Capability requires an IP target
	IPRequired bool `yaml:"ip_required" json:"ip_required"`

	// Capability requires a domain (virtual host) target
	VHostRequired bool `yaml:"vhost_required" json:"vhost_required"`

	// Report category override; classifier default applies when empty
	Category string `yaml:"category" json:"category"`

	// Free-form capability options (community strings, resolver address, ...)
	Options map[string]string `yaml:"options" json:"options"`
}

// LevelConfig holds the invocation settings for one level of one capability.
type LevelConfig struct {
	// Argument string substituted into the tool command line
	Args string `yaml:"args" json:"args"`

	// Per-protocol settings when the capability runs against an IP
	IP map[string]ProtocolConfig `yaml:"ip" json:"ip"`

	// Per-protocol settings when the capability runs against a domain
	Domain map[string]ProtocolConfig `yaml:"domain" json:"domain"`
}

// ProtocolConfig is the free-form per-protocol sub-configuration of one
// capability variant (ports, script selections, extra flags).
type ProtocolConfig struct {
	Flags      string   `yaml:"flags" json:"flags"`
	Ports      []int    `yaml:"ports" json:"ports"`
	Tuning     string   `yaml:"tuning" json:"tuning"`
	Scripts    []string `yaml:"scripts" json:"scripts"`
	ScriptArgs string   `yaml:"script_args" json:"script_args"`
}

// BinaryName returns the binary looked up on PATH for this capability.
func (c *CapabilityConfig) BinaryName() string {
	if c.Tool != "" {
		return c.Tool
	}
	return c.Name
}

// SelectedLevel returns the level config chosen by the manifest, falling
// back to "easy" when the selected level is absent.
func (c *CapabilityConfig) SelectedLevel() LevelConfig {
	if lvl, ok := c.Levels[c.Level]; ok {
		return lvl
	}
	return c.Levels["easy"]
}

// Option returns a free-form option value with a fallback default.
func (c *CapabilityConfig) Option(key, fallback string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}
