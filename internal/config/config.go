// Package config owns the run configuration and the capability manifest for
// secwebscan. Configuration is loaded once at startup, validated, and passed
// by reference into the dispatcher, normalizers, and classifier; nothing in
// this package mutates it after Load returns.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/secwebscan/secwebscan/internal/errors"
	"github.com/secwebscan/secwebscan/internal/logging"
	"github.com/secwebscan/secwebscan/internal/store"
)

// Default configuration values.
const (
	defaultWorkerPoolSize = 10
	defaultTaskTimeout    = 30 * time.Minute
	defaultAPIPort        = 8080
)

// Config represents the complete application configuration.
type Config struct {
	// Scan target and output settings
	Scan ScanConfig `yaml:"scan" json:"scan"`

	// Runner settings for task execution
	Runner RunnerConfig `yaml:"runner" json:"runner"`

	// Database configuration
	Database store.Config `yaml:"database" json:"database"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Scheduler configuration for recurring runs
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`

	// Capability manifest
	Capabilities []*CapabilityConfig `yaml:"capabilities" json:"capabilities"`
}

// ScanConfig holds the run-wide target descriptor and output settings.
type ScanConfig struct {
	// Target IP address; optional when a domain is set
	TargetIP string `yaml:"target_ip" json:"target_ip" validate:"omitempty,ip"`

	// Target domain; optional when an IP is set
	TargetDomain string `yaml:"target_domain" json:"target_domain" validate:"omitempty,fqdn"`

	// Target network range in CIDR notation
	TargetNetwork string `yaml:"target_network" json:"target_network" validate:"omitempty,cidr"`

	// Directory for temporary artifacts; defaults to the OS temp dir
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// Path the artifact index document is written to
	IndexPath string `yaml:"index_path" json:"index_path"`

	// Keep artifacts after the collector has persisted them
	KeepArtifacts bool `yaml:"keep_artifacts" json:"keep_artifacts"`

	// Report formats to render after collection
	ReportFormats []string `yaml:"report_formats" json:"report_formats" validate:"dive,oneof=terminal markdown"`

	// Directory rendered reports are written to
	ReportDir string `yaml:"report_dir" json:"report_dir"`
}

// RunnerConfig holds task execution settings.
type RunnerConfig struct {
	// Number of concurrent task workers
	PoolSize int `yaml:"pool_size" json:"pool_size" validate:"gt=0"`

	// Deadline applied to every individual task
	TaskTimeout time.Duration `yaml:"task_timeout" json:"task_timeout"`

	// Maximum number of retries for failed tasks
	MaxRetries int `yaml:"max_retries" json:"max_retries" validate:"gte=0"`

	// Delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`

	// Maximum tasks started per second (0 = no limit)
	RateLimit int `yaml:"rate_limit" json:"rate_limit" validate:"gte=0"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	// Enable the API server (daemon mode only)
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port" validate:"gte=0,lte=65535"`

	// Enable CORS for browser clients
	EnableCORS bool `yaml:"enable_cors" json:"enable_cors"`

	// Allowed CORS origins
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// Request timeout
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// SchedulerConfig holds recurring-run settings for daemon mode.
type SchedulerConfig struct {
	// Enable scheduled runs
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Cron expression for recurring scans
	Cron string `yaml:"cron" json:"cron"`
}

// Default returns a configuration populated with defaults. Target values and
// database credentials must be supplied by the caller.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			IndexPath:     "results/index.json",
			ReportFormats: []string{"terminal"},
			ReportDir:     "reports",
		},
		Runner: RunnerConfig{
			PoolSize:    defaultWorkerPoolSize,
			TaskTimeout: defaultTaskTimeout,
			MaxRetries:  0,
			RetryDelay:  time.Second,
			RateLimit:   0,
		},
		Database: store.DefaultConfig(),
		API: APIConfig{
			Enabled:        false,
			ListenAddr:     "127.0.0.1",
			Port:           defaultAPIPort,
			RequestTimeout: 30 * time.Second,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a configuration file without validating it. Callers that
// layer flag overrides on top use this and validate afterwards.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("Failed to read config file %s", path), err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			"Failed to parse config file", err)
	}
	return cfg, nil
}

// Validate checks the configuration for correctness. A config that declares
// no scannable target at all is rejected here, before any task is planned.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.WrapConfigError(errors.CodeValidation, "Configuration validation failed", err)
	}

	if !c.HasTarget() {
		return errors.ErrNoTarget()
	}

	seen := make(map[string]bool, len(c.Capabilities))
	for _, cc := range c.Capabilities {
		if cc.Name == "" {
			return errors.NewConfigFieldError(errors.CodeValidation,
				"Capability entry is missing a name", "capabilities", nil)
		}
		if seen[cc.Name] {
			return errors.NewConfigFieldError(errors.CodeValidation,
				"Duplicate capability entry", "capabilities", cc.Name)
		}
		seen[cc.Name] = true
	}

	if c.Scheduler.Enabled && c.Scheduler.Cron == "" {
		return errors.NewConfigFieldError(errors.CodeValidation,
			"Scheduler is enabled but no cron expression is set", "scheduler.cron", nil)
	}

	return nil
}

// HasTarget reports whether at least one scannable target is configured.
func (c *Config) HasTarget() bool {
	return c.Scan.TargetIP != "" || c.Scan.TargetDomain != ""
}

// Run builds the immutable run descriptor handed to capability planners.
func (c *Config) Run() *Run {
	caps := make(map[string]*CapabilityConfig, len(c.Capabilities))
	for _, cc := range c.Capabilities {
		caps[cc.Name] = cc
	}
	return &Run{
		IP:           c.Scan.TargetIP,
		Domain:       c.Scan.TargetDomain,
		Network:      c.Scan.TargetNetwork,
		capabilities: caps,
	}
}

// Run is the run-wide target descriptor plus the capability manifest,
// shared read-only between concurrent tasks.
type Run struct {
	IP      string
	Domain  string
	Network string

	capabilities map[string]*CapabilityConfig
}

// PrimaryTarget returns the label results are stored under: the domain when
// one is configured, the IP otherwise.
func (r *Run) PrimaryTarget() string {
	if r.Domain != "" {
		return r.Domain
	}
	return r.IP
}

// Capability returns the manifest entry for a capability, or nil when the
// manifest does not mention it.
func (r *Run) Capability(name string) *CapabilityConfig {
	return r.capabilities[name]
}

// Enabled reports whether the manifest enables the named capability.
func (r *Run) Enabled(name string) bool {
	cc := r.capabilities[name]
	return cc != nil && cc.Enabled
}
