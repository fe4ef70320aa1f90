package config

import "time"

// Config represents the complete github-hook configuration.
type Config struct {
	Service      ServiceConfig               `yaml:"service"`
	Repositories map[string]RepositoryConfig `yaml:"repositories"`

	// Path is the absolute path the configuration was loaded from.
	Path string `yaml:"-"`

	registry *Registry
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Listen             string        `yaml:"listen"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"`
	MaxBodySize        string        `yaml:"max_body_size"`
	MaxConcurrentTasks int           `yaml:"max_concurrent_tasks"`
	Shell              string        `yaml:"shell"`
	PIDFile            string        `yaml:"pid_file"`
	DrainTimeout       time.Duration `yaml:"drain_timeout"`
}

// RepositoryConfig describes what to run when a repository receives a push.
type RepositoryConfig struct {
	// ID is the repository identifier used in the webhook path. Filled from the map key.
	ID string `yaml:"-"`

	// Secret is the shared HMAC secret configured on the GitHub webhook.
	Secret string `yaml:"secret"`

	// Script is the shell command line executed for accepted pushes.
	Script string `yaml:"script"`

	// Branch restricts execution to pushes on this branch (optional).
	Branch string `yaml:"branch,omitempty"`

	// Dir is the working directory for the script (optional).
	Dir string `yaml:"dir,omitempty"`

	// Serialize runs this repository's tasks one at a time.
	Serialize bool `yaml:"serialize,omitempty"`
}

// ChecksumManifest is the on-disk format of a .checksums file.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Default values
const (
	DefaultListen       = ":3000"
	DefaultMaxBodySize  = 1048576 // 1 MB
	DefaultShell        = "sh"
	DefaultDrainTimeout = 30 * time.Second
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Listen:       DefaultListen,
			LogLevel:     "info",
			LogFormat:    "json",
			Shell:        DefaultShell,
			DrainTimeout: DefaultDrainTimeout,
		},
		Repositories: make(map[string]RepositoryConfig),
	}
}

// Registry returns the immutable repository registry built at load time.
func (c *Config) Registry() *Registry {
	return c.registry
}
