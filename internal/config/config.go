package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models reqline.yml.
type Config struct {
	Solution struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"solution"`
	Organization struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"organization"`
	Checks struct {
		Enabled       []string `yaml:"enabled"`
		MaxConcurrent int      `yaml:"max_concurrent"`
	} `yaml:"checks"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from a workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with rq solution config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Solution.ID == "" {
		return fmt.Errorf("config.solution.id is required")
	}
	if c.Organization.ID == "" {
		return fmt.Errorf("config.organization.id is required")
	}
	for _, check := range c.Checks.Enabled {
		if check == "" {
			return fmt.Errorf("config.checks.enabled contains an empty check type")
		}
	}
	if c.Checks.MaxConcurrent < 0 {
		return fmt.Errorf("config.checks.max_concurrent must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has no url", i)
		}
	}
	return nil
}

// EnabledChecks returns the configured automated check types, defaulting to
// the full built-in set.
func (c *Config) EnabledChecks() []string {
	if c == nil || len(c.Checks.Enabled) == 0 {
		return []string{"grammar", "readability", "glossary"}
	}
	return c.Checks.Enabled
}

// CheckConcurrency returns the automated-check worker limit.
func (c *Config) CheckConcurrency() int {
	if c == nil || c.Checks.MaxConcurrent <= 0 {
		return 4
	}
	return c.Checks.MaxConcurrent
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "reqline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(solutionID string) string {
	return fmt.Sprintf(defaultTemplate, solutionID, solutionID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a solution.
func Default(solutionID string) *Config {
	var cfg Config
	cfg.Solution.ID = solutionID
	cfg.Organization.ID = "default-org"
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(solutionID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `solution:
  id: %s
  name: %s

organization:
  id: default-org
  name: Default Org

checks:
  enabled: [grammar, readability, glossary]
  max_concurrent: 4
`
