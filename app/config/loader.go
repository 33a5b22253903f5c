package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/IvanJelicSF/superdesk-core/app/ingest"
)

// Cache loads provider configuration files from a directory and keeps them
// in memory for the scheduler. Configurations are immutable during a run.
type Cache struct {
	providersDir string
	cache        map[string]*Config
	mu           sync.RWMutex
}

func NewCache(providersDir string) *Cache {
	return &Cache{
		providersDir: providersDir,
		cache:        make(map[string]*Config),
	}
}

// Run loads every *.yml file in the providers directory. A missing directory
// is not an error, there is simply nothing to ingest.
func (c *Cache) Run() error {
	if _, err := os.Stat(c.providersDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(c.providersDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		cfg, err := c.LoadConfig(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Provider configuration loaded",
			"provider", name, "feeding_service", cfg.FeedingService, "update_schedule", cfg.UpdateSchedule.Duration())
	}

	return nil
}

func (c *Cache) LoadConfig(name string) (*Config, error) {
	file := filepath.Join(c.providersDir, name+".yml")
	cfg, err := parseConfig(file)
	if err != nil {
		return nil, err
	}

	cfg.Name = name
	cfg.File = file

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", file, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[cfg.Name] = cfg

	return cfg, nil
}

func (c *Cache) GetConfig(name string) (*Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, ok := c.cache[name]
	if !ok {
		return nil, fmt.Errorf("provider config with name '%s' not found", name)
	}
	return cfg, nil
}

func (c *Cache) GetConfigs() map[string]*Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	configs := make(map[string]*Config, len(c.cache))
	for k, v := range c.cache {
		configs[k] = v
	}
	return configs
}

func parseConfig(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.UpdateSchedule.IsZero() {
		cfg.UpdateSchedule = Schedule{Minutes: 5}
	}
	if len(cfg.ContentTypes) == 0 {
		cfg.ContentTypes = []string{ingest.TypeText}
	}
	if cfg.Service.Timeout == 0 {
		cfg.Service.Timeout = 30
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if cfg.FeedingService == "" {
		return fmt.Errorf("feeding_service is required")
	}

	if cfg.RuleSet != nil {
		for i, rule := range cfg.RuleSet.Rules {
			if rule.Old == "" {
				return fmt.Errorf("rule at index %d must have a non-empty old value", i)
			}
		}
	}

	if cfg.RoutingScheme != nil {
		for i, rule := range cfg.RoutingScheme.Rules {
			if rule.Name == "" {
				return fmt.Errorf("routing rule at index %d must have a name", i)
			}
		}
	}

	return nil
}
