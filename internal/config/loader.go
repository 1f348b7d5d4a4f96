package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. Environment references of
// the form ${VAR} are expanded before parsing; an unset variable expands to
// the empty string.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	expanded := expandEnvVars(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", absPath, err)
	}

	return cfg, nil
}

// Defaults returns a Config populated with default values. Load overlays the
// file on top of these, so omitted keys keep their defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "queryfan",
			LogLevel:     "INFO",
			MaxQueueSize: 50,
			NumWorkers:   4,
		},
		State: StateConfig{
			Path: "internal.db",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8765",
		},
		Stands: map[string]StandConf{},
	}
}

// Validate checks service-level settings. Per-stand settings are validated
// by the stand registry so that one bad stand never blocks startup.
func (c *Config) Validate() error {
	if c.Service.MaxQueueSize < 1 {
		return fmt.Errorf("service.max_queue_size must be >= 1, got %d", c.Service.MaxQueueSize)
	}
	if c.Service.NumWorkers < 1 {
		return fmt.Errorf("service.num_workers must be >= 1, got %d", c.Service.NumWorkers)
	}
	if strings.TrimSpace(c.State.Path) == "" {
		return fmt.Errorf("state.path is empty")
	}
	if c.API.Enabled && strings.TrimSpace(c.API.Listen) == "" {
		return fmt.Errorf("api.listen is empty while api.enabled is true")
	}
	return nil
}

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
