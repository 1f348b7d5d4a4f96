package config

// Config represents the complete queryfan configuration.
type Config struct {
	Service ServiceConfig        `yaml:"service"`
	State   StateConfig          `yaml:"state"`
	API     APIConfig            `yaml:"api,omitempty"`
	Stands  map[string]StandConf `yaml:"stands"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name         string `yaml:"name"`
	LogLevel     string `yaml:"log_level"`
	MaxQueueSize int    `yaml:"max_queue_size"`
	NumWorkers   int    `yaml:"num_workers"`
}

// StateConfig defines where the durable query store lives.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// APIKey is a single bearer token. Empty disables auth.
	APIKey string `yaml:"api_key,omitempty"`
}

// StandConf defines one named backend connection. Vendor selects which of
// the remaining keys are required; the stand registry validates them.
type StandConf struct {
	Vendor string `yaml:"vendor"`

	// Networked relational (postgres).
	DBName   string `yaml:"dbname,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`

	// Embedded relational (sqlite).
	Path string `yaml:"path,omitempty"`

	// Document (mongo). Host is shared with the networked vendors.
	DB         string `yaml:"db,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}
