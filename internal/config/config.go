package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
//
// Loaded from (in order of precedence): environment variables (NETTWIN_*),
// config file (YAML), defaults.
//
// # Example Config File
//
//	server:
//	  listen: :8080
//	twin:
//	  model_name: campus-lab
//	redis:
//	  url: redis://localhost:6379/0
//	database:
//	  url: postgres://localhost:5432/nettwin?sslmode=disable
//	neo4j:
//	  uri: neo4j://localhost:7687
//	agent:
//	  token_hash: $2a$10$...
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Twin     TwinConfig     `yaml:"twin"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	Agent    AgentConfig    `yaml:"agent"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Queue    QueueConfig    `yaml:"queue"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// TwinConfig names the registry instance.
type TwinConfig struct {
	ModelName string `yaml:"model_name"`
}

// RedisConfig defines the bus and cache connection.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// DatabaseConfig defines the time-series sink. An empty URL disables
// persistence; ingestion runs without the recorder.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Neo4jConfig defines the optional topology graph mirror. An empty URI
// disables it.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AgentConfig carries the bcrypt hash of the shared agent token. An empty
// hash disables authentication on the agent-facing endpoints.
type AgentConfig struct {
	TokenHash string `yaml:"token_hash"`
}

// MonitorConfig overrides the liveness monitor timing.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// QueueConfig overrides the persistence queue bounds.
type QueueConfig struct {
	Depth        int           `yaml:"depth"`
	OfferTimeout time.Duration `yaml:"offer_timeout"`
}

// Load reads the config file at path (if non-empty), applies environment
// overrides, and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NETTWIN_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("NETTWIN_MODEL_NAME"); v != "" {
		c.Twin.ModelName = v
	}
	if v := os.Getenv("NETTWIN_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("NETTWIN_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("NETTWIN_NEO4J_URI"); v != "" {
		c.Neo4j.URI = v
	}
	if v := os.Getenv("NETTWIN_NEO4J_USERNAME"); v != "" {
		c.Neo4j.Username = v
	}
	if v := os.Getenv("NETTWIN_NEO4J_PASSWORD"); v != "" {
		c.Neo4j.Password = v
	}
	if v := os.Getenv("NETTWIN_AGENT_TOKEN_HASH"); v != "" {
		c.Agent.TokenHash = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Twin.ModelName == "" {
		c.Twin.ModelName = "nettwin"
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.Monitor.Interval <= 0 {
		c.Monitor.Interval = MonitorInterval
	}
	if c.Monitor.Timeout <= 0 {
		c.Monitor.Timeout = LivenessTimeout
	}
	if c.Queue.Depth <= 0 {
		c.Queue.Depth = DefaultQueueDepth
	}
	if c.Queue.OfferTimeout <= 0 {
		c.Queue.OfferTimeout = DefaultQueueOfferTimeout
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Monitor.Interval >= c.Monitor.Timeout {
		return fmt.Errorf("monitor interval (%v) must be shorter than the liveness timeout (%v)",
			c.Monitor.Interval, c.Monitor.Timeout)
	}
	return nil
}
