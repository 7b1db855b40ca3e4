// Package config loads recall's settings from a YAML file, RECALL_
// environment variables and defaults, in that order of precedence from
// lowest to highest: defaults, file, environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RECALL_STORE_BACKEND.
const EnvPrefix = "RECALL"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

// Config is the full configuration of a recall process.
type Config struct {
	// DataDir holds the database and the device-id file.
	DataDir string `mapstructure:"data_dir"`

	// Device overrides the persisted device id.
	Device string `mapstructure:"device"`

	Store struct {
		Backend string `mapstructure:"backend"`
		// Resident bounds the streams kept in memory.
		Resident int `mapstructure:"resident"`
	} `mapstructure:"store"`

	Server struct {
		Listen  string `mapstructure:"listen"`
		Metrics bool   `mapstructure:"metrics"`
	} `mapstructure:"server"`

	// Peers are the servers "recall sync" talks to.
	Peers []Peer `mapstructure:"peers"`

	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
		Prefix   string   `mapstructure:"prefix"`
	} `mapstructure:"redis"`

	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
}

// Peer is a sync target.
type Peer struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("device", "")
	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.resident", 128)
	v.SetDefault("server.listen", "127.0.0.1:7420")
	v.SetDefault("server.metrics", true)
	v.SetDefault("redis.addrs", []string{})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.prefix", "recall:cursor")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "recall.changes")
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "recall")
	}
	return ".recall"
}

// Load reads path if non-empty, otherwise looks for recall.yaml in the
// working directory. A missing default file is not an error; a missing
// explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("recall")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendPebble, BackendMemory:
	default:
		return fmt.Errorf("invalid config: store.backend %q (want sqlite, pebble or memory)", c.Store.Backend)
	}
	if c.Store.Resident < 1 {
		return fmt.Errorf("invalid config: store.resident must be positive, got %d", c.Store.Resident)
	}
	if c.DataDir == "" && c.Store.Backend != BackendMemory {
		return errors.New("invalid config: data_dir is required")
	}
	seen := make(map[string]bool, len(c.Peers))
	for i, p := range c.Peers {
		if p.Name == "" || p.URL == "" {
			return fmt.Errorf("invalid config: peers[%d] needs name and url", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("invalid config: duplicate peer %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Peer returns the peer called name, or the first peer if name is empty.
func (c *Config) Peer(name string) (Peer, error) {
	if len(c.Peers) == 0 {
		return Peer{}, errors.New("no peers configured")
	}
	if name == "" {
		return c.Peers[0], nil
	}
	for _, p := range c.Peers {
		if p.Name == name {
			return p, nil
		}
	}
	return Peer{}, fmt.Errorf("unknown peer %q", name)
}
