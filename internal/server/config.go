package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/geobroker/internal/broker"
	"github.com/shaunagostinho/geobroker/internal/logger"
)

// Config holds all geobroker configuration.
type Config struct {
	mu sync.RWMutex

	// Position sources, one per accuracy tier
	High SourceConfig `yaml:"high_accuracy" json:"highAccuracy"`
	Low  SourceConfig `yaml:"low_accuracy" json:"lowAccuracy"`

	// Arbitration thresholds and timers
	Broker BrokerConfig `yaml:"broker" json:"broker"`

	// Fix logging
	Logging logger.Config `yaml:"logging" json:"logging"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

// SourceConfig selects and configures one position source.
type SourceConfig struct {
	Type      string `yaml:"type" json:"type"`           // "nmea", "mqtt", "demo", "disabled"
	PortPath  string `yaml:"port_path" json:"portPath"`  // nmea: e.g. /dev/ttyGPS
	BaudRate  int    `yaml:"baud_rate" json:"baudRate"`  // nmea
	BrokerURL string `yaml:"broker_url" json:"brokerUrl"` // mqtt
	ClientID  string `yaml:"client_id" json:"clientId"`  // mqtt
	Topic     string `yaml:"topic" json:"topic"`         // mqtt
}

// BrokerConfig exposes the arbitration constants as configuration. The
// defaults are the numbers the arbitration algorithm has always used; no
// physical justification exists for them, so they stay overridable.
type BrokerConfig struct {
	StaleAfterMs     int64   `yaml:"stale_after_ms" json:"staleAfterMs"`
	AccuracySlackM   float64 `yaml:"accuracy_slack_m" json:"accuracySlackM"`
	RearmSeconds     int     `yaml:"rearm_seconds" json:"rearmSeconds"`
	DefaultTimeoutMs int64   `yaml:"default_timeout_ms" json:"defaultTimeoutMs"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		High: SourceConfig{
			Type:     "demo",
			PortPath: "/dev/ttyGPS",
			BaudRate: 9600,
		},
		Low: SourceConfig{
			Type:      "demo",
			BrokerURL: "tcp://localhost:1883",
			ClientID:  "geobroker-feed",
			Topic:     "geobroker/fixes",
		},
		Broker: BrokerConfig{
			StaleAfterMs:     60000,
			AccuracySlackM:   200,
			RearmSeconds:     30,
			DefaultTimeoutMs: 60000,
		},
		Logging: logger.Config{
			Enabled:    false,
			Path:       "/var/log/geobroker",
			IntervalMs: 0,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// BrokerSettings converts the yaml numbers into the broker's config.
func (c *Config) BrokerSettings() broker.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return broker.Config{
		StaleAfterMs:   c.Broker.StaleAfterMs,
		AccuracySlackM: c.Broker.AccuracySlackM,
		RearmInterval:  time.Duration(c.Broker.RearmSeconds) * time.Second,
		DefaultTimeout: time.Duration(c.Broker.DefaultTimeoutMs) * time.Millisecond,
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		// Strip surrounding quotes
		val = strings.Trim(val, `"'`)
		// Only set if not already set in real env (real env takes precedence)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: HIGH_SOURCE, HIGH_PORT, HIGH_BAUD, LOW_SOURCE, LOW_MQTT_URL,
// LOW_MQTT_TOPIC, LISTEN_ADDR, STALE_AFTER_MS, ACCURACY_SLACK_M,
// REARM_SECONDS, LOG_ENABLED, LOG_PATH, LOG_INTERVAL_MS
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HIGH_SOURCE"); v != "" {
		c.High.Type = v
	}
	if v := os.Getenv("HIGH_PORT"); v != "" {
		c.High.PortPath = v
	}
	if v := os.Getenv("HIGH_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.High.BaudRate = n
		}
	}
	if v := os.Getenv("LOW_SOURCE"); v != "" {
		c.Low.Type = v
	}
	if v := os.Getenv("LOW_MQTT_URL"); v != "" {
		c.Low.BrokerURL = v
	}
	if v := os.Getenv("LOW_MQTT_TOPIC"); v != "" {
		c.Low.Topic = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("STALE_AFTER_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Broker.StaleAfterMs = n
		}
	}
	if v := os.Getenv("ACCURACY_SLACK_M"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Broker.AccuracySlackM = n
		}
	}
	if v := os.Getenv("REARM_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Broker.RearmSeconds = n
		}
	}
	// Logging
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
	if v := os.Getenv("LOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Logging.IntervalMs = n
		}
	}
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "/etc/geobroker/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved (e.g. port paths, topics, thresholds).
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current config to a generic map
	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	// Unmarshal incoming partial update to a map
	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	// Deep merge patch into base
	deepMerge(base, patch)

	// Marshal merged result and unmarshal back into the config struct
	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
