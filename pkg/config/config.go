package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config describes one node. Values resolve in order: defaults, then a
// JSON config file, then TRACKMESH_* environment variables; command
// flags override all of these.
type Config struct {
	// ListenAddr is the host:port the service surface binds to.
	ListenAddr string `json:"listen_addr"`
	// AdvertiseHost is the host announced to peers during discovery.
	AdvertiseHost string `json:"advertise_host"`
	// DataDir is the content store root.
	DataDir string `json:"data_dir"`
	// MDNSEnabled turns on LAN announcement and browsing.
	MDNSEnabled bool `json:"mdns_enabled"`
	// PeerTTL evicts peers not seen for this long; zero disables
	// automatic eviction and leaves pruning to explicit calls.
	PeerTTL time.Duration `json:"peer_ttl"`
	// RequestTimeout bounds every outbound handshake and fetch.
	RequestTimeout time.Duration `json:"request_timeout"`
}

func Default() *Config {
	return &Config{
		ListenAddr:     "127.0.0.1:9001",
		AdvertiseHost:  "127.0.0.1",
		DataDir:        "./data",
		MDNSEnabled:    false,
		PeerTTL:        0,
		RequestTimeout: 5 * time.Second,
	}
}

// Load reads a JSON config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// FromEnv applies TRACKMESH_* environment overrides to cfg.
func FromEnv(cfg *Config) *Config {
	cfg.ListenAddr = getEnv("TRACKMESH_LISTEN_ADDR", cfg.ListenAddr)
	cfg.AdvertiseHost = getEnv("TRACKMESH_ADVERTISE_HOST", cfg.AdvertiseHost)
	cfg.DataDir = getEnv("TRACKMESH_DATA_DIR", cfg.DataDir)

	if v := os.Getenv("TRACKMESH_MDNS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MDNSEnabled = b
		}
	}
	if v := os.Getenv("TRACKMESH_PEER_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PeerTTL = d
		}
	}
	if v := os.Getenv("TRACKMESH_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
