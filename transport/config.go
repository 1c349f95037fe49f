package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/geekxflood/netsnmp/snmp"
)

// Config holds the UDP transport settings.
type Config struct {
	// Network is "udp4", "udp6" or "udp".
	Network string

	// BindAddress and BindPort select the local endpoint. Port 0 picks an
	// ephemeral port.
	BindAddress string
	BindPort    int

	// BufferSize bounds the size of a received datagram.
	BufferSize int

	// ReadTimeout is how often the receive loop wakes up to check for
	// shutdown.
	ReadTimeout time.Duration

	// WorkerPoolEnabled hands received datagrams to WorkerPoolSize workers
	// instead of processing them on the receive loop.
	WorkerPoolEnabled bool
	WorkerPoolSize    int
}

// DefaultConfig returns the defaults: an ephemeral IPv4 port, 64 KiB receive
// buffer and inline processing.
func DefaultConfig() Config {
	return Config{
		Network:        "udp4",
		BindAddress:    "",
		BindPort:       0,
		BufferSize:     65536,
		ReadTimeout:    time.Second,
		WorkerPoolSize: 4,
	}
}

// ConfigFromOptions derives the transport settings a session's options
// imply: the network from Transport and the local endpoint from
// SourceAddress and SourcePort.
func ConfigFromOptions(opts snmp.Options) Config {
	cfg := DefaultConfig()
	if opts.Transport != "" {
		cfg.Network = opts.Transport
	}
	cfg.BindAddress = opts.SourceAddress
	cfg.BindPort = opts.SourcePort
	return cfg
}

// ConfigFromMap builds a Config from a map, starting from DefaultConfig.
//
//	map[string]any{
//		"transport": map[string]any{
//			"network":      "udp4",
//			"bind_address": "0.0.0.0",
//			"bind_port":    0,
//			"buffer_size":  65536,
//			"read_timeout": 1000, // milliseconds
//		},
//		"worker_pool": map[string]any{
//			"enabled": true,
//			"size":    8,
//		},
//	}
//
// The flat keys transport_network, transport_bind_address and
// transport_bind_port are accepted as well.
func ConfigFromMap(cfg map[string]any) (Config, error) {
	config := DefaultConfig()

	if transportCfg, ok := cfg["transport"].(map[string]any); ok {
		if err := parseTransportConfig(&config, transportCfg); err != nil {
			return Config{}, fmt.Errorf("invalid transport configuration: %w", err)
		}
	}

	if poolCfg, ok := cfg["worker_pool"].(map[string]any); ok {
		if err := parseWorkerPoolConfig(&config, poolCfg); err != nil {
			return Config{}, fmt.Errorf("invalid worker pool configuration: %w", err)
		}
	}

	parseFlatConfig(&config, cfg)

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

func parseTransportConfig(config *Config, m map[string]any) error {
	if network := getStringValue(m, "network"); network != "" {
		config.Network = network
	}
	if addr := getStringValue(m, "bind_address"); addr != "" {
		config.BindAddress = addr
	}
	if port := getIntValue(m, "bind_port"); port != 0 {
		config.BindPort = port
	}
	if size := getIntValue(m, "buffer_size"); size != 0 {
		if size < 484 {
			return fmt.Errorf("buffer size must be at least 484 octets, got %d", size)
		}
		config.BufferSize = size
	}
	if ms := getIntValue(m, "read_timeout"); ms != 0 {
		config.ReadTimeout = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func parseWorkerPoolConfig(config *Config, m map[string]any) error {
	if enabled := getBoolValue(m, "enabled"); enabled != nil {
		config.WorkerPoolEnabled = *enabled
	}
	if size := getIntValue(m, "size"); size != 0 {
		if size < 1 || size > 1000 {
			return fmt.Errorf("worker pool size must be between 1 and 1000, got %d", size)
		}
		config.WorkerPoolSize = size
	}
	return nil
}

func parseFlatConfig(config *Config, m map[string]any) {
	if network := getStringValue(m, "transport_network"); network != "" {
		config.Network = network
	}
	if addr := getStringValue(m, "transport_bind_address"); addr != "" {
		config.BindAddress = addr
	}
	if port := getIntValue(m, "transport_bind_port"); port != 0 {
		config.BindPort = port
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	switch c.Network {
	case "udp", "udp4", "udp6":
	default:
		return fmt.Errorf("unsupported network %q (must be udp, udp4 or udp6)", c.Network)
	}
	if c.BindPort < 0 || c.BindPort > 65535 {
		return fmt.Errorf("bind port must be between 0 and 65535, got %d", c.BindPort)
	}
	if c.BufferSize < 484 {
		return fmt.Errorf("buffer size must be at least 484 octets, got %d", c.BufferSize)
	}
	if c.ReadTimeout <= 0 {
		return errors.New("read timeout must be positive")
	}
	if c.WorkerPoolEnabled && c.WorkerPoolSize < 1 {
		return errors.New("worker pool size must be at least 1")
	}
	return nil
}

func getStringValue(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func getIntValue(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func getBoolValue(m map[string]any, key string) *bool {
	if b, ok := m[key].(bool); ok {
		return &b
	}
	return nil
}
