package snmp

import (
	"errors"
	"fmt"
	"time"

	"github.com/geekxflood/netsnmp/config"
	"github.com/geekxflood/netsnmp/logging"
	"github.com/geekxflood/netsnmp/metrics"
)

// Defaults applied by DefaultOptions and NewSession.
const (
	DefaultTarget    = "127.0.0.1"
	DefaultCommunity = "public"
	DefaultTransport = "udp4"
	DefaultPort      = 161
	DefaultTrapPort  = 162
	DefaultRetries   = 1
	DefaultTimeout   = 5 * time.Second
)

// Options configures a Session.
//
// Zero Port, TrapPort, Timeout and Transport fields take their defaults in
// NewSession. Retries is used as given, so zero disables retransmission;
// start from DefaultOptions to get the default of one retry.
type Options struct {
	Version       Version       `json:"version" yaml:"version"`
	Transport     string        `json:"transport" yaml:"transport"`
	Port          int           `json:"port" yaml:"port"`
	TrapPort      int           `json:"trap_port" yaml:"trap_port"`
	Retries       int           `json:"retries" yaml:"retries"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	SourceAddress string        `json:"source_address" yaml:"source_address"`
	SourcePort    int           `json:"source_port" yaml:"source_port"`

	// Logger receives session diagnostics. Nil selects a component logger.
	Logger logging.Logger `json:"-" yaml:"-"`

	// Metrics records request outcomes. Nil disables instrumentation.
	Metrics *metrics.Collector `json:"-" yaml:"-"`

	// ErrorHandler receives inbound datagrams that cannot be attributed to
	// a pending request. Nil logs them at warn level.
	ErrorHandler func(error) `json:"-" yaml:"-"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Version:   Version1,
		Transport: DefaultTransport,
		Port:      DefaultPort,
		TrapPort:  DefaultTrapPort,
		Retries:   DefaultRetries,
		Timeout:   DefaultTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.Transport == "" {
		o.Transport = DefaultTransport
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.TrapPort == 0 {
		o.TrapPort = DefaultTrapPort
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.Version != Version1 {
		return fmt.Errorf("unsupported SNMP version: %s", o.Version)
	}
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", o.Port)
	}
	if o.TrapPort < 1 || o.TrapPort > 65535 {
		return fmt.Errorf("trap port must be between 1 and 65535, got %d", o.TrapPort)
	}
	if o.SourcePort < 0 || o.SourcePort > 65535 {
		return fmt.Errorf("source port must be between 0 and 65535, got %d", o.SourcePort)
	}
	if o.Retries < 0 {
		return fmt.Errorf("retries cannot be negative, got %d", o.Retries)
	}
	if o.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// OptionsFromMap builds Options from a map, starting from DefaultOptions.
//
// Keys may be nested under "snmp" or given flat with an "snmp_" prefix:
//
//	map[string]any{
//		"snmp": map[string]any{
//			"version": "v1",
//			"port":    161,
//			"retries": 0,
//			"timeout": 2000, // milliseconds
//		},
//	}
//
//	map[string]any{"snmp_port": 1161, "snmp_retries": 3}
//
// The keys are version, transport, port, trap_port, retries, timeout (ms),
// source_address and source_port. The camelCase spellings trapPort,
// sourceAddress and sourcePort are accepted too.
func OptionsFromMap(cfg map[string]any) (Options, error) {
	opts := DefaultOptions()

	if nested, ok := cfg["snmp"].(map[string]any); ok {
		if err := applyOptionMap(&opts, nested, ""); err != nil {
			return Options{}, fmt.Errorf("invalid SNMP configuration: %w", err)
		}
	}
	if err := applyOptionMap(&opts, cfg, "snmp_"); err != nil {
		return Options{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return Options{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return opts, nil
}

func applyOptionMap(opts *Options, m map[string]any, prefix string) error {
	key := func(names ...string) []string {
		out := make([]string, len(names))
		for i, n := range names {
			out[i] = prefix + n
		}
		return out
	}

	if s, ok := getStringValue(m, key("version")...); ok {
		v, err := ParseVersion(s)
		if err != nil {
			return err
		}
		opts.Version = v
	}
	if s, ok := getStringValue(m, key("transport")...); ok {
		opts.Transport = s
	}
	if n, ok := getIntValue(m, key("port")...); ok {
		opts.Port = n
	}
	if n, ok := getIntValue(m, key("trap_port", "trapPort")...); ok {
		opts.TrapPort = n
	}
	if n, ok := getIntValue(m, key("retries")...); ok {
		opts.Retries = n
	}
	if n, ok := getIntValue(m, key("timeout")...); ok {
		opts.Timeout = time.Duration(n) * time.Millisecond
	}
	if s, ok := getStringValue(m, key("source_address", "sourceAddress")...); ok {
		opts.SourceAddress = s
	}
	if n, ok := getIntValue(m, key("source_port", "sourcePort")...); ok {
		opts.SourcePort = n
	}
	return nil
}

func getStringValue(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			return s, true
		}
	}
	return "", false
}

func getIntValue(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case int:
			return v, true
		case int64:
			return int(v), true
		case float64:
			return int(v), true
		}
	}
	return 0, false
}

// ClientConfig is the agent address and session options read from a
// configuration file.
type ClientConfig struct {
	Target    string
	Community string
	Options   Options
}

// ClientConfigFromProvider reads the "snmp" section of a configuration
// validated against config.ClientSchema.
func ClientConfigFromProvider(p config.Provider) (ClientConfig, error) {
	defaults := DefaultOptions()
	cc := ClientConfig{Options: defaults}

	var err error
	if cc.Target, err = p.GetString("snmp.target", DefaultTarget); err != nil {
		return ClientConfig{}, err
	}
	if cc.Community, err = p.GetString("snmp.community", DefaultCommunity); err != nil {
		return ClientConfig{}, err
	}

	version, err := p.GetString("snmp.version", "v1")
	if err != nil {
		return ClientConfig{}, err
	}
	if cc.Options.Version, err = ParseVersion(version); err != nil {
		return ClientConfig{}, err
	}
	if cc.Options.Transport, err = p.GetString("snmp.transport", defaults.Transport); err != nil {
		return ClientConfig{}, err
	}
	if cc.Options.Port, err = p.GetInt("snmp.port", defaults.Port); err != nil {
		return ClientConfig{}, err
	}
	if cc.Options.TrapPort, err = p.GetInt("snmp.trap_port", defaults.TrapPort); err != nil {
		return ClientConfig{}, err
	}
	if cc.Options.Retries, err = p.GetInt("snmp.retries", defaults.Retries); err != nil {
		return ClientConfig{}, err
	}
	timeoutMs, err := p.GetInt("snmp.timeout", int(defaults.Timeout/time.Millisecond))
	if err != nil {
		return ClientConfig{}, err
	}
	cc.Options.Timeout = time.Duration(timeoutMs) * time.Millisecond
	if cc.Options.SourceAddress, err = p.GetString("snmp.source_address", ""); err != nil {
		return ClientConfig{}, err
	}
	if cc.Options.SourcePort, err = p.GetInt("snmp.source_port", 0); err != nil {
		return ClientConfig{}, err
	}

	if err := cc.Options.Validate(); err != nil {
		return ClientConfig{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cc, nil
}
