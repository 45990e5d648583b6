// Package config loads the shared labrelay configuration file.
//
// Config file locations (priority order):
//  1. $LABRELAY_CONFIG
//  2. ./labrelay.yaml
//  3. $XDG_CONFIG_HOME/labrelay/config.yaml
//  4. ~/.config/labrelay/config.yaml
//  5. /etc/labrelay/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"
	"gopkg.in/yaml.v3"

	"labrelay/internal/instrument"
	"labrelay/internal/transport"
)

const (
	DefaultAgentListen = ":8001"
	DefaultRelayListen = ":8000"
	DefaultAgentPort   = 8001
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// WriteDefault saves DefaultConfig to path, or to DefaultConfigPath when path
// is empty. An existing file is never overwritten.
func WriteDefault(path string) (string, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if fileExists(path) {
		return path, fmt.Errorf("config %s already exists", path)
	}
	if err := DefaultConfig().Save(path); err != nil {
		return path, err
	}
	return path, nil
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}

	a := &c.Agent
	if a.Listen == "" {
		a.Listen = DefaultAgentListen
	}
	if a.Heartbeat == 0 {
		a.Heartbeat = Duration(30 * time.Second)
	}
	if a.ConnectTimeout == 0 {
		a.ConnectTimeout = Duration(10 * time.Second)
	}
	if a.Posture == "" {
		a.Posture = PostureBalanced
	}
	if a.Serial.BaudRate == 0 {
		a.Serial.BaudRate = 9600
	}
	if a.Serial.DataBits == 0 {
		a.Serial.DataBits = 8
	}
	if a.Serial.Parity == "" {
		a.Serial.Parity = "none"
	}
	if a.Serial.StopBits == "" {
		a.Serial.StopBits = "1"
	}

	r := &c.Relay
	if r.Listen == "" {
		r.Listen = DefaultRelayListen
	}
	if r.AgentPort == 0 {
		r.AgentPort = DefaultAgentPort
	}
	if r.SessionTimeout == 0 {
		r.SessionTimeout = Duration(30 * time.Minute)
	}
	if r.MonitorInterval == 0 {
		r.MonitorInterval = Duration(30 * time.Second)
	}
	if r.Timeouts.Liveness == 0 {
		r.Timeouts.Liveness = Duration(2 * time.Second)
	}
	if r.Timeouts.Discover == 0 {
		r.Timeouts.Discover = Duration(30 * time.Second)
	}
	if r.Timeouts.Control == 0 {
		r.Timeouts.Control = Duration(30 * time.Second)
	}
	if r.Timeouts.Status == 0 {
		r.Timeouts.Status = Duration(5 * time.Second)
	}
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Agent.DAQ.Selector(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Agent.Serial.Mode(); err != nil {
		errs = append(errs, err)
	}
	if c.Relay.AgentPort < 1 || c.Relay.AgentPort > 65535 {
		errs = append(errs, fmt.Errorf("relay.agent_port %d out of range", c.Relay.AgentPort))
	}
	switch c.Agent.Posture {
	case PostureCautious, PostureBalanced, PostureAggressive:
	default:
		errs = append(errs, fmt.Errorf("agent.posture %q is not cautious, balanced or aggressive", c.Agent.Posture))
	}

	return errors.Join(errs...)
}

// SerializePerAddressEnabled defaults to on
func (a AgentConfig) SerializePerAddressEnabled() bool {
	return enabled(a.SerializePerAddress, true)
}

// SerialEnabled defaults to on
func (a AgentConfig) SerialEnabled() bool {
	return enabled(a.Serial.Enabled, true)
}

// EffectiveScan returns the posture's scan profile with overrides applied
func (a AgentConfig) EffectiveScan() ScanProfile {
	base := a.Posture.GetProfile()

	if a.Scan == nil {
		return base
	}

	if a.Scan.IdentifyTimeout != nil {
		base.IdentifyTimeout = a.Scan.IdentifyTimeout.Duration()
	}
	if a.Scan.IdentifyConcurrency != nil {
		base.IdentifyConcurrency = *a.Scan.IdentifyConcurrency
	}
	if a.Scan.ProbeTimeout != nil {
		base.ProbeTimeout = a.Scan.ProbeTimeout.Duration()
	}
	if a.Scan.ProbeConcurrency != nil {
		base.ProbeConcurrency = *a.Scan.ProbeConcurrency
	}
	if a.Scan.NetworkTimeout != nil {
		base.NetworkTimeout = a.Scan.NetworkTimeout.Duration()
	}

	return base
}

// Selector resolves the configured scheme names into a per-address selector
func (d DAQConfig) Selector() (instrument.SchemeSelector, error) {
	def, err := instrument.SchemeByName(d.Scheme)
	if err != nil {
		return nil, fmt.Errorf("daq.scheme: %w", err)
	}

	overrides := make(map[string]instrument.ChannelScheme, len(d.Overrides))
	for addr, name := range d.Overrides {
		s, err := instrument.SchemeByName(name)
		if err != nil {
			return nil, fmt.Errorf("daq.overrides[%s]: %w", addr, err)
		}
		overrides[strings.ToUpper(addr)] = s
	}

	return func(address string) instrument.ChannelScheme {
		if s, ok := overrides[strings.ToUpper(address)]; ok {
			return s
		}
		return def
	}, nil
}

// Mode converts the line settings for the serial provider
func (s SerialConfig) Mode() (transport.SerialConfig, error) {
	out := transport.SerialConfig{BaudRate: s.BaudRate, DataBits: s.DataBits}

	switch strings.ToLower(s.Parity) {
	case "", "none", "n":
		out.Parity = serial.NoParity
	case "odd", "o":
		out.Parity = serial.OddParity
	case "even", "e":
		out.Parity = serial.EvenParity
	case "mark", "m":
		out.Parity = serial.MarkParity
	case "space", "s":
		out.Parity = serial.SpaceParity
	default:
		return out, fmt.Errorf("serial.parity %q unknown", s.Parity)
	}

	switch s.StopBits {
	case "", "1":
		out.StopBits = serial.OneStopBit
	case "1.5":
		out.StopBits = serial.OnePointFiveStopBits
	case "2":
		out.StopBits = serial.TwoStopBits
	default:
		return out, fmt.Errorf("serial.stop_bits %q unknown", s.StopBits)
	}

	return out, nil
}
