package config

import (
	"time"

	"labrelay/internal/logger"
)

// Config is the complete configuration file. Both binaries read the same
// file and use their own section.
type Config struct {
	Version int           `yaml:"version"`
	Logging logger.Config `yaml:"logging"`
	Agent   AgentConfig   `yaml:"agent"`
	Relay   RelayConfig   `yaml:"relay"`
}

// AgentConfig configures the instrument agent
type AgentConfig struct {
	Listen              string        `yaml:"listen"`
	RelayURL            string        `yaml:"relay_url,omitempty"`
	Heartbeat           Duration      `yaml:"heartbeat,omitempty"`
	ConnectTimeout      Duration      `yaml:"connect_timeout,omitempty"`
	SerializePerAddress *bool         `yaml:"serialize_per_address,omitempty"`
	Posture             Posture       `yaml:"posture"`
	Scan                *ScanOverride `yaml:"scan,omitempty"`
	DAQ                 DAQConfig     `yaml:"daq"`
	Serial              SerialConfig  `yaml:"serial"`
	Network             NetworkConfig `yaml:"network"`
}

// ScanOverride allows overriding individual scan profile settings
type ScanOverride struct {
	IdentifyTimeout     *Duration `yaml:"identify_timeout,omitempty"`
	IdentifyConcurrency *int      `yaml:"identify_concurrency,omitempty"`
	ProbeTimeout        *Duration `yaml:"probe_timeout,omitempty"`
	ProbeConcurrency    *int      `yaml:"probe_concurrency,omitempty"`
	NetworkTimeout      *Duration `yaml:"network_timeout,omitempty"`
}

// DAQConfig picks the channel numbering scheme, globally and per address
type DAQConfig struct {
	Scheme    string            `yaml:"scheme"`
	Overrides map[string]string `yaml:"overrides,omitempty"`
}

// SerialConfig holds line settings and ports that enumeration misses
type SerialConfig struct {
	Enabled  *bool    `yaml:"enabled,omitempty"`
	BaudRate int      `yaml:"baud_rate"`
	DataBits int      `yaml:"data_bits"`
	Parity   string   `yaml:"parity"`
	StopBits string   `yaml:"stop_bits"`
	Static   []string `yaml:"static,omitempty"`
}

// NetworkConfig lists LAN instruments and subnets to sweep for them
type NetworkConfig struct {
	Static  []string `yaml:"static,omitempty"`
	Targets []string `yaml:"targets,omitempty"`
	Ports   string   `yaml:"ports,omitempty"`
	Nmap    *bool    `yaml:"nmap,omitempty"`
}

// RelayConfig configures the web relay
type RelayConfig struct {
	Listen          string         `yaml:"listen"`
	AgentPort       int            `yaml:"agent_port"`
	SessionTimeout  Duration       `yaml:"session_timeout,omitempty"`
	MonitorInterval Duration       `yaml:"monitor_interval,omitempty"`
	Timeouts        TimeoutsConfig `yaml:"timeouts"`
	Events          *bool          `yaml:"events,omitempty"`
}

// TimeoutsConfig bounds each class of call the relay makes to an agent
type TimeoutsConfig struct {
	Liveness Duration `yaml:"liveness,omitempty"`
	Discover Duration `yaml:"discover,omitempty"`
	Control  Duration `yaml:"control,omitempty"`
	Status   Duration `yaml:"status,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func enabled(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
