// Package config loads the guardl2 daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/guardl2"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/relay"
)

// Config holds the guardl2 configuration.
type Config struct {
	Interface      string        `yaml:"interface"`
	PeerMAC        string        `yaml:"peer_mac"`
	ListenAddr     string        `yaml:"listen_addr"`
	MaxConns       int           `yaml:"max_conns"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	Log            LogConfig     `yaml:"log"`
	Transport      Transport     `yaml:"transport"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Transport mirrors guardl2.Config with YAML keys.
type Transport struct {
	HandshakeAttempts int           `yaml:"handshake_attempts"`
	InitialRTO        time.Duration `yaml:"initial_rto"`
	MinRTO            time.Duration `yaml:"min_rto"`
	MaxRTO            time.Duration `yaml:"max_rto"`
	InitialWindow     uint32        `yaml:"initial_window"`
	ReceiveWindow     uint32        `yaml:"receive_window"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	KarnSampling      bool          `yaml:"karn_sampling"`
}

// DefaultPath returns the default config file path: ~/.guardl2/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".guardl2", "config.yaml")
	}
	return filepath.Join(home, ".guardl2", "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	t := guardl2.DefaultConfig()
	return &Config{
		Interface:      "eth0",
		ListenAddr:     "127.0.0.1:9400",
		MaxConns:       16,
		DialTimeout:    5 * time.Second,
		MaxMessageSize: relay.DefaultMaxMessageSize,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Transport: Transport{
			HandshakeAttempts: t.HandshakeAttempts,
			InitialRTO:        t.InitialRTO,
			MinRTO:            t.MinRTO,
			MaxRTO:            t.MaxRTO,
			InitialWindow:     t.InitialWindow,
			ReceiveWindow:     t.ReceiveWindow,
			InactivityTimeout: t.InactivityTimeout,
			PollInterval:      t.PollInterval,
			KarnSampling:      t.KarnSampling,
		},
	}
}

// Load reads the configuration from the given YAML file path.
// If the file does not exist, it returns the default Config with no error.
// Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		fmt.Fprintf(os.Stderr,
			"warning: config file %s has permissions %04o, expected 0600\n",
			path, perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration as YAML with owner-only permissions.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.PeerMAC != "" {
		if _, err := common.ParseMAC(c.PeerMAC); err != nil {
			return fmt.Errorf("peer_mac: %w", err)
		}
	}
	if c.ListenAddr != "" {
		if _, err := netip.ParseAddrPort(c.ListenAddr); err != nil {
			return fmt.Errorf("listen_addr: %w", err)
		}
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns must not be negative, got %d", c.MaxConns)
	}
	if c.MaxMessageSize < 1 {
		return fmt.Errorf("max_message_size must be positive, got %d", c.MaxMessageSize)
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial_timeout must be positive")
	}
	if err := c.TransportConfig().Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	return nil
}

// Peer parses PeerMAC.
func (c *Config) Peer() (common.MACAddress, error) {
	if c.PeerMAC == "" {
		return common.MACAddress{}, errors.New("peer_mac is not set")
	}
	return common.ParseMAC(c.PeerMAC)
}

// TransportConfig converts the transport section to protocol parameters.
func (c *Config) TransportConfig() guardl2.Config {
	t := c.Transport
	return guardl2.Config{
		HandshakeAttempts: t.HandshakeAttempts,
		InitialRTO:        t.InitialRTO,
		MinRTO:            t.MinRTO,
		MaxRTO:            t.MaxRTO,
		InitialWindow:     t.InitialWindow,
		ReceiveWindow:     t.ReceiveWindow,
		InactivityTimeout: t.InactivityTimeout,
		PollInterval:      t.PollInterval,
		KarnSampling:      t.KarnSampling,
	}
}

// IngressConfig returns the send-mode listener settings.
func (c *Config) IngressConfig() relay.IngressConfig {
	return relay.IngressConfig{
		MaxConns:       c.MaxConns,
		MaxMessageSize: c.MaxMessageSize,
	}
}

// EgressConfig returns the recv-mode dialer settings.
func (c *Config) EgressConfig() relay.EgressConfig {
	return relay.EgressConfig{
		DialTimeout: c.DialTimeout,
	}
}
