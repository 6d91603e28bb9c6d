package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/guardl2"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Interface != "eth0" {
		t.Errorf("Interface = %q, want %q", cfg.Interface, "eth0")
	}
	if got, want := cfg.TransportConfig(), guardl2.DefaultConfig(); got != want {
		t.Errorf("TransportConfig() = %+v, want %+v", got, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
interface: enp3s0
peer_mac: "02:00:00:00:00:02"
listen_addr: 0.0.0.0:7000
dial_timeout: 2s
log:
  level: debug
transport:
  initial_rto: 50ms
  receive_window: 128
  karn_sampling: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Interface != "enp3s0" {
		t.Errorf("Interface = %q, want %q", cfg.Interface, "enp3s0")
	}
	if cfg.DialTimeout != 2*time.Second {
		t.Errorf("DialTimeout = %v, want %v", cfg.DialTimeout, 2*time.Second)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "console" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "console")
	}

	tc := cfg.TransportConfig()
	if tc.InitialRTO != 50*time.Millisecond {
		t.Errorf("InitialRTO = %v, want %v", tc.InitialRTO, 50*time.Millisecond)
	}
	if tc.ReceiveWindow != 128 {
		t.Errorf("ReceiveWindow = %d, want 128", tc.ReceiveWindow)
	}
	if !tc.KarnSampling {
		t.Error("KarnSampling = false, want true")
	}
	if tc.HandshakeAttempts != 5 {
		t.Errorf("HandshakeAttempts = %d, want default 5", tc.HandshakeAttempts)
	}

	peer, err := cfg.Peer()
	if err != nil {
		t.Fatalf("Peer() error = %v", err)
	}
	if peer.String() != "02:00:00:00:00:02" {
		t.Errorf("Peer() = %s, want 02:00:00:00:00:02", peer)
	}
}

func TestLoadUnboundedConns(t *testing.T) {
	cfg, err := Load(writeConfig(t, "max_conns: 0\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
	if got := cfg.IngressConfig().MaxConns; got != 0 {
		t.Errorf("IngressConfig().MaxConns = %d, want 0", got)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, "transport:\n  initial_rto: soon\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.PeerMAC = "aa:bb:cc:dd:ee:ff"
	cfg.Transport.MaxRTO = 10 * time.Second

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %04o, want 0600", perm)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.PeerMAC != cfg.PeerMAC {
		t.Errorf("PeerMAC = %q, want %q", got.PeerMAC, cfg.PeerMAC)
	}
	if got.Transport.MaxRTO != 10*time.Second {
		t.Errorf("MaxRTO = %v, want %v", got.Transport.MaxRTO, 10*time.Second)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad peer", func(c *Config) { c.PeerMAC = "not-a-mac" }, "peer_mac"},
		{"eui64 peer", func(c *Config) { c.PeerMAC = "00:00:00:00:fe:80:00:00" }, "peer_mac"},
		{"bad listen", func(c *Config) { c.ListenAddr = "localhost" }, "listen_addr"},
		{"unbounded conns", func(c *Config) { c.MaxConns = 0 }, ""},
		{"negative conns", func(c *Config) { c.MaxConns = -1 }, "max_conns"},
		{"no message size", func(c *Config) { c.MaxMessageSize = 0 }, "max_message_size"},
		{"no dial timeout", func(c *Config) { c.DialTimeout = 0 }, "dial_timeout"},
		{"no attempts", func(c *Config) { c.Transport.HandshakeAttempts = 0 }, "transport"},
		{"inverted rto", func(c *Config) { c.Transport.MaxRTO = time.Millisecond }, "transport"},
		{"zero window", func(c *Config) { c.Transport.ReceiveWindow = 0 }, "transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPeerUnset(t *testing.T) {
	if _, err := Default().Peer(); err == nil {
		t.Error("Peer() error = nil, want error for unset peer_mac")
	}
}
