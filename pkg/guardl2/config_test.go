package guardl2

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	if cfg.HandshakeAttempts != 5 {
		t.Errorf("HandshakeAttempts = %d, want 5", cfg.HandshakeAttempts)
	}
	if cfg.MinRTO != 200*time.Millisecond || cfg.MaxRTO != 3*time.Second {
		t.Errorf("RTO bounds = [%v, %v], want [200ms, 3s]", cfg.MinRTO, cfg.MaxRTO)
	}
	if cfg.InitialWindow != 64 || cfg.ReceiveWindow != 512 {
		t.Errorf("windows = %d/%d, want 64/512", cfg.InitialWindow, cfg.ReceiveWindow)
	}
	if cfg.InactivityTimeout != 30*time.Second {
		t.Errorf("InactivityTimeout = %v, want 30s", cfg.InactivityTimeout)
	}
	if cfg.KarnSampling {
		t.Error("KarnSampling = true, want false")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no handshake attempts", func(c *Config) { c.HandshakeAttempts = 0 }},
		{"zero min RTO", func(c *Config) { c.MinRTO = 0 }},
		{"inverted RTO bounds", func(c *Config) { c.MaxRTO = c.MinRTO / 2 }},
		{"zero initial RTO", func(c *Config) { c.InitialRTO = 0 }},
		{"zero initial window", func(c *Config) { c.InitialWindow = 0 }},
		{"zero receive window", func(c *Config) { c.ReceiveWindow = 0 }},
		{"receive window overflows header", func(c *Config) { c.ReceiveWindow = 70000 }},
		{"zero inactivity timeout", func(c *Config) { c.InactivityTimeout = 0 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}
}

func TestNewOptionsDefaults(t *testing.T) {
	o := newOptions([]Option{WithLogger(nil)})
	if o.logger == nil {
		t.Error("logger = nil, want no-op logger")
	}
	if o.sessionID == nil {
		t.Error("sessionID = nil, want clock-derived default")
	}

	o = newOptions([]Option{WithSessionIDFunc(func() uint32 { return 42 })})
	if got := o.sessionID(); got != 42 {
		t.Errorf("sessionID() = %d, want 42", got)
	}
}
