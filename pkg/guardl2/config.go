package guardl2

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Config holds the protocol tunables shared by Sender and Receiver.
type Config struct {
	// HandshakeAttempts bounds START and END transmissions.
	HandshakeAttempts int

	// InitialRTO is used until the first round-trip sample.
	InitialRTO time.Duration
	MinRTO     time.Duration
	MaxRTO     time.Duration

	// InitialWindow seeds the slow-start threshold and the assumed
	// receiver window before the first ACK.
	InitialWindow uint32

	// ReceiveWindow is the receiver's reordering capacity in segments.
	ReceiveWindow uint32

	// InactivityTimeout aborts a Receive that sees no frame for this long.
	InactivityTimeout time.Duration

	// PollInterval bounds each blocking link read so that stop requests
	// and context cancellation are observed promptly.
	PollInterval time.Duration

	// KarnSampling excludes retransmitted segments from RTT sampling.
	KarnSampling bool
}

// DefaultConfig returns the standard protocol parameters.
func DefaultConfig() Config {
	return Config{
		HandshakeAttempts: 5,
		InitialRTO:        200 * time.Millisecond,
		MinRTO:            200 * time.Millisecond,
		MaxRTO:            3 * time.Second,
		InitialWindow:     64,
		ReceiveWindow:     512,
		InactivityTimeout: 30 * time.Second,
		PollInterval:      200 * time.Millisecond,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.HandshakeAttempts < 1:
		return fmt.Errorf("handshake attempts must be positive, got %d", c.HandshakeAttempts)
	case c.MinRTO <= 0:
		return errors.New("min RTO must be positive")
	case c.MaxRTO < c.MinRTO:
		return fmt.Errorf("max RTO %s below min RTO %s", c.MaxRTO, c.MinRTO)
	case c.InitialRTO <= 0:
		return errors.New("initial RTO must be positive")
	case c.InitialWindow == 0:
		return errors.New("initial window must be positive")
	case c.ReceiveWindow == 0 || c.ReceiveWindow > math.MaxUint16:
		return fmt.Errorf("receive window must be in [1, %d], got %d", math.MaxUint16, c.ReceiveWindow)
	case c.InactivityTimeout <= 0:
		return errors.New("inactivity timeout must be positive")
	case c.PollInterval <= 0:
		return errors.New("poll interval must be positive")
	}
	return nil
}

type options struct {
	cfg           Config
	logger        *zap.Logger
	sessionID     func() uint32
	lossObserver  func(LossEvent)
	statsObserver func(TransferStats)
}

// Option configures a Sender or Receiver.
type Option func(*options)

// WithConfig replaces the protocol parameters.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSessionIDFunc overrides how a Sender picks session identifiers.
func WithSessionIDFunc(f func() uint32) Option {
	return func(o *options) { o.sessionID = f }
}

// WithLossObserver registers a callback invoked after every loss response.
// It runs on the sending goroutine and must not block.
func WithLossObserver(f func(LossEvent)) Option {
	return func(o *options) { o.lossObserver = f }
}

// WithStatsObserver registers a callback invoked with the final statistics
// of every transfer a Sender attempts, successful or not.
func WithStatsObserver(f func(TransferStats)) Option {
	return func(o *options) { o.statsObserver = f }
}

func newOptions(opts []Option) options {
	o := options{
		cfg:       DefaultConfig(),
		logger:    zap.NewNop(),
		sessionID: clockSessionID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// clockSessionID derives a session identifier from the clock.
func clockSessionID() uint32 {
	return uint32(time.Now().UnixNano())
}
