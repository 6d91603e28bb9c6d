package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/guardl2"
)

// Source yields reassembled guard link payloads.
type Source interface {
	Receive(ctx context.Context) ([]byte, error)
}

// EgressConfig controls the TCP side of recv mode.
type EgressConfig struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Pipeline     Pipeline
}

// EgressStats counts payloads handled by an Egress.
type EgressStats struct {
	Received  uint64
	Forwarded uint64
	Failed    uint64
}

// Egress re-injects payloads from a guard link towards the destination
// named in their sub-header.
type Egress struct {
	src    Source
	cfg    EgressConfig
	dialer net.Dialer
	log    *zap.Logger

	received  atomic.Uint64
	forwarded atomic.Uint64
	failed    atomic.Uint64
}

// NewEgress creates an egress reading from src.
func NewEgress(src Source, cfg EgressConfig, log *zap.Logger) *Egress {
	if log == nil {
		log = zap.NewNop()
	}
	return &Egress{
		src:    src,
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.DialTimeout},
		log:    log,
	}
}

// Run forwards payloads until ctx is done or the source fails for good,
// for example because the link closed. Failed transfers and failed
// forwards are logged and skipped.
func (e *Egress) Run(ctx context.Context) error {
	for {
		data, err := e.src.Receive(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			switch {
			case errors.Is(err, guardl2.ErrSessionTimeout):
				e.log.Debug("no transfer in progress")
			case errors.Is(err, guardl2.ErrSizeMismatch):
				e.log.Warn("guard link transfer failed", zap.Error(err))
			default:
				return err
			}
			continue
		}

		e.received.Add(1)
		if err := e.Forward(ctx, data); err != nil {
			e.failed.Add(1)
			e.log.Warn("forwarding payload", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		e.forwarded.Add(1)
	}
}

// Forward decodes one relay payload and writes its body to the destination.
func (e *Egress) Forward(ctx context.Context, payload []byte) error {
	h, body, err := Decapsulate(payload, e.cfg.Pipeline)
	if err != nil {
		return err
	}

	dst := h.Destination.String()
	conn, err := e.dialer.DialContext(ctx, "tcp", dst)
	if err != nil {
		return fmt.Errorf("dial %s: %w", dst, err)
	}
	defer conn.Close()

	if e.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(e.cfg.WriteTimeout))
	}
	if _, err := conn.Write(body); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}

	e.log.Info("payload forwarded",
		zap.String("source", h.Source.String()),
		zap.String("destination", dst),
		zap.Int("bytes", len(body)))
	return nil
}

// Stats returns payload counters.
func (e *Egress) Stats() EgressStats {
	return EgressStats{
		Received:  e.received.Load(),
		Forwarded: e.forwarded.Load(),
		Failed:    e.failed.Load(),
	}
}
