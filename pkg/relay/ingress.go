package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

// DefaultMaxMessageSize bounds a single relayed connection.
const DefaultMaxMessageSize = 64 << 20

// Deliverer moves one payload across the guard link.
type Deliverer interface {
	Send(ctx context.Context, payload []byte) error
}

// IngressConfig controls the TCP side of send mode.
type IngressConfig struct {
	// MaxConns bounds concurrently open producer connections. Zero means unbounded.
	MaxConns int

	// MaxMessageSize rejects connections carrying more bytes than this.
	MaxMessageSize int64

	// ReadTimeout bounds how long a producer may take to send its payload.
	// Zero disables the deadline.
	ReadTimeout time.Duration
}

// IngressStats counts connections handled by an Ingress.
type IngressStats struct {
	Accepted uint64
	Relayed  uint64
	Rejected uint64
	Failed   uint64
}

// Ingress accepts TCP connections, reads each to EOF and delivers the
// bytes across the guard link as one transfer.
type Ingress struct {
	deliver Deliverer
	cfg     IngressConfig
	log     *zap.Logger

	accepted atomic.Uint64
	relayed  atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
}

// NewIngress creates an ingress delivering through d.
func NewIngress(d Deliverer, cfg IngressConfig, log *zap.Logger) *Ingress {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingress{deliver: d, cfg: cfg, log: log}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (in *Ingress) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return in.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then waits for
// in-progress deliveries to finish. It closes ln.
func (in *Ingress) Serve(ctx context.Context, ln net.Listener) error {
	if in.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, in.cfg.MaxConns)
	}
	in.log.Info("ingress listening", zap.String("addr", ln.Addr().String()))

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		in.accepted.Add(1)

		wg.Add(1)
		go func() {
			defer wg.Done()
			in.handle(ctx, conn)
		}()
	}
}

func (in *Ingress) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := in.log.With(zap.String("remote", conn.RemoteAddr().String()))

	if in.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(in.cfg.ReadTimeout))
	}

	data, err := io.ReadAll(io.LimitReader(conn, in.cfg.MaxMessageSize+1))
	if err != nil {
		in.failed.Add(1)
		log.Warn("reading payload", zap.Error(err))
		return
	}
	if int64(len(data)) > in.cfg.MaxMessageSize {
		in.rejected.Add(1)
		log.Warn("payload exceeds limit", zap.Int64("limit", in.cfg.MaxMessageSize))
		return
	}
	if len(data) == 0 {
		log.Debug("empty connection")
		return
	}

	log.Info("relaying payload", zap.Int("bytes", len(data)))
	if err := in.deliver.Send(ctx, data); err != nil {
		in.failed.Add(1)
		log.Error("guard link transfer failed", zap.Int("bytes", len(data)), zap.Error(err))
		return
	}
	in.relayed.Add(1)
}

// Stats returns connection counters.
func (in *Ingress) Stats() IngressStats {
	return IngressStats{
		Accepted: in.accepted.Load(),
		Relayed:  in.relayed.Load(),
		Rejected: in.rejected.Load(),
		Failed:   in.failed.Load(),
	}
}
