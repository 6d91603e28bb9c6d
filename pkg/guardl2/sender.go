package guardl2

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
)

// LossEvent describes one loss response: the segments whose timers expired
// and the congestion state before and after the window collapsed.
type LossEvent struct {
	SessionID uint32
	Seqs      []uint32
	RTO       time.Duration
	Before    CongestionSnapshot
	After     CongestionSnapshot
}

// TransferStats summarizes the current or most recent transfer of a Sender.
type TransferStats struct {
	SessionID       uint32
	Bytes           uint64
	Segments        uint32
	Transmissions   uint64
	Retransmissions uint64
	Timeouts        uint64
	Cwnd            float64
	Ssthresh        uint32
	SRTT            time.Duration
	RTO             time.Duration
	Duration        time.Duration
}

// ackEvent is what the listener hands to the driving goroutine.
type ackEvent struct {
	seq        uint32
	window     uint16
	receivedAt time.Time
}

// session is the state of one transfer. Fields without their own
// synchronization belong to the goroutine running Send.
type session struct {
	id           uint32
	total        uint64
	totalPackets uint32
	started      time.Time
	finished     atomic.Int64

	queue *RetransmitQueue
	cc    *CongestionControl
	rtt   *RTTEstimator
	rwnd  atomic.Uint32

	acks     chan ackEvent
	stop     chan struct{}
	linkDown chan struct{}
	wg       sync.WaitGroup

	transmissions   atomic.Uint64
	retransmissions atomic.Uint64
	timeouts        atomic.Uint64
}

// Sender transmits payloads to one peer over a Link. Calls to Send are
// serialized; each owns the link's read side for its duration.
type Sender struct {
	link ethernet.Link
	src  common.MACAddress
	dst  common.MACAddress
	opts options
	log  *zap.Logger

	mu      sync.Mutex
	current atomic.Pointer[session]
}

// NewSender creates a sender from src to dst over link.
func NewSender(link ethernet.Link, src, dst common.MACAddress, opts ...Option) *Sender {
	o := newOptions(opts)
	return &Sender{
		link: link,
		src:  src,
		dst:  dst,
		opts: o,
		log:  o.logger.With(zap.String("peer", dst.String())),
	}
}

// Send delivers payload reliably and in order. It returns nil once the
// receiver has acknowledged END, ErrHandshakeFailed if START or END went
// unacknowledged, or the context's error if ctx ends first.
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	if err := s.opts.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	packets := TotalPackets(uint64(len(payload)))
	if packets >= math.MaxUint32 {
		return fmt.Errorf("%w: %d segments", ErrTransferTooLarge, packets)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.opts.cfg
	sess := &session{
		id:           s.opts.sessionID(),
		total:        uint64(len(payload)),
		totalPackets: uint32(packets),
		started:      time.Now(),
		queue:        NewRetransmitQueue(),
		cc:           NewCongestionControl(cfg.InitialWindow),
		rtt:          NewRTTEstimator(cfg.InitialRTO, cfg.MinRTO, cfg.MaxRTO),
		acks:         make(chan ackEvent, max(cfg.ReceiveWindow, cfg.InitialWindow)),
		stop:         make(chan struct{}),
		linkDown:     make(chan struct{}),
	}
	sess.rwnd.Store(cfg.InitialWindow)
	s.current.Store(sess)

	log := s.log.With(zap.Uint32("session", sess.id))
	log.Info("transfer starting",
		zap.Uint64("bytes", sess.total),
		zap.Uint32("segments", sess.totalPackets))

	sess.wg.Add(1)
	go s.listen(sess, log)
	defer func() {
		close(sess.stop)
		sess.wg.Wait()
		sess.queue.Clear()
		sess.finished.Store(time.Now().UnixNano())
		if s.opts.statsObserver != nil {
			s.opts.statsObserver(s.Stats())
		}
	}()

	start := &Packet{Header: Header{Type: FrameStart, SessionID: sess.id, Seq: 0, TotalSize: sess.total}}
	if err := s.handshake(ctx, sess, log, start); err != nil {
		return err
	}

	if err := s.transfer(ctx, sess, log, payload); err != nil {
		return err
	}

	end := &Packet{Header: Header{Type: FrameEnd, SessionID: sess.id, Seq: sess.totalPackets + 1, TotalSize: sess.total}}
	if err := s.handshake(ctx, sess, log, end); err != nil {
		return err
	}

	log.Info("transfer complete",
		zap.Uint64("bytes", sess.total),
		zap.Uint64("retransmissions", sess.retransmissions.Load()),
		zap.Duration("elapsed", time.Since(sess.started)))
	return nil
}

// Stats returns statistics for the current or most recent transfer.
func (s *Sender) Stats() TransferStats {
	sess := s.current.Load()
	if sess == nil {
		return TransferStats{}
	}

	snap := sess.cc.Snapshot()
	elapsed := time.Since(sess.started)
	if f := sess.finished.Load(); f != 0 {
		elapsed = time.Unix(0, f).Sub(sess.started)
	}
	return TransferStats{
		SessionID:       sess.id,
		Bytes:           sess.total,
		Segments:        sess.totalPackets,
		Transmissions:   sess.transmissions.Load(),
		Retransmissions: sess.retransmissions.Load(),
		Timeouts:        sess.timeouts.Load(),
		Cwnd:            snap.Cwnd,
		Ssthresh:        snap.Ssthresh,
		SRTT:            sess.rtt.SRTT(),
		RTO:             sess.rtt.RTO(),
		Duration:        elapsed,
	}
}

// listen owns all link reads for the session and forwards matching ACKs.
func (s *Sender) listen(sess *session, log *zap.Logger) {
	defer sess.wg.Done()

	for {
		select {
		case <-sess.stop:
			return
		default:
		}

		frame, err := s.link.ReadFrame(s.opts.cfg.PollInterval)
		if err != nil {
			if errors.Is(err, ethernet.ErrTimeout) {
				continue
			}
			if errors.Is(err, ethernet.ErrClosed) {
				close(sess.linkDown)
				return
			}
			log.Warn("link read failed", zap.Error(err))
			continue
		}

		if frame.EtherType != common.EtherTypeGuardL2 || frame.Destination != s.src {
			continue
		}
		pkt, err := DecodeFrame(frame)
		if err != nil {
			log.Debug("dropping frame", zap.Error(err))
			continue
		}
		if pkt.Type != FrameAck || pkt.SessionID != sess.id {
			continue
		}

		ev := ackEvent{seq: pkt.Seq, window: pkt.ReceiveWindow, receivedAt: time.Now()}
		select {
		case sess.acks <- ev:
		case <-sess.stop:
			return
		}
	}
}

// applyAck feeds one acknowledgment into the queue and controllers.
func (s *Sender) applyAck(sess *session, log *zap.Logger, ev ackEvent) {
	sentTime, transmissions, newly := sess.queue.Ack(ev.seq)
	if !newly {
		return
	}

	if !s.opts.cfg.KarnSampling || transmissions == 1 {
		sess.rtt.UpdateRTT(ev.receivedAt.Sub(sentTime))
	}
	sess.rwnd.Store(uint32(ev.window))

	if ev.seq >= 1 && ev.seq <= sess.totalPackets {
		sess.cc.OnAck()
	}

	log.Debug("ack",
		zap.Uint32("seq", ev.seq),
		zap.Uint16("window", ev.window),
		zap.Float64("cwnd", sess.cc.Cwnd()),
		zap.Duration("rto", sess.rtt.RTO()))
}

func (s *Sender) drainAcks(sess *session, log *zap.Logger) {
	for {
		select {
		case ev := <-sess.acks:
			s.applyAck(sess, log, ev)
		default:
			return
		}
	}
}

// write transmits a frame. Failures other than a closed link are logged
// and left to the retransmission timer.
func (s *Sender) write(sess *session, log *zap.Logger, seq uint32, frame *ethernet.Frame) error {
	sess.transmissions.Add(1)
	if err := s.link.WriteFrame(frame); err != nil {
		if errors.Is(err, ethernet.ErrClosed) {
			return err
		}
		log.Warn("link write failed", zap.Uint32("seq", seq), zap.Error(err))
	}
	return nil
}

// handshake sends a START or END frame until it is acknowledged or the
// attempt budget is spent.
func (s *Sender) handshake(ctx context.Context, sess *session, log *zap.Logger, pkt *Packet) error {
	frame, err := EncodeFrame(s.dst, s.src, pkt)
	if err != nil {
		return err
	}

	attempts := s.opts.cfg.HandshakeAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		now := time.Now()
		if attempt == 1 {
			sess.queue.Add(pkt.Seq, frame, now)
		} else {
			sess.queue.UpdateSentTime(pkt.Seq, now)
			sess.retransmissions.Add(1)
		}
		if err := s.write(sess, log, pkt.Seq, frame); err != nil {
			return fmt.Errorf("%s handshake: %w", pkt.Type, err)
		}

		rto := sess.rtt.RTO()
		acked, err := s.waitFor(ctx, sess, log, pkt.Seq, now.Add(rto))
		if err != nil {
			return fmt.Errorf("%s handshake: %w", pkt.Type, err)
		}
		if acked {
			sess.queue.Remove(pkt.Seq)
			log.Debug("handshake acknowledged",
				zap.Stringer("type", pkt.Type),
				zap.Int("attempt", attempt))
			return nil
		}

		log.Warn("handshake timeout",
			zap.Stringer("type", pkt.Type),
			zap.Int("attempt", attempt),
			zap.Duration("rto", rto))
	}

	sess.queue.Remove(pkt.Seq)
	log.Error("handshake failed",
		zap.Stringer("type", pkt.Type),
		zap.Int("attempts", attempts))
	return fmt.Errorf("%s not acknowledged after %d attempts: %w", pkt.Type, attempts, ErrHandshakeFailed)
}

// waitFor blocks until seq is acknowledged or deadline passes.
func (s *Sender) waitFor(ctx context.Context, sess *session, log *zap.Logger, seq uint32, deadline time.Time) (bool, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		if sess.queue.IsAcked(seq) {
			return true, nil
		}
		select {
		case ev := <-sess.acks:
			s.applyAck(sess, log, ev)
		case <-timer.C:
			return sess.queue.IsAcked(seq), nil
		case <-sess.linkDown:
			return false, ethernet.ErrClosed
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// transfer runs the sliding-window DATA phase.
func (s *Sender) transfer(ctx context.Context, sess *session, log *zap.Logger, payload []byte) error {
	base, next := uint32(1), uint32(1)
	last := sess.totalPackets

	for base <= last {
		window := min(sess.cc.Window(), sess.rwnd.Load())
		if window == 0 && sess.queue.InFlight() == 0 {
			// Probe a closed window so a lost window update cannot stall us.
			window = 1
		}

		for next <= last && next-base < window {
			frame, err := s.dataFrame(sess, payload, next)
			if err != nil {
				return err
			}
			sess.queue.Add(next, frame, time.Now())
			if err := s.write(sess, log, next, frame); err != nil {
				return err
			}
			next++
		}

		rto := sess.rtt.RTO()
		deadline, ok := sess.queue.NextDeadline(rto)
		if !ok {
			deadline = time.Now().Add(rto)
		}

		timer := time.NewTimer(time.Until(deadline))
		select {
		case ev := <-sess.acks:
			s.applyAck(sess, log, ev)
			s.drainAcks(sess, log)
		case <-timer.C:
		case <-sess.linkDown:
			timer.Stop()
			return ethernet.ErrClosed
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		timer.Stop()

		if err := s.retransmitExpired(sess, log); err != nil {
			return err
		}

		base = sess.queue.AdvanceBase(base)
	}
	return nil
}

// retransmitExpired runs the loss response and resends every segment
// whose timer has run out.
func (s *Sender) retransmitExpired(sess *session, log *zap.Logger) error {
	rto := sess.rtt.RTO()
	expired := sess.queue.GetExpired(rto, time.Now())
	if len(expired) == 0 {
		return nil
	}

	before := sess.cc.Snapshot()
	sess.cc.OnTimeout()
	after := sess.cc.Snapshot()
	sess.timeouts.Add(1)

	log.Debug("retransmission timeout",
		zap.Int("segments", len(expired)),
		zap.Uint32("first", expired[0]),
		zap.Duration("rto", rto),
		zap.Float64("cwnd", after.Cwnd),
		zap.Uint32("ssthresh", after.Ssthresh))

	if s.opts.lossObserver != nil {
		s.opts.lossObserver(LossEvent{
			SessionID: sess.id,
			Seqs:      expired,
			RTO:       rto,
			Before:    before,
			After:     after,
		})
	}

	for _, seq := range expired {
		frame := sess.queue.Frame(seq)
		if frame == nil {
			continue
		}
		sess.queue.UpdateSentTime(seq, time.Now())
		sess.retransmissions.Add(1)
		if err := s.write(sess, log, seq, frame); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) dataFrame(sess *session, payload []byte, seq uint32) (*ethernet.Frame, error) {
	start := uint64(seq-1) * MaxPayloadSize
	end := min(start+MaxPayloadSize, sess.total)
	pkt := &Packet{
		Header:  Header{Type: FrameData, SessionID: sess.id, Seq: seq},
		Payload: payload[start:end],
	}
	return EncodeFrame(s.dst, s.src, pkt)
}
