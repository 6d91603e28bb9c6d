package guardl2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
)

// ReceiverStats counts frames and sessions seen by a Receiver.
type ReceiverStats struct {
	Frames            uint64
	Dropped           uint64
	Duplicates        uint64
	OutOfWindow       uint64
	SessionsCompleted uint64
	SessionsFailed    uint64
}

type receiverCounters struct {
	frames            atomic.Uint64
	dropped           atomic.Uint64
	duplicates        atomic.Uint64
	outOfWindow       atomic.Uint64
	sessionsCompleted atomic.Uint64
	sessionsFailed    atomic.Uint64
}

// completedSession is remembered after success so that retransmitted
// DATA and END frames from a sender that missed our final ACK can still
// be answered.
type completedSession struct {
	id           uint32
	peer         common.MACAddress
	totalPackets uint32
}

// Receiver reassembles transfers addressed to one hardware address.
// It is single-threaded: Receive must not be called concurrently.
type Receiver struct {
	link ethernet.Link
	own  common.MACAddress
	opts options
	log  *zap.Logger

	active       bool
	sessionID    uint32
	peer         common.MACAddress
	totalSize    uint64
	totalPackets uint32
	base         uint32
	endSeen      bool
	outOfOrder   map[uint32][]byte
	data         []byte

	last  *completedSession
	stats receiverCounters
}

// NewReceiver creates a receiver for frames addressed to own.
func NewReceiver(link ethernet.Link, own common.MACAddress, opts ...Option) *Receiver {
	o := newOptions(opts)
	return &Receiver{
		link:       link,
		own:        own,
		opts:       o,
		log:        o.logger.With(zap.String("own", own.String())),
		outOfOrder: make(map[uint32][]byte),
	}
}

// Receive waits for one complete transfer and returns its payload.
//
// It fails with ErrSessionTimeout when no frame arrives for the inactivity
// timeout, ErrSizeMismatch when a transfer completes with a byte count that
// differs from the one announced in START, or the context's error.
// Call it in a loop to service successive transfers.
func (r *Receiver) Receive(ctx context.Context) ([]byte, error) {
	if err := r.opts.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg := r.opts.cfg
	r.reset()

	lastActivity := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			r.abort("cancelled")
			return nil, err
		}

		idle := time.Since(lastActivity)
		if idle >= cfg.InactivityTimeout {
			r.abort("inactivity timeout")
			return nil, fmt.Errorf("no frame for %s: %w", cfg.InactivityTimeout, ErrSessionTimeout)
		}

		frame, err := r.link.ReadFrame(min(cfg.PollInterval, cfg.InactivityTimeout-idle))
		if err != nil {
			if errors.Is(err, ethernet.ErrTimeout) {
				continue
			}
			if errors.Is(err, ethernet.ErrClosed) {
				r.abort("link closed")
				return nil, err
			}
			r.log.Warn("link read failed", zap.Error(err))
			continue
		}
		lastActivity = time.Now()

		if done, data, err := r.handleFrame(frame); done {
			return data, err
		}
	}
}

// Stats returns cumulative receiver statistics.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Frames:            r.stats.frames.Load(),
		Dropped:           r.stats.dropped.Load(),
		Duplicates:        r.stats.duplicates.Load(),
		OutOfWindow:       r.stats.outOfWindow.Load(),
		SessionsCompleted: r.stats.sessionsCompleted.Load(),
		SessionsFailed:    r.stats.sessionsFailed.Load(),
	}
}

func (r *Receiver) reset() {
	r.active = false
	r.sessionID = 0
	r.peer = common.MACAddress{}
	r.totalSize = 0
	r.totalPackets = 0
	r.base = 1
	r.endSeen = false
	clear(r.outOfOrder)
	r.data = nil
}

func (r *Receiver) abort(reason string) {
	if r.active {
		r.stats.sessionsFailed.Add(1)
		r.log.Warn("session abandoned",
			zap.Uint32("session", r.sessionID),
			zap.String("reason", reason),
			zap.Uint32("base", r.base),
			zap.Uint32("segments", r.totalPackets))
	}
	r.reset()
}

// handleFrame processes one frame and reports whether the transfer finished.
func (r *Receiver) handleFrame(frame *ethernet.Frame) (bool, []byte, error) {
	r.stats.frames.Add(1)

	if frame.EtherType != common.EtherTypeGuardL2 || frame.Destination != r.own {
		r.stats.dropped.Add(1)
		return false, nil, nil
	}
	pkt, err := DecodeFrame(frame)
	if err != nil {
		r.stats.dropped.Add(1)
		r.log.Debug("dropping frame", zap.Stringer("src", frame.Source), zap.Error(err))
		return false, nil, nil
	}

	switch pkt.Type {
	case FrameStart:
		r.handleStart(frame.Source, pkt)
		return false, nil, nil
	case FrameData:
		return r.handleData(frame.Source, pkt)
	case FrameEnd:
		return r.handleEnd(frame.Source, pkt)
	default:
		r.stats.dropped.Add(1)
		return false, nil, nil
	}
}

func (r *Receiver) handleStart(src common.MACAddress, pkt *Packet) {
	if pkt.Seq != 0 {
		r.stats.dropped.Add(1)
		return
	}
	if r.active && pkt.SessionID == r.sessionID {
		// Our START ACK was lost; answer again without resetting.
		r.stats.duplicates.Add(1)
		r.sendAck(src, pkt.SessionID, 0)
		return
	}

	packets := TotalPackets(pkt.TotalSize)
	if packets >= math.MaxUint32 {
		r.stats.dropped.Add(1)
		r.log.Warn("rejecting oversized transfer",
			zap.Uint32("session", pkt.SessionID),
			zap.Uint64("bytes", pkt.TotalSize))
		return
	}

	r.abort("replaced by new session")
	r.active = true
	r.sessionID = pkt.SessionID
	r.peer = src
	r.totalSize = pkt.TotalSize
	r.totalPackets = uint32(packets)
	r.data = make([]byte, 0, min(pkt.TotalSize, uint64(r.opts.cfg.ReceiveWindow)*MaxPayloadSize))

	r.log.Info("session started",
		zap.Uint32("session", r.sessionID),
		zap.Stringer("peer", src),
		zap.Uint64("bytes", r.totalSize),
		zap.Uint32("segments", r.totalPackets))
	r.sendAck(src, pkt.SessionID, 0)
}

func (r *Receiver) handleData(src common.MACAddress, pkt *Packet) (bool, []byte, error) {
	if !r.active || pkt.SessionID != r.sessionID {
		r.lingerAck(src, pkt)
		return false, nil, nil
	}

	seq := pkt.Seq
	if seq == 0 || seq > r.totalPackets {
		r.stats.dropped.Add(1)
		return false, nil, nil
	}
	if seq < r.base {
		r.stats.duplicates.Add(1)
		r.sendAck(src, r.sessionID, seq)
		return false, nil, nil
	}
	if uint64(seq) >= uint64(r.base)+uint64(r.opts.cfg.ReceiveWindow) {
		r.stats.outOfWindow.Add(1)
		return false, nil, nil
	}

	// The advertised window reflects the buffer before this segment lands.
	r.sendAck(src, r.sessionID, seq)

	if seq == r.base {
		r.data = append(r.data, pkt.Payload...)
		r.base++
		for {
			next, ok := r.outOfOrder[r.base]
			if !ok {
				break
			}
			r.data = append(r.data, next...)
			delete(r.outOfOrder, r.base)
			r.base++
		}
	} else if _, ok := r.outOfOrder[seq]; !ok {
		r.outOfOrder[seq] = bytes.Clone(pkt.Payload)
	} else {
		r.stats.duplicates.Add(1)
	}
	return r.checkComplete()
}

func (r *Receiver) handleEnd(src common.MACAddress, pkt *Packet) (bool, []byte, error) {
	if !r.active || pkt.SessionID != r.sessionID {
		r.lingerAck(src, pkt)
		return false, nil, nil
	}
	if pkt.Seq != r.totalPackets+1 {
		r.stats.dropped.Add(1)
		return false, nil, nil
	}

	r.sendAck(src, r.sessionID, pkt.Seq)
	r.endSeen = true
	return r.checkComplete()
}

// lingerAck answers retransmissions belonging to the last completed session.
func (r *Receiver) lingerAck(src common.MACAddress, pkt *Packet) {
	last := r.last
	if last == nil || pkt.SessionID != last.id || src != last.peer || pkt.Seq == 0 || pkt.Seq > last.totalPackets+1 {
		r.stats.dropped.Add(1)
		return
	}
	r.stats.duplicates.Add(1)
	r.sendAck(src, pkt.SessionID, pkt.Seq)
}

func (r *Receiver) checkComplete() (bool, []byte, error) {
	if !r.endSeen || r.base != r.totalPackets+1 {
		return false, nil, nil
	}

	log := r.log.With(zap.Uint32("session", r.sessionID))
	if got := uint64(len(r.data)); got != r.totalSize {
		r.stats.sessionsFailed.Add(1)
		log.Error("size mismatch",
			zap.Uint64("announced", r.totalSize),
			zap.Uint64("received", got))
		err := fmt.Errorf("session %08x: announced %d bytes, received %d: %w", r.sessionID, r.totalSize, got, ErrSizeMismatch)
		r.reset()
		return true, nil, err
	}

	data := r.data
	if data == nil {
		data = []byte{}
	}
	r.last = &completedSession{id: r.sessionID, peer: r.peer, totalPackets: r.totalPackets}
	r.stats.sessionsCompleted.Add(1)
	log.Info("session complete", zap.Int("bytes", len(data)))

	r.reset()
	return true, data, nil
}

func (r *Receiver) window() uint16 {
	free := int(r.opts.cfg.ReceiveWindow) - len(r.outOfOrder)
	return uint16(max(free, 0))
}

func (r *Receiver) sendAck(dst common.MACAddress, sessionID, seq uint32) {
	ack := &Packet{Header: Header{
		Type:          FrameAck,
		SessionID:     sessionID,
		Seq:           seq,
		ReceiveWindow: r.window(),
	}}
	frame, err := EncodeFrame(dst, r.own, ack)
	if err != nil {
		r.log.Error("encoding ack", zap.Error(err))
		return
	}
	if err := r.link.WriteFrame(frame); err != nil {
		r.log.Warn("ack write failed", zap.Uint32("seq", seq), zap.Error(err))
	}
}
