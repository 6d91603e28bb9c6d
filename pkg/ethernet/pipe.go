package ethernet

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
)

// DefaultPipeInbox is the per-end queue depth used when PipeConfig.InboxSize is zero.
const DefaultPipeInbox = 4096

// PipeConfig shapes the simulated wire between two PipeEnds.
type PipeConfig struct {
	// LossRate is the probability in [0,1] that a written frame is lost.
	LossRate float64

	// MinDelay and MaxDelay bound the uniformly distributed one-way latency.
	// Unequal delays reorder frames.
	MinDelay time.Duration
	MaxDelay time.Duration

	// Seed makes loss and latency reproducible. Zero seeds from the clock.
	Seed int64

	// Drop sees every written frame before random loss and discards it
	// when it returns true.
	Drop func(*Frame) bool

	// Mangle may rewrite the serialized frame in flight.
	Mangle func([]byte) []byte

	// InboxSize bounds frames queued at each end; overflow is dropped.
	InboxSize int
}

// PipeStats counts what happened to frames written into one end.
type PipeStats struct {
	Written   uint64
	Lost      uint64
	Delivered uint64
	Overflow  uint64
}

type pipeWire struct {
	cfg PipeConfig

	mu  sync.Mutex
	rng *rand.Rand
}

func (w *pipeWire) lose() bool {
	if w.cfg.LossRate <= 0 {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rng.Float64() < w.cfg.LossRate
}

func (w *pipeWire) delay() time.Duration {
	span := w.cfg.MaxDelay - w.cfg.MinDelay
	if span <= 0 {
		return w.cfg.MinDelay
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.MinDelay + time.Duration(w.rng.Int63n(int64(span)+1))
}

// PipeEnd is one side of an in-memory Ethernet segment. It implements Link.
type PipeEnd struct {
	mac  common.MACAddress
	wire *pipeWire
	peer *PipeEnd

	inbox     chan []byte
	done      chan struct{}
	closeOnce sync.Once

	written   atomic.Uint64
	lost      atomic.Uint64
	delivered atomic.Uint64
	overflow  atomic.Uint64
}

// NewPipe returns two connected link ends with the given hardware addresses.
// Frames written to one end are delivered to the other regardless of their
// destination address, like a hub.
func NewPipe(aMAC, bMAC common.MACAddress, cfg PipeConfig) (*PipeEnd, *PipeEnd) {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultPipeInbox
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	wire := &pipeWire{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
	a := &PipeEnd{mac: aMAC, wire: wire, inbox: make(chan []byte, cfg.InboxSize), done: make(chan struct{})}
	b := &PipeEnd{mac: bMAC, wire: wire, inbox: make(chan []byte, cfg.InboxSize), done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// MACAddress returns the hardware address of this end.
func (p *PipeEnd) MACAddress() common.MACAddress {
	return p.mac
}

// WriteFrame sends frame to the peer end subject to the pipe's impairments.
func (p *PipeEnd) WriteFrame(frame *Frame) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	if err := frame.Validate(); err != nil {
		return err
	}

	p.written.Add(1)
	if p.wire.cfg.Drop != nil && p.wire.cfg.Drop(frame) {
		p.lost.Add(1)
		return nil
	}
	if p.wire.lose() {
		p.lost.Add(1)
		return nil
	}

	data := frame.Serialize()
	if p.wire.cfg.Mangle != nil {
		data = p.wire.cfg.Mangle(data)
	}

	if d := p.wire.delay(); d > 0 {
		time.AfterFunc(d, func() { p.deliver(data) })
	} else {
		p.deliver(data)
	}
	return nil
}

func (p *PipeEnd) deliver(data []byte) {
	if p.peer.enqueue(data) {
		p.delivered.Add(1)
	} else {
		p.overflow.Add(1)
	}
}

func (p *PipeEnd) enqueue(data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.inbox <- data:
		return true
	default:
		return false
	}
}

// Inject queues a frame at this end as if it had arrived from the wire,
// bypassing every impairment.
func (p *PipeEnd) Inject(frame *Frame) {
	p.enqueue(frame.Serialize())
}

// InjectRaw queues raw bytes at this end as if they had arrived from the wire.
func (p *PipeEnd) InjectRaw(data []byte) {
	p.enqueue(append([]byte(nil), data...))
}

// ReadFrame returns the next frame delivered to this end.
func (p *PipeEnd) ReadFrame(timeout time.Duration) (*Frame, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case data := <-p.inbox:
			frame, err := Parse(data)
			if err != nil {
				continue
			}
			return frame, nil
		case <-p.done:
			return nil, ErrClosed
		case <-expired:
			return nil, ErrTimeout
		}
	}
}

// Close closes this end. Frames in flight towards it are discarded.
func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// Stats returns counters for frames written into this end.
func (p *PipeEnd) Stats() PipeStats {
	return PipeStats{
		Written:   p.written.Load(),
		Lost:      p.lost.Load(),
		Delivered: p.delivered.Load(),
		Overflow:  p.overflow.Load(),
	}
}
