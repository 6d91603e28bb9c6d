package guardl2

import (
	"math"
	"sync"
)

// CongestionState represents the congestion control phase.
type CongestionState int

const (
	// SlowStart grows the window by one segment per ACK.
	SlowStart CongestionState = iota

	// CongestionAvoidance grows the window by one segment per window of ACKs.
	CongestionAvoidance
)

// String returns the string representation of the congestion state.
func (cs CongestionState) String() string {
	switch cs {
	case SlowStart:
		return "SLOW_START"
	case CongestionAvoidance:
		return "CONGESTION_AVOIDANCE"
	default:
		return "UNKNOWN"
	}
}

// CongestionSnapshot is a consistent view of the controller.
type CongestionSnapshot struct {
	Cwnd     float64
	Ssthresh uint32
	State    CongestionState
}

// CongestionControl manages the congestion window, counted in segments.
type CongestionControl struct {
	mu sync.Mutex

	cwnd     float64
	ssthresh uint32
	ackCount uint32
}

// NewCongestionControl creates a controller with cwnd 1 and the given
// initial slow-start threshold.
func NewCongestionControl(initialSsthresh uint32) *CongestionControl {
	return &CongestionControl{
		cwnd:     1,
		ssthresh: initialSsthresh,
	}
}

// Cwnd returns the congestion window in segments.
func (cc *CongestionControl) Cwnd() float64 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.cwnd
}

// Ssthresh returns the slow start threshold in segments.
func (cc *CongestionControl) Ssthresh() uint32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.ssthresh
}

// Window returns the whole number of segments the window allows.
func (cc *CongestionControl) Window() uint32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return uint32(math.Floor(cc.cwnd))
}

// State returns the current congestion control phase.
func (cc *CongestionControl) State() CongestionState {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.state()
}

func (cc *CongestionControl) state() CongestionState {
	if cc.cwnd < float64(cc.ssthresh) {
		return SlowStart
	}
	return CongestionAvoidance
}

// Snapshot returns cwnd, ssthresh and state read under one lock.
func (cc *CongestionControl) Snapshot() CongestionSnapshot {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return CongestionSnapshot{Cwnd: cc.cwnd, Ssthresh: cc.ssthresh, State: cc.state()}
}

// OnAck is called for each newly acknowledged DATA segment.
func (cc *CongestionControl) OnAck() {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if cc.state() == SlowStart {
		cc.cwnd++
		return
	}

	cc.ackCount++
	if float64(cc.ackCount) >= cc.cwnd {
		cc.cwnd++
		cc.ackCount = 0
	}
}

// OnTimeout halves the threshold and restarts slow start from one segment.
func (cc *CongestionControl) OnTimeout() {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.ssthresh = max(2, uint32(cc.cwnd/2))
	cc.cwnd = 1
	cc.ackCount = 0
}
