package guardl2

import (
	"slices"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
)

// PendingSegment is a transmitted frame awaiting acknowledgment.
type PendingSegment struct {
	Seq           uint32
	Frame         *ethernet.Frame
	SentTime      time.Time
	Transmissions int
	Acked         bool
}

// RetransmitQueue holds in-flight frames keyed by sequence number.
// Acknowledged entries stay until the window base moves past them.
type RetransmitQueue struct {
	mu      sync.Mutex
	entries map[uint32]*PendingSegment
}

// NewRetransmitQueue creates a new retransmit queue.
func NewRetransmitQueue() *RetransmitQueue {
	return &RetransmitQueue{entries: make(map[uint32]*PendingSegment)}
}

// Add records the first transmission of a frame.
func (rq *RetransmitQueue) Add(seq uint32, frame *ethernet.Frame, sentTime time.Time) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	rq.entries[seq] = &PendingSegment{
		Seq:           seq,
		Frame:         frame,
		SentTime:      sentTime,
		Transmissions: 1,
	}
}

// UpdateSentTime records a retransmission.
func (rq *RetransmitQueue) UpdateSentTime(seq uint32, sentTime time.Time) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if e, ok := rq.entries[seq]; ok {
		e.SentTime = sentTime
		e.Transmissions++
	}
}

// Ack marks seq acknowledged. It reports whether this was the first ACK
// for a known segment, along with that segment's last send time and
// transmission count.
func (rq *RetransmitQueue) Ack(seq uint32) (sentTime time.Time, transmissions int, newly bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	e, ok := rq.entries[seq]
	if !ok || e.Acked {
		return time.Time{}, 0, false
	}
	e.Acked = true
	return e.SentTime, e.Transmissions, true
}

// IsAcked reports whether seq is present and acknowledged.
func (rq *RetransmitQueue) IsAcked(seq uint32) bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	e, ok := rq.entries[seq]
	return ok && e.Acked
}

// Frame returns the frame stored for seq, or nil.
func (rq *RetransmitQueue) Frame(seq uint32) *ethernet.Frame {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if e, ok := rq.entries[seq]; ok {
		return e.Frame
	}
	return nil
}

// Remove removes a segment from the retransmit queue by sequence number.
func (rq *RetransmitQueue) Remove(seq uint32) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	delete(rq.entries, seq)
}

// AdvanceBase evicts the contiguous run of acknowledged segments starting
// at base and returns the first sequence number not yet acknowledged.
func (rq *RetransmitQueue) AdvanceBase(base uint32) uint32 {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	for {
		e, ok := rq.entries[base]
		if !ok || !e.Acked {
			return base
		}
		delete(rq.entries, base)
		base++
	}
}

// GetExpired returns, in ascending order, the unacknowledged segments sent
// at least timeout before now.
func (rq *RetransmitQueue) GetExpired(timeout time.Duration, now time.Time) []uint32 {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	var expired []uint32
	for seq, e := range rq.entries {
		if !e.Acked && !now.Before(e.SentTime.Add(timeout)) {
			expired = append(expired, seq)
		}
	}
	slices.Sort(expired)
	return expired
}

// NextDeadline returns the earliest retransmission deadline among
// unacknowledged segments.
func (rq *RetransmitQueue) NextDeadline(timeout time.Duration) (time.Time, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	var earliest time.Time
	found := false
	for _, e := range rq.entries {
		if e.Acked {
			continue
		}
		if d := e.SentTime.Add(timeout); !found || d.Before(earliest) {
			earliest = d
			found = true
		}
	}
	return earliest, found
}

// InFlight returns the number of unacknowledged segments.
func (rq *RetransmitQueue) InFlight() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	n := 0
	for _, e := range rq.entries {
		if !e.Acked {
			n++
		}
	}
	return n
}

// Len returns the number of entries in the retransmit queue.
func (rq *RetransmitQueue) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	return len(rq.entries)
}

// Clear clears the retransmit queue.
func (rq *RetransmitQueue) Clear() {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	clear(rq.entries)
}
