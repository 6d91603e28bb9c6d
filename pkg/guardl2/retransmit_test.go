package guardl2

import (
	"slices"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
)

func TestRetransmitQueue(t *testing.T) {
	rq := NewRetransmitQueue()

	if rq.Len() != 0 {
		t.Errorf("Len() = %d, want 0", rq.Len())
	}

	now := time.Now()
	for seq := uint32(1); seq <= 3; seq++ {
		rq.Add(seq, &ethernet.Frame{}, now)
	}
	if rq.Len() != 3 || rq.InFlight() != 3 {
		t.Errorf("Len(), InFlight() = %d, %d, want 3, 3", rq.Len(), rq.InFlight())
	}

	if _, _, newly := rq.Ack(2); !newly {
		t.Error("Ack(2) newly = false, want true")
	}
	if _, _, newly := rq.Ack(2); newly {
		t.Error("second Ack(2) newly = true, want false")
	}
	if _, _, newly := rq.Ack(9); newly {
		t.Error("Ack(9) for unknown segment newly = true, want false")
	}
	if !rq.IsAcked(2) || rq.IsAcked(1) {
		t.Error("IsAcked() disagrees with acknowledgments")
	}
	if rq.InFlight() != 2 {
		t.Errorf("InFlight() = %d, want 2", rq.InFlight())
	}

	// 1 is outstanding, so the base cannot move.
	if base := rq.AdvanceBase(1); base != 1 {
		t.Errorf("AdvanceBase(1) = %d, want 1", base)
	}

	rq.Ack(1)
	if base := rq.AdvanceBase(1); base != 3 {
		t.Errorf("AdvanceBase(1) = %d, want 3", base)
	}
	if rq.Len() != 1 {
		t.Errorf("Len() after AdvanceBase() = %d, want 1", rq.Len())
	}
	if rq.Frame(1) != nil {
		t.Error("Frame(1) should be evicted")
	}
	if rq.Frame(3) == nil {
		t.Error("Frame(3) = nil, want stored frame")
	}

	rq.Remove(3)
	if rq.Len() != 0 {
		t.Errorf("Len() after Remove() = %d, want 0", rq.Len())
	}
}

func TestRetransmitQueueAckReportsTransmissions(t *testing.T) {
	rq := NewRetransmitQueue()
	first := time.Now().Add(-time.Second)
	rq.Add(1, &ethernet.Frame{}, first)

	resent := time.Now()
	rq.UpdateSentTime(1, resent)
	rq.UpdateSentTime(1, resent)

	sent, tx, newly := rq.Ack(1)
	if !newly {
		t.Fatal("Ack(1) newly = false, want true")
	}
	if tx != 3 {
		t.Errorf("transmissions = %d, want 3", tx)
	}
	if !sent.Equal(resent) {
		t.Errorf("sent time = %v, want %v", sent, resent)
	}
}

func TestRetransmitQueueExpired(t *testing.T) {
	rq := NewRetransmitQueue()
	now := time.Now()

	rq.Add(3, &ethernet.Frame{}, now.Add(-2*time.Second))
	rq.Add(1, &ethernet.Frame{}, now.Add(-2*time.Second))
	rq.Add(2, &ethernet.Frame{}, now)
	rq.Add(4, &ethernet.Frame{}, now.Add(-3*time.Second))
	rq.Ack(4)

	expired := rq.GetExpired(time.Second, now)
	if !slices.Equal(expired, []uint32{1, 3}) {
		t.Errorf("GetExpired() = %v, want [1 3]", expired)
	}

	deadline, ok := rq.NextDeadline(time.Second)
	if !ok {
		t.Fatal("NextDeadline() ok = false, want true")
	}
	if want := now.Add(-time.Second); !deadline.Equal(want) {
		t.Errorf("NextDeadline() = %v, want %v", deadline, want)
	}

	rq.Clear()
	if _, ok := rq.NextDeadline(time.Second); ok {
		t.Error("NextDeadline() on empty queue ok = true, want false")
	}
}
