package guardl2

import (
	"sync"
	"time"
)

// RTTEstimator tracks smoothed round-trip time and derives the
// retransmission timeout using mean-deviation estimation (gains 1/8, 1/4).
type RTTEstimator struct {
	mu sync.Mutex

	srtt   time.Duration
	rttvar time.Duration
	rto    time.Duration
	seeded bool

	minRTO time.Duration
	maxRTO time.Duration
}

// NewRTTEstimator creates an estimator reporting initialRTO until the first sample.
func NewRTTEstimator(initialRTO, minRTO, maxRTO time.Duration) *RTTEstimator {
	return &RTTEstimator{
		rto:    initialRTO,
		minRTO: minRTO,
		maxRTO: maxRTO,
	}
}

// UpdateRTT folds a round-trip sample into the estimate.
func (re *RTTEstimator) UpdateRTT(sample time.Duration) {
	if sample < 0 {
		sample = 0
	}

	re.mu.Lock()
	defer re.mu.Unlock()

	if !re.seeded {
		re.srtt = sample
		re.rttvar = sample / 2
		re.seeded = true
	} else {
		diff := re.srtt - sample
		if diff < 0 {
			diff = -diff
		}
		re.rttvar = (3*re.rttvar + diff) / 4
		re.srtt = (7*re.srtt + sample) / 8
	}

	re.rto = min(max(re.srtt+4*re.rttvar, re.minRTO), re.maxRTO)
}

// RTO returns the current retransmission timeout.
func (re *RTTEstimator) RTO() time.Duration {
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.rto
}

// SRTT returns the smoothed round-trip time.
func (re *RTTEstimator) SRTT() time.Duration {
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.srtt
}

// RTTVar returns the round-trip time variance.
func (re *RTTEstimator) RTTVar() time.Duration {
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.rttvar
}
