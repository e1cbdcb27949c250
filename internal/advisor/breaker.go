package advisor

import "time"

// breakerState is the circuit-breaker state of one backend.
type breakerState string

const (
	stateClosed   breakerState = "closed"
	stateOpen     breakerState = "open"
	stateHalfOpen breakerState = "half-open"
)

// healthRecord tracks one backend's breaker state. It is not safe for
// concurrent use on its own; the gateway serializes access.
type healthRecord struct {
	state                breakerState
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time

	failureThreshold int
	successThreshold int
	resetTimeout     time.Duration
}

func newHealthRecord(failureThreshold, successThreshold int, resetTimeout time.Duration) *healthRecord {
	return &healthRecord{
		state:            stateClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		resetTimeout:     resetTimeout,
	}
}

// eligible reports whether the backend may receive a call right now. An open
// record whose reset timeout has elapsed transitions to half-open with fresh
// counters before being declared eligible; the transition happens here, at
// eligibility-check time, not on a background timer.
func (h *healthRecord) eligible(now time.Time) bool {
	switch h.state {
	case stateClosed, stateHalfOpen:
		return true
	case stateOpen:
		if now.Sub(h.openedAt) >= h.resetTimeout {
			h.state = stateHalfOpen
			h.consecutiveFailures = 0
			h.consecutiveSuccesses = 0
			return true
		}
		return false
	}
	return false
}

// recordSuccess applies one successful call. Any success resets the failure
// counter; enough consecutive successes in half-open close the breaker.
func (h *healthRecord) recordSuccess() {
	h.consecutiveFailures = 0
	h.consecutiveSuccesses++
	if h.state == stateHalfOpen && h.consecutiveSuccesses >= h.successThreshold {
		h.state = stateClosed
		h.consecutiveSuccesses = 0
	}
}

// recordFailure applies one failed call. A failure in half-open does NOT
// immediately reopen the breaker; only accumulating failureThreshold
// consecutive failures does. This keeps a single unlucky probe from pushing
// a recovering backend back into a full cooldown.
func (h *healthRecord) recordFailure(now time.Time) {
	h.consecutiveSuccesses = 0
	h.consecutiveFailures++
	if h.consecutiveFailures >= h.failureThreshold {
		h.state = stateOpen
		h.openedAt = now
		h.consecutiveFailures = 0
	}
}
