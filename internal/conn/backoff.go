package conn

import "time"

// maxBackoffShift caps the doubling exponent so the shift below cannot
// overflow a Duration.
const maxBackoffShift = 30

// Backoff computes exponential reconnect intervals: the delay doubles on
// every failed attempt, capped at Ceiling, and resets to Baseline when a
// connection is established.
//
// The computation is a pure function of the attempt count so the policy is
// testable independent of any real clock.
type Backoff struct {
	Baseline time.Duration
	Ceiling  time.Duration
}

// Interval returns the delay to wait before the attempt following the given
// number of consecutive failures: min(Baseline * 2^attempts, Ceiling).
func (b Backoff) Interval(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxBackoffShift {
		return b.Ceiling
	}
	interval := b.Baseline << uint(attempts)
	if interval > b.Ceiling || interval < b.Baseline {
		return b.Ceiling
	}
	return interval
}

// retryState tracks reconnection progress for one failure episode.
//
// interval is monotonically non-decreasing across consecutive failures and
// resets to the baseline when a connection succeeds or the manager is
// re-enabled.
type retryState struct {
	attempts    int
	interval    time.Duration
	lastAttempt time.Time
}

// reset returns the retry state to the start of a failure episode.
// lastAttempt is preserved so a link lost after a long uptime retries
// immediately rather than waiting out a stale interval.
func (r *retryState) reset(b Backoff) {
	r.attempts = 0
	r.interval = b.Interval(0)
}
