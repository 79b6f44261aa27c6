package socket

import "time"

// ReconnectPolicy decides whether and when a dropped [Channel] dials again.
//
// It is the only reconnect authority: the transport never reconnects itself.
type ReconnectPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy matches the browser client's settings: five attempts, one second apart.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Interval: time.Second, MaxAttempts: 5}
}

// Next returns the wait before the given 1-based attempt, or false once attempts are exhausted.
func (p ReconnectPolicy) Next(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > p.MaxAttempts {
		return 0, false
	}
	if p.Interval < 0 {
		return 0, true
	}
	return p.Interval, true
}
