// Package reconnect decides whether a session should be revived after an
// unexpected disconnect.
package reconnect

import "time"

// Policy is a stateless retry decision function with a fixed delay.
// The attempt counter lives in the lifecycle manager and resets to zero on
// every successful transition into Connected.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Decision is the outcome of a single retry evaluation.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide evaluates whether a retry should happen given the disconnect cause
// and the number of attempts already made. Once attempts reaches MaxAttempts
// the session stays Disconnected until an explicit connect call.
func (p Policy) Decide(unexpected bool, attempts int) Decision {
	if !unexpected || attempts >= p.MaxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.Delay}
}
