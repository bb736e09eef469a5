// Package session decides whether an authenticated session is still usable
// based on the time elapsed since the last recorded activity.
package session

import "time"

type State string

const (
	StateActive  State = "active"
	StateWarning State = "warning"
	StateExpired State = "expired"
)

// Policy expires sessions after IdleTimeout of inactivity and reports a
// warning during the last WarningWindow before that.
type Policy struct {
	IdleTimeout   time.Duration
	WarningWindow time.Duration
}

func NewPolicy(idle, warning time.Duration) Policy {
	if warning > idle {
		warning = idle
	}
	return Policy{IdleTimeout: idle, WarningWindow: warning}
}

// Evaluate is pure: the caller supplies the elapsed inactivity. A zero
// IdleTimeout disables expiry.
func (p Policy) Evaluate(elapsed time.Duration) State {
	if p.IdleTimeout <= 0 {
		return StateActive
	}
	if elapsed >= p.IdleTimeout {
		return StateExpired
	}
	if p.WarningWindow > 0 && elapsed >= p.IdleTimeout-p.WarningWindow {
		return StateWarning
	}
	return StateActive
}

// Remaining returns how long until expiry, never negative.
func (p Policy) Remaining(elapsed time.Duration) time.Duration {
	if p.IdleTimeout <= 0 || elapsed >= p.IdleTimeout {
		return 0
	}
	return p.IdleTimeout - elapsed
}
