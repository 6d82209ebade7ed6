package breaker

import (
	"fmt"
	"time"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "closed":
		*s = Closed
	case "open":
		*s = Open
	case "half-open":
		*s = HalfOpen
	default:
		return fmt.Errorf("unknown breaker state %q", b)
	}
	return nil
}

// Settings are the three thresholds governing a breaker.
type Settings struct {
	FailureThreshold int           // consecutive failures that open the breaker
	CallTimeout      time.Duration // a slower call counts as a failure
	ResetTimeout     time.Duration // cooldown after the last failure before a trial
}

// DefaultSettings returns 5 failures, 10s call timeout, 60s cooldown.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		CallTimeout:      10 * time.Second,
		ResetTimeout:     60 * time.Second,
	}
}

// Validate rejects non-positive thresholds.
func (s Settings) Validate() error {
	switch {
	case s.FailureThreshold < 1:
		return errors.WrapInvalid(nil, "breaker", "Validate", "failure threshold must be at least 1")
	case s.CallTimeout <= 0:
		return errors.WrapInvalid(nil, "breaker", "Validate", "call timeout must be positive")
	case s.ResetTimeout <= 0:
		return errors.WrapInvalid(nil, "breaker", "Validate", "reset timeout must be positive")
	}
	return nil
}

// Snapshot is an immutable view of one breaker.
type Snapshot struct {
	State         State     `json:"state"`
	Failures      int       `json:"failures"`
	LastFailure   time.Time `json:"last_failure,omitempty"`
	TrialInFlight bool      `json:"trial_in_flight"`
}

// Admit decides whether a call may start at now and returns the next
// snapshot. An open breaker whose cooldown has elapsed moves to half-open and
// admits exactly one trial; further callers are rejected until it settles.
func Admit(s Snapshot, cfg Settings, now time.Time) (Snapshot, bool) {
	switch s.State {
	case Closed:
		return s, true
	case Open:
		if now.Sub(s.LastFailure) < cfg.ResetTimeout {
			return s, false
		}
		s.State = HalfOpen
		s.TrialInFlight = true
		return s, true
	case HalfOpen:
		if s.TrialInFlight {
			return s, false
		}
		s.TrialInFlight = true
		return s, true
	}
	return s, false
}

// OnSuccess closes the breaker and clears the failure count.
func OnSuccess(s Snapshot) Snapshot {
	s.State = Closed
	s.Failures = 0
	s.TrialInFlight = false
	return s
}

// OnFailure counts a failure at now. A failed trial reopens the breaker and
// restarts the cooldown.
func OnFailure(s Snapshot, cfg Settings, now time.Time) Snapshot {
	s.Failures++
	s.LastFailure = now
	s.TrialInFlight = false
	switch s.State {
	case HalfOpen:
		s.State = Open
	case Closed:
		if s.Failures >= cfg.FailureThreshold {
			s.State = Open
		}
	}
	return s
}

// OnAbandon releases an admitted call that finished without an outcome,
// such as a caller cancellation. Counters are unchanged.
func OnAbandon(s Snapshot) Snapshot {
	s.TrialInFlight = false
	return s
}

// RetryAfter is the remaining cooldown at now, zero unless open.
func RetryAfter(s Snapshot, cfg Settings, now time.Time) time.Duration {
	if s.State != Open {
		return 0
	}
	if d := cfg.ResetTimeout - now.Sub(s.LastFailure); d > 0 {
		return d
	}
	return 0
}
