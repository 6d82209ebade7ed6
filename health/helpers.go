package health

import "time"

func newStatus(component string, state State, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status.
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewFailed creates a failed status.
func NewFailed(component, message string) Status {
	return newStatus(component, StateFailed, message)
}

// NewDegraded creates a degraded status.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// Aggregate folds sub-statuses into one: failed if any failed, degraded if
// any degraded (or unknown), healthy otherwise.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "no sub-components")
	}

	var failed, degraded bool
	for _, sub := range subStatuses {
		switch sub.Status {
		case StateFailed:
			failed = true
		case StateDegraded, StateUnknown:
			degraded = true
		}
	}

	var s Status
	switch {
	case failed:
		s = NewFailed(component, "one or more sub-components failed")
	case degraded:
		s = NewDegraded(component, "one or more sub-components are degraded")
	default:
		s = NewHealthy(component, "all sub-components healthy")
	}
	s.SubStatuses = make([]Status, len(subStatuses))
	copy(s.SubStatuses, subStatuses)
	return s
}

// FromRatio classifies a window of outcomes: unknown when empty, failed when
// more than half failed, degraded when any failed, healthy otherwise.
func FromRatio(failures, total int) State {
	switch {
	case total == 0:
		return StateUnknown
	case failures*2 > total:
		return StateFailed
	case failures > 0:
		return StateDegraded
	default:
		return StateHealthy
	}
}
