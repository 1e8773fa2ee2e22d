package rotation

import "time"

// Usage is the daily accounting for one credential.
type Usage struct {
	Index          int
	CallsMade      int
	CallsRemaining int
	PercentageUsed int
}

// Number returns the 1-based credential number.
func (u Usage) Number() int {
	return u.Index + 1
}

// Status is a point-in-time view of the rotator.
type Status struct {
	TotalKeys  int
	DailyLimit int
	Usage      []Usage
	LastReset  time.Time
}

// LastResetString renders the reset marker as reported by the status endpoint.
func (s Status) LastResetString() string {
	return s.LastReset.Format(ResetMarkerLayout)
}

// Exhausted reports whether every credential is at or past the daily limit.
func (s Status) Exhausted() bool {
	for _, u := range s.Usage {
		if u.CallsMade < s.DailyLimit {
			return false
		}
	}
	return true
}
