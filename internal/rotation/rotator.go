// Package rotation distributes upstream calls across a fixed, ordered set of
// provider credentials so that no single credential exceeds its daily quota.
//
// The rotator keeps a sticky cursor: the credential it handed out last is
// handed out again until its local counter reaches the daily limit, then the
// scan continues round-robin from the next index. Counters are zeroed lazily
// by the first operation that observes a new UTC calendar day.
package rotation

import (
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weatherproxy/weatherproxy/internal/metrics"
	"github.com/weatherproxy/weatherproxy/internal/observability"
)

// DefaultDailyLimit is used when no positive limit is configured.
const DefaultDailyLimit = 900

// ResetMarkerLayout renders the reset marker the way the public status
// endpoint has always reported it ("Sat Oct 17 2026").
const ResetMarkerLayout = "Mon Jan 02 2006"

var (
	// ErrExhausted is returned by Acquire when no credential is below the daily limit.
	ErrExhausted = errors.New("all credentials have reached the daily limit")

	// ErrUnknownCredential is returned by Record for an index outside the configured set.
	ErrUnknownCredential = errors.New("unknown credential index")
)

// Credential is one provider secret together with its position in the
// configured order.
type Credential struct {
	Index int
	Key   string
}

// Number returns the 1-based credential number used in responses and logs.
func (c Credential) Number() int {
	return c.Index + 1
}

// Options configures a Rotator.
type Options struct {
	// Credentials in rotation order. Blank entries are dropped.
	Credentials []string

	// DailyLimit is the per-credential call budget per UTC day.
	DailyLimit int

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Rotator selects credentials and tracks their daily usage. It is safe for
// concurrent use. Each method is one short critical section; callers must
// not hold anything across the upstream call between Acquire and Record.
type Rotator struct {
	mu     sync.Mutex
	keys   []string
	limit  int
	usage  []int
	cursor int
	day    time.Time
	clock  func() time.Time
}

// New creates a rotator with all counters at zero and the reset marker set
// to the current UTC date.
func New(opts Options) *Rotator {
	keys := make([]string, 0, len(opts.Credentials))
	for _, key := range opts.Credentials {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		keys = append(keys, key)
	}

	limit := opts.DailyLimit
	if limit <= 0 {
		limit = DefaultDailyLimit
	}

	r := &Rotator{
		keys:  keys,
		limit: limit,
		usage: make([]int, len(keys)),
		clock: opts.Clock,
	}
	r.day = utcDay(r.now())
	return r
}

// Acquire returns a credential whose counter is below the daily limit.
//
// The credential under the cursor is preferred. When it is exhausted the
// remaining credentials are scanned in (cursor+1) mod N order and the cursor
// moves to the first eligible one. Acquire never increments usage.
func (r *Rotator) Acquire() (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureFreshLocked()

	n := len(r.keys)
	if n == 0 {
		metrics.RecordCredentialsExhausted()
		return Credential{}, ErrExhausted
	}

	if r.usage[r.cursor] < r.limit {
		return Credential{Index: r.cursor, Key: r.keys[r.cursor]}, nil
	}

	for step := 1; step < n; step++ {
		idx := (r.cursor + step) % n
		if r.usage[idx] >= r.limit {
			continue
		}

		previous := r.cursor
		r.cursor = idx
		metrics.RecordCredentialSwitch()
		if logger := observability.Logger(); logger != nil {
			logger.Info("Switched to API key",
				zap.Int("key", idx+1),
				zap.Int("previous_key", previous+1))
		}
		return Credential{Index: idx, Key: r.keys[idx]}, nil
	}

	metrics.RecordCredentialsExhausted()
	return Credential{}, ErrExhausted
}

// Record counts one successful upstream call against the credential at
// index and returns its updated count for the day.
//
// Record does not clamp at the daily limit: two concurrent callers holding
// the same credential may both record, pushing the count past the limit.
// Acquire refuses the credential from then on.
func (r *Rotator) Record(index int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureFreshLocked()

	if index < 0 || index >= len(r.keys) {
		return 0, ErrUnknownCredential
	}

	r.usage[index]++
	count := r.usage[index]

	metrics.SetCredentialCalls(index+1, count)
	if logger := observability.Logger(); logger != nil {
		logger.Debug("Key usage",
			zap.Int("key", index+1),
			zap.Int("calls", count),
			zap.Int("daily_limit", r.limit))
	}

	return count, nil
}

// Status reports per-credential usage for the current day.
func (r *Rotator) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureFreshLocked()

	usage := make([]Usage, len(r.keys))
	for i, made := range r.usage {
		usage[i] = Usage{
			Index:          i,
			CallsMade:      made,
			CallsRemaining: remaining(r.limit, made),
			PercentageUsed: percentage(r.limit, made),
		}
	}

	return Status{
		TotalKeys:  len(r.keys),
		DailyLimit: r.limit,
		Usage:      usage,
		LastReset:  r.day,
	}
}

// DailyLimit returns the configured per-credential limit.
func (r *Rotator) DailyLimit() int {
	return r.limit
}

// Len returns the number of configured credentials.
func (r *Rotator) Len() int {
	return len(r.keys)
}

// ensureFreshLocked zeroes every counter when the UTC date has moved past
// the reset marker. The cursor is left where it is.
func (r *Rotator) ensureFreshLocked() {
	today := utcDay(r.now())
	if today.Equal(r.day) {
		return
	}

	for i := range r.usage {
		r.usage[i] = 0
		metrics.SetCredentialCalls(i+1, 0)
	}
	previous := r.day
	r.day = today

	metrics.RecordDailyReset()
	if logger := observability.Logger(); logger != nil {
		logger.Info("Resetting daily usage counters",
			zap.String("previous", previous.Format(ResetMarkerLayout)),
			zap.String("current", today.Format(ResetMarkerLayout)))
	}
}

func (r *Rotator) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return time.Now()
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func remaining(limit, made int) int {
	if made >= limit {
		return 0
	}
	return limit - made
}

func percentage(limit, made int) int {
	if limit <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(made) / float64(limit)))
}
