package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/clock"
)

// stampLayout is a fixed-width RFC3339 UTC format with nanosecond
// precision, so lexicographic comparison of stamps equals chronologic
// comparison. Every storage adapter can order by it natively.
const stampLayout = "2006-01-02T15:04:05.000000000Z"

// Stamp is a session write marker. Stamps issued by one StampSource are
// strictly increasing, which is what lets the live subscription tell a
// foreign update from the echo of our own write.
type Stamp string

// StampOf renders t as a Stamp.
func StampOf(t time.Time) Stamp {
	return Stamp(t.UTC().Format(stampLayout))
}

// ParseStamp parses a stamp back into a time. Empty stamps are reported as
// the zero time without error.
func ParseStamp(s Stamp) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(stampLayout, string(s))
}

// IsZero reports whether the stamp is unset.
func (s Stamp) IsZero() bool { return s == "" }

// After reports whether s is strictly newer than other. An unset stamp is
// older than any set stamp.
func (s Stamp) After(other Stamp) bool { return string(s) > string(other) }

// StampSource issues strictly monotonic stamps. If the wall clock has not
// moved past the previously issued stamp (coarse clocks, clock skew), the
// next stamp is bumped by one nanosecond instead of repeating.
type StampSource struct {
	clk clock.Clock

	mu   sync.Mutex
	last time.Time
}

// NewStampSource returns a StampSource reading time from clk.
func NewStampSource(clk clock.Clock) *StampSource {
	return &StampSource{clk: clk}
}

// NextTime returns the next strictly increasing instant.
func (s *StampSource) NextTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	return now
}

// Next returns the next strictly increasing Stamp.
func (s *StampSource) Next() Stamp {
	return StampOf(s.NextTime())
}

// Message ids are derived from the write-time instant plus a role suffix,
// so ids issued from one StampSource are collision-free and sort in write
// order.

// UserMessageID returns the id for a user-authored message written at t.
func UserMessageID(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

// AgentMessageID returns the id for an agent message written at t.
func AgentMessageID(t time.Time) string {
	return UserMessageID(t) + "-agent"
}

// ErrorMessageID returns the id for a synthetic local error message
// written at t.
func ErrorMessageID(t time.Time) string {
	return UserMessageID(t) + "-error"
}
