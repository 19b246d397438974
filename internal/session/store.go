package session

import "sync"

// Store holds the single authoritative in-memory Session behind a mutex.
// It exposes a narrow mutation surface: shallow patches from user answers,
// local-only message appends, and wholesale replacement on plan start/load
// or remote adoption. All scheduling (debounce, persistence) lives in the
// Engine; the Store is pure state.
type Store struct {
	mu      sync.Mutex
	current *Session
}

// NewStore returns a Store with no active session.
func NewStore() *Store {
	return &Store{current: NewSession("", "")}
}

// Snapshot returns a copy of the current session.
func (st *Store) Snapshot() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.current.Clone()
}

// SessionID returns the active session id, or "" when no plan is active.
func (st *Store) SessionID() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.current.SessionID
}

// Active reports whether a plan session is currently adopted.
func (st *Store) Active() bool {
	return st.SessionID() != ""
}

// Apply shallow-merges the patch into the current session and records the
// fresh local write marker. Non-nil patch fields replace their accumulator
// wholesale.
func (st *Store) Apply(p Patch, stamp Stamp) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if p.ProfileData != nil {
		st.current.ProfileData = copyMap(p.ProfileData)
	}
	if p.MedicalDetails != nil {
		st.current.MedicalDetails = copyMap(p.MedicalDetails)
	}
	if p.TravelArrangements != nil {
		st.current.TravelArrangements = copyMap(p.TravelArrangements)
	}
	if p.LocalLogistics != nil {
		st.current.LocalLogistics = copyMap(p.LocalLogistics)
	}
	st.current.Timestamp = stamp
}

// AppendLocal appends a message to local history without touching the
// persisted document. Synthetic error turns use this.
func (st *Store) AppendLocal(msg Message) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current.ChatHistory = append(st.current.ChatHistory, msg)
}

// Replace swaps in a whole new session (plan start, plan load, sign-out).
func (st *Store) Replace(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current = s.Clone()
}

// ReplaceIfCurrent swaps in s only when the active session still is
// sessionID, guarding against late results for a session the user already
// left. It reports whether the replacement happened.
func (st *Store) ReplaceIfCurrent(sessionID string, s *Session) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.current.SessionID != sessionID {
		return false
	}
	st.current = s.Clone()
	return true
}

// CommitStamp records that a state save for sessionID committed with the
// given stamp. It reports whether the active session still matched.
func (st *Store) CommitStamp(sessionID string, stamp Stamp) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.current.SessionID != sessionID {
		return false
	}
	st.current.Timestamp = stamp
	return true
}
