package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/common"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/docstore"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
)

// syncState tracks what the synchronizer is doing with the remote document.
type syncState int

const (
	syncIdle syncState = iota
	syncSaving
	syncSyncing
)

func (s syncState) String() string {
	switch s {
	case syncSaving:
		return "saving"
	case syncSyncing:
		return "syncing"
	default:
		return "idle"
	}
}

// Synchronizer moves session state between the in-memory Store and the
// session document store. All writes run as merge transactions stamped from
// one monotonic source, so every committed document carries a timestamp
// strictly greater than the one before it. Reads arrive as watch snapshots
// and are adopted only when strictly newer than local state; while a write
// is in flight the latest incoming snapshot is parked and re-evaluated once
// the write commits, so a foreign update racing a save is delayed rather
// than lost.
type Synchronizer struct {
	docs   docstore.Store
	store  *Store
	stamps *StampSource
	log    logging.Logger

	mu       sync.Mutex
	state    syncState
	deferred docstore.Doc
	onRemote func(*Session)

	saveMu sync.Mutex

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// NewSynchronizer wires a synchronizer over the given document store.
func NewSynchronizer(docs docstore.Store, store *Store, stamps *StampSource, log logging.Logger) *Synchronizer {
	return &Synchronizer{docs: docs, store: store, stamps: stamps, log: log}
}

// SetOnRemote registers a callback invoked after a remote snapshot has been
// adopted into the local store. The callback receives its own copy.
func (s *Synchronizer) SetOnRemote(fn func(*Session)) {
	s.mu.Lock()
	s.onRemote = fn
	s.mu.Unlock()
}

// SaveState persists the stage and accumulator fields of snap with a
// merge-write. Chat history is never touched here. When no document exists
// yet the write bootstraps one carrying the session identity. On success
// the local store adopts the committed stamp, so the write's own watch echo
// compares as not-newer and is ignored.
func (s *Synchronizer) SaveState(ctx context.Context, snap *Session) error {
	if snap == nil || snap.SessionID == "" {
		return nil
	}
	if s.store.SessionID() != snap.SessionID {
		s.log.Debug(ctx, "state save skipped, session no longer active", "session_id", snap.SessionID)
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.beginSave()
	defer s.finishSave(ctx)

	var stamp Stamp
	err := s.docs.RunSessionTx(ctx, snap.UserID, snap.SessionID, func(tx docstore.Tx) error {
		_, exists, err := tx.Get()
		if err != nil {
			return err
		}
		stamp = s.stamps.Next()
		write := StateFields(snap)
		write[fieldTimestamp] = string(stamp)
		if !exists {
			write[fieldSessionID] = snap.SessionID
			write[fieldUserID] = snap.UserID
		}
		tx.Merge(write)
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving session state: %w", err)
	}

	s.store.CommitStamp(snap.SessionID, stamp)
	s.log.Debug(ctx, "session state saved", "session_id", snap.SessionID, "stamp", string(stamp))
	return nil
}

// CommitTurn persists a completed conversation turn: within one transaction
// it merges the backend's partial state over the current remote document
// (or an empty skeleton when none exists), appends msgs to the stored chat
// history, stamps a fresh timestamp and merge-writes the result.
//
// Base supplies the session identity and the fallback field values; it is
// not required to be the active session, which lets a plan be bootstrapped
// before adoption. When the active session matches, the committed write is
// merged over the live local state so answers captured since the snapshot
// survive. The returned session is base overlaid with the committed write.
func (s *Synchronizer) CommitTurn(ctx context.Context, base *Session, msgs []Message, statePatch docstore.Doc) (*Session, error) {
	if base == nil || base.SessionID == "" {
		return nil, common.ErrNoActiveSession
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.beginSave()
	defer s.finishSave(ctx)

	var write docstore.Doc
	err := s.docs.RunSessionTx(ctx, base.UserID, base.SessionID, func(tx docstore.Tx) error {
		cur, exists, err := tx.Get()
		if err != nil {
			return err
		}

		var history []any
		if exists {
			history, _ = cur[fieldChatHistory].([]any)
		}
		history = append(append([]any{}, history...), MessagesToDoc(msgs)...)

		write = docstore.CloneDoc(statePatch)
		if write == nil {
			write = docstore.Doc{}
		}
		write[fieldChatHistory] = history
		write[fieldTimestamp] = string(s.stamps.Next())
		if !exists {
			write[fieldSessionID] = base.SessionID
			write[fieldUserID] = base.UserID
		}
		tx.Merge(write)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("committing turn: %w", err)
	}

	if live := s.store.Snapshot(); live.SessionID == base.SessionID {
		adopted := FromDoc(docstore.MergeDocs(ToDoc(live), write))
		s.store.ReplaceIfCurrent(base.SessionID, adopted)
	}

	committed := FromDoc(docstore.MergeDocs(ToDoc(base), write))
	s.log.Debug(ctx, "turn committed", "session_id", base.SessionID,
		"messages", len(msgs), "stamp", string(committed.Timestamp))
	return committed, nil
}

// Watch subscribes to remote changes of the given session, replacing any
// previous subscription. Snapshots are funneled through the strictly-newer
// adoption rule; a nil snapshot (remote deletion) is logged and skipped.
func (s *Synchronizer) Watch(ctx context.Context, userID, sessionID string) error {
	s.StopWatch()

	wctx, cancel := context.WithCancel(ctx)
	w, err := s.docs.WatchSession(wctx, userID, sessionID)
	if err != nil {
		cancel()
		return fmt.Errorf("watching session: %w", err)
	}

	done := make(chan struct{})
	s.watchMu.Lock()
	s.watchCancel = cancel
	s.watchDone = done
	s.watchMu.Unlock()

	go func() {
		defer close(done)
		defer w.Close()
		for doc := range w.Updates() {
			if doc == nil {
				s.log.Debug(wctx, "watched session absent or deleted", "session_id", sessionID)
				continue
			}
			s.applySnapshot(wctx, doc)
		}
	}()
	return nil
}

// StopWatch cancels the active subscription, if any, and waits for its
// delivery goroutine to drain.
func (s *Synchronizer) StopWatch() {
	s.watchMu.Lock()
	cancel := s.watchCancel
	done := s.watchDone
	s.watchCancel = nil
	s.watchDone = nil
	s.watchMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Synchronizer) beginSave() {
	s.mu.Lock()
	s.state = syncSaving
	s.mu.Unlock()
}

// finishSave returns the synchronizer to idle and re-evaluates the latest
// snapshot parked while the save was in flight.
func (s *Synchronizer) finishSave(ctx context.Context) {
	s.mu.Lock()
	s.state = syncIdle
	parked := s.deferred
	s.deferred = nil
	s.mu.Unlock()

	if parked != nil {
		s.applySnapshot(ctx, parked)
	}
}

// applySnapshot runs the read path for one remote snapshot: park it while a
// save is in flight, drop it when it belongs to another session or is not
// strictly newer, otherwise merge it over local state and adopt the result.
func (s *Synchronizer) applySnapshot(ctx context.Context, doc docstore.Doc) {
	s.mu.Lock()
	if s.state == syncSaving {
		s.deferred = doc
		s.mu.Unlock()
		s.log.Debug(ctx, "remote snapshot parked during save")
		return
	}
	s.state = syncSyncing
	notify := s.onRemote
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.state == syncSyncing {
			s.state = syncIdle
		}
		s.mu.Unlock()
	}()

	remote := FromDoc(doc)
	local := s.store.Snapshot()
	if local.SessionID == "" || remote.SessionID != local.SessionID {
		s.log.Debug(ctx, "remote snapshot for inactive session ignored", "session_id", remote.SessionID)
		return
	}
	if !remote.Timestamp.After(local.Timestamp) {
		s.log.Debug(ctx, "remote snapshot not newer, ignored",
			"remote", string(remote.Timestamp), "local", string(local.Timestamp))
		return
	}

	merged := FromDoc(docstore.MergeDocs(ToDoc(local), doc))
	if !s.store.ReplaceIfCurrent(local.SessionID, merged) {
		return
	}
	s.log.Info(ctx, "remote session update applied",
		"session_id", merged.SessionID, "stage", merged.CurrentStage, "stamp", string(merged.Timestamp))
	if notify != nil {
		notify(merged.Clone())
	}
}
