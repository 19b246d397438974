package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/common"
)

// startPlanInput is the synthetic utterance that opens a new plan
// conversation on the backend.
const startPlanInput = "start_new_plan"

// StartNewPlan creates a fresh plan session seeded with the user's profile
// data and runs the opening backend turn against it. The generated session
// id is used explicitly for the commit; the new plan becomes the active
// session only after that commit succeeds, so a failed start leaves the
// previous plan untouched. The adopted session is returned.
func (e *Engine) StartNewPlan(ctx context.Context, profileSeed map[string]any) (*Session, error) {
	userID := e.UserID()
	if userID == "" {
		return nil, common.ErrNotSignedIn
	}
	if e.docs == nil {
		return nil, fmt.Errorf("%w: document store not configured", common.ErrUnavailable)
	}

	seed := NewSession(uuid.NewString(), userID)
	if profileSeed != nil {
		seed.ProfileData = copyMap(profileSeed)
	}

	reply, err := e.planner.NextStep(ctx, TurnRequest{
		SessionID:    seed.SessionID,
		UserInput:    startPlanInput,
		CurrentStage: seed.CurrentStage,
		ChatHistory:  []HistoryEntry{},
		SessionState: WireSessionState(seed),
	})
	if err != nil {
		e.failTurn(ctx, transportErrorPrompt)
		return nil, fmt.Errorf("starting new plan: %w", err)
	}

	_, committed, err := e.handleReply(ctx, seed, nil, reply.Payload)
	if err != nil {
		return nil, err
	}

	e.adoptSession(ctx, committed)
	e.log.Info(ctx, "new plan started", "session_id", committed.SessionID, "stage", committed.CurrentStage)
	return committed.Clone(), nil
}

// LoadPlan fetches the named plan document and makes it the active
// session, replacing the in-memory state wholesale rather than merging.
// A missing document clears a stale last-active pointer referencing it.
func (e *Engine) LoadPlan(ctx context.Context, sessionID string) (*Session, error) {
	userID := e.UserID()
	if userID == "" {
		return nil, common.ErrNotSignedIn
	}

	doc, err := e.docs.GetSession(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			e.clearStalePointer(ctx, userID, sessionID)
			return nil, fmt.Errorf("plan %q: %w", sessionID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("loading plan: %w", err)
	}

	sess := FromDoc(doc)
	sess.SessionID = sessionID
	sess.UserID = userID
	e.adoptSession(ctx, sess)
	e.log.Info(ctx, "plan loaded", "session_id", sessionID, "stage", sess.CurrentStage,
		"messages", len(sess.ChatHistory))
	return sess.Clone(), nil
}

// ListPlans returns summaries of the user's plans, most recently written
// first. Failures degrade to an empty list.
func (e *Engine) ListPlans(ctx context.Context) []PlanSummary {
	userID := e.UserID()
	if userID == "" {
		return []PlanSummary{}
	}

	docs, err := e.docs.ListSessions(ctx, userID)
	if err != nil {
		e.log.Error(ctx, "listing plans failed", "error", err)
		return []PlanSummary{}
	}

	out := make([]PlanSummary, 0, len(docs))
	for _, d := range docs {
		s := FromDoc(d)
		out = append(out, PlanSummary{
			SessionID:    s.SessionID,
			CurrentStage: s.CurrentStage,
			Messages:     len(s.ChatHistory),
			Timestamp:    s.Timestamp,
		})
	}
	return out
}

// DeletePlan removes the named plan document. Existence is verified by the
// store, so deleting an unknown plan reports ErrNotFound instead of
// silently succeeding. Deleting the active plan also resets local state.
func (e *Engine) DeletePlan(ctx context.Context, sessionID string) error {
	userID := e.UserID()
	if userID == "" {
		return common.ErrNotSignedIn
	}
	if sessionID == "" {
		return errors.New("plan id required")
	}

	if err := e.docs.DeleteSession(ctx, userID, sessionID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			e.log.Warn(ctx, "delete requested for unknown plan", "session_id", sessionID)
			return fmt.Errorf("plan %q: %w", sessionID, common.ErrNotFound)
		}
		return fmt.Errorf("deleting plan: %w", err)
	}

	if e.store.SessionID() == sessionID {
		e.sched.Cancel(sessionID)
		e.sync.StopWatch()
		e.store.Replace(NewSession("", ""))
	}
	e.clearStalePointer(ctx, userID, sessionID)
	e.log.Info(ctx, "plan deleted", "session_id", sessionID)
	return nil
}

// Resume reopens the user's last-active plan if one is recorded. A nil
// session with a nil error means there was nothing to resume; a stale
// pointer to a deleted plan is cleared by the underlying load.
func (e *Engine) Resume(ctx context.Context) (*Session, error) {
	userID := e.UserID()
	if userID == "" {
		return nil, common.ErrNotSignedIn
	}
	if e.pointers == nil {
		return nil, nil
	}

	last, err := e.pointers.LastActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading last-active pointer: %w", err)
	}
	if last == "" {
		return nil, nil
	}

	sess, err := e.LoadPlan(ctx, last)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

// Reset drops all in-memory planning state: it cancels any pending
// debounced save, detaches the remote watch, clears the session and
// forgets the user. Used at sign-out and after account deletion.
func (e *Engine) Reset() {
	if id := e.store.SessionID(); id != "" {
		e.sched.Cancel(id)
	}
	e.sync.StopWatch()
	e.store.Replace(NewSession("", ""))
	e.SetUser("")
}

// Close releases the engine's timers and subscriptions.
func (e *Engine) Close() {
	e.sync.StopWatch()
	e.sched.Stop()
}

// adoptSession makes sess the active session: it cancels the previous
// session's pending save, swaps the store, subscribes to remote updates
// and records the last-active pointer. ctx should outlive the adoption;
// the watch subscription is tied to it.
func (e *Engine) adoptSession(ctx context.Context, sess *Session) {
	if prev := e.store.SessionID(); prev != "" && prev != sess.SessionID {
		e.sched.Cancel(prev)
	}
	e.store.Replace(sess)

	if err := e.sync.Watch(ctx, sess.UserID, sess.SessionID); err != nil {
		e.log.Warn(ctx, "live updates unavailable for plan", "session_id", sess.SessionID, "error", err)
	}
	if e.pointers != nil {
		if err := e.pointers.SetLastActive(ctx, sess.UserID, sess.SessionID); err != nil {
			e.log.Warn(ctx, "saving last-active pointer failed", "error", err)
		}
	}
}

// clearStalePointer clears the last-active pointer when it references the
// given session.
func (e *Engine) clearStalePointer(ctx context.Context, userID, sessionID string) {
	if e.pointers == nil {
		return
	}
	last, err := e.pointers.LastActive(ctx, userID)
	if err != nil || last != sessionID {
		return
	}
	if err := e.pointers.ClearLastActive(ctx, userID); err != nil {
		e.log.Warn(ctx, "clearing last-active pointer failed", "error", err)
	}
}
