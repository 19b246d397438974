package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/clock"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/common"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/debounce"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/docstore"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
)

// DefaultSaveDelay is the trailing-edge debounce window for state saves.
// Updates arriving within one window collapse into a single persistence.
const DefaultSaveDelay = time.Second

// Config carries the collaborators for an Engine. Handles are constructed
// once at process start and shared by reference; the Engine never
// reinitializes them.
type Config struct {
	Docs      docstore.Store
	Planner   PlanningBackend
	Pointers  Pointers
	Clock     clock.Clock
	SaveDelay time.Duration
	Logger    logging.Logger
}

// Engine drives the conversational planning loop. It owns the local Store,
// schedules the debounced state saves, talks to the planning backend and
// commits completed turns through the Synchronizer.
type Engine struct {
	store     *Store
	sync      *Synchronizer
	docs      docstore.Store
	planner   PlanningBackend
	pointers  Pointers
	stamps    *StampSource
	sched     *debounce.Debouncer
	saveDelay time.Duration
	log       logging.Logger

	mu     sync.Mutex
	userID string
}

// NewEngine builds an Engine from cfg, filling in a real clock, a discard
// logger and the default save delay when unset.
func NewEngine(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.SaveDelay <= 0 {
		cfg.SaveDelay = DefaultSaveDelay
	}

	store := NewStore()
	stamps := NewStampSource(cfg.Clock)
	return &Engine{
		store:     store,
		sync:      NewSynchronizer(cfg.Docs, store, stamps, cfg.Logger),
		docs:      cfg.Docs,
		planner:   cfg.Planner,
		pointers:  cfg.Pointers,
		stamps:    stamps,
		sched:     debounce.New(cfg.Clock),
		saveDelay: cfg.SaveDelay,
		log:       cfg.Logger,
	}
}

// SetUser records the authenticated user the engine acts for.
func (e *Engine) SetUser(userID string) {
	e.mu.Lock()
	e.userID = userID
	e.mu.Unlock()
}

// UserID returns the authenticated user id, or "" when signed out.
func (e *Engine) UserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

// Snapshot returns a copy of the current in-memory session.
func (e *Engine) Snapshot() *Session { return e.store.Snapshot() }

// Active reports whether a plan session is currently adopted.
func (e *Engine) Active() bool { return e.store.Active() }

// SetOnRemote registers a callback for remotely-applied session updates.
func (e *Engine) SetOnRemote(fn func(*Session)) { e.sync.SetOnRemote(fn) }

// UpdateSessionState shallow-merges the user's partial answers into the
// active session, stamps a fresh local write marker and (re)schedules the
// debounced state save. Bursts of updates within one save window produce a
// single downstream persistence.
func (e *Engine) UpdateSessionState(ctx context.Context, patch Patch) {
	sessionID := e.store.SessionID()
	if sessionID == "" {
		e.log.Warn(ctx, "state update ignored, no active plan")
		return
	}
	e.store.Apply(patch, e.stamps.Next())
	e.scheduleSave(sessionID)
}

func (e *Engine) scheduleSave(sessionID string) {
	e.sched.Schedule(sessionID, e.saveDelay, func() {
		ctx := context.Background()
		snap := e.store.Snapshot()
		if snap.SessionID != sessionID {
			return
		}
		if err := e.sync.SaveState(ctx, snap); err != nil {
			e.log.Error(ctx, "debounced state save failed", "session_id", sessionID, "error", err)
		}
	})
}

// SubmitTurn sends one user utterance through the planning backend and
// commits the resulting exchange. The user's message is staged locally
// first, so a failed turn still shows what was said next to the error
// reply; it reaches the remote history only together with the agent's
// reply in the turn commit.
func (e *Engine) SubmitTurn(ctx context.Context, input string) (*Message, error) {
	if e.UserID() == "" {
		return nil, common.ErrNotSignedIn
	}
	snap := e.store.Snapshot()
	if snap.SessionID == "" {
		return nil, common.ErrNoActiveSession
	}

	t := e.stamps.NextTime()
	userMsg := Message{
		ID:        UserMessageID(t),
		Sender:    SenderUser,
		Type:      ContentText,
		Content:   TextContent{Prompt: input},
		Timestamp: StampOf(t),
	}
	e.store.AppendLocal(userMsg)

	reply, err := e.planner.NextStep(ctx, TurnRequest{
		SessionID:    snap.SessionID,
		UserInput:    input,
		CurrentStage: snap.CurrentStage,
		ChatHistory:  WireHistory(snap.ChatHistory),
		SessionState: WireSessionState(snap),
	})
	if err != nil {
		e.failTurn(ctx, transportErrorPrompt)
		return nil, fmt.Errorf("calling planning backend: %w", err)
	}

	msg, _, err := e.handleReply(ctx, snap, []Message{userMsg}, reply.Payload)
	return msg, err
}

// HandleAgentResponse feeds one raw backend payload through the
// normalization ladder and commits the resulting agent message against
// sessionID. The session id is explicit rather than ambient so a plan can
// be bootstrapped before it is adopted. On success the committed agent
// message is returned; on failure a synthetic error message has been
// appended to local history (except for missing prerequisites, which
// mutate nothing).
func (e *Engine) HandleAgentResponse(ctx context.Context, payload any, sessionID string) (*Message, error) {
	base := e.store.Snapshot()
	if base.SessionID != sessionID {
		base = NewSession(sessionID, e.UserID())
	}
	msg, _, err := e.handleReply(ctx, base, nil, payload)
	return msg, err
}

// handleReply runs the normalization ladder and the turn commit. staged
// messages (the user's utterance) are committed in front of the agent's
// reply. It returns the agent message and the committed session built over
// base.
func (e *Engine) handleReply(ctx context.Context, base *Session, staged []Message, payload any) (*Message, *Session, error) {
	agent, statePatch, err := normalizeReply(payload)
	if err != nil {
		if errors.Is(err, ErrPlaceholderResponse) {
			e.failTurn(ctx, placeholderErrorPrompt)
		} else {
			e.failTurn(ctx, invalidResponsePrompt)
		}
		return nil, nil, err
	}

	if e.docs == nil || e.UserID() == "" || base == nil || base.SessionID == "" {
		return nil, nil, fmt.Errorf("%w: planning prerequisites missing", common.ErrUnavailable)
	}

	t := e.stamps.NextTime()
	msg, parseErr := agentMessage(agent, AgentMessageID(t), StampOf(t))
	if parseErr != nil {
		e.log.Warn(ctx, "unrecognized agent content kept as raw payload",
			"session_id", base.SessionID, "error", parseErr)
	}

	committed, err := e.sync.CommitTurn(ctx, base, append(staged, msg), statePatchFields(statePatch))
	if err != nil {
		e.failTurn(ctx, commitErrorPrompt)
		return nil, nil, err
	}
	return &msg, committed, nil
}

// failTurn appends a synthetic agent error message to local history only.
// Failed turns stay visible in the transcript without ever reaching the
// persisted document.
func (e *Engine) failTurn(ctx context.Context, prompt string) {
	t := e.stamps.NextTime()
	e.store.AppendLocal(Message{
		ID:        ErrorMessageID(t),
		Sender:    SenderAgent,
		Type:      ContentText,
		Content:   TextContent{Prompt: prompt},
		Timestamp: StampOf(t),
	})
	e.log.Warn(ctx, "turn failed", "prompt", prompt)
}
