package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/clock"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/docstore"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
)

// ---- helpers ----

func newTestSync(t *testing.T) (*Synchronizer, *Store, *docstore.Memory, *StampSource) {
	t.Helper()
	mem := docstore.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })

	store := NewStore()
	stamps := NewStampSource(clock.NewFake(time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)))
	return NewSynchronizer(mem, store, stamps, logging.Discard()), store, mem, stamps
}

func remoteDoc(t *testing.T, mem *docstore.Memory, userID, sessionID string) docstore.Doc {
	t.Helper()
	doc, err := mem.GetSession(context.Background(), userID, sessionID)
	require.NoError(t, err)
	return doc
}

// ---- state saves ----

func TestSaveState_BootstrapsDocumentWithoutHistory(t *testing.T) {
	sync, store, mem, _ := newTestSync(t)
	store.Replace(sampleSession())

	require.NoError(t, sync.SaveState(context.Background(), store.Snapshot()))

	doc := remoteDoc(t, mem, "user-1", "sess-1")
	require.Equal(t, "sess-1", doc["session_id"])
	require.Equal(t, "user-1", doc["user_id"])
	require.Equal(t, StageMedicalPlanSelection, doc["current_stage"])
	require.Equal(t, map[string]any{"procedure": "knee replacement"}, doc["medical_details"])
	require.NotContains(t, doc, "chat_history")

	// The committed stamp is adopted locally so the write's own echo will
	// not read as newer.
	require.Equal(t, Stamp(doc["timestamp"].(string)), store.Snapshot().Timestamp)
}

func TestSaveState_StampsStrictlyIncrease(t *testing.T) {
	sync, store, mem, _ := newTestSync(t)
	store.Replace(sampleSession())

	require.NoError(t, sync.SaveState(context.Background(), store.Snapshot()))
	first := Stamp(remoteDoc(t, mem, "user-1", "sess-1")["timestamp"].(string))

	require.NoError(t, sync.SaveState(context.Background(), store.Snapshot()))
	second := Stamp(remoteDoc(t, mem, "user-1", "sess-1")["timestamp"].(string))

	require.True(t, second.After(first))
}

func TestSaveState_SkippedWhenSessionNoLongerActive(t *testing.T) {
	sync, store, mem, _ := newTestSync(t)
	store.Replace(sampleSession())
	stale := store.Snapshot()

	store.Replace(NewSession("sess-2", "user-1"))
	require.NoError(t, sync.SaveState(context.Background(), stale))

	_, err := mem.GetSession(context.Background(), "user-1", "sess-1")
	require.Error(t, err)
}

// ---- turn commits ----

func TestCommitTurn_AppendsOverRemoteHistory(t *testing.T) {
	sync, store, mem, stamps := newTestSync(t)
	store.Replace(sampleSession())

	// Seed the remote document with one already-committed message.
	seeded := sampleSession()
	seeded.ChatHistory = seeded.ChatHistory[:1]
	require.NoError(t, mem.RunSessionTx(context.Background(), "user-1", "sess-1", func(tx docstore.Tx) error {
		d := ToDoc(seeded)
		d["timestamp"] = string(stamps.Next())
		tx.Merge(d)
		return nil
	}))

	agent := Message{ID: "9-agent", Sender: SenderAgent, Type: ContentText,
		Content: TextContent{Prompt: "Noted."}, Timestamp: stamps.Next()}
	user := Message{ID: "9", Sender: SenderUser, Type: ContentText,
		Content: TextContent{Prompt: "Budget is 15k."}, Timestamp: stamps.Next()}

	committed, err := sync.CommitTurn(context.Background(), store.Snapshot(),
		[]Message{user, agent}, docstore.Doc{"current_stage": StageTravelArrangementSelection})
	require.NoError(t, err)

	doc := remoteDoc(t, mem, "user-1", "sess-1")
	history, _ := doc["chat_history"].([]any)
	require.Len(t, history, 3)
	require.Equal(t, StageTravelArrangementSelection, doc["current_stage"])

	require.Equal(t, StageTravelArrangementSelection, committed.CurrentStage)
	require.Len(t, committed.ChatHistory, 3)

	// Local adoption: stage, history and stamp all follow the commit.
	local := store.Snapshot()
	require.Equal(t, StageTravelArrangementSelection, local.CurrentStage)
	require.Len(t, local.ChatHistory, 3)
	require.Equal(t, Stamp(doc["timestamp"].(string)), local.Timestamp)
}

func TestCommitTurn_KeepsUnsavedLocalAnswers(t *testing.T) {
	sync, store, _, _ := newTestSync(t)
	store.Replace(sampleSession())

	// An answer arrives after the turn snapshot was taken and before the
	// commit lands; it must survive the adoption merge.
	base := store.Snapshot()
	store.Apply(Patch{LocalLogistics: map[string]any{"transport": "wheelchair van"}},
		Stamp("2025-03-07T09:30:00.000000000Z"))

	agent := Message{ID: "a", Sender: SenderAgent, Type: ContentText, Content: TextContent{Prompt: "ok"}}
	_, err := sync.CommitTurn(context.Background(), base, []Message{agent},
		docstore.Doc{"current_stage": StageLocalLogisticsReview})
	require.NoError(t, err)

	local := store.Snapshot()
	require.Equal(t, StageLocalLogisticsReview, local.CurrentStage)
	require.Equal(t, map[string]any{"transport": "wheelchair van"}, local.LocalLogistics)
}

func TestCommitTurn_NoLostAppends(t *testing.T) {
	sync, store, mem, _ := newTestSync(t)
	store.Replace(NewSession("sess-1", "user-1"))
	staleBase := store.Snapshot()

	a := Message{ID: "a", Sender: SenderAgent, Type: ContentText, Content: TextContent{Prompt: "first"}}
	b := Message{ID: "b", Sender: SenderAgent, Type: ContentText, Content: TextContent{Prompt: "second"}}

	// Both commits are built from the same fresh snapshot; the second must
	// append on top of the first's committed history, not on the stale copy.
	_, err := sync.CommitTurn(context.Background(), staleBase, []Message{a}, nil)
	require.NoError(t, err)
	_, err = sync.CommitTurn(context.Background(), staleBase, []Message{b}, nil)
	require.NoError(t, err)

	doc := remoteDoc(t, mem, "user-1", "sess-1")
	history, _ := doc["chat_history"].([]any)
	require.Len(t, history, 2)

	ids := []string{}
	for _, item := range history {
		ids = append(ids, item.(map[string]any)["id"].(string))
	}
	require.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestCommitTurn_RequiresSessionIdentity(t *testing.T) {
	sync, _, _, _ := newTestSync(t)

	_, err := sync.CommitTurn(context.Background(), NewSession("", ""), nil, nil)
	require.Error(t, err)
}

// ---- snapshot adoption ----

func TestApplySnapshot_IgnoresEqualAndOlderStamps(t *testing.T) {
	sync, store, _, _ := newTestSync(t)

	local := sampleSession()
	local.Timestamp = Stamp("2025-03-07T09:00:05.000000000Z")
	store.Replace(local)

	echo := ToDoc(local)
	sync.applySnapshot(context.Background(), echo)
	require.Equal(t, local, store.Snapshot())

	older := ToDoc(local)
	older["timestamp"] = "2025-03-07T09:00:01.000000000Z"
	older["current_stage"] = StageFinalReportDisplay
	sync.applySnapshot(context.Background(), older)
	require.Equal(t, StageMedicalPlanSelection, store.Snapshot().CurrentStage)
}

func TestApplySnapshot_AdoptsStrictlyNewerAndMergesOverLocal(t *testing.T) {
	sync, store, _, _ := newTestSync(t)

	local := sampleSession()
	local.Timestamp = Stamp("2025-03-07T09:00:05.000000000Z")
	store.Replace(local)

	var notified *Session
	sync.SetOnRemote(func(s *Session) { notified = s })

	// A foreign write that does not carry every field: untouched local
	// fields must survive the merge.
	remote := docstore.Doc{
		"session_id":    "sess-1",
		"user_id":       "user-1",
		"current_stage": StageTravelArrangementSelection,
		"timestamp":     "2025-03-07T09:00:06.000000000Z",
	}
	sync.applySnapshot(context.Background(), remote)

	got := store.Snapshot()
	require.Equal(t, StageTravelArrangementSelection, got.CurrentStage)
	require.Equal(t, map[string]any{"procedure": "knee replacement"}, got.MedicalDetails)
	require.Equal(t, Stamp("2025-03-07T09:00:06.000000000Z"), got.Timestamp)

	require.NotNil(t, notified)
	require.Equal(t, StageTravelArrangementSelection, notified.CurrentStage)
}

func TestApplySnapshot_IgnoresForeignSession(t *testing.T) {
	sync, store, _, _ := newTestSync(t)
	store.Replace(sampleSession())

	other := ToDoc(NewSession("sess-other", "user-1"))
	other["timestamp"] = "2026-01-01T00:00:00.000000000Z"
	sync.applySnapshot(context.Background(), other)

	require.Equal(t, "sess-1", store.SessionID())
	require.Equal(t, StageMedicalPlanSelection, store.Snapshot().CurrentStage)
}

func TestApplySnapshot_ParkedDuringSaveThenReevaluated(t *testing.T) {
	sync, store, _, _ := newTestSync(t)

	local := sampleSession()
	local.Timestamp = Stamp("2025-03-07T09:00:05.000000000Z")
	store.Replace(local)

	remote := ToDoc(local)
	remote["current_stage"] = StageLocalLogisticsReview
	remote["timestamp"] = "2025-03-07T09:00:07.000000000Z"

	sync.beginSave()
	sync.applySnapshot(context.Background(), remote)
	// Parked, not applied.
	require.Equal(t, StageMedicalPlanSelection, store.Snapshot().CurrentStage)

	sync.finishSave(context.Background())
	// Re-evaluated after the save window closes.
	require.Equal(t, StageLocalLogisticsReview, store.Snapshot().CurrentStage)
}

func TestApplySnapshot_LatestParkedSnapshotWins(t *testing.T) {
	sync, store, _, _ := newTestSync(t)

	local := sampleSession()
	local.Timestamp = Stamp("2025-03-07T09:00:05.000000000Z")
	store.Replace(local)

	first := ToDoc(local)
	first["current_stage"] = StageTravelArrangementSelection
	first["timestamp"] = "2025-03-07T09:00:06.000000000Z"

	second := ToDoc(local)
	second["current_stage"] = StageFinalReportDisplay
	second["timestamp"] = "2025-03-07T09:00:07.000000000Z"

	sync.beginSave()
	sync.applySnapshot(context.Background(), first)
	sync.applySnapshot(context.Background(), second)
	sync.finishSave(context.Background())

	require.Equal(t, StageFinalReportDisplay, store.Snapshot().CurrentStage)
}

// ---- live watch ----

func TestWatch_AppliesForeignWrites(t *testing.T) {
	sync, store, mem, stamps := newTestSync(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := sampleSession()
	store.Replace(sess)
	require.NoError(t, sync.SaveState(ctx, store.Snapshot()))
	require.NoError(t, sync.Watch(ctx, "user-1", "sess-1"))

	// A second client writes a newer stage directly.
	foreign := NewSynchronizer(mem, NewStore(), stamps, logging.Discard())
	other := sampleSession()
	other.CurrentStage = StageFinalReportDisplay
	foreign.store.Replace(other)
	require.NoError(t, foreign.SaveState(ctx, other))

	require.Eventually(t, func() bool {
		return store.Snapshot().CurrentStage == StageFinalReportDisplay
	}, time.Second, 5*time.Millisecond)

	sync.StopWatch()
}

func TestWatch_StopWatchDetaches(t *testing.T) {
	sync, store, mem, stamps := newTestSync(t)

	ctx := context.Background()
	store.Replace(sampleSession())
	require.NoError(t, sync.SaveState(ctx, store.Snapshot()))
	require.NoError(t, sync.Watch(ctx, "user-1", "sess-1"))
	sync.StopWatch()

	foreign := NewSynchronizer(mem, NewStore(), stamps, logging.Discard())
	other := sampleSession()
	other.CurrentStage = StageFinalReportDisplay
	foreign.store.Replace(other)
	require.NoError(t, foreign.SaveState(ctx, other))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StageMedicalPlanSelection, store.Snapshot().CurrentStage)
}
