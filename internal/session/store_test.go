package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_Apply_ReplacesOnlyPatchedAccumulators(t *testing.T) {
	st := NewStore()
	st.Replace(sampleSession())

	st.Apply(Patch{
		MedicalDetails: map[string]any{"procedure": "hip replacement", "urgency": "high"},
	}, Stamp("2025-03-07T10:00:00.000000000Z"))

	got := st.Snapshot()
	require.Equal(t, map[string]any{"procedure": "hip replacement", "urgency": "high"}, got.MedicalDetails)
	// Untouched accumulators keep their values.
	require.Equal(t, map[string]any{"nationality": "Malaysian"}, got.ProfileData)
	require.Equal(t, Stamp("2025-03-07T10:00:00.000000000Z"), got.Timestamp)
}

func TestStore_Apply_ZeroPatchStillStamps(t *testing.T) {
	st := NewStore()
	st.Replace(sampleSession())
	before := st.Snapshot()

	st.Apply(Patch{}, Stamp("2025-03-07T10:00:00.000000000Z"))

	got := st.Snapshot()
	require.Equal(t, before.MedicalDetails, got.MedicalDetails)
	require.True(t, got.Timestamp.After(before.Timestamp))
}

func TestStore_AppendLocal(t *testing.T) {
	st := NewStore()
	st.Replace(NewSession("sess-1", "user-1"))

	st.AppendLocal(Message{ID: "m1", Sender: SenderUser, Type: ContentText, Content: TextContent{Prompt: "hello"}})
	st.AppendLocal(Message{ID: "m2", Sender: SenderAgent, Type: ContentText, Content: TextContent{Prompt: "welcome"}})

	got := st.Snapshot()
	require.Len(t, got.ChatHistory, 2)
	require.Equal(t, "m1", got.ChatHistory[0].ID)
	require.Equal(t, "m2", got.ChatHistory[1].ID)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	st := NewStore()
	st.Replace(sampleSession())

	snap := st.Snapshot()
	snap.ProfileData["nationality"] = "tampered"
	snap.ChatHistory[0].ID = "tampered"

	fresh := st.Snapshot()
	require.Equal(t, "Malaysian", fresh.ProfileData["nationality"])
	require.Equal(t, "1", fresh.ChatHistory[0].ID)
}

func TestStore_ReplaceIfCurrent(t *testing.T) {
	st := NewStore()
	st.Replace(NewSession("sess-1", "user-1"))

	other := NewSession("sess-2", "user-1")
	require.False(t, st.ReplaceIfCurrent("sess-2", other))
	require.Equal(t, "sess-1", st.SessionID())

	updated := NewSession("sess-1", "user-1")
	updated.CurrentStage = StageInitialWelcome
	require.True(t, st.ReplaceIfCurrent("sess-1", updated))
	require.Equal(t, StageInitialWelcome, st.Snapshot().CurrentStage)
}

func TestStore_CommitStamp_GuardsSessionIdentity(t *testing.T) {
	st := NewStore()
	st.Replace(NewSession("sess-1", "user-1"))

	require.False(t, st.CommitStamp("sess-2", Stamp("2025-03-07T10:00:00.000000000Z")))
	require.True(t, st.Snapshot().Timestamp.IsZero())

	require.True(t, st.CommitStamp("sess-1", Stamp("2025-03-07T10:00:00.000000000Z")))
	require.Equal(t, Stamp("2025-03-07T10:00:00.000000000Z"), st.Snapshot().Timestamp)
}

func TestStore_ActiveAndSessionID(t *testing.T) {
	st := NewStore()
	require.False(t, st.Active())
	require.Equal(t, "", st.SessionID())

	st.Replace(NewSession("sess-1", "user-1"))
	require.True(t, st.Active())
	require.Equal(t, "sess-1", st.SessionID())
}
