package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeReply_PlaceholderSignatures(t *testing.T) {
	for _, payload := range []string{"hi", "hello", "HI", "Hello", "  hi\n"} {
		_, _, err := normalizeReply(payload)
		require.ErrorIs(t, err, ErrPlaceholderResponse, payload)
	}
}

func TestNormalizeReply_NonObjectPayloads(t *testing.T) {
	for _, payload := range []any{nil, 42, true, []any{"x"}, "free-form text"} {
		_, _, err := normalizeReply(payload)
		require.ErrorIs(t, err, ErrInvalidResponse)
	}
}

func TestNormalizeReply_NestedShape(t *testing.T) {
	agent, state, err := normalizeReply(map[string]any{
		"agent_response":        map[string]any{"message_type": "text", "content": map[string]any{"prompt": "ok"}},
		"updated_session_state": map[string]any{"current_stage": "travel"},
	})
	require.NoError(t, err)
	require.Equal(t, "text", agent["message_type"])
	require.Equal(t, "travel", state["current_stage"])
}

func TestNormalizeReply_TopLevelShim(t *testing.T) {
	payload := map[string]any{
		"message_type": "text",
		"content":      map[string]any{"prompt": "legacy shape"},
	}
	agent, state, err := normalizeReply(payload)
	require.NoError(t, err)
	require.Equal(t, payload, agent)
	require.Nil(t, state)
}

func TestNormalizeReply_ObjectWithoutAgentResponse(t *testing.T) {
	_, _, err := normalizeReply(map[string]any{"status": "ok"})
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestAgentMessage_DefaultsMissingTypeToText(t *testing.T) {
	msg, err := agentMessage(map[string]any{
		"content": map[string]any{"prompt": "typed reply"},
	}, "id-1", Stamp("2025-03-07T09:00:00.000000000Z"))
	require.NoError(t, err)
	require.Equal(t, ContentText, msg.Type)
	require.Equal(t, TextContent{Prompt: "typed reply"}, msg.Content)
}

func TestAgentMessage_FallbackEmbedsRawPayload(t *testing.T) {
	agent := map[string]any{"message_type": "question"}
	msg, err := agentMessage(agent, "id-1", Stamp("2025-03-07T09:00:00.000000000Z"))
	require.NoError(t, err)
	require.Equal(t, ContentText, msg.Type)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.Content.(TextContent).Prompt), &decoded))
	require.Equal(t, "question", decoded["message_type"])
}

func TestAgentMessage_UnknownVariantKeptAsRaw(t *testing.T) {
	msg, err := agentMessage(map[string]any{
		"message_type": "hologram",
		"content":      map[string]any{"beam": true},
	}, "id-1", Stamp("2025-03-07T09:00:00.000000000Z"))
	require.ErrorIs(t, err, ErrUnsupportedContent)
	require.Equal(t, ContentType("hologram"), msg.Type)
	require.IsType(t, RawContent{}, msg.Content)
}

func TestWireSessionState_CamelCaseKeys(t *testing.T) {
	s := sampleSession()
	wire := WireSessionState(s)

	require.Equal(t, StageMedicalPlanSelection, wire["currentStage"])
	require.Equal(t, s.ProfileData, wire["profileData"])
	require.Equal(t, s.MedicalDetails, wire["medicalDetails"])
	require.Equal(t, s.TravelArrangements, wire["travelArrangements"])
	require.Equal(t, s.LocalLogistics, wire["localLogistics"])
	require.Equal(t, s.PlanParameters, wire["planParameters"])

	// The wire view is detached from the session's own maps.
	wire["profileData"].(map[string]any)["nationality"] = "tampered"
	require.Equal(t, "Malaysian", s.ProfileData["nationality"])
}

func TestWireHistory_AgentEntriesCarryStructuredContent(t *testing.T) {
	entries := WireHistory([]Message{
		{Sender: SenderUser, Type: ContentText, Content: TextContent{Prompt: "my knee hurts"}},
		{Sender: SenderAgent, Type: ContentQuestion, Content: QuestionContent{Prompt: "Which city?", Kind: QuestionText}},
	})
	require.Len(t, entries, 2)

	require.Equal(t, "user", entries[0].Sender)
	require.Equal(t, "my knee hurts", entries[0].Content)

	require.Equal(t, "agent", entries[1].Sender)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[1].Content), &decoded))
	require.Equal(t, "question", decoded["message_type"])
	content := decoded["content"].(map[string]any)
	require.Equal(t, "Which city?", content["prompt"])
}

func TestFallbackPrompt_UnmarshalableValue(t *testing.T) {
	require.Equal(t, fallbackContentPrompt, fallbackPrompt(map[string]any{"ch": make(chan int)}))
}
