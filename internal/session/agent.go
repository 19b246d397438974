package session

import (
	"context"
	"encoding/json"
	"strings"
)

// PlanningBackend produces the next conversational turn for a session.
// internal/backend implements it over HTTP.
type PlanningBackend interface {
	NextStep(ctx context.Context, req TurnRequest) (*TurnReply, error)
}

// Pointers stores the per-user last-active plan pointer used for
// auto-resume. internal/localstate implements it.
type Pointers interface {
	LastActive(ctx context.Context, userID string) (string, error)
	SetLastActive(ctx context.Context, userID, sessionID string) error
	ClearLastActive(ctx context.Context, userID string) error
}

// TurnRequest is the body of one planning backend call.
type TurnRequest struct {
	SessionID    string         `json:"session_id"`
	UserInput    string         `json:"user_input"`
	CurrentStage string         `json:"current_stage"`
	ChatHistory  []HistoryEntry `json:"chat_history"`
	SessionState map[string]any `json:"session_state"`
}

// HistoryEntry is the transcript shape the backend consumes. Agent turns
// carry the JSON object they were decoded from, user turns plain text.
type HistoryEntry struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// TurnReply is the backend's decoded reply. Payload holds whatever JSON
// value the response body contained; a non-JSON body arrives as its raw
// text so the placeholder signature check still sees it.
type TurnReply struct {
	Payload any
}

// User-facing prompts for the synthetic error messages appended when a turn
// fails. Kept deterministic so repeated failures produce equivalent
// messages.
const (
	placeholderErrorPrompt = "The planning service proxy returned a placeholder instead of a real response. Please try again in a moment."
	invalidResponsePrompt  = "Sorry, the planning service returned an invalid response. Please try again."
	transportErrorPrompt   = "Sorry, I could not reach the planning service. Please check your connection and try again."
	commitErrorPrompt      = "Sorry, your last exchange could not be saved. Please try again."
	fallbackContentPrompt  = "The planning service sent a response that could not be displayed."
)

// WireSessionState renders the session snapshot in the camelCase shape the
// planning backend consumes. The backend mines profileData and the per-stage
// accumulators from this object when building its reply.
func WireSessionState(s *Session) map[string]any {
	return map[string]any{
		"currentStage":       s.CurrentStage,
		"profileData":        copyMap(s.ProfileData),
		"medicalDetails":     copyMap(s.MedicalDetails),
		"travelArrangements": copyMap(s.TravelArrangements),
		"localLogistics":     copyMap(s.LocalLogistics),
		"planParameters":     copyMap(s.PlanParameters),
	}
}

// WireHistory renders the transcript for the backend.
func WireHistory(msgs []Message) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryEntry{Sender: string(m.Sender), Content: wireContent(m)})
	}
	return out
}

func wireContent(m Message) string {
	if m.Sender != SenderAgent {
		return m.Text()
	}
	b, err := json.Marshal(map[string]any{
		"message_type": string(m.Type),
		"content":      m.Content.Fields(),
	})
	if err != nil {
		return m.Text()
	}
	return string(b)
}

// normalizeReply applies the backend compatibility ladder to a raw reply
// payload: the "hi"/"hello" placeholder signature is a hard error, a
// non-object payload is invalid, and a top-level message_type object is
// reinterpreted as the agent response for older backend shapes. It returns
// the agent response object and the partial state to merge.
func normalizeReply(payload any) (map[string]any, map[string]any, error) {
	if s, ok := payload.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "hi", "hello":
			return nil, nil, ErrPlaceholderResponse
		}
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, nil, ErrInvalidResponse
	}

	agent, _ := obj["agent_response"].(map[string]any)
	if agent == nil {
		if _, shim := obj["message_type"]; shim {
			agent = obj
		}
	}
	if agent == nil {
		return nil, nil, ErrInvalidResponse
	}

	state, _ := obj["updated_session_state"].(map[string]any)
	return agent, state, nil
}

// agentMessage builds the chat message for a normalized agent response.
// A missing message_type defaults to text. When the content body is absent
// or not an object, a text message embedding the raw response is
// synthesized so the user always sees something. The returned error, if
// any, marks an unknown content variant that was preserved as raw; the
// message is still usable.
func agentMessage(agent map[string]any, id string, stamp Stamp) (Message, error) {
	messageType := stringField(agent, "message_type")
	if messageType == "" {
		messageType = string(ContentText)
	}

	msg := Message{ID: id, Sender: SenderAgent, Timestamp: stamp}

	body, ok := agent["content"].(map[string]any)
	if !ok {
		msg.Type = ContentText
		msg.Content = TextContent{Prompt: fallbackPrompt(agent)}
		return msg, nil
	}

	content, err := ParseContent(messageType, body)
	msg.Type = ContentType(messageType)
	msg.Content = content
	return msg, err
}

// fallbackPrompt renders an arbitrary payload as the prompt of a synthetic
// text message.
func fallbackPrompt(v any) string {
	b, err := json.Marshal(v)
	if err != nil || len(b) == 0 {
		return fallbackContentPrompt
	}
	return string(b)
}
