package session

import (
	"github.com/kzxian1201/medical-tourism-planning-system/internal/docstore"
)

// Persisted document field names. The remote session document is scoped by
// (userID, sessionID) inside the adapter; the fields below are its body.
const (
	fieldSessionID          = "session_id"
	fieldUserID             = "user_id"
	fieldCurrentStage       = "current_stage"
	fieldChatHistory        = "chat_history"
	fieldProfileData        = "profile_data"
	fieldMedicalDetails     = "medical_details"
	fieldTravelArrangements = "travel_arrangements"
	fieldLocalLogistics     = "local_logistics"
	fieldPlanParameters     = "plan_parameters"
	fieldTimestamp          = "timestamp"
)

// ToDoc renders the session in its full document form.
func ToDoc(s *Session) docstore.Doc {
	d := StateFields(s)
	d[fieldSessionID] = s.SessionID
	d[fieldUserID] = s.UserID
	d[fieldChatHistory] = MessagesToDoc(s.ChatHistory)
	d[fieldTimestamp] = string(s.Timestamp)
	return d
}

// StateFields renders only the stage and accumulator fields, the subset
// written by the debounced state save. Chat history is deliberately absent:
// under merge-write semantics an array replaces wholesale, so history
// mutation is reserved for the transactional append path.
func StateFields(s *Session) docstore.Doc {
	return docstore.Doc{
		fieldCurrentStage:       s.CurrentStage,
		fieldProfileData:        copyMap(s.ProfileData),
		fieldMedicalDetails:     copyMap(s.MedicalDetails),
		fieldTravelArrangements: copyMap(s.TravelArrangements),
		fieldLocalLogistics:     copyMap(s.LocalLogistics),
		fieldPlanParameters:     copyMap(s.PlanParameters),
	}
}

// FromDoc rebuilds a session from its document form. Missing fields come
// back as their zero/empty defaults, so partially-written documents load
// as usable skeletons.
func FromDoc(d docstore.Doc) *Session {
	s := &Session{
		SessionID:          stringField(d, fieldSessionID),
		UserID:             stringField(d, fieldUserID),
		CurrentStage:       stringField(d, fieldCurrentStage),
		ChatHistory:        MessagesFromDoc(d[fieldChatHistory]),
		ProfileData:        mapField(d, fieldProfileData),
		MedicalDetails:     mapField(d, fieldMedicalDetails),
		TravelArrangements: mapField(d, fieldTravelArrangements),
		LocalLogistics:     mapField(d, fieldLocalLogistics),
		PlanParameters:     mapField(d, fieldPlanParameters),
		Timestamp:          Stamp(stringField(d, fieldTimestamp)),
	}
	if s.CurrentStage == "" {
		s.CurrentStage = StageInitialQuery
	}
	return s
}

// MessagesToDoc renders chat history in its document form.
func MessagesToDoc(msgs []Message) []any {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{
			"id":        m.ID,
			"sender":    string(m.Sender),
			"type":      string(m.Type),
			"content":   m.Content.Fields(),
			"timestamp": string(m.Timestamp),
		})
	}
	return out
}

// MessagesFromDoc parses a persisted chat history array. Entries that are
// not maps are skipped; unknown content variants are preserved as raw
// payloads rather than dropped.
func MessagesFromDoc(v any) []Message {
	items, ok := v.([]any)
	if !ok {
		return []Message{}
	}
	msgs := make([]Message, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		typ := stringField(m, "type")
		contentMap, _ := m["content"].(map[string]any)
		content, err := ParseContent(typ, contentMap)
		if err != nil {
			content = RawContent{Type: typ, Raw: contentMap}
		}
		msgs = append(msgs, Message{
			ID:        stringField(m, "id"),
			Sender:    Sender(stringField(m, "sender")),
			Type:      ContentType(typ),
			Content:   content,
			Timestamp: Stamp(stringField(m, "timestamp")),
		})
	}
	return msgs
}

// statePatchFields normalizes a backend updated_session_state object into
// document fields. Both the backend's snake_case keys and the legacy
// camelCase client keys are accepted; unrecognized keys pass through
// unchanged so nothing the backend tracks is lost on merge.
func statePatchFields(patch map[string]any) docstore.Doc {
	out := docstore.Doc{}
	for k, v := range patch {
		out[canonicalStateKey(k)] = v
	}
	return out
}

func canonicalStateKey(k string) string {
	switch k {
	case "current_stage", "currentStage":
		return fieldCurrentStage
	case "profile_data", "profileData":
		return fieldProfileData
	case "medical_details", "medicalDetails":
		return fieldMedicalDetails
	case "travel_arrangements", "travelArrangements":
		return fieldTravelArrangements
	case "local_logistics", "localLogistics":
		return fieldLocalLogistics
	case "plan_parameters", "planParameters":
		return fieldPlanParameters
	default:
		return k
	}
}

func mapField(d docstore.Doc, key string) map[string]any {
	if m, ok := d[key].(map[string]any); ok {
		return copyMap(m)
	}
	return map[string]any{}
}
