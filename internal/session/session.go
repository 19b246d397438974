// Package session implements the planning client's core: the in-memory
// session state store, the transactional synchronizer against the remote
// document store, normalization of planning-backend responses, and the plan
// lifecycle (start, load, list, delete).
package session

// Conversation stages, owned by the planning backend. The client starts a
// new plan at StageInitialQuery and only ever adopts stage changes carried
// by backend state updates or loaded documents.
const (
	StageInitialQuery               = "initial_query"
	StageInitialWelcome             = "initial_welcome"
	StageMedicalPlanSelection       = "medical_plan_selection"
	StageTravelArrangementSelection = "travel_arrangement_selection"
	StageLocalLogisticsReview       = "local_logistics_review"
	StageFinalReportDisplay         = "final_report_display"
)

// StageTitle returns a user-facing name for a stage marker. Unknown stages
// are shown as-is rather than hidden.
func StageTitle(stage string) string {
	switch stage {
	case StageInitialQuery:
		return "Getting started"
	case StageInitialWelcome:
		return "Welcome"
	case StageMedicalPlanSelection:
		return "Medical plan selection"
	case StageTravelArrangementSelection:
		return "Travel arrangements"
	case StageLocalLogisticsReview:
		return "Local logistics"
	case StageFinalReportDisplay:
		return "Final report"
	default:
		return stage
	}
}

// Session is the authoritative client-side state of one planning
// conversation. The accumulator maps hold semantic answers whose inner
// shape is defined by the backend's question schema; the client treats
// their values as opaque and replaces each map wholesale on update.
type Session struct {
	SessionID    string
	UserID       string
	CurrentStage string
	ChatHistory  []Message

	ProfileData        map[string]any
	MedicalDetails     map[string]any
	TravelArrangements map[string]any
	LocalLogistics     map[string]any

	// PlanParameters carries the backend's own bookkeeping (selected
	// options, finalized plan), echoed back to it on every turn.
	PlanParameters map[string]any

	// Timestamp is the stamp of the most recent local mutation or
	// persisted write, whichever happened last. Remote snapshots are
	// adopted only when strictly newer than this.
	Timestamp Stamp
}

// NewSession returns an empty session skeleton for the given identity.
func NewSession(sessionID, userID string) *Session {
	return &Session{
		SessionID:          sessionID,
		UserID:             userID,
		CurrentStage:       StageInitialQuery,
		ChatHistory:        []Message{},
		ProfileData:        map[string]any{},
		MedicalDetails:     map[string]any{},
		TravelArrangements: map[string]any{},
		LocalLogistics:     map[string]any{},
		PlanParameters:     map[string]any{},
	}
}

// Clone returns a copy safe to hand outside the store. History and the
// accumulator maps are copied one level deep; nested values are treated as
// immutable by every consumer.
func (s *Session) Clone() *Session {
	c := *s
	c.ChatHistory = append([]Message{}, s.ChatHistory...)
	c.ProfileData = copyMap(s.ProfileData)
	c.MedicalDetails = copyMap(s.MedicalDetails)
	c.TravelArrangements = copyMap(s.TravelArrangements)
	c.LocalLogistics = copyMap(s.LocalLogistics)
	c.PlanParameters = copyMap(s.PlanParameters)
	return &c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Patch is a shallow update of session state from a local user action.
// A non-nil field replaces the corresponding accumulator wholesale. There
// is deliberately no way to change the session's identity or stage here:
// identity is fixed at creation and the stage belongs to the backend.
type Patch struct {
	ProfileData        map[string]any
	MedicalDetails     map[string]any
	TravelArrangements map[string]any
	LocalLogistics     map[string]any
}

// IsZero reports whether the patch carries no changes.
func (p Patch) IsZero() bool {
	return p.ProfileData == nil && p.MedicalDetails == nil &&
		p.TravelArrangements == nil && p.LocalLogistics == nil
}

// PlanSummary is one row of the user's saved-plans listing.
type PlanSummary struct {
	SessionID    string
	CurrentStage string
	Messages     int
	Timestamp    Stamp
}
