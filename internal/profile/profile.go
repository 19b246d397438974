// Package profile manages the user's durable preference document: a single
// per-user document independent of any plan session, created on first save,
// mutable at any time and deletable without touching session history. Its
// fields seed new plans (nationality, medical purpose, budget, departure
// city) and carry the profile photo's storage key.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/clock"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/common"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/docstore"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
)

// Well-known profile fields. The document is otherwise schemaless; the
// client stores whatever the wizard collects.
const (
	FieldNationality    = "nationality"
	FieldMedicalPurpose = "medical_purpose"
	FieldBudget         = "estimated_budget"
	FieldDepartureCity  = "departure_city"
	FieldPhotoKey       = "photo_key"

	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// seedFields are the profile fields copied into a new plan's state.
var seedFields = []string{FieldNationality, FieldMedicalPurpose, FieldBudget, FieldDepartureCity}

// Manager reads and writes the profile document.
type Manager struct {
	docs docstore.Store
	clk  clock.Clock
	log  logging.Logger
}

// NewManager wires a Manager over the document store.
func NewManager(docs docstore.Store, clk clock.Clock, log logging.Logger) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{docs: docs, clk: clk, log: log}
}

// Get returns the user's profile document, or common.ErrNotFound when none
// has been saved yet.
func (m *Manager) Get(ctx context.Context, userID string) (docstore.Doc, error) {
	if userID == "" {
		return nil, common.ErrNotSignedIn
	}
	return m.docs.GetProfile(ctx, userID)
}

// Save merge-writes fields into the profile document, setting created_at on
// first save and updated_at on every save.
func (m *Manager) Save(ctx context.Context, userID string, fields docstore.Doc) error {
	if userID == "" {
		return common.ErrNotSignedIn
	}

	now := m.clk.Now().UTC().Format(time.RFC3339)
	write := docstore.CloneDoc(fields)
	if write == nil {
		write = docstore.Doc{}
	}
	write[fieldUpdatedAt] = now

	_, err := m.docs.GetProfile(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		write[fieldCreatedAt] = now
	} else if err != nil {
		return fmt.Errorf("reading profile: %w", err)
	}

	if err := m.docs.SetProfile(ctx, userID, write); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	m.log.Info(ctx, "profile saved", "user_id", userID, "fields", len(fields))
	return nil
}

// Delete removes the profile document. An absent profile deletes cleanly.
func (m *Manager) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return common.ErrNotSignedIn
	}
	if err := m.docs.DeleteProfile(ctx, userID); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

// PhotoKey returns the storage key of the user's profile photo, or "".
func (m *Manager) PhotoKey(ctx context.Context, userID string) string {
	doc, err := m.Get(ctx, userID)
	if err != nil {
		return ""
	}
	key, _ := doc[FieldPhotoKey].(string)
	return key
}

// SetPhotoKey records the storage key of the uploaded profile photo.
func (m *Manager) SetPhotoKey(ctx context.Context, userID, key string) error {
	return m.Save(ctx, userID, docstore.Doc{FieldPhotoKey: key})
}

// Seed returns the profile fields that prime a new plan's state. A missing
// or unreadable profile degrades to an empty seed rather than blocking the
// plan start.
func (m *Manager) Seed(ctx context.Context, userID string) map[string]any {
	doc, err := m.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			m.log.Warn(ctx, "profile unavailable for plan seed", "error", err)
		}
		return map[string]any{}
	}

	seed := map[string]any{}
	for _, f := range seedFields {
		if v, ok := doc[f]; ok {
			seed[f] = v
		}
	}
	return seed
}
