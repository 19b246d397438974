// Package docstore defines the document-store port the session engine
// writes through: per-user session documents with transactional
// read-modify-merge writes and a live snapshot subscription, plus a single
// profile document per user.
//
// Adapters exist for the hosted platform (firestore), a self-hosted
// database (postgres) and an in-memory store used by tests and offline
// development. All adapters share merge-write semantics: map fields merge
// recursively, any other value (arrays included) replaces wholesale.
package docstore

import "context"

// Doc is a schemaless document in its map form.
type Doc = map[string]any

// Store is the document-store port.
type Store interface {
	// GetSession returns the session document, or common.ErrNotFound.
	GetSession(ctx context.Context, userID, sessionID string) (Doc, error)

	// ListSessions returns all of the user's session documents ordered by
	// their "timestamp" field, most recent first.
	ListSessions(ctx context.Context, userID string) ([]Doc, error)

	// DeleteSession removes the session document. Deleting an absent
	// document returns common.ErrNotFound.
	DeleteSession(ctx context.Context, userID, sessionID string) error

	// DeleteAllSessions removes every session document of the user.
	DeleteAllSessions(ctx context.Context, userID string) error

	// RunSessionTx runs fn inside a transaction scoped to one session
	// document. Merges staged through the Tx are committed atomically when
	// fn returns nil and discarded otherwise.
	RunSessionTx(ctx context.Context, userID, sessionID string, fn func(tx Tx) error) error

	// WatchSession subscribes to live snapshots of the session document.
	// The current state is delivered first; deletion is delivered as a nil
	// Doc. The subscription ends when ctx is cancelled or Close is called.
	WatchSession(ctx context.Context, userID, sessionID string) (Watcher, error)

	// GetProfile returns the user's profile document, or common.ErrNotFound.
	GetProfile(ctx context.Context, userID string) (Doc, error)

	// SetProfile merge-writes fields into the profile document, creating
	// it if absent.
	SetProfile(ctx context.Context, userID string, fields Doc) error

	// DeleteProfile removes the profile document. Absent profiles delete
	// as a no-op.
	DeleteProfile(ctx context.Context, userID string) error

	Close() error
}

// Tx is the handle passed to a session transaction function.
type Tx interface {
	// Get returns the current session document and whether it exists.
	// An absent document is reported as (nil, false, nil).
	Get() (Doc, bool, error)

	// Merge stages a merge-write applied when the transaction commits.
	Merge(fields Doc)
}

// Watcher delivers live document snapshots.
type Watcher interface {
	// Updates returns the snapshot channel. It is closed when the
	// subscription ends.
	Updates() <-chan Doc

	// Close ends the subscription.
	Close() error
}

// MergeDocs returns base with overlay merged in, using the shared
// merge-write semantics. Neither argument is modified.
func MergeDocs(base, overlay Doc) Doc {
	out := make(Doc, len(base)+len(overlay))
	for k, v := range base {
		out[k] = CloneValue(v)
	}
	for k, v := range overlay {
		if sub, ok := v.(map[string]any); ok {
			if cur, ok := out[k].(map[string]any); ok {
				out[k] = MergeDocs(cur, sub)
				continue
			}
		}
		out[k] = CloneValue(v)
	}
	return out
}

// CloneDoc deep-copies a document.
func CloneDoc(d Doc) Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies maps and slices; scalars are returned as-is.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneDoc(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}
