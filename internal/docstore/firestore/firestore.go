// Package firestore adapts the hosted document platform to the docstore
// port. Session documents live at
// artifacts/{appID}/users/{userID}/sessions/{sessionID} with the profile at
// the sibling artifacts/{appID}/users/{userID}/profile/main; writes go
// through RunTransaction with MergeAll merge-writes, the live subscription
// through DocumentRef.Snapshots.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/common"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/docstore"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
)

type Store struct {
	client *firestore.Client
	appID  string
	log    logging.Logger
}

// NewStore connects to the project's Firestore database. appID scopes all
// document paths so several deployments can share one project.
func NewStore(ctx context.Context, projectID, appID string, log logging.Logger) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for the firestore store")
	}
	if log == nil {
		log = logging.Discard()
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Store{client: client, appID: appID, log: log}, nil
}

func (s *Store) userDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection("artifacts").Doc(s.appID).Collection("users").Doc(userID)
}

func (s *Store) sessionsCol(userID string) *firestore.CollectionRef {
	return s.userDoc(userID).Collection("sessions")
}

func (s *Store) sessionDoc(userID, sessionID string) *firestore.DocumentRef {
	return s.sessionsCol(userID).Doc(sessionID)
}

func (s *Store) profileDoc(userID string) *firestore.DocumentRef {
	return s.userDoc(userID).Collection("profile").Doc("main")
}

func (s *Store) GetSession(ctx context.Context, userID, sessionID string) (docstore.Doc, error) {
	snap, err := s.sessionDoc(userID, sessionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}
	return snap.Data(), nil
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]docstore.Doc, error) {
	it := s.sessionsCol(userID).OrderBy("timestamp", firestore.Desc).Documents(ctx)
	defer it.Stop()

	var docs []docstore.Doc
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListSessions: %w", err)
		}
		docs = append(docs, snap.Data())
	}
	return docs, nil
}

func (s *Store) DeleteSession(ctx context.Context, userID, sessionID string) error {
	ref := s.sessionDoc(userID, sessionID)

	// Existence check first: deleting an unknown plan must report failure,
	// not silently succeed.
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return common.ErrNotFound
		}
		return fmt.Errorf("firestore DeleteSession get: %w", err)
	}

	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("firestore DeleteSession: %w", err)
	}
	return nil
}

func (s *Store) DeleteAllSessions(ctx context.Context, userID string) error {
	it := s.sessionsCol(userID).Documents(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("firestore DeleteAllSessions: %w", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("firestore DeleteAllSessions: %w", err)
		}
	}
}

// fsTx adapts one running Firestore transaction to the port's Tx.
type fsTx struct {
	tx     *firestore.Transaction
	ref    *firestore.DocumentRef
	staged docstore.Doc
}

func (t *fsTx) Get() (docstore.Doc, bool, error) {
	snap, err := t.tx.Get(t.ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return snap.Data(), true, nil
}

func (t *fsTx) Merge(fields docstore.Doc) {
	if t.staged == nil {
		t.staged = docstore.Doc{}
	}
	t.staged = docstore.MergeDocs(t.staged, fields)
}

func (s *Store) RunSessionTx(ctx context.Context, userID, sessionID string, fn func(tx docstore.Tx) error) error {
	ref := s.sessionDoc(userID, sessionID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ft := &fsTx{tx: tx, ref: ref}
		if err := fn(ft); err != nil {
			return err
		}
		if ft.staged == nil {
			return nil
		}
		return tx.Set(ref, map[string]any(ft.staged), firestore.MergeAll)
	})
}

func (s *Store) WatchSession(ctx context.Context, userID, sessionID string) (docstore.Watcher, error) {
	it := s.sessionDoc(userID, sessionID).Snapshots(ctx)

	w := &watcher{it: it, ch: make(chan docstore.Doc, 1)}
	go func() {
		defer close(w.ch)
		for {
			snap, err := it.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					s.log.Warn(ctx, "session watch ended", "session_id", sessionID, "error", err)
				}
				return
			}
			if !snap.Exists() {
				w.push(nil)
				continue
			}
			w.push(snap.Data())
		}
	}()
	return w, nil
}

type watcher struct {
	it *firestore.DocumentSnapshotIterator
	ch chan docstore.Doc
}

// push delivers the latest snapshot, displacing an undelivered older one:
// the engine only ever cares about the newest remote state.
func (w *watcher) push(doc docstore.Doc) {
	for {
		select {
		case w.ch <- doc:
			return
		default:
			select {
			case <-w.ch:
			default:
			}
		}
	}
}

func (w *watcher) Updates() <-chan docstore.Doc { return w.ch }

func (w *watcher) Close() error {
	w.it.Stop()
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (docstore.Doc, error) {
	snap, err := s.profileDoc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetProfile: %w", err)
	}
	return snap.Data(), nil
}

func (s *Store) SetProfile(ctx context.Context, userID string, fields docstore.Doc) error {
	if _, err := s.profileDoc(userID).Set(ctx, map[string]any(fields), firestore.MergeAll); err != nil {
		return fmt.Errorf("firestore SetProfile: %w", err)
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	if _, err := s.profileDoc(userID).Delete(ctx); err != nil {
		return fmt.Errorf("firestore DeleteProfile: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
