// Package postgres adapts a self-hosted PostgreSQL database to the
// docstore port. Documents are JSONB rows keyed by (app_id, user_id,
// session_id); transactions take a row lock with SELECT ... FOR UPDATE so
// concurrent turn commits serialize on the session row, and the write path
// raises pg_notify on the session_changes channel so watchers can re-fetch.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/common"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/dbx"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/docstore"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/docstore/postgres/migrations"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
)

const notifyChannel = "session_changes"

type Store struct {
	db    *sql.DB
	dsn   string
	appID string
	log   logging.Logger
}

// NewStore opens the database at dsn and brings the schema up to date.
func NewStore(ctx context.Context, dsn, appID string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Discard()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres store: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating postgres store: %w", err)
	}

	return &Store{db: db, dsn: dsn, appID: appID, log: log}, nil
}

func decodeDoc(raw []byte) (docstore.Doc, error) {
	var doc docstore.Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}

func (s *Store) GetSession(ctx context.Context, userID, sessionID string) (docstore.Doc, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM session_docs
		WHERE app_id = $1 AND user_id = $2 AND session_id = $3
	`, s.appID, userID, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session document: %w", err)
	}
	return decodeDoc(raw)
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]docstore.Doc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM session_docs
		WHERE app_id = $1 AND user_id = $2
		ORDER BY doc->>'timestamp' DESC
	`, s.appID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing session documents: %w", err)
	}
	defer rows.Close()

	var docs []docstore.Doc
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning session document: %w", err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session documents: %w", err)
	}
	return docs, nil
}

func (s *Store) DeleteSession(ctx context.Context, userID, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM session_docs
		WHERE app_id = $1 AND user_id = $2 AND session_id = $3
	`, s.appID, userID, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting session document: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	s.notify(ctx, userID, sessionID)
	return nil
}

func (s *Store) DeleteAllSessions(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM session_docs WHERE app_id = $1 AND user_id = $2
	`, s.appID, userID); err != nil {
		return fmt.Errorf("deleting session documents: %w", err)
	}
	return nil
}

// pgTx adapts one row-locked transaction to the port's Tx.
type pgTx struct {
	ctx       context.Context
	tx        dbx.DBTX
	store     *Store
	userID    string
	sessionID string

	current docstore.Doc
	exists  bool
	loaded  bool
	staged  docstore.Doc
}

func (t *pgTx) Get() (docstore.Doc, bool, error) {
	if t.loaded {
		return t.current, t.exists, nil
	}

	var raw []byte
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT doc FROM session_docs
		WHERE app_id = $1 AND user_id = $2 AND session_id = $3
		FOR UPDATE
	`, t.store.appID, t.userID, t.sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		t.loaded = true
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("locking session document: %w", err)
	}

	doc, err := decodeDoc(raw)
	if err != nil {
		return nil, false, err
	}
	t.current, t.exists, t.loaded = doc, true, true
	return doc, true, nil
}

func (t *pgTx) Merge(fields docstore.Doc) {
	if t.staged == nil {
		t.staged = docstore.Doc{}
	}
	t.staged = docstore.MergeDocs(t.staged, fields)
}

func (s *Store) RunSessionTx(ctx context.Context, userID, sessionID string, fn func(tx docstore.Tx) error) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		pt := &pgTx{ctx: ctx, tx: tx, store: s, userID: userID, sessionID: sessionID}
		if err := fn(pt); err != nil {
			return err
		}
		if pt.staged == nil {
			return nil
		}

		// The row lock from Get keeps this read-merge-write atomic; fn not
		// having called Get is handled by loading here.
		cur, exists, err := pt.Get()
		if err != nil {
			return err
		}
		merged := pt.staged
		if exists {
			merged = docstore.MergeDocs(cur, pt.staged)
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encoding session document: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_docs (app_id, user_id, session_id, doc)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (app_id, user_id, session_id) DO UPDATE SET doc = excluded.doc
		`, s.appID, userID, sessionID, raw)
		if err != nil {
			return fmt.Errorf("writing session document: %w", err)
		}

		// pg_notify inside the transaction delivers on commit only.
		_, err = tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`,
			notifyChannel, watchPayload(userID, sessionID))
		return err
	})
	if err != nil {
		return err
	}
	return nil
}

// notify raises a change notification outside a transaction (deletes).
func (s *Store) notify(ctx context.Context, userID, sessionID string) {
	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`,
		notifyChannel, watchPayload(userID, sessionID)); err != nil {
		s.log.Warn(ctx, "change notification failed", "session_id", sessionID, "error", err)
	}
}

func watchPayload(userID, sessionID string) string {
	return userID + "/" + sessionID
}

// WatchSession listens on the session_changes channel with a dedicated
// native connection and re-fetches the document on every matching
// notification. The current state is delivered first.
func (s *Store) WatchSession(ctx context.Context, userID, sessionID string) (docstore.Watcher, error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("opening watch connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("subscribing to changes: %w", err)
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &watcher{ch: make(chan docstore.Doc, 1), cancel: cancel}
	payload := watchPayload(userID, sessionID)

	go func() {
		defer close(w.ch)
		defer conn.Close(context.Background())

		w.push(s.fetchOrNil(wctx, userID, sessionID))

		for {
			n, err := conn.WaitForNotification(wctx)
			if err != nil {
				if wctx.Err() == nil {
					s.log.Warn(wctx, "session watch ended", "session_id", sessionID, "error", err)
				}
				return
			}
			if n.Payload != payload {
				continue
			}
			w.push(s.fetchOrNil(wctx, userID, sessionID))
		}
	}()
	return w, nil
}

func (s *Store) fetchOrNil(ctx context.Context, userID, sessionID string) docstore.Doc {
	doc, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil
	}
	return doc
}

type watcher struct {
	ch     chan docstore.Doc
	cancel context.CancelFunc
}

// push delivers the latest snapshot, displacing an undelivered older one.
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
	w.cancel()
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (docstore.Doc, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM profile_docs WHERE app_id = $1 AND user_id = $2
	`, s.appID, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile document: %w", err)
	}
	return decodeDoc(raw)
}

func (s *Store) SetProfile(ctx context.Context, userID string, fields docstore.Doc) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var raw []byte
		merged := fields
		err := tx.QueryRowContext(ctx, `
			SELECT doc FROM profile_docs
			WHERE app_id = $1 AND user_id = $2
			FOR UPDATE
		`, s.appID, userID).Scan(&raw)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("locking profile document: %w", err)
		}
		if err == nil {
			cur, err := decodeDoc(raw)
			if err != nil {
				return err
			}
			merged = docstore.MergeDocs(cur, fields)
		}

		out, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encoding profile document: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO profile_docs (app_id, user_id, doc)
			VALUES ($1, $2, $3)
			ON CONFLICT (app_id, user_id) DO UPDATE SET doc = excluded.doc
		`, s.appID, userID, out)
		if err != nil {
			return fmt.Errorf("writing profile document: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM profile_docs WHERE app_id = $1 AND user_id = $2
	`, s.appID, userID); err != nil {
		return fmt.Errorf("deleting profile document: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
