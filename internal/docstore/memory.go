package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/common"
)

// Memory is an in-process Store with full watch and transaction fidelity.
// Tests and offline development run against it.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]map[string]Doc // userID -> sessionID -> doc
	profiles map[string]Doc
	watchers map[string][]*memWatcher // userID/sessionID -> subscribers
	closed   bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: map[string]map[string]Doc{},
		profiles: map[string]Doc{},
		watchers: map[string][]*memWatcher{},
	}
}

func watchKey(userID, sessionID string) string { return userID + "/" + sessionID }

func (m *Memory) GetSession(ctx context.Context, userID, sessionID string) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.sessions[userID][sessionID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return CloneDoc(doc), nil
}

func (m *Memory) ListSessions(ctx context.Context, userID string) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := make([]Doc, 0, len(m.sessions[userID]))
	for _, doc := range m.sessions[userID] {
		docs = append(docs, CloneDoc(doc))
	}
	sort.Slice(docs, func(i, j int) bool {
		a, _ := docs[i]["timestamp"].(string)
		b, _ := docs[j]["timestamp"].(string)
		return a > b
	})
	return docs, nil
}

func (m *Memory) DeleteSession(ctx context.Context, userID, sessionID string) error {
	m.mu.Lock()
	if _, ok := m.sessions[userID][sessionID]; !ok {
		m.mu.Unlock()
		return common.ErrNotFound
	}
	delete(m.sessions[userID], sessionID)
	watchers := m.snapshotWatchersLocked(userID, sessionID)
	m.mu.Unlock()

	for _, w := range watchers {
		w.push(nil)
	}
	return nil
}

func (m *Memory) DeleteAllSessions(ctx context.Context, userID string) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions[userID]))
	for id := range m.sessions[userID] {
		ids = append(ids, id)
	}
	var notify []*memWatcher
	for _, id := range ids {
		delete(m.sessions[userID], id)
		notify = append(notify, m.snapshotWatchersLocked(userID, id)...)
	}
	m.mu.Unlock()

	for _, w := range notify {
		w.push(nil)
	}
	return nil
}

type memTx struct {
	current Doc
	exists  bool
	staged  []Doc
}

func (t *memTx) Get() (Doc, bool, error) {
	if !t.exists {
		return nil, false, nil
	}
	return CloneDoc(t.current), true, nil
}

func (t *memTx) Merge(fields Doc) {
	t.staged = append(t.staged, CloneDoc(fields))
}

// RunSessionTx serializes transactions under the store lock, which gives
// the same effect as the hosted platform's optimistic retries: each
// transaction sees the latest committed document.
func (m *Memory) RunSessionTx(ctx context.Context, userID, sessionID string, fn func(tx Tx) error) error {
	m.mu.Lock()
	doc, exists := m.sessions[userID][sessionID]
	tx := &memTx{current: doc, exists: exists}

	if err := fn(tx); err != nil {
		m.mu.Unlock()
		return err
	}
	if len(tx.staged) == 0 {
		m.mu.Unlock()
		return nil
	}

	merged := CloneDoc(doc)
	if merged == nil {
		merged = Doc{}
	}
	for _, fields := range tx.staged {
		merged = MergeDocs(merged, fields)
	}
	if m.sessions[userID] == nil {
		m.sessions[userID] = map[string]Doc{}
	}
	m.sessions[userID][sessionID] = merged
	watchers := m.snapshotWatchersLocked(userID, sessionID)
	snapshot := CloneDoc(merged)
	m.mu.Unlock()

	for _, w := range watchers {
		w.push(CloneDoc(snapshot))
	}
	return nil
}

func (m *Memory) WatchSession(ctx context.Context, userID, sessionID string) (Watcher, error) {
	m.mu.Lock()
	w := &memWatcher{
		store: m,
		key:   watchKey(userID, sessionID),
		ch:    make(chan Doc, 1),
	}
	m.watchers[w.key] = append(m.watchers[w.key], w)
	doc, exists := m.sessions[userID][sessionID]
	var initial Doc
	if exists {
		initial = CloneDoc(doc)
	}
	m.mu.Unlock()

	// Matching the hosted platform: the current state arrives first.
	w.push(initial)

	go func() {
		<-ctx.Done()
		_ = w.Close()
	}()
	return w, nil
}

func (m *Memory) snapshotWatchersLocked(userID, sessionID string) []*memWatcher {
	key := watchKey(userID, sessionID)
	return append([]*memWatcher(nil), m.watchers[key]...)
}

func (m *Memory) GetProfile(ctx context.Context, userID string) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.profiles[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return CloneDoc(doc), nil
}

func (m *Memory) SetProfile(ctx context.Context, userID string, fields Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles[userID] = MergeDocs(m.profiles[userID], fields)
	return nil
}

func (m *Memory) DeleteProfile(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.profiles, userID)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	var all []*memWatcher
	for _, ws := range m.watchers {
		all = append(all, ws...)
	}
	m.watchers = map[string][]*memWatcher{}
	m.closed = true
	m.mu.Unlock()

	for _, w := range all {
		w.closeChan()
	}
	return nil
}

type memWatcher struct {
	store *Memory
	key   string
	ch    chan Doc

	mu     sync.Mutex
	closed bool
}

func (w *memWatcher) Updates() <-chan Doc { return w.ch }

// push delivers the latest snapshot, displacing an unconsumed older one so
// a slow consumer always sees the most recent state.
func (w *memWatcher) push(doc Doc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
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

func (w *memWatcher) Close() error {
	w.store.mu.Lock()
	ws := w.store.watchers[w.key]
	for i, other := range ws {
		if other == w {
			w.store.watchers[w.key] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	w.store.mu.Unlock()

	w.closeChan()
	return nil
}

func (w *memWatcher) closeChan() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}
