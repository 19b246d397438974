package firestore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/docstore"
)

var _ docstore.Store = (*Store)(nil)

func TestWatcherPush_LatestSnapshotWins(t *testing.T) {
	w := &watcher{ch: make(chan docstore.Doc, 1)}

	w.push(docstore.Doc{"timestamp": "1"})
	w.push(docstore.Doc{"timestamp": "2"})
	w.push(docstore.Doc{"timestamp": "3"})

	got := <-w.ch
	assert.Equal(t, "3", got["timestamp"], "undelivered older snapshots are displaced")

	select {
	case doc := <-w.ch:
		t.Fatalf("unexpected extra snapshot: %v", doc)
	default:
	}
}

func TestWatcherPush_NilMarksDeletion(t *testing.T) {
	w := &watcher{ch: make(chan docstore.Doc, 1)}

	w.push(docstore.Doc{"timestamp": "1"})
	w.push(nil)

	got := <-w.ch
	assert.Nil(t, got)
}
