package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertAndGet(t *testing.T) {
	store := newTestStore(t)

	item := Item{RemoteID: "abc123", Name: "Docs", IsFolder: true}
	require.NoError(t, store.Upsert(item))

	got, err := store.Get("abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Docs", got.Name)
	assert.True(t, got.IsFolder)
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	store := newTestStore(t)
	err := store.Upsert(Item{Name: "no id"})
	assert.Error(t, err)
}

func TestUpsertBatchDropsOffendingRowButContinues(t *testing.T) {
	store := newTestStore(t)
	err := store.UpsertBatch([]Item{
		{RemoteID: "", Name: "bad"},
		{RemoteID: "ok1", Name: "good"},
	})
	require.NoError(t, err)

	bad, err := store.Get("")
	require.NoError(t, err)
	assert.Nil(t, bad)

	good, err := store.Get("ok1")
	require.NoError(t, err)
	require.NotNil(t, good)
}

func TestChildrenAndRoot(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Upsert(Item{RemoteID: "root1", Name: "Docs", IsFolder: true}))
	require.NoError(t, store.Upsert(Item{RemoteID: "child1", Name: "a.txt", ParentID: "root1"}))
	require.NoError(t, store.Upsert(Item{RemoteID: "child2", Name: "b.txt", ParentID: "root1"}))
	require.NoError(t, store.Upsert(Item{RemoteID: "other-root", Name: "Pics", IsFolder: true}))

	children, err := store.Children("root1", nil)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	roots, err := store.Children("", nil)
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	root, err := store.Root("Docs")
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "root1", root.RemoteID)

	none, err := store.Root("Nonexistent")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestChildrenPredicateFilters(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Upsert(Item{RemoteID: "root1", Name: "Docs", IsFolder: true}))
	require.NoError(t, store.Upsert(Item{RemoteID: "child1", Name: "a.txt", ParentID: "root1"}))
	require.NoError(t, store.Upsert(Item{RemoteID: "child2", Name: "b.txt", ParentID: "root1", IsFolder: true}))

	foldersOnly, err := store.Children("root1", func(i Item) bool { return i.IsFolder })
	require.NoError(t, err)
	require.Len(t, foldersOnly, 1)
	assert.Equal(t, "child2", foldersOnly[0].RemoteID)
}

func TestMarkAllNotExistingThenSweep(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Upsert(Item{RemoteID: "keep", Name: "keep", Existing: true}))
	require.NoError(t, store.Upsert(Item{RemoteID: "drop", Name: "drop", Existing: true}))

	require.NoError(t, store.MarkAllNotExisting())

	// simulate refresh re-observing "keep" but never seeing "drop" again
	kept, err := store.Get("keep")
	require.NoError(t, err)
	kept.Existing = true
	require.NoError(t, store.Upsert(*kept))

	require.NoError(t, store.SweepNotExisting())

	gotKeep, err := store.Get("keep")
	require.NoError(t, err)
	assert.NotNil(t, gotKeep)

	gotDrop, err := store.Get("drop")
	require.NoError(t, err)
	assert.Nil(t, gotDrop)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Upsert(Item{RemoteID: "x", Name: "x"}))
	require.NoError(t, store.Delete([]string{"x"}))
	got, err := store.Get("x")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCompactPreservesData(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Upsert(Item{
		RemoteID: "x", Name: "x", Size: 10, MTime: time.Unix(1000, 0),
	}))
	require.NoError(t, store.Compact())

	got, err := store.Get("x")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 10, got.Size)
}
