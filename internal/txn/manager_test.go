package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgrustql/internal/storage"
	"postgrustql/internal/storage/page"
	"postgrustql/internal/types"
	"postgrustql/internal/wal"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	w, err := wal.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return NewManager(w, nil)
}

func TestBeginAllocatesIncreasingIDs(t *testing.T) {
	m := newTestManager(t)
	tx1, err := m.Begin()
	require.NoError(t, err)
	tx2, err := m.Begin()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tx1.ID())
	assert.Equal(t, uint64(2), tx2.ID())

	snap := m.Snapshot()
	assert.True(t, snap[1])
	assert.True(t, snap[2])

	require.NoError(t, tx1.Commit())
	require.NoError(t, tx2.Commit())
	assert.Empty(t, m.Snapshot())
}

func TestCommitRemovesFromActiveSet(t *testing.T) {
	m := newTestManager(t)
	tx, err := m.Begin()
	require.NoError(t, err)
	assert.True(t, m.Snapshot()[tx.ID()])
	require.NoError(t, tx.Commit())
	assert.False(t, m.Snapshot()[tx.ID()])
}

func TestRollbackUndoesInsert(t *testing.T) {
	m := newTestManager(t)
	mem := storage.NewMemRowStorage()
	resolve := func(table string) storage.RowStorage {
		if table == "t" {
			return mem
		}
		return nil
	}

	tx, err := m.Begin()
	require.NoError(t, err)

	id, err := mem.Insert(tx.ID(), []types.Value{types.NewInteger(1)})
	require.NoError(t, err)
	tx.RecordInsert("t", id, page.EncodeTuple(tx.ID(), nil, []types.Value{types.NewInteger(1)}))

	require.NoError(t, tx.Rollback(resolve))

	n, err := mem.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, m.Snapshot()[tx.ID()])
}

func TestRollbackClearsXmaxOnDelete(t *testing.T) {
	m := newTestManager(t)
	mem := storage.NewMemRowStorage()
	resolve := func(table string) storage.RowStorage { return mem }

	seed, err := m.Begin()
	require.NoError(t, err)
	id, err := mem.Insert(seed.ID(), []types.Value{types.NewInteger(1)})
	require.NoError(t, err)
	require.NoError(t, seed.Commit())

	tx, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, mem.StampXmax(id, tx.ID()))
	tx.RecordDelete("t", id, page.EncodeTuple(seed.ID(), nil, []types.Value{types.NewInteger(1)}))

	require.NoError(t, tx.Rollback(resolve))

	var xmax *uint64
	require.NoError(t, mem.Scan(func(r storage.Row) bool {
		xmax = r.Xmax
		return true
	}))
	assert.Nil(t, xmax)
}

func TestVisibilityOwnWritesVisible(t *testing.T) {
	snapshot := map[uint64]bool{3: true}
	assert.True(t, Visible(3, nil, 3, snapshot), "a transaction sees its own uncommitted insert")
	assert.False(t, Visible(3, nil, 4, snapshot), "another transaction does not see it while 3 is active")
}

func TestVisibilityCommittedDeleteHidesRow(t *testing.T) {
	xmax := uint64(2)
	snapshot := map[uint64]bool{} // both xmin=1 and xmax=2 have completed
	assert.False(t, Visible(1, &xmax, 5, snapshot))
}

func TestVisibilityUncommittedDeleteStillVisible(t *testing.T) {
	xmax := uint64(2)
	snapshot := map[uint64]bool{2: true} // deleting tx still active
	assert.True(t, Visible(1, &xmax, 5, snapshot))
}

func TestVisibilityFutureDeleteStillVisible(t *testing.T) {
	xmax := uint64(10)
	snapshot := map[uint64]bool{}
	assert.True(t, Visible(1, &xmax, 5, snapshot), "a delete by a transaction with a higher id than the reader is not yet relevant")
}

func TestVisibilityOwnDeleteHidesRow(t *testing.T) {
	xmax := uint64(5)
	snapshot := map[uint64]bool{5: true} // reader's own transaction, still active
	assert.False(t, Visible(1, &xmax, 5, snapshot), "a transaction does not see the row it just deleted itself")
}
