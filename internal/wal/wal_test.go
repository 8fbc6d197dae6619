package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgrustql/internal/catalog"
	"postgrustql/internal/storage"
	"postgrustql/internal/storage/page"
	"postgrustql/internal/types"
)

func TestWriterAppendAndReopen(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, nil)
	require.NoError(t, err)

	lsn1, err := w.Append(Record{Kind: KindBegin, TxID: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lsn1)

	tuple := page.EncodeTuple(1, nil, []types.Value{types.NewInteger(7)})
	lsn2, err := w.Append(Record{Kind: KindInsert, TxID: 1, Table: "t", Row: page.RowID{Page: 0, Slot: 0}, Payload: tuple})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), lsn2)

	_, err = w.Append(Record{Kind: KindCommit, TxID: 1})
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	w2, err := Open(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), w2.nextLSN)
}

func TestRecoveryRedoCommittedOnly(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, nil)
	require.NoError(t, err)

	tuple1 := page.EncodeTuple(1, nil, []types.Value{types.NewInteger(1)})
	_, err = w.Append(Record{Kind: KindBegin, TxID: 1})
	require.NoError(t, err)
	_, err = w.Append(Record{Kind: KindInsert, TxID: 1, Table: "t", Payload: tuple1})
	require.NoError(t, err)
	_, err = w.Append(Record{Kind: KindCommit, TxID: 1})
	require.NoError(t, err)

	tuple2 := page.EncodeTuple(2, nil, []types.Value{types.NewInteger(2)})
	_, err = w.Append(Record{Kind: KindBegin, TxID: 2})
	require.NoError(t, err)
	_, err = w.Append(Record{Kind: KindInsert, TxID: 2, Table: "t", Payload: tuple2})
	require.NoError(t, err)
	// tx 2 never commits: simulates a crash mid-transaction.

	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	rec, err := Scan(dir)
	require.NoError(t, err)
	assert.True(t, rec.Committed[1])
	assert.False(t, rec.Committed[2])

	mem := storage.NewMemRowStorage()
	require.NoError(t, rec.Redo(func(table string) storage.RowStorage {
		if table == "t" {
			return mem
		}
		return nil
	}))

	n, err := mem.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, nil)
	require.NoError(t, err)

	inst := catalog.NewServerInstance()
	inst.Initialize("root", "secret", "maindb")

	path := dir + "/catalog.bin"
	_, err = w.WriteCheckpoint(path, inst, nil)
	require.NoError(t, err)

	loaded, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Contains(t, loaded.Databases, "maindb")
	assert.Contains(t, loaded.Users, "root")
}
