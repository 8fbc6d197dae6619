package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgrustql/internal/storage/buffer"
	"postgrustql/internal/storage/page"
	"postgrustql/internal/types"
)

var (
	_ RowStorage = (*PagedStorage)(nil)
	_ RowStorage = (*MemRowStorage)(nil)
)

func newTestPagedStorage(t *testing.T) *PagedStorage {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "table-*.pages")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	pf, err := page.Open(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pf.Close() })

	pool := buffer.New(4)
	return Open(pf, pool)
}

func TestPagedStorageInsertAndScan(t *testing.T) {
	ps := newTestPagedStorage(t)

	_, err := ps.Insert(1, []types.Value{types.NewInteger(1), types.NewText("a")})
	require.NoError(t, err)
	_, err = ps.Insert(1, []types.Value{types.NewInteger(2), types.NewText("b")})
	require.NoError(t, err)

	var seen []int64
	require.NoError(t, ps.Scan(func(r Row) bool {
		seen = append(seen, r.Values[0].I64)
		return true
	}))
	assert.Equal(t, []int64{1, 2}, seen)

	n, err := ps.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPagedStorageStampAndClearXmax(t *testing.T) {
	ps := newTestPagedStorage(t)
	id, err := ps.Insert(1, []types.Value{types.NewInteger(1)})
	require.NoError(t, err)

	require.NoError(t, ps.StampXmax(id, 5))
	var xmax *uint64
	require.NoError(t, ps.Scan(func(r Row) bool {
		xmax = r.Xmax
		return true
	}))
	require.NotNil(t, xmax)
	assert.Equal(t, uint64(5), *xmax)

	require.NoError(t, ps.ClearXmax(id))
	xmax = nil
	require.NoError(t, ps.Scan(func(r Row) bool {
		xmax = r.Xmax
		return true
	}))
	assert.Nil(t, xmax)
}

func TestPagedStorageSpansMultiplePages(t *testing.T) {
	ps := newTestPagedStorage(t)
	big := make([]byte, 4000)
	for i := range big {
		big[i] = 'x'
	}
	for i := 0; i < 5; i++ {
		_, err := ps.Insert(1, []types.Value{types.NewBytea(big)})
		require.NoError(t, err)
	}
	n, err := ps.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Greater(t, len(ps.pageIDs), 1)
}

func TestMemRowStorageRoundTrip(t *testing.T) {
	m := NewMemRowStorage()
	id, err := m.Insert(1, []types.Value{types.NewInteger(7)})
	require.NoError(t, err)
	require.NoError(t, m.StampXmax(id, 3))

	var xmax *uint64
	require.NoError(t, m.Scan(func(r Row) bool {
		xmax = r.Xmax
		return true
	}))
	require.NotNil(t, xmax)
	assert.Equal(t, uint64(3), *xmax)
}
