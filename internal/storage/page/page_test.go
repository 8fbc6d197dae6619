package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgrustql/internal/types"
)

func TestPageInsertReadRoundTrip(t *testing.T) {
	p := New(ID(0))
	tuple := EncodeTuple(1, nil, []types.Value{types.NewInteger(42), types.NewText("hello")})

	slot, err := p.Insert(tuple)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), slot)

	got, live, err := p.Read(slot)
	require.NoError(t, err)
	assert.True(t, live)

	xmin, xmax, values, err := DecodeTuple(got)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), xmin)
	assert.Nil(t, xmax)
	assert.Equal(t, int64(42), values[0].I64)
	assert.Equal(t, "hello", values[1].Str)
}

func TestPageBytesRoundTrip(t *testing.T) {
	p := New(ID(7))
	tuple := EncodeTuple(3, nil, []types.Value{types.NewBoolean(true)})
	_, err := p.Insert(tuple)
	require.NoError(t, err)

	raw := p.Bytes()
	loaded, err := Load(raw)
	require.NoError(t, err)
	assert.Equal(t, ID(7), loaded.ID())
	assert.Equal(t, 1, loaded.SlotCount())

	got, live, err := loaded.Read(0)
	require.NoError(t, err)
	assert.True(t, live)
	_, _, values, err := DecodeTuple(got)
	require.NoError(t, err)
	assert.True(t, values[0].Bool)
}

func TestPageLoadDetectsCorruption(t *testing.T) {
	p := New(ID(1))
	_, err := p.Insert(EncodeTuple(1, nil, []types.Value{types.NewInteger(1)}))
	require.NoError(t, err)
	raw := p.Bytes()
	raw[headerLen] ^= 0xFF // corrupt a byte inside the checksummed region

	_, err = Load(raw)
	assert.Error(t, err)
}

func TestPageMarkDeletedSkippedByScan(t *testing.T) {
	p := New(ID(0))
	s1, _ := p.Insert(EncodeTuple(1, nil, []types.Value{types.NewInteger(1)}))
	_, _ = p.Insert(EncodeTuple(1, nil, []types.Value{types.NewInteger(2)}))
	require.NoError(t, p.MarkDeleted(s1))

	var seen []uint16
	p.Scan(func(slot uint16, tuple []byte) bool {
		seen = append(seen, slot)
		return true
	})
	assert.Equal(t, []uint16{1}, seen)
}

func TestRewriteXmaxInPlace(t *testing.T) {
	p := New(ID(0))
	slot, _ := p.Insert(EncodeTuple(1, nil, []types.Value{types.NewInteger(5)}))

	err := p.RewriteAt(slot, func(b []byte) error { return RewriteXmax(b, 9) })
	require.NoError(t, err)

	tuple, _, _ := p.Read(slot)
	xmax, err := ReadXmax(tuple)
	require.NoError(t, err)
	require.NotNil(t, xmax)
	assert.Equal(t, uint64(9), *xmax)
}

func TestCanFitRespectsSlotDirectoryGrowth(t *testing.T) {
	p := New(ID(0))
	big := make([]byte, Size-headerLen-slotLen-1)
	assert.True(t, p.CanFit(len(big)-100))
}
