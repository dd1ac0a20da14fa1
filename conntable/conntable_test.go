package conntable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BonsonW/renetsteam/sdk"
)

type closeCall struct {
	end    sdk.ConnectionEnd
	reason string
	linger bool
}

type fakeConn struct {
	handle uint32
	closes []closeCall
}

func (c *fakeConn) Handle() uint32 { return c.handle }

func (c *fakeConn) ReceiveMessages(int) ([]sdk.Message, error) { return nil, nil }

func (c *fakeConn) Close(end sdk.ConnectionEnd, reason string, linger bool) error {
	c.closes = append(c.closes, closeCall{end, reason, linger})
	return nil
}

func TestNew(t *testing.T) {
	tbl := New()
	require.NotNil(t, tbl)
	assert.Equal(t, 0, tbl.Len())
	assert.False(t, tbl.Has(1))
}

func TestTable_Insert_Get(t *testing.T) {
	tbl := New()
	c := &fakeConn{handle: 1}

	tbl.Insert(7, c)
	got, ok := tbl.Get(7)
	assert.True(t, ok)
	assert.Same(t, c, got)
	assert.Empty(t, c.closes, "get does not release")

	t.Run("missing id", func(t *testing.T) {
		got, ok := tbl.Get(8)
		assert.False(t, ok)
		assert.Nil(t, got)
	})
}

func TestTable_Insert_replacesAndDropsPrevious(t *testing.T) {
	tbl := New()
	first := &fakeConn{handle: 1}
	second := &fakeConn{handle: 2}

	tbl.Insert(7, first)
	tbl.Insert(7, second)

	assert.Equal(t, 1, tbl.Len())
	require.Len(t, first.closes, 1)
	assert.Equal(t, closeCall{end: sdk.ConnectionEndInvalid}, first.closes[0])
	assert.Empty(t, second.closes)

	t.Run("reinserting the same handle keeps it open", func(t *testing.T) {
		tbl.Insert(7, second)
		assert.Empty(t, second.closes)
	})
}

func TestTable_Take(t *testing.T) {
	tbl := New()
	c := &fakeConn{handle: 1}
	tbl.Insert(7, c)

	got, ok := tbl.Take(7)
	assert.True(t, ok)
	assert.Same(t, c, got)
	assert.False(t, tbl.Has(7))
	assert.Empty(t, c.closes, "take transfers ownership without closing")

	got, ok = tbl.Take(7)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestTable_Remove(t *testing.T) {
	tbl := New()
	c := &fakeConn{handle: 1}
	tbl.Insert(7, c)

	assert.True(t, tbl.Remove(7))
	assert.False(t, tbl.Has(7))
	require.Len(t, c.closes, 1)
	assert.Equal(t, sdk.ConnectionEndInvalid, c.closes[0].end)

	assert.False(t, tbl.Remove(7), "second remove is a no-op")
	assert.Len(t, c.closes, 1)
}

func TestTable_Keys_Range(t *testing.T) {
	tbl := New()
	for i := uint64(1); i <= 3; i++ {
		tbl.Insert(i, &fakeConn{handle: uint32(i)})
	}

	assert.ElementsMatch(t, []uint64{1, 2, 3}, tbl.Keys())

	t.Run("range visits every entry", func(t *testing.T) {
		seen := map[uint64]uint32{}
		tbl.Range(func(id uint64, conn sdk.NetConnection) bool {
			seen[id] = conn.Handle()
			return true
		})
		assert.Equal(t, map[uint64]uint32{1: 1, 2: 2, 3: 3}, seen)
	})

	t.Run("range stops early", func(t *testing.T) {
		count := 0
		tbl.Range(func(uint64, sdk.NetConnection) bool {
			count++
			return false
		})
		assert.Equal(t, 1, count)
	})

	t.Run("removing while walking keys", func(t *testing.T) {
		for _, id := range tbl.Keys() {
			tbl.Remove(id)
		}
		assert.Equal(t, 0, tbl.Len())
	})
}

func TestTable_Clear(t *testing.T) {
	tbl := New()
	conns := []*fakeConn{{handle: 1}, {handle: 2}}
	for i, c := range conns {
		tbl.Insert(uint64(i), c)
	}

	tbl.Clear()
	assert.Equal(t, 0, tbl.Len())
	for _, c := range conns {
		assert.Len(t, c.closes, 1)
	}
}

func TestDrop_nil(t *testing.T) {
	assert.NotPanics(t, func() { Drop(nil) })
}
