package access

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BonsonW/renetsteam/sdk"
)

func TestNewIdentitySet(t *testing.T) {
	s := NewIdentitySet()
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Size())

	s = NewIdentitySet(1, 2, 2, 3)
	assert.Equal(t, 3, s.Size())
	assert.ElementsMatch(t, []sdk.SteamID{1, 2, 3}, s.Values())
}

func TestIdentitySet_Add_Remove(t *testing.T) {
	s := NewIdentitySet()

	s.Add(7)
	assert.True(t, s.Contains(7))
	s.Add(7)
	assert.Equal(t, 1, s.Size())

	s.Remove(7)
	assert.False(t, s.Contains(7))
	s.Remove(7)
	assert.Equal(t, 0, s.Size())
}

func TestIdentitySet_concurrent(t *testing.T) {
	s := NewIdentitySet()
	var wg sync.WaitGroup
	wg.Add(20)
	for g := 0; g < 20; g++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := sdk.SteamID(base*100 + i)
				s.Add(id)
				s.Contains(id)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 2000, s.Size())
}
