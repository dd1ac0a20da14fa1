// Package friendcache memoises friend-relationship lookups for the
// FriendsOnly admission policy. Storage is go-cache with a per-entry TTL;
// concurrent lookups for the same identity are collapsed with singleflight.
package friendcache

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/BonsonW/renetsteam/sdk"
)

// LookupFunc answers whether id is a friend. It is called on a cache miss.
type LookupFunc func(id sdk.SteamID) bool

// Cache holds friend lookup results keyed by SteamID.
type Cache struct {
	cache *cache.Cache
	group singleflight.Group
	ttl   time.Duration
}

// New creates a Cache whose entries expire after ttl. No janitor goroutine
// is started; expired entries read as misses and are overwritten by the next
// lookup.
//
// Parameters:
//   - ttl: How long a lookup result is trusted
//
// Returns:
//   - A new Cache
func New(ttl time.Duration) *Cache {
	return &Cache{
		cache: cache.New(ttl, 0),
		ttl:   ttl,
	}
}

func key(id sdk.SteamID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// IsFriend returns the cached answer for id, calling lookup on a miss and
// storing its result.
//
// Parameters:
//   - id: The identity to check
//   - lookup: Source of truth used on a miss
//
// Returns:
//   - true if id is a friend
func (c *Cache) IsFriend(id sdk.SteamID, lookup LookupFunc) bool {
	k := key(id)
	if v, found := c.cache.Get(k); found {
		if friend, ok := v.(bool); ok {
			return friend
		}
	}

	v, _, _ := c.group.Do(k, func() (interface{}, error) {
		if cached, found := c.cache.Get(k); found {
			if friend, ok := cached.(bool); ok {
				return friend, nil
			}
		}

		friend := lookup(id)
		c.cache.Set(k, friend, c.ttl)
		return friend, nil
	})

	friend, _ := v.(bool)
	return friend
}

// Flush drops every cached answer.
func (c *Cache) Flush() {
	c.cache.Flush()
}

// ItemCount returns the number of cached answers, including expired ones not
// yet purged.
func (c *Cache) ItemCount() int {
	return c.cache.ItemCount()
}
