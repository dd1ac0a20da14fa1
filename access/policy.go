// Package access decides whether a remote identity may connect to the
// server. A Policy is one of five shapes; Checker evaluates a policy against
// a candidate using the SDK's friends and matchmaking subsystems.
package access

import (
	"github.com/BonsonW/renetsteam/friendcache"
	"github.com/BonsonW/renetsteam/sdk"
)

// Policy is one of Public, Private, FriendsOnly, InList or InLobby.
type Policy interface {
	policy()
}

// Public admits everyone.
type Public struct{}

// Private admits no one.
type Private struct{}

// FriendsOnly admits immediate friends of the host.
type FriendsOnly struct{}

// InList admits identities contained in IDs.
type InList struct {
	IDs *IdentitySet
}

// InLobby admits current members of Lobby.
type InLobby struct {
	Lobby sdk.LobbyID
}

func (Public) policy()      {}
func (Private) policy()     {}
func (FriendsOnly) policy() {}
func (InList) policy()      {}
func (InLobby) policy()     {}

// NewInList returns an InList policy over a fresh set holding ids.
func NewInList(ids ...sdk.SteamID) InList {
	return InList{IDs: NewIdentitySet(ids...)}
}

// Describe returns the short name of p, used in log fields and metric labels.
func Describe(p Policy) string {
	switch p.(type) {
	case Public:
		return "public"
	case Private:
		return "private"
	case FriendsOnly:
		return "friends_only"
	case InList:
		return "in_list"
	case InLobby:
		return "in_lobby"
	default:
		return "unknown"
	}
}

// Checker evaluates policies. Friends and Matchmaking are required for the
// FriendsOnly and InLobby shapes respectively. FriendCache is optional.
type Checker struct {
	Friends     sdk.Friends
	Matchmaking sdk.Matchmaking
	FriendCache *friendcache.Cache
}

// Permitted reports whether id may connect under p. Lobby membership is
// queried on every call. A nil or unknown policy denies.
//
// Parameters:
//   - p: The policy in force
//   - id: The candidate identity
//
// Returns:
//   - true if the candidate is admitted
func (c *Checker) Permitted(p Policy, id sdk.SteamID) bool {
	switch p := p.(type) {
	case Public:
		return true
	case Private:
		return false
	case FriendsOnly:
		return c.isFriend(id)
	case InList:
		return p.IDs != nil && p.IDs.Contains(id)
	case InLobby:
		if c.Matchmaking == nil {
			return false
		}

		for _, member := range c.Matchmaking.LobbyMembers(p.Lobby) {
			if member == id {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func (c *Checker) isFriend(id sdk.SteamID) bool {
	if c.Friends == nil {
		return false
	}

	lookup := func(id sdk.SteamID) bool {
		return c.Friends.HasFriend(id, sdk.FriendFlagImmediate)
	}

	if c.FriendCache != nil {
		return c.FriendCache.IsFriend(id, lookup)
	}

	return lookup(id)
}
