// Package sdk declares the subset of the peer-to-peer relay SDK that the
// server transport consumes: listen sockets and their event queue, live
// connections, message allocation and the friends/matchmaking lookups used
// for admission. Bindings to a concrete SDK implement these interfaces;
// package loopback provides an in-process implementation.
package sdk

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrInvalidHandle is returned when the SDK refuses to create a resource,
// most notably a listen socket.
var ErrInvalidHandle = errors.New("invalid handle")

// SteamID is the 64-bit identity of an SDK user.
type SteamID uint64

// Raw returns the identity as the plain integer used by the upstream server.
func (id SteamID) Raw() uint64 {
	return uint64(id)
}

// LobbyID names a matchmaking lobby.
type LobbyID uint64

// ConnectionEnd is the reason code attached to a closed or rejected connection.
type ConnectionEnd int

const (
	ConnectionEndInvalid          ConnectionEnd = 0
	ConnectionEndAppGeneric       ConnectionEnd = 1000
	ConnectionEndAppExceptionMin  ConnectionEnd = 2000
	ConnectionEndLocalOfflineMode ConnectionEnd = 3001
	ConnectionEndRemoteTimeout    ConnectionEnd = 4001
	ConnectionEndMiscGeneric      ConnectionEnd = 5001
)

// String returns a human-readable name for the reason code.
func (e ConnectionEnd) String() string {
	switch e {
	case ConnectionEndInvalid:
		return "Invalid"
	case ConnectionEndAppGeneric:
		return "AppGeneric"
	case ConnectionEndAppExceptionMin:
		return "AppException"
	case ConnectionEndLocalOfflineMode:
		return "LocalOfflineMode"
	case ConnectionEndRemoteTimeout:
		return "RemoteTimeout"
	case ConnectionEndMiscGeneric:
		return "MiscGeneric"
	default:
		return fmt.Sprintf("ConnectionEnd(%d)", int(e))
	}
}

// SendFlags controls how the SDK delivers an outbound message.
type SendFlags int

const (
	SendUnreliable SendFlags = 0
	SendNoNagle    SendFlags = 1
	SendNoDelay    SendFlags = 4
	SendReliable   SendFlags = 8

	SendUnreliableNoNagle = SendUnreliable | SendNoNagle
	SendReliableNoNagle   = SendReliable | SendNoNagle
)

// FriendFlags selects which relationships a friend lookup considers.
type FriendFlags int

const (
	FriendFlagNone                 FriendFlags = 0x00
	FriendFlagBlocked              FriendFlags = 0x01
	FriendFlagFriendshipRequested  FriendFlags = 0x02
	FriendFlagImmediate            FriendFlags = 0x04
	FriendFlagClanMember           FriendFlags = 0x08
	FriendFlagOnGameServer         FriendFlags = 0x10
	FriendFlagRequestingFriendship FriendFlags = 0x80
	FriendFlagAll                  FriendFlags = 0xFFFF
)

// ConfigEntry is an opaque SDK option passed through at listen-socket creation.
type ConfigEntry struct {
	Key   string
	Value any
}

// NetworkingIdentity is the remote side of a connection as asserted by the
// SDK. It carries either a SteamID or a bare IP address.
type NetworkingIdentity struct {
	steamID SteamID
	hasID   bool
	addr    netip.AddrPort
}

// NewSteamIdentity returns an identity asserting id.
func NewSteamIdentity(id SteamID) NetworkingIdentity {
	return NetworkingIdentity{steamID: id, hasID: true}
}

// NewIPIdentity returns an identity known only by its address.
func NewIPIdentity(addr netip.AddrPort) NetworkingIdentity {
	return NetworkingIdentity{addr: addr}
}

// SteamID reports the asserted user identity, if any.
func (n NetworkingIdentity) SteamID() (SteamID, bool) {
	return n.steamID, n.hasID
}

// IP reports the remote address, if the identity carries one.
func (n NetworkingIdentity) IP() (netip.AddrPort, bool) {
	return n.addr, n.addr.IsValid()
}

// String implements fmt.Stringer.
func (n NetworkingIdentity) String() string {
	if n.hasID {
		return fmt.Sprintf("steamid:%d", uint64(n.steamID))
	}

	if n.addr.IsValid() {
		return "ip:" + n.addr.String()
	}

	return "invalid"
}

// Client is the entry point of an initialised SDK instance.
type Client interface {
	NetworkingSockets() NetworkingSockets
	NetworkingUtils() NetworkingUtils
	Matchmaking() Matchmaking
	Friends() Friends
}

// NetworkingSockets creates listen sockets.
type NetworkingSockets interface {
	// CreateListenSocketP2P listens for relayed peer-to-peer sessions on the
	// given virtual port. It returns ErrInvalidHandle on failure.
	CreateListenSocketP2P(virtualPort int, options []ConfigEntry) (ListenSocket, error)

	// CreateListenSocketIP listens for direct sessions on addr. It returns
	// ErrInvalidHandle on failure.
	CreateListenSocketIP(addr netip.AddrPort, options []ConfigEntry) (ListenSocket, error)
}

// ListenSocket is the event source for inbound sessions and the sink for
// batched outbound messages.
type ListenSocket interface {
	// TryReceiveEvent pops the next pending event without blocking. The
	// boolean is false when the queue is empty.
	TryReceiveEvent() (ListenSocketEvent, bool)

	// SendMessages hands every message to the SDK, which takes ownership of
	// them. The returned slice holds one entry per message, nil on success.
	SendMessages(messages []Message) []error

	// Close releases the socket.
	Close() error
}

// ListenSocketEvent is one of ConnectingEvent, ConnectedEvent or
// DisconnectedEvent.
type ListenSocketEvent interface {
	Remote() NetworkingIdentity
}

// ConnectingEvent is raised when a remote requests admission.
type ConnectingEvent interface {
	ListenSocketEvent
	Accept() error
	Reject(end ConnectionEnd, reason string) bool
}

// ConnectedEvent is raised once an accepted session is live.
type ConnectedEvent interface {
	ListenSocketEvent
	// TakeConnection transfers ownership of the session handle to the caller.
	TakeConnection() NetConnection
}

// DisconnectedEvent is raised when the SDK side of a session has ended.
type DisconnectedEvent interface {
	ListenSocketEvent
	EndReason() ConnectionEnd
}

// NetConnection is a live session handle. It must be closed exactly once.
type NetConnection interface {
	// Handle returns the SDK's numeric handle for the session.
	Handle() uint32

	// ReceiveMessages returns up to max buffered inbound messages.
	ReceiveMessages(max int) ([]Message, error)

	// Close ends the session. With enableLinger set, queued reliable data is
	// flushed before teardown.
	Close(end ConnectionEnd, reason string, enableLinger bool) error
}

// Message is an SDK-owned datagram buffer.
type Message interface {
	Data() []byte
	SetData(data []byte) error
	SetConnection(conn NetConnection)
	SetSendFlags(flags SendFlags)
	// Release returns the buffer to the SDK. Messages handed to
	// ListenSocket.SendMessages must not be released.
	Release()
}

// NetworkingUtils allocates outbound messages.
type NetworkingUtils interface {
	AllocateMessage(sizeHint int) Message
}

// Matchmaking answers lobby membership queries.
type Matchmaking interface {
	LobbyMembers(lobby LobbyID) []SteamID
}

// Friends answers relationship queries for the local user.
type Friends interface {
	HasFriend(id SteamID, flags FriendFlags) bool
}
