// Package loopback is an in-process implementation of the relay SDK
// interfaces. Remote peers are simulated with Dial on a listen socket; every
// admission decision, datagram and close made by the server side is recorded
// so tests and demo hosts can observe them. Failures can be injected for
// listen-socket creation, accept, receive and message payload size.
package loopback

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/BonsonW/renetsteam/handlegen"
	"github.com/BonsonW/renetsteam/sdk"
)

// MaxMessageSize is the largest payload SetData accepts.
const MaxMessageSize = 512 * 1024

var (
	ErrMessageTooLarge  = errors.New("message exceeds maximum size")
	ErrConnectionClosed = errors.New("connection closed")
	ErrAcceptFailed     = errors.New("accept failed")
	ErrReceiveFailed    = errors.New("receive failed")
	ErrNotConnected     = errors.New("peer not connected")
	ErrForeignMessage   = errors.New("message was not allocated by this client")
)

// Client is a loopback SDK instance. It implements sdk.Client as well as every
// subsystem interface the client exposes. All state is guarded by one mutex,
// so peers may be driven from other goroutines.
type Client struct {
	mu         sync.Mutex
	handles    *handlegen.Generator
	friends    map[sdk.SteamID]sdk.FriendFlags
	lobbies    map[sdk.LobbyID][]sdk.SteamID
	sockets    []*ListenSocket
	failListen bool
}

// NewClient returns an empty loopback SDK client.
func NewClient() *Client {
	return &Client{
		handles: handlegen.NewGenerator(handlegen.Invalid),
		friends: make(map[sdk.SteamID]sdk.FriendFlags),
		lobbies: make(map[sdk.LobbyID][]sdk.SteamID),
	}
}

func (c *Client) NetworkingSockets() sdk.NetworkingSockets { return c }
func (c *Client) NetworkingUtils() sdk.NetworkingUtils { return c }
func (c *Client) Matchmaking() sdk.Matchmaking { return c }
func (c *Client) Friends() sdk.Friends { return c }

// FailListenSockets makes subsequent listen-socket creation fail.
func (c *Client) FailListenSockets(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failListen = fail
}

// SetFriend records the relationship flags between the local user and id.
// FriendFlagNone removes the relationship.
func (c *Client) SetFriend(id sdk.SteamID, flags sdk.FriendFlags) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if flags == sdk.FriendFlagNone {
		delete(c.friends, id)
		return
	}

	c.friends[id] = flags
}

// SetLobbyMembers replaces the membership of lobby.
func (c *Client) SetLobbyMembers(lobby sdk.LobbyID, members ...sdk.SteamID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lobbies[lobby] = append([]sdk.SteamID(nil), members...)
}

// ListenSockets returns every socket created by this client.
func (c *Client) ListenSockets() []*ListenSocket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ListenSocket(nil), c.sockets...)
}

// CreateListenSocketP2P implements sdk.NetworkingSockets.
func (c *Client) CreateListenSocketP2P(virtualPort int, options []sdk.ConfigEntry) (sdk.ListenSocket, error) {
	return c.listen(virtualPort, netip.AddrPort{}, options)
}

// CreateListenSocketIP implements sdk.NetworkingSockets.
func (c *Client) CreateListenSocketIP(addr netip.AddrPort, options []sdk.ConfigEntry) (sdk.ListenSocket, error) {
	if !addr.IsValid() {
		return nil, sdk.ErrInvalidHandle
	}

	return c.listen(-1, addr, options)
}

func (c *Client) listen(virtualPort int, addr netip.AddrPort, options []sdk.ConfigEntry) (sdk.ListenSocket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failListen {
		return nil, sdk.ErrInvalidHandle
	}

	s := &ListenSocket{
		client:      c,
		handle:      c.handles.Next(),
		virtualPort: virtualPort,
		addr:        addr,
		options:     append([]sdk.ConfigEntry(nil), options...),
	}
	c.sockets = append(c.sockets, s)
	return s, nil
}

// AllocateMessage implements sdk.NetworkingUtils.
func (c *Client) AllocateMessage(sizeHint int) sdk.Message {
	if sizeHint < 0 {
		sizeHint = 0
	}

	return &Message{client: c, data: make([]byte, 0, sizeHint)}
}

// LobbyMembers implements sdk.Matchmaking.
func (c *Client) LobbyMembers(lobby sdk.LobbyID) []sdk.SteamID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sdk.SteamID(nil), c.lobbies[lobby]...)
}

// HasFriend implements sdk.Friends.
func (c *Client) HasFriend(id sdk.SteamID, flags sdk.FriendFlags) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.friends[id]&flags != 0
}

// SentMessage is a datagram the server side handed to SendMessages.
type SentMessage struct {
	Handle uint32
	Data   []byte
	Flags  sdk.SendFlags
}

// ListenSocket implements sdk.ListenSocket.
type ListenSocket struct {
	client      *Client
	handle      uint32
	virtualPort int
	addr        netip.AddrPort
	options     []sdk.ConfigEntry
	events      []sdk.ListenSocketEvent
	sent        []SentMessage
	sendCalls   int
	conns       []*Connection
	closed      bool
}

// VirtualPort returns the P2P virtual port, or -1 for an IP socket.
func (s *ListenSocket) VirtualPort() int { return s.virtualPort }

// Addr returns the bound address of an IP socket.
func (s *ListenSocket) Addr() netip.AddrPort { return s.addr }

// Options returns the option list the socket was created with.
func (s *ListenSocket) Options() []sdk.ConfigEntry { return s.options }

// Dial simulates a remote peer requesting admission. A Connecting event is
// queued on the socket.
func (s *ListenSocket) Dial(remote sdk.NetworkingIdentity) *Peer {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()

	p := &Peer{socket: s, remote: remote, state: PeerConnecting}
	if !s.closed {
		s.events = append(s.events, &connectingEvent{peer: p})
	}

	return p
}

// DialSteamID is Dial with a SteamID identity.
func (s *ListenSocket) DialSteamID(id sdk.SteamID) *Peer {
	return s.Dial(sdk.NewSteamIdentity(id))
}

// PendingEvents returns the number of queued events.
func (s *ListenSocket) PendingEvents() int {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	return len(s.events)
}

// Sent returns every message delivered through SendMessages.
func (s *ListenSocket) Sent() []SentMessage {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	return append([]SentMessage(nil), s.sent...)
}

// SendCalls returns how many times SendMessages was invoked.
func (s *ListenSocket) SendCalls() int {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	return s.sendCalls
}

// Closed reports whether Close has been called.
func (s *ListenSocket) Closed() bool {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	return s.closed
}

// TryReceiveEvent implements sdk.ListenSocket.
func (s *ListenSocket) TryReceiveEvent() (sdk.ListenSocketEvent, bool) {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()

	if len(s.events) == 0 {
		return nil, false
	}

	ev := s.events[0]
	s.events[0] = nil
	s.events = s.events[1:]
	return ev, true
}

// SendMessages implements sdk.ListenSocket.
func (s *ListenSocket) SendMessages(messages []sdk.Message) []error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()

	s.sendCalls++
	results := make([]error, len(messages))
	for i, m := range messages {
		results[i] = s.deliver(m)
	}

	return results
}

func (s *ListenSocket) deliver(m sdk.Message) error {
	msg, ok := m.(*Message)
	if !ok || msg.client != s.client {
		return ErrForeignMessage
	}

	conn, ok := msg.conn.(*Connection)
	if !ok || conn == nil {
		return fmt.Errorf("message has no connection: %w", ErrConnectionClosed)
	}

	if s.closed || conn.closed {
		return fmt.Errorf("connection %d: %w", conn.handle, ErrConnectionClosed)
	}

	data := append([]byte(nil), msg.data...)
	s.sent = append(s.sent, SentMessage{Handle: conn.handle, Data: data, Flags: msg.flags})
	conn.peer.inbox = append(conn.peer.inbox, data)
	return nil
}

// Close implements sdk.ListenSocket. Connections still open are torn down
// without being counted as explicit closes.
func (s *ListenSocket) Close() error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()

	if s.closed {
		return ErrConnectionClosed
	}

	s.closed = true
	s.events = nil
	for _, conn := range s.conns {
		if !conn.closed {
			conn.closed = true
			conn.peer.state = PeerClosed
		}
	}

	return nil
}
