package loopback

import (
	"fmt"

	"github.com/BonsonW/renetsteam/sdk"
)

// PeerState is the lifecycle state of a simulated remote peer.
type PeerState int

const (
	PeerConnecting PeerState = iota // Waiting for an admission decision
	PeerAccepted                    // Accepted, Connected event queued
	PeerConnected                   // Server took ownership of the connection
	PeerRejected                    // Rejected by the server
	PeerClosed                      // Closed by either side
)

// String returns a human-readable name for the peer state.
func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "Connecting"
	case PeerAccepted:
		return "Accepted"
	case PeerConnected:
		return "Connected"
	case PeerRejected:
		return "Rejected"
	case PeerClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Peer is the remote end of a loopback session.
type Peer struct {
	socket     *ListenSocket
	remote     sdk.NetworkingIdentity
	state      PeerState
	conn       *Connection
	inbox      [][]byte
	failAccept bool

	endReason  sdk.ConnectionEnd
	endMessage string
}

// Remote returns the identity the peer dialled with.
func (p *Peer) Remote() sdk.NetworkingIdentity {
	return p.remote
}

// State returns the current lifecycle state.
func (p *Peer) State() PeerState {
	p.socket.client.mu.Lock()
	defer p.socket.client.mu.Unlock()
	return p.state
}

// FailAccept makes the server's Accept call fail for this peer.
func (p *Peer) FailAccept(fail bool) {
	p.socket.client.mu.Lock()
	defer p.socket.client.mu.Unlock()
	p.failAccept = fail
}

// EndReason returns the reason code and message of a reject or a server-side
// close.
func (p *Peer) EndReason() (sdk.ConnectionEnd, string) {
	p.socket.client.mu.Lock()
	defer p.socket.client.mu.Unlock()
	return p.endReason, p.endMessage
}

// Connection returns the server-side handle once accepted, or nil.
func (p *Peer) Connection() *Connection {
	p.socket.client.mu.Lock()
	defer p.socket.client.mu.Unlock()
	return p.conn
}

// Send delivers a datagram to the server side of the session.
func (p *Peer) Send(data []byte) error {
	p.socket.client.mu.Lock()
	defer p.socket.client.mu.Unlock()

	if p.conn == nil || p.conn.closed {
		return ErrNotConnected
	}

	msg := &Message{client: p.socket.client, conn: p.conn, data: append([]byte(nil), data...)}
	p.conn.inbox = append(p.conn.inbox, msg)
	return nil
}

// Receive drains every datagram the server has sent to this peer.
func (p *Peer) Receive() [][]byte {
	p.socket.client.mu.Lock()
	defer p.socket.client.mu.Unlock()

	out := p.inbox
	p.inbox = nil
	return out
}

// Disconnect hangs up from the remote side and queues a Disconnected event.
func (p *Peer) Disconnect() {
	p.socket.client.mu.Lock()
	defer p.socket.client.mu.Unlock()

	if p.state == PeerClosed || p.state == PeerRejected {
		return
	}

	p.state = PeerClosed
	if p.conn != nil {
		p.conn.remoteGone = true
	}

	if !p.socket.closed {
		p.socket.events = append(p.socket.events, &disconnectedEvent{
			remote: p.remote,
			end:    sdk.ConnectionEndAppGeneric,
		})
	}
}

type connectingEvent struct {
	peer *Peer
}

func (e *connectingEvent) Remote() sdk.NetworkingIdentity {
	return e.peer.remote
}

func (e *connectingEvent) Accept() error {
	s := e.peer.socket
	s.client.mu.Lock()
	defer s.client.mu.Unlock()

	if e.peer.failAccept {
		return ErrAcceptFailed
	}

	if s.closed || e.peer.state != PeerConnecting {
		return fmt.Errorf("peer %s is %s: %w", e.peer.remote, e.peer.state, ErrConnectionClosed)
	}

	conn := &Connection{handle: s.client.handles.Next(), peer: e.peer}
	s.conns = append(s.conns, conn)
	e.peer.conn = conn
	e.peer.state = PeerAccepted
	s.events = append(s.events, &connectedEvent{remote: e.peer.remote, conn: conn})
	return nil
}

func (e *connectingEvent) Reject(end sdk.ConnectionEnd, reason string) bool {
	s := e.peer.socket
	s.client.mu.Lock()
	defer s.client.mu.Unlock()

	if e.peer.state != PeerConnecting {
		return false
	}

	e.peer.state = PeerRejected
	e.peer.endReason = end
	e.peer.endMessage = reason
	return true
}

type connectedEvent struct {
	remote sdk.NetworkingIdentity
	conn   *Connection
}

func (e *connectedEvent) Remote() sdk.NetworkingIdentity {
	return e.remote
}

func (e *connectedEvent) TakeConnection() sdk.NetConnection {
	conn := e.conn
	e.conn = nil
	if conn == nil {
		return nil
	}

	s := conn.peer.socket
	s.client.mu.Lock()
	if conn.peer.state == PeerAccepted {
		conn.peer.state = PeerConnected
	}
	s.client.mu.Unlock()

	return conn
}

type disconnectedEvent struct {
	remote sdk.NetworkingIdentity
	end    sdk.ConnectionEnd
}

func (e *disconnectedEvent) Remote() sdk.NetworkingIdentity {
	return e.remote
}

func (e *disconnectedEvent) EndReason() sdk.ConnectionEnd {
	return e.end
}

// Connection implements sdk.NetConnection for the server side of a session.
type Connection struct {
	handle      uint32
	peer        *Peer
	inbox       []*Message
	closed      bool
	remoteGone  bool
	failReceive bool
	closeCalls  int
	linger      bool
}

// Handle implements sdk.NetConnection.
func (c *Connection) Handle() uint32 {
	return c.handle
}

// FailReceive makes ReceiveMessages fail while set.
func (c *Connection) FailReceive(fail bool) {
	c.peer.socket.client.mu.Lock()
	defer c.peer.socket.client.mu.Unlock()
	c.failReceive = fail
}

// CloseCalls returns how many times Close was invoked on the handle.
func (c *Connection) CloseCalls() int {
	c.peer.socket.client.mu.Lock()
	defer c.peer.socket.client.mu.Unlock()
	return c.closeCalls
}

// Lingered reports whether the handle was closed with linger enabled.
func (c *Connection) Lingered() bool {
	c.peer.socket.client.mu.Lock()
	defer c.peer.socket.client.mu.Unlock()
	return c.linger
}

// Buffered returns the number of inbound messages not yet received.
func (c *Connection) Buffered() int {
	c.peer.socket.client.mu.Lock()
	defer c.peer.socket.client.mu.Unlock()
	return len(c.inbox)
}

// ReceiveMessages implements sdk.NetConnection.
func (c *Connection) ReceiveMessages(max int) ([]sdk.Message, error) {
	c.peer.socket.client.mu.Lock()
	defer c.peer.socket.client.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}

	if c.failReceive {
		return nil, ErrReceiveFailed
	}

	n := min(max, len(c.inbox))
	out := make([]sdk.Message, n)
	for i := 0; i < n; i++ {
		out[i] = c.inbox[i]
	}
	c.inbox = c.inbox[n:]
	return out, nil
}

// Close implements sdk.NetConnection.
func (c *Connection) Close(end sdk.ConnectionEnd, reason string, enableLinger bool) error {
	c.peer.socket.client.mu.Lock()
	defer c.peer.socket.client.mu.Unlock()

	c.closeCalls++
	if c.closed {
		return ErrConnectionClosed
	}

	c.closed = true
	c.linger = enableLinger
	c.inbox = nil
	if !c.remoteGone {
		c.peer.endReason = end
		c.peer.endMessage = reason
	}
	c.peer.state = PeerClosed
	return nil
}

// Message implements sdk.Message.
type Message struct {
	client   *Client
	conn     sdk.NetConnection
	data     []byte
	flags    sdk.SendFlags
	released bool
}

// Data implements sdk.Message.
func (m *Message) Data() []byte { return m.data }

// SetData implements sdk.Message.
func (m *Message) SetData(data []byte) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%d bytes: %w", len(data), ErrMessageTooLarge)
	}

	m.data = append(m.data[:0], data...)
	return nil
}

// SetConnection implements sdk.Message.
func (m *Message) SetConnection(conn sdk.NetConnection) { m.conn = conn }

// SetSendFlags implements sdk.Message.
func (m *Message) SetSendFlags(flags sdk.SendFlags) { m.flags = flags }

// Release implements sdk.Message.
func (m *Message) Release() {
	m.released = true
	m.data = nil
}

// Released reports whether Release has been called.
func (m *Message) Released() bool { return m.released }
