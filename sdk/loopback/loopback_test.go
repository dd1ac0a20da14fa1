package loopback

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BonsonW/renetsteam/sdk"
)

func newSocket(t *testing.T) (*Client, *ListenSocket) {
	t.Helper()

	c := NewClient()
	s, err := c.CreateListenSocketP2P(0, nil)
	require.NoError(t, err)
	return c, s.(*ListenSocket)
}

func nextEvent(t *testing.T, s *ListenSocket) sdk.ListenSocketEvent {
	t.Helper()

	ev, ok := s.TryReceiveEvent()
	require.True(t, ok, "expected a pending event")
	return ev
}

func TestClient_ListenSockets(t *testing.T) {
	t.Run("p2p and ip sockets", func(t *testing.T) {
		c := NewClient()

		p2p, err := c.NetworkingSockets().CreateListenSocketP2P(0, nil)
		require.NoError(t, err)
		ip, err := c.NetworkingSockets().CreateListenSocketIP(netip.MustParseAddrPort("0.0.0.0:27015"), []sdk.ConfigEntry{{Key: "k", Value: 1}})
		require.NoError(t, err)

		assert.Len(t, c.ListenSockets(), 2)
		assert.Equal(t, 0, p2p.(*ListenSocket).VirtualPort())
		assert.Equal(t, -1, ip.(*ListenSocket).VirtualPort())
		assert.Len(t, ip.(*ListenSocket).Options(), 1)
	})

	t.Run("injected failure", func(t *testing.T) {
		c := NewClient()
		c.FailListenSockets(true)

		_, err := c.CreateListenSocketP2P(0, nil)
		assert.ErrorIs(t, err, sdk.ErrInvalidHandle)
	})

	t.Run("invalid ip address", func(t *testing.T) {
		c := NewClient()
		_, err := c.CreateListenSocketIP(netip.AddrPort{}, nil)
		assert.ErrorIs(t, err, sdk.ErrInvalidHandle)
	})
}

func TestClient_FriendsAndLobbies(t *testing.T) {
	c := NewClient()
	c.SetFriend(1, sdk.FriendFlagImmediate)
	c.SetFriend(2, sdk.FriendFlagBlocked)

	assert.True(t, c.Friends().HasFriend(1, sdk.FriendFlagImmediate))
	assert.False(t, c.Friends().HasFriend(2, sdk.FriendFlagImmediate))
	assert.False(t, c.Friends().HasFriend(3, sdk.FriendFlagAll))

	c.SetFriend(1, sdk.FriendFlagNone)
	assert.False(t, c.HasFriend(1, sdk.FriendFlagImmediate))

	c.SetLobbyMembers(9, 1, 2)
	members := c.Matchmaking().LobbyMembers(9)
	assert.Equal(t, []sdk.SteamID{1, 2}, members)
	members[0] = 99
	assert.Equal(t, []sdk.SteamID{1, 2}, c.LobbyMembers(9), "returned slice is a copy")
	assert.Empty(t, c.LobbyMembers(10))
}

func TestSession_AcceptLifecycle(t *testing.T) {
	_, s := newSocket(t)
	peer := s.DialSteamID(7)
	assert.Equal(t, PeerConnecting, peer.State())

	connecting, ok := nextEvent(t, s).(sdk.ConnectingEvent)
	require.True(t, ok)
	id, _ := connecting.Remote().SteamID()
	assert.Equal(t, sdk.SteamID(7), id)
	require.NoError(t, connecting.Accept())
	assert.Equal(t, PeerAccepted, peer.State())

	connected, ok := nextEvent(t, s).(sdk.ConnectedEvent)
	require.True(t, ok)
	conn := connected.TakeConnection()
	require.NotNil(t, conn)
	assert.Nil(t, connected.TakeConnection(), "ownership moves once")
	assert.Equal(t, PeerConnected, peer.State())
	assert.NotZero(t, conn.Handle())

	t.Run("peer to server", func(t *testing.T) {
		require.NoError(t, peer.Send([]byte{1}))
		require.NoError(t, peer.Send([]byte{2}))

		msgs, err := conn.ReceiveMessages(1)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, []byte{1}, msgs[0].Data())
		msgs[0].Release()
		assert.True(t, msgs[0].(*Message).Released())

		msgs, err = conn.ReceiveMessages(10)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, []byte{2}, msgs[0].Data())
	})

	t.Run("server to peer", func(t *testing.T) {
		c := s.client
		m := c.AllocateMessage(0)
		m.SetConnection(conn)
		m.SetSendFlags(sdk.SendUnreliableNoNagle)
		require.NoError(t, m.SetData([]byte{0xDE, 0xAD}))

		results := s.SendMessages([]sdk.Message{m})
		require.Len(t, results, 1)
		assert.NoError(t, results[0])
		assert.Equal(t, [][]byte{{0xDE, 0xAD}}, peer.Receive())
		assert.Empty(t, peer.Receive())

		sent := s.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, SentMessage{Handle: conn.Handle(), Data: []byte{0xDE, 0xAD}, Flags: sdk.SendUnreliableNoNagle}, sent[0])
	})

	t.Run("close records reason and linger", func(t *testing.T) {
		require.NoError(t, conn.Close(sdk.ConnectionEndAppGeneric, "bye", true))
		assert.Equal(t, PeerClosed, peer.State())
		end, reason := peer.EndReason()
		assert.Equal(t, sdk.ConnectionEndAppGeneric, end)
		assert.Equal(t, "bye", reason)

		lc := conn.(*Connection)
		assert.True(t, lc.Lingered())
		assert.ErrorIs(t, conn.Close(sdk.ConnectionEndInvalid, "", false), ErrConnectionClosed)
		assert.Equal(t, 2, lc.CloseCalls())

		_, err := conn.ReceiveMessages(1)
		assert.ErrorIs(t, err, ErrConnectionClosed)
		assert.ErrorIs(t, peer.Send([]byte{1}), ErrNotConnected)
	})
}

func TestSession_Reject(t *testing.T) {
	_, s := newSocket(t)
	peer := s.DialSteamID(7)

	connecting := nextEvent(t, s).(sdk.ConnectingEvent)
	assert.True(t, connecting.Reject(sdk.ConnectionEndAppGeneric, "Not allowed"))
	assert.Equal(t, PeerRejected, peer.State())
	end, reason := peer.EndReason()
	assert.Equal(t, sdk.ConnectionEndAppGeneric, end)
	assert.Equal(t, "Not allowed", reason)

	assert.False(t, connecting.Reject(sdk.ConnectionEndAppGeneric, "again"))
	assert.Error(t, connecting.Accept())
	assert.Equal(t, 0, s.PendingEvents())

	peer.Disconnect()
	assert.Equal(t, 0, s.PendingEvents(), "rejected peers raise no disconnect")
}

func TestSession_Failures(t *testing.T) {
	t.Run("accept", func(t *testing.T) {
		_, s := newSocket(t)
		peer := s.DialSteamID(7)
		peer.FailAccept(true)

		connecting := nextEvent(t, s).(sdk.ConnectingEvent)
		assert.ErrorIs(t, connecting.Accept(), ErrAcceptFailed)
		assert.Equal(t, PeerConnecting, peer.State())
		assert.Equal(t, 0, s.PendingEvents())
	})

	t.Run("receive", func(t *testing.T) {
		_, s := newSocket(t)
		peer := s.DialSteamID(7)
		require.NoError(t, nextEvent(t, s).(sdk.ConnectingEvent).Accept())
		conn := nextEvent(t, s).(sdk.ConnectedEvent).TakeConnection().(*Connection)

		require.NoError(t, peer.Send([]byte{1}))
		conn.FailReceive(true)
		_, err := conn.ReceiveMessages(1)
		assert.ErrorIs(t, err, ErrReceiveFailed)
		assert.Equal(t, 1, conn.Buffered())
	})

	t.Run("oversized payload", func(t *testing.T) {
		c := NewClient()
		m := c.AllocateMessage(0)
		assert.ErrorIs(t, m.SetData(make([]byte, MaxMessageSize+1)), ErrMessageTooLarge)
		assert.NoError(t, m.SetData(make([]byte, MaxMessageSize)))
	})

	t.Run("send on closed connection", func(t *testing.T) {
		_, s := newSocket(t)
		s.DialSteamID(7)
		require.NoError(t, nextEvent(t, s).(sdk.ConnectingEvent).Accept())
		conn := nextEvent(t, s).(sdk.ConnectedEvent).TakeConnection()
		require.NoError(t, conn.Close(sdk.ConnectionEndInvalid, "", false))

		m := s.client.AllocateMessage(0)
		m.SetConnection(conn)
		results := s.SendMessages([]sdk.Message{m})
		assert.ErrorIs(t, results[0], ErrConnectionClosed)
		assert.Empty(t, s.Sent())
	})

	t.Run("foreign message", func(t *testing.T) {
		_, s := newSocket(t)
		other := NewClient().AllocateMessage(0)
		results := s.SendMessages([]sdk.Message{other})
		assert.ErrorIs(t, results[0], ErrForeignMessage)
	})
}

func TestPeer_Disconnect(t *testing.T) {
	_, s := newSocket(t)
	peer := s.DialSteamID(7)
	require.NoError(t, nextEvent(t, s).(sdk.ConnectingEvent).Accept())
	conn := nextEvent(t, s).(sdk.ConnectedEvent).TakeConnection().(*Connection)

	peer.Disconnect()
	ev, ok := nextEvent(t, s).(sdk.DisconnectedEvent)
	require.True(t, ok)
	assert.Equal(t, sdk.ConnectionEndAppGeneric, ev.EndReason())

	require.NoError(t, conn.Close(sdk.ConnectionEndInvalid, "", false))
	end, reason := peer.EndReason()
	assert.Equal(t, sdk.ConnectionEndInvalid, end, "server close after remote hang-up keeps no reason")
	assert.Empty(t, reason)

	peer.Disconnect()
	assert.Equal(t, 0, s.PendingEvents())
}

func TestListenSocket_Close(t *testing.T) {
	_, s := newSocket(t)
	s.DialSteamID(7)
	require.NoError(t, nextEvent(t, s).(sdk.ConnectingEvent).Accept())
	conn := nextEvent(t, s).(sdk.ConnectedEvent).TakeConnection().(*Connection)
	s.DialSteamID(8)

	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
	assert.Equal(t, 0, s.PendingEvents())
	assert.Equal(t, 0, conn.CloseCalls())
	_, err := conn.ReceiveMessages(1)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, s.Close(), ErrConnectionClosed)

	s.DialSteamID(9)
	assert.Equal(t, 0, s.PendingEvents(), "closed sockets queue nothing")
}

func TestPeerState_String(t *testing.T) {
	assert.Equal(t, "Connecting", PeerConnecting.String())
	assert.Equal(t, "Closed", PeerClosed.String())
	assert.Equal(t, "Unknown", PeerState(99).String())
}
