// Package transport bridges an upstream game-networking server to the relay
// SDK. ServerTransport admits or rejects inbound sessions, keeps the upstream
// client registry in step with live SDK connections, feeds inbound datagrams
// to the upstream and flushes its outbound payloads as SDK messages.
//
// A ServerTransport has no goroutines of its own. The host calls Update and
// then SendPackets once per tick; every method must be called from the same
// goroutine.
package transport

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/BonsonW/renetsteam/access"
	"github.com/BonsonW/renetsteam/conntable"
	"github.com/BonsonW/renetsteam/friendcache"
	"github.com/BonsonW/renetsteam/logger"
	"github.com/BonsonW/renetsteam/metrics"
	"github.com/BonsonW/renetsteam/sdk"
	"github.com/BonsonW/renetsteam/upstream"
)

// ServerTransport is the server side of the relay transport.
type ServerTransport struct {
	socket  sdk.ListenSocket
	utils   sdk.NetworkingUtils
	checker access.Checker
	logger  logger.Logger
	metrics *metrics.Metrics

	maxClients int
	policy     access.Policy
	conns      *conntable.Table
	// pending holds identities accepted but not yet reported Connected, so
	// that a burst of Connecting events cannot overshoot maxClients.
	pending map[uint64]struct{}
	// kicked holds pending identities disconnected before their Connected
	// event arrived.
	kicked map[uint64]struct{}

	messages []sdk.Message
	sizes    []int
	closed   bool
}

// New creates a transport listening for peer-to-peer sessions on virtual
// port 0.
//
// Parameters:
//   - client: The initialised SDK
//   - config: Admission settings
//
// Returns:
//   - The transport, or an error wrapping sdk.ErrInvalidHandle if the SDK
//     refuses the listen socket, or ErrInvalidConfig
func New(client sdk.Client, config ServerConfig) (*ServerTransport, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	socket, err := client.NetworkingSockets().CreateListenSocketP2P(0, nil)
	if err != nil || socket == nil {
		return nil, listenError("p2p", err)
	}

	return newServerTransport(client, config, socket), nil
}

// NewIP creates a transport listening for direct sessions on addr:port.
//
// Parameters:
//   - client: The initialised SDK
//   - config: Admission settings
//   - addr: The local address to bind
//   - port: The local port to bind
//   - options: SDK options passed through unchanged
//
// Returns:
//   - The transport, or an error wrapping sdk.ErrInvalidHandle if the SDK
//     refuses the listen socket, or ErrInvalidConfig
func NewIP(client sdk.Client, config ServerConfig, addr netip.Addr, port uint16, options []sdk.ConfigEntry) (*ServerTransport, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	socket, err := client.NetworkingSockets().CreateListenSocketIP(netip.AddrPortFrom(addr, port), options)
	if err != nil || socket == nil {
		return nil, listenError("ip", err)
	}

	return newServerTransport(client, config, socket), nil
}

func listenError(mode string, err error) error {
	switch {
	case err == nil:
		return fmt.Errorf("create %s listen socket: %w", mode, sdk.ErrInvalidHandle)
	case errors.Is(err, sdk.ErrInvalidHandle):
		return fmt.Errorf("create %s listen socket: %w", mode, err)
	default:
		return fmt.Errorf("create %s listen socket: %w: %w", mode, sdk.ErrInvalidHandle, err)
	}
}

func newServerTransport(client sdk.Client, config ServerConfig, socket sdk.ListenSocket) *ServerTransport {
	log := config.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	m := config.Metrics
	if m == nil {
		m = metrics.New("")
	}

	checker := access.Checker{
		Friends:     client.Friends(),
		Matchmaking: client.Matchmaking(),
	}
	if config.FriendCacheTTL > 0 {
		checker.FriendCache = friendcache.New(config.FriendCacheTTL)
	}

	t := &ServerTransport{
		socket:     socket,
		utils:      client.NetworkingUtils(),
		checker:    checker,
		logger:     log,
		metrics:    m,
		maxClients: config.MaxClients,
		policy:     config.AccessPolicy,
		conns:      conntable.New(),
		pending:    make(map[uint64]struct{}),
		kicked:     make(map[uint64]struct{}),
	}

	t.logger.Info("server transport listening",
		logger.Field{Key: "max_clients", Value: t.maxClients},
		logger.Field{Key: "policy", Value: access.Describe(t.policy)},
	)

	return t
}

func clientField(id uint64) logger.Field {
	return logger.Field{Key: "client_id", Value: id}
}

// MaxClients returns the admission bound.
func (t *ServerTransport) MaxClients() int {
	return t.maxClients
}

// ConnectedClients returns the number of live connections owned by the
// transport.
func (t *ServerTransport) ConnectedClients() int {
	return t.conns.Len()
}

// AccessPermissions returns the policy in force.
func (t *ServerTransport) AccessPermissions() access.Policy {
	return t.policy
}

// SetAccessPermissions replaces the access policy. Only later admission
// decisions are affected; connected clients stay connected. A nil policy
// denies everyone. Cached friend lookups are discarded.
func (t *ServerTransport) SetAccessPermissions(policy access.Policy) {
	if policy == nil {
		policy = access.Private{}
	}

	t.policy = policy

	fields := []logger.Field{{Key: "policy", Value: access.Describe(policy)}}
	if t.checker.FriendCache != nil {
		fields = append(fields, logger.Field{Key: "flushed_friends", Value: t.checker.FriendCache.ItemCount()})
		t.checker.FriendCache.Flush()
	}

	t.logger.Info("access policy changed", fields...)
}

// DisconnectClient closes the session of id and deregisters it from server.
// With flush set, payloads already queued in the SDK are delivered before
// teardown; otherwise they are dropped.
//
// Parameters:
//   - id: The client to disconnect
//   - server: The upstream server
//   - flush: Whether to deliver pending payloads first
func (t *ServerTransport) DisconnectClient(id uint64, server upstream.Server, flush bool) {
	t.kick(id, flush)
	server.RemoveConnection(id)
	t.metrics.ConnectedClients.Set(float64(t.conns.Len()))
}

// DisconnectAll disconnects every client, see DisconnectClient.
func (t *ServerTransport) DisconnectAll(server upstream.Server, flush bool) {
	for _, id := range t.conns.Keys() {
		t.kick(id, flush)
		server.RemoveConnection(id)
	}

	t.metrics.ConnectedClients.Set(float64(t.conns.Len()))
}

func (t *ServerTransport) kick(id uint64, flush bool) {
	if _, ok := t.pending[id]; ok {
		delete(t.pending, id)
		t.kicked[id] = struct{}{}
	}

	conn, ok := t.conns.Take(id)
	if !ok {
		return
	}

	_ = conn.Close(sdk.ConnectionEndAppGeneric, reasonKicked, flush)
	t.logger.Info("client kicked", clientField(id), logger.Field{Key: "flush", Value: flush})
}

// Close drops every remaining connection and releases the listen socket.
// The upstream server is not notified; call DisconnectAll first to keep it
// in step. Close is idempotent and later Update and SendPackets calls are
// no-ops.
func (t *ServerTransport) Close() error {
	if t.closed {
		return nil
	}

	t.closed = true
	t.conns.Clear()
	clear(t.pending)
	clear(t.kicked)
	t.metrics.ConnectedClients.Set(0)

	if err := t.socket.Close(); err != nil {
		return fmt.Errorf("close listen socket: %w", err)
	}

	t.logger.Info("server transport closed")
	return nil
}
