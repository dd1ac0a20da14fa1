// Package upstream describes the game-networking server the transport feeds
// and drains, and provides QueueServer, a minimal in-memory implementation
// with per-client outbound and inbound queues.
package upstream

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Server is the capability set the transport consumes. Client identifiers
// are the raw 64-bit SDK identities.
type Server interface {
	// AddConnection registers id. Registering a known id is a no-op.
	AddConnection(id uint64)

	// RemoveConnection deregisters id. Removing an unknown id is a no-op.
	RemoveConnection(id uint64)

	// ConnectedClients returns the number of registered clients.
	ConnectedClients() int

	// ClientsID returns every registered client.
	ClientsID() []uint64

	// GetPacketsToSend drains the payloads queued for id.
	GetPacketsToSend(id uint64) ([][]byte, error)

	// ProcessPacketFrom hands one inbound payload from id to the server.
	ProcessPacketFrom(payload []byte, id uint64) error
}

// DefaultMaxPayloadSize bounds payloads accepted by a QueueServer when no
// limit is configured.
const DefaultMaxPayloadSize = 64 * 1024

// QueueServer is a Server that keeps outbound and inbound payloads in FIFO
// queues per client. It is safe for concurrent use.
type QueueServer struct {
	mu             sync.Mutex
	maxPayloadSize int
	clients        map[uint64]*clientQueues
	order          []uint64
}

type clientQueues struct {
	outbound [][]byte
	inbound  [][]byte
}

// NewQueueServer returns an empty QueueServer. A maxPayloadSize of zero or
// less selects DefaultMaxPayloadSize.
func NewQueueServer(maxPayloadSize int) *QueueServer {
	if maxPayloadSize <= 0 {
		maxPayloadSize = DefaultMaxPayloadSize
	}

	return &QueueServer{
		maxPayloadSize: maxPayloadSize,
		clients:        make(map[uint64]*clientQueues),
	}
}

// AddConnection implements Server.
func (s *QueueServer) AddConnection(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[id]; ok {
		return
	}

	s.clients[id] = &clientQueues{}
	s.order = append(s.order, id)
}

// RemoveConnection implements Server. Queued payloads for id are discarded.
func (s *QueueServer) RemoveConnection(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[id]; !ok {
		return
	}

	delete(s.clients, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

// IsConnected reports whether id is registered.
func (s *QueueServer) IsConnected(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clients[id]
	return ok
}

// ConnectedClients implements Server.
func (s *QueueServer) ConnectedClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ClientsID implements Server. Clients are listed in registration order.
func (s *QueueServer) ClientsID() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// Send queues payload for delivery to id on the next transport flush.
func (s *QueueServer) Send(id uint64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return fmt.Errorf("send to %d: %w", id, ErrClientNotFound)
	}

	c.outbound = append(c.outbound, slices.Clone(payload))
	return nil
}

// Broadcast queues payload for every registered client.
func (s *QueueServer) Broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		c.outbound = append(c.outbound, slices.Clone(payload))
	}
}

// GetPacketsToSend implements Server.
func (s *QueueServer) GetPacketsToSend(id uint64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("packets for %d: %w", id, ErrClientNotFound)
	}

	out := c.outbound
	c.outbound = nil
	return out, nil
}

// ProcessPacketFrom implements Server. The payload is copied, so callers may
// reuse the buffer.
func (s *QueueServer) ProcessPacketFrom(payload []byte, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return fmt.Errorf("packet from %d: %w", id, ErrClientNotFound)
	}

	if len(payload) > s.maxPayloadSize {
		return fmt.Errorf("packet from %d is %d bytes: %w", id, len(payload), ErrPayloadTooLarge)
	}

	c.inbound = append(c.inbound, slices.Clone(payload))
	return nil
}

// Receive drains the payloads received from id.
func (s *QueueServer) Receive(id uint64) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return nil
	}

	out := c.inbound
	c.inbound = nil
	return out
}
