package transport

import (
	"github.com/BonsonW/renetsteam/access"
	"github.com/BonsonW/renetsteam/conntable"
	"github.com/BonsonW/renetsteam/logger"
	"github.com/BonsonW/renetsteam/metrics"
	"github.com/BonsonW/renetsteam/sdk"
	"github.com/BonsonW/renetsteam/upstream"
)

// Update drains the listen socket's event queue, then hands every buffered
// inbound message to server. All events are applied before any message is
// delivered, so a client that connects and sends in the same tick is seen
// by server as add-then-packet.
func (t *ServerTransport) Update(server upstream.Server) {
	if t.closed {
		return
	}

	for {
		event, ok := t.socket.TryReceiveEvent()
		if !ok {
			break
		}

		t.handleEvent(server, event)
	}

	t.metrics.ConnectedClients.Set(float64(t.conns.Len()))
	t.receive(server)
}

func (t *ServerTransport) handleEvent(server upstream.Server, event sdk.ListenSocketEvent) {
	switch event := event.(type) {
	case sdk.ConnectingEvent:
		t.handleConnecting(server, event)
	case sdk.ConnectedEvent:
		t.handleConnected(server, event)
	case sdk.DisconnectedEvent:
		t.handleDisconnected(server, event)
	default:
		t.logger.Warn("unknown listen socket event", logger.Field{Key: "remote", Value: event.Remote().String()})
	}
}

func (t *ServerTransport) handleConnecting(server upstream.Server, event sdk.ConnectingEvent) {
	remote := logger.Field{Key: "remote", Value: event.Remote().String()}

	if server.ConnectedClients()+t.admitting() >= t.maxClients {
		event.Reject(sdk.ConnectionEndAppGeneric, reasonTooManyClients)
		t.metrics.Admission(metrics.ResultRejected, "too_many_clients")
		t.logger.Debug("connection rejected: server full", remote)
		return
	}

	steamID, ok := event.Remote().SteamID()
	if !ok {
		event.Reject(sdk.ConnectionEndAppGeneric, reasonInvalidSteamID)
		t.metrics.Admission(metrics.ResultRejected, "invalid_identity")
		t.logger.Debug("connection rejected: no identity", remote)
		return
	}

	policy := access.Describe(t.policy)
	if !t.checker.Permitted(t.policy, steamID) {
		event.Reject(sdk.ConnectionEndAppGeneric, reasonNotAllowed)
		t.metrics.Admission(metrics.ResultRejected, policy)
		t.logger.Debug("connection rejected: not allowed", clientField(steamID.Raw()), logger.Field{Key: "policy", Value: policy})
		return
	}

	if err := event.Accept(); err != nil {
		t.metrics.Admission(metrics.ResultAcceptFailed, policy)
		t.logger.Error("failed to accept connection", clientField(steamID.Raw()), logger.Err(err))
		return
	}

	t.pending[steamID.Raw()] = struct{}{}
	t.metrics.Admission(metrics.ResultAccepted, policy)
	t.logger.Debug("connection accepted", clientField(steamID.Raw()), logger.Field{Key: "policy", Value: policy})
}

func (t *ServerTransport) handleConnected(server upstream.Server, event sdk.ConnectedEvent) {
	steamID, ok := event.Remote().SteamID()
	if !ok {
		// Unaddressable session.
		conntable.Drop(event.TakeConnection())
		return
	}

	id := steamID.Raw()
	delete(t.pending, id)

	conn := event.TakeConnection()
	if conn == nil {
		t.logger.Error("connected event without a connection", clientField(id))
		return
	}

	if _, ok := t.kicked[id]; ok {
		delete(t.kicked, id)
		_ = conn.Close(sdk.ConnectionEndAppGeneric, reasonKicked, false)
		t.logger.Info("kicked client closed on connect", clientField(id))
		return
	}

	server.AddConnection(id)
	t.conns.Insert(id, conn)
	t.logger.Info("client connected", clientField(id), logger.Field{Key: "handle", Value: conn.Handle()})
}

func (t *ServerTransport) handleDisconnected(server upstream.Server, event sdk.DisconnectedEvent) {
	steamID, ok := event.Remote().SteamID()
	if !ok {
		return
	}

	id := steamID.Raw()
	delete(t.pending, id)
	delete(t.kicked, id)
	t.conns.Remove(id)
	server.RemoveConnection(id)
	t.logger.Info("client disconnected", clientField(id), logger.Field{Key: "reason", Value: event.EndReason().String()})
}

// admitting counts accepted sessions that will add a client once Connected.
// A re-dial from a registered client replaces its entry and is not counted.
func (t *ServerTransport) admitting() int {
	n := 0
	for id := range t.pending {
		if !t.conns.Has(id) {
			n++
		}
	}

	return n
}

// receive pulls up to MaxMessageBatchSize messages from each connection
// until MaxMessageBufferSize bytes have been delivered this tick.
func (t *ServerTransport) receive(server upstream.Server) {
	delivered := 0

	t.conns.Range(func(id uint64, conn sdk.NetConnection) bool {
		if delivered >= MaxMessageBufferSize {
			return false
		}

		messages, err := conn.ReceiveMessages(MaxMessageBatchSize)
		if err != nil {
			t.metrics.Error(metrics.ErrorReceive)
			return true
		}

		for _, message := range messages {
			payload := message.Data()
			delivered += len(payload)

			if err := server.ProcessPacketFrom(payload, id); err != nil {
				t.metrics.Error(metrics.ErrorProcessPacket)
				t.logger.Error("error while processing payload", clientField(id), logger.Err(err))
			} else {
				t.metrics.Received(len(payload))
			}

			message.Release()
		}

		return true
	})
}
