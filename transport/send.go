package transport

import (
	"github.com/BonsonW/renetsteam/logger"
	"github.com/BonsonW/renetsteam/metrics"
	"github.com/BonsonW/renetsteam/sdk"
	"github.com/BonsonW/renetsteam/upstream"
)

// SendPackets turns every payload server has queued into an unreliable,
// no-Nagle SDK message on the client's connection and hands the whole batch
// to the listen socket in one call. Payloads for one client keep the order
// server produced them in.
func (t *ServerTransport) SendPackets(server upstream.Server) {
	if t.closed {
		return
	}

	for _, id := range server.ClientsID() {
		conn, ok := t.conns.Get(id)
		if !ok {
			t.metrics.Error(metrics.ErrorMissingConn)
			t.logger.Error("error while sending packet: connection not found", clientField(id))
			continue
		}

		packets, err := server.GetPacketsToSend(id)
		if err != nil {
			t.metrics.Error(metrics.ErrorPacketsToSend)
			t.logger.Error("failed to collect packets", clientField(id), logger.Err(err))
			continue
		}

		t.queue(id, conn, packets)
	}

	t.flush()
}

// queue appends one message per packet to the outbound batch. A packet the
// SDK refuses abandons the rest of this client's packets for the tick.
func (t *ServerTransport) queue(id uint64, conn sdk.NetConnection, packets [][]byte) {
	for _, packet := range packets {
		message := t.utils.AllocateMessage(0)
		message.SetConnection(conn)
		message.SetSendFlags(sdk.SendUnreliableNoNagle)

		if err := message.SetData(packet); err != nil {
			message.Release()
			t.metrics.Error(metrics.ErrorSetData)
			t.logger.Error("failed to send packet to client", clientField(id), logger.Err(err))
			return
		}

		t.messages = append(t.messages, message)
		t.sizes = append(t.sizes, len(packet))
	}
}

func (t *ServerTransport) flush() {
	if len(t.messages) == 0 {
		return
	}

	results := t.socket.SendMessages(t.messages)
	for i, size := range t.sizes {
		if i < len(results) && results[i] != nil {
			t.metrics.Error(metrics.ErrorSend)
			t.logger.Error("failed to send message", logger.Err(results[i]))
			continue
		}

		t.metrics.Sent(size)
	}

	clear(t.messages)
	t.messages = t.messages[:0]
	t.sizes = t.sizes[:0]
}

// PendingMessages returns the size of the outbound batch. It is zero
// outside SendPackets.
func (t *ServerTransport) PendingMessages() int {
	return len(t.messages)
}
