package transport

import (
	"fmt"

	"github.com/luxfi/duoram3pc/internal/party"
)

// MPCIO is the per-worker transport context: one Conn to each other party
// (peer for P0/P1, or both computational parties for P2), a shared
// Lamport clock, and a running count of AES operations used for
// profiling (spec §9: "the PRG counter is a per-worker aes_ops number").
type MPCIO struct {
	Self   party.ID
	Worker int

	peer   *Conn // P0<->P1 only; nil for the server
	server *Conn // P0/P1's link to the server; for the server, unused

	// serverLinks holds the server's two links, one per computational
	// party, indexed by party.P0/party.P1.
	serverLinks map[party.ID]*Conn

	clock  LamportClock
	AESOps uint64
}

// NewComputationalMPCIO builds the transport context for P0 or P1.
func NewComputationalMPCIO(self party.ID, worker int, peerConn, serverConn *Conn) *MPCIO {
	if !self.IsComputational() {
		panic("transport: NewComputationalMPCIO requires P0 or P1")
	}
	return &MPCIO{Self: self, Worker: worker, peer: peerConn, server: serverConn}
}

// NewServerMPCIO builds the transport context for P2, which talks to both
// computational parties but has no peer of its own.
func NewServerMPCIO(worker int, toP0, toP1 *Conn) *MPCIO {
	return &MPCIO{
		Self:        party.P2,
		Worker:      worker,
		serverLinks: map[party.ID]*Conn{party.P0: toP0, party.P1: toP1},
	}
}

// QueuePeer appends bytes to the outgoing queue toward the other
// computational party. Only valid for P0/P1.
func (m *MPCIO) QueuePeer(b []byte) {
	m.mustPeer().Queue(b)
}

// QueueServer appends bytes to the outgoing queue toward the server. For
// P2, target selects which computational party to address.
func (m *MPCIO) QueueServer(b []byte, target ...party.ID) {
	m.connToServer(target...).Queue(b)
}

// Send flushes all of this worker's outgoing queues, advancing the
// Lamport clock once per flushed stream.
func (m *MPCIO) Send() {
	if m.peer != nil {
		m.peer.Send()
	}
	if m.server != nil {
		m.server.Send()
	}
	for _, c := range m.serverLinks {
		c.Send()
	}
}

// RecvPeer blocks for exactly n bytes from the other computational party.
func (m *MPCIO) RecvPeer(n int) ([]byte, error) {
	return m.mustPeer().Recv(n)
}

// RecvServer blocks for exactly n bytes from the server. For P2, target
// selects which computational party to read from.
func (m *MPCIO) RecvServer(n int, target ...party.ID) ([]byte, error) {
	return m.connToServer(target...).Recv(n)
}

func (m *MPCIO) mustPeer() *Conn {
	if m.peer == nil {
		panic(fmt.Sprintf("transport: %v has no peer connection", m.Self))
	}
	return m.peer
}

func (m *MPCIO) connToServer(target ...party.ID) *Conn {
	if m.Self == party.P2 {
		if len(target) != 1 {
			panic("transport: server must specify exactly one target party")
		}
		c, ok := m.serverLinks[target[0]]
		if !ok {
			panic(fmt.Sprintf("transport: server has no link to %v", target[0]))
		}
		return c
	}
	if m.server == nil {
		panic(fmt.Sprintf("transport: %v has no server connection", m.Self))
	}
	return m.server
}

// Clock returns this worker's Lamport clock: the one its Conns tick.
func (m *MPCIO) Clock() *LamportClock {
	for _, c := range []*Conn{m.peer, m.server, m.serverLinks[party.P0], m.serverLinks[party.P1]} {
		if c != nil && c.clock != nil {
			return c.clock
		}
	}
	return &m.clock
}
