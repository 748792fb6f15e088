// Package xhash provides the transcript digest used for debug consistency
// checking of the Lamport clock (spec §5): rather than trusting that
// per-yield message sizes matched, a worker can additionally hash the
// sequence of bytes it sent and received and compare digests with its
// peer out of band during tests.
package xhash

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// Transcript accumulates send/receive events for one worker and produces
// a running digest. It is purely a debug/test aid — the online protocol
// never depends on its output.
type Transcript struct {
	h     *blake3.Hasher
	clock uint64
}

// New returns an empty transcript.
func New() *Transcript {
	return &Transcript{h: blake3.New()}
}

// RecordSend hashes in an outgoing event: the Lamport clock value and the
// bytes sent.
func (t *Transcript) RecordSend(b []byte) {
	t.record('S', b)
}

// RecordRecv hashes in an incoming event: the Lamport clock value and the
// bytes received.
func (t *Transcript) RecordRecv(b []byte) {
	t.record('R', b)
}

func (t *Transcript) record(tag byte, b []byte) {
	t.clock++
	var hdr [9]byte
	hdr[0] = tag
	binary.LittleEndian.PutUint64(hdr[1:], t.clock)
	t.h.Write(hdr[:])
	t.h.Write(b)
}

// Sum returns the current 32-byte digest without finalizing the hasher —
// further events may still be recorded.
func (t *Transcript) Sum() [32]byte {
	var out [32]byte
	digest := t.h.Digest()
	digest.Read(out[:])
	return out
}

// Clock returns the current Lamport clock value.
func (t *Transcript) Clock() uint64 { return t.clock }
