package mpc

import (
	"fmt"

	"github.com/luxfi/duoram3pc/internal/party"
)

// ReconstructChoice computes the XOR share of (f ? y : x) for two
// equal-length XOR-shared byte strings (typically 128-bit DPF node
// shares), using one select triple: f?y:x = x XOR (f AND (x XOR y)).
// See DESIGN.md's "MPC primitive algebra" section for the boolean-Beaver
// derivation this implements.
func (c *Ctx) ReconstructChoice(f byte, x, y []byte) ([]byte, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("mpc: ReconstructChoice length mismatch %d != %d", len(x), len(y))
	}
	a, b, cVal, err := c.popSelect()
	if err != nil {
		return nil, err
	}
	// a, b, cVal are value_t-sized AS words: a's low bit is this party's
	// share of the triple's bit a, b/cVal expand (repeating 8-byte
	// chunks) to this party's shares of the full-width masks b and
	// c = a AND b.
	aBit := byte(a.V & 1)
	bMask := expandMask(b.V, len(x))
	cMask := expandMask(cVal.V, len(x))

	delta := xorBytes(x, y)

	dBit := f ^ aBit
	eMask := xorBytes(delta, bMask)

	c.IO.QueuePeer([]byte{dBit})
	c.IO.QueuePeer(eMask)
	c.H.Yield()

	got, err := c.IO.RecvPeer(1 + len(eMask))
	if err != nil {
		return nil, fmt.Errorf("mpc: ReconstructChoice exchange: %w", err)
	}
	dPeer := got[0]
	ePeer := got[1:]

	dClear := dBit ^ dPeer
	eClear := xorBytes(eMask, ePeer)

	// z = c_i XOR (d AND b_i) XOR (a_i AND e) (+ d AND e, added once by
	// P0), the boolean-Beaver reduction of f AND delta.
	out := make([]byte, len(x))
	copy(out, cMask)
	if dClear != 0 {
		for i := range out {
			out[i] ^= bMask[i]
		}
	}
	if aBit == 1 {
		for i := range out {
			out[i] ^= eClear[i]
		}
	}
	if c.Self == party.P0 && dClear != 0 {
		for i := range out {
			out[i] ^= eClear[i]
		}
	}
	for i := range out {
		out[i] ^= x[i]
	}
	return out, nil
}

func expandMask(v uint64, n int) []byte {
	out := make([]byte, n)
	var word [8]byte
	for i := 0; i < 8; i++ {
		word[i] = byte(v >> (8 * uint(i)))
	}
	for i := range out {
		out[i] = word[i%8]
	}
	return out
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
