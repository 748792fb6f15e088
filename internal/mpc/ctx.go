// Package mpc implements the constant-round secret-share primitives
// every higher layer is built from (spec §4.4): mul, cross, valuemul,
// flagmult, select, oswap, xs_to_as, reconstruct_choice. Every primitive
// is cooperative: it queues outgoing bytes, yields, and only then reads
// its incoming bytes, exactly mirroring the contract in spec §4.4 and
// §5.
package mpc

import (
	"fmt"

	"github.com/luxfi/duoram3pc/internal/coro"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/preproc"
	"github.com/luxfi/duoram3pc/internal/shares"
	"github.com/luxfi/duoram3pc/internal/transport"
)

// Ctx bundles everything one coroutine needs to run MPC primitives: its
// transport, its yield handle, its correlated-randomness queues, and the
// ring width it operates over.
type Ctx struct {
	IO   *transport.MPCIO
	H    *coro.Handle
	W    shares.Width
	Self party.ID

	Triples *preproc.Queue // 3 AS words: X, Y, Z (mul)
	Halves  *preproc.Queue // 2 AS words: own factor, own product share (valuemul/cross)
	Selects *preproc.Queue // select triples for reconstruct_choice
}

// popTriple pops and decodes one multiplication-triple record.
func (c *Ctx) popTriple() (x, y, z shares.AS, err error) {
	rec, err := c.Triples.Pop()
	if err != nil {
		return shares.AS{}, shares.AS{}, shares.AS{}, fmt.Errorf("mpc: pop triple: %w", err)
	}
	x, y, z, _, err = shares.ReadASTriple(rec, c.W)
	if err != nil {
		return shares.AS{}, shares.AS{}, shares.AS{}, fmt.Errorf("mpc: decode triple: %w", err)
	}
	return x, y, z, nil
}

// popHalf pops and decodes one half-triple record: (ownFactor, ownShare).
func (c *Ctx) popHalf() (ownFactor, ownShare shares.AS, err error) {
	rec, err := c.Halves.Pop()
	if err != nil {
		return shares.AS{}, shares.AS{}, fmt.Errorf("mpc: pop half-triple: %w", err)
	}
	ownFactor, rest, err := shares.ReadAS(rec, c.W)
	if err != nil {
		return shares.AS{}, shares.AS{}, fmt.Errorf("mpc: decode half-triple: %w", err)
	}
	ownShare, _, err = shares.ReadAS(rest, c.W)
	if err != nil {
		return shares.AS{}, shares.AS{}, fmt.Errorf("mpc: decode half-triple: %w", err)
	}
	return ownFactor, ownShare, nil
}

// popSelect pops and decodes one select triple: a boolean AND-triple
// (a,b,c) with c = a AND b (a a single shared bit broadcast over the
// mask's width, b/c full-width shared masks), laid out identically to a
// multiplication triple.
func (c *Ctx) popSelect() (a, b, cVal shares.AS, err error) {
	rec, err := c.Selects.Pop()
	if err != nil {
		return shares.AS{}, shares.AS{}, shares.AS{}, fmt.Errorf("mpc: pop select triple: %w", err)
	}
	a, b, cVal, _, err = shares.ReadASTriple(rec, c.W)
	if err != nil {
		return shares.AS{}, shares.AS{}, shares.AS{}, fmt.Errorf("mpc: decode select triple: %w", err)
	}
	return a, b, cVal, nil
}

// exchangeWords queues the given words to the peer, yields, and returns
// the decoded words the peer sent back — the "two words exchanged, one
// message" round every Beaver-style primitive in this package performs.
func (c *Ctx) exchangeWords(send ...shares.AS) ([]shares.AS, error) {
	var buf []byte
	for _, s := range send {
		buf = shares.WriteAS(buf, s)
	}
	c.IO.QueuePeer(buf)
	c.H.Yield()

	got, err := c.IO.RecvPeer(len(buf))
	if err != nil {
		return nil, fmt.Errorf("mpc: exchange: %w", err)
	}
	out := make([]shares.AS, 0, len(send))
	rest := got
	for range send {
		var a shares.AS
		a, rest, err = shares.ReadAS(rest, c.W)
		if err != nil {
			return nil, fmt.Errorf("mpc: exchange decode: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}
