package rdpf

import (
	"fmt"

	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/shares"
)

// RDPFPair is two RDPFs co-generated over the same target index, used
// wherever a Duoram access needs to scale exactly two parallel vectors
// from one secret index (spec §4.6: "a matched pair"). A, B fold in
// independent scaled-value shares even though they share a target.
type RDPFPair struct {
	A, B *RDPF
}

// GenPair generates both halves of an RDPFPair. ctx.H must be live; Gen
// is called twice in sequence, so GenPair yields 2*(depth+1) times.
func GenPair(ctx *mpc.Ctx, depth int, target shares.XS, aScaled, bScaled shares.XS) (*RDPFPair, error) {
	a, err := Gen(ctx, depth, target, aScaled)
	if err != nil {
		return nil, fmt.Errorf("rdpf: pair half A: %w", err)
	}
	b, err := Gen(ctx, depth, target, bScaled)
	if err != nil {
		return nil, fmt.Errorf("rdpf: pair half B: %w", err)
	}
	return &RDPFPair{A: a, B: b}, nil
}

// RDPFTriple is three RDPFs co-generated over the same target, the unit
// of randomness one Duoram access consumes (spec §4.6, §4.8): one to
// scale the local database vector, one for this party's own blind
// vector, and one for the peer-blinded database vector reconstructed
// jointly with the peer.
type RDPFTriple struct {
	DB, Blind, PeerBlind *RDPF
}

// GenTriple generates all three RDPFs in sequence. See DESIGN.md's RDPF
// entry for why this package does not additionally implement a
// server-side (P2) generation path distinct from GenTriple/GenPair: P2's
// contribution is already modeled, uniformly with every other primitive
// in this codebase, as the correlated randomness popped from the
// select-triple preprocessing queue inside Gen, not as a third live
// participant in the generation protocol itself.
func GenTriple(ctx *mpc.Ctx, depth int, target shares.XS, dbScaled, blindScaled, peerScaled shares.XS) (*RDPFTriple, error) {
	db, err := Gen(ctx, depth, target, dbScaled)
	if err != nil {
		return nil, fmt.Errorf("rdpf: triple DB: %w", err)
	}
	blind, err := Gen(ctx, depth, target, blindScaled)
	if err != nil {
		return nil, fmt.Errorf("rdpf: triple Blind: %w", err)
	}
	peer, err := Gen(ctx, depth, target, peerScaled)
	if err != nil {
		return nil, fmt.Errorf("rdpf: triple PeerBlind: %w", err)
	}
	return &RDPFTriple{DB: db, Blind: blind, PeerBlind: peer}, nil
}

// Depth reports the shared tree depth of the triple's three DPFs.
func (t *RDPFTriple) Depth() int { return t.DB.Depth }
