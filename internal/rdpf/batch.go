package rdpf

import (
	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/shares"
)

// BatchUnitAS returns this party's additive share of [x=target] for
// every x in xs, batching every position's bit-to-additive conversion
// into a single queue-then-yield round instead of one round per
// position — the same single-bit specialization of xs_to_as's identity
// (a = b0+b1-2*b0*b1) that XsToAs applies per bit, here applied across
// many independent positions at once via BatchValueMul directly. Used
// by internal/duoram to turn a whole shape's worth of indicator lookups
// into one round (spec §4.8: "one round of exchange completes the
// read").
func (r *RDPF) BatchUnitAS(ctx *mpc.Ctx, xs []uint64) ([]shares.AS, error) {
	own := make([]shares.AS, len(xs))
	for i, x := range xs {
		own[i] = shares.NewAS(uint64(r.UnitBS(x)), ctx.W)
	}
	prod, err := ctx.BatchValueMul(own)
	if err != nil {
		return nil, err
	}
	out := make([]shares.AS, len(xs))
	for i := range xs {
		term := prod[i]
		term.Add(term)
		a := own[i]
		a.Sub(term)
		out[i] = a
	}
	return out, nil
}
