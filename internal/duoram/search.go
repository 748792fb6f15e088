package duoram

import (
	"github.com/luxfi/duoram3pc/internal/cdpf"
	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/shares"
)

// ObliviousBinarySearch finds, on a Flat sorted ascending, the smallest
// index whose element is >= target (spec §4.8's obliv_binary_search;
// ported from the reference implementation's Duoram<RegAS>::Flat binary
// search over a power-of-two Pad). The reference tracks the running
// index as an additive share, starting at the midpoint and narrowing by
// a public subtract-then-flagmult-add each level; this package's RDPF
// generation needs its target as an XS to extract bit shares locally,
// so the index is instead built up directly as an XS, one never-before-
// decided bit per level (MSB first), which computes the same quantity:
// the count of elements strictly less than target. At level lvl the
// probe position is the running index with its low lvl bits forced to
// 1 (every one of those bits is still undecided and hence zero on both
// shares, so XORing in the public all-ones mask on just one party's
// share is exactly equivalent to the reference's "index + 2^lvl - 1").
// Converted to an AS only once, at the very end, via xs_to_as. Each
// level still costs exactly one oblivious read plus one CDPF compare,
// matching the original's round count.
func ObliviousBinarySearch(ctx *mpc.Ctx, data *Flat, target shares.AS) (shares.AS, error) {
	n := data.Size()
	w := data.Root().W
	if n == 0 {
		return shares.NewAS(0, w), nil
	}
	// At least one padded slot past n, so the result can reach n; padded
	// slots hold the largest signed value and never compare as less.
	depth := depthFor(n + 1)
	padSize := uint64(1) << uint(depth)
	pad := NewPad(data, padSize, []uint64{(uint64(1) << uint(w-1)) - 1})

	idxXS := shares.NewXS(0, shares.Width(depth))
	for lvl := depth - 1; lvl >= 0; lvl-- {
		mask := (uint64(1) << uint(lvl)) - 1
		readIdx := idxXS
		if ctx.Self == party.P0 {
			readIdx.V ^= mask
		}

		oi, err := NewOblivIndex(ctx, readIdx, int(padSize))
		if err != nil {
			return shares.AS{}, err
		}
		val, err := oi.Read(pad)
		if err != nil {
			return shares.AS{}, err
		}

		c, err := cdpf.GenRandom(ctx, w)
		if err != nil {
			return shares.AS{}, err
		}
		diff := val[0]
		diff.Sub(target)
		lt, _, _, err := c.Compare(ctx, diff)
		if err != nil {
			return shares.AS{}, err
		}
		idxXS.V |= uint64(lt) << uint(lvl)
	}

	return ctx.XsToAs(idxXS, depth)
}
