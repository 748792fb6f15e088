package duoram

import (
	"github.com/luxfi/duoram3pc/internal/cdpf"
	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/shares"
)

// compareSwap compares data[i] and data[j] and swaps them in place so
// that, after the call, data[i] <= data[j] when ascending is true (spec
// §4.8: "a standard bitonic network whose comparator is a CDPF compare
// plus oswap"). The CDPF's own target is a throwaway random blinding
// value freshly generated for this one comparison, not a value either
// party ever needs again.
func compareSwap(ctx *mpc.Ctx, data []shares.AS, i, j int, ascending bool) error {
	c, err := cdpf.GenRandom(ctx, data[i].W)
	if err != nil {
		return err
	}
	diff := data[i]
	diff.Sub(data[j])
	_, _, gt, err := c.Compare(ctx, diff)
	if err != nil {
		return err
	}
	// Swap when the pair is in the wrong order for the requested
	// direction: ascending wants data[i] <= data[j], so swap on gt;
	// descending wants the opposite, so swap on not-gt. Negating a
	// shared bit flips exactly one party's share.
	f := gt
	if !ascending && ctx.Self == party.P0 {
		f ^= 1
	}
	return ctx.OSwap(&data[i], &data[j], f)
}

// BitonicSort sorts data in place using the classic iterative bitonic
// network (spec §4.8). len(data) must be a power of two — callers with
// an arbitrary-size Flat should wrap it in a Pad first and sort the
// padded range, then ignore the padding values in the result.
func BitonicSort(ctx *mpc.Ctx, data []shares.AS, ascending bool) error {
	n := len(data)
	if n&(n-1) != 0 {
		panic("duoram: BitonicSort requires a power-of-two length")
	}
	for k := 2; k <= n; k <<= 1 {
		for j := k >> 1; j > 0; j >>= 1 {
			for i := 0; i < n; i++ {
				l := i ^ j
				if l <= i {
					continue
				}
				dir := ascending
				if i&k != 0 {
					dir = !dir
				}
				if err := compareSwap(ctx, data, i, l, dir); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
