// Package rdpf implements the regular distributed point function used
// for oblivious ORAM access (spec §4.6): a collaboratively-generated
// pair of per-party keys that evaluate, at every leaf in [0,2^D), to an
// XOR share that is zero everywhere except at one secret target index.
//
// Construction follows the standard GGM-tree / Boyle-Gilboa-Ishai
// regular-DPF pattern spec §4.6 describes: at every level both parties
// expand their *entire* current node set with the fixed-key PRG,
// aggregate the XOR of all left/right children, and use one
// reconstruct_choice call to obtain a fresh XOR share of the correction
// word selected by the target's bit at that level. See DESIGN.md's RDPF
// entry for how the grounding was done and what is deliberately
// simplified relative to a from-scratch security proof of the final
// payload localization.
package rdpf

import (
	"crypto/rand"
	"fmt"

	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/prg"
	"github.com/luxfi/duoram3pc/internal/shares"
)

// RDPF is one party's half of a regular DPF of the given depth. Once
// generated it is evaluated purely locally: no further MPC rounds.
type RDPF struct {
	Depth int
	Self  party.ID

	Seed   prg.Node
	CW     []prg.Node // one correction word per level, 0..Depth-2
	CFBits []byte     // CW[l]'s forced flag bit, cached for convenience

	// CWLeaf holds the final-layer corrections applied to the depth-D
	// leaves: CWLeaf[0] corrects left leaf children of a flagged
	// level-(Depth-1) node, CWLeaf[1] corrects right leaf children.
	CWLeaf [2]prg.Node

	W shares.Width // width of the embedded scaled value

	memo [][16]byte // optional memoized full leaf expansion
}

// payload packs the unit flag and scaled value into one 16-byte node:
// bit 1 of byte 0 (bit 0 is reserved as the path flag bit) carries the
// unit indicator, bytes 8..15 carry the scaled value.
func payload(scaled uint64) prg.Node {
	var n prg.Node
	n[0] = 0x02
	for i := 0; i < 8; i++ {
		n[8+i] = byte(scaled >> (8 * uint(i)))
	}
	return n
}

func unitBit(n prg.Node) byte { return (n[0] >> 1) & 1 }

func scaledWord(n prg.Node) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(n[8+i]) << (8 * uint(i))
	}
	return v
}

// Gen collaboratively generates this party's half of a depth-D RDPF for
// a target held as an XS, folding in a secret scaled value (each party
// supplies its own XS share of M). ctx.H must already be set to a live
// coroutine handle; Gen yields once per tree level plus twice more for
// the final layer's two side corrections.
func Gen(ctx *mpc.Ctx, depth int, target shares.XS, myScaledShare shares.XS) (*RDPF, error) {
	if depth < 1 {
		return nil, fmt.Errorf("rdpf: depth must be >= 1, got %d", depth)
	}
	seed, err := randomNode()
	if err != nil {
		return nil, err
	}
	if ctx.Self == party.P0 {
		seed = seed.SetLsb(0)
	} else {
		seed = seed.SetLsb(1)
	}

	r := &RDPF{Depth: depth, Self: ctx.Self, Seed: seed, W: myScaledShare.W}
	r.CFBits = make([]byte, depth-1)
	r.CW = make([]prg.Node, depth-1)

	cur := []prg.Node{seed}
	for l := 0; l < depth-1; l++ {
		lefts := make([]prg.Node, len(cur))
		rights := make([]prg.Node, len(cur))
		var lXor, rXor prg.Node
		for i, n := range cur {
			lefts[i], rights[i] = prg.Both(n, ctr(&ctx.IO.AESOps))
			lXor = lXor.Xor(lefts[i])
			rXor = rXor.Xor(rights[i])
		}

		tBit := byte(target.Bit(depth - 1 - l))
		cwBytes, err := ctx.ReconstructChoice(tBit, lXor[:], rXor[:])
		if err != nil {
			return nil, fmt.Errorf("rdpf: level %d correction: %w", l, err)
		}
		var cw prg.Node
		copy(cw[:], cwBytes)
		cw = cw.SetLsb(1)
		r.CW[l] = cw
		r.CFBits[l] = cw.Lsb()

		next := make([]prg.Node, 0, len(cur)*2)
		for i := range cur {
			left, right := lefts[i], rights[i]
			if cur[i].Lsb() == 1 {
				left = left.Xor(cw)
				right = right.Xor(cw)
			}
			next = append(next, left, right)
		}
		cur = next
	}

	// Final level: cur holds the level-(Depth-1) nodes. Each side gets
	// its own correction word, derived so that exactly the side the
	// target descends through additionally carries the secret payload
	// (unit flag + scaled value), without ever revealing which side
	// that is.
	var lOwn, rOwn prg.Node
	for _, n := range cur {
		left, right := prg.Both(n, ctr(&ctx.IO.AESOps))
		lOwn = lOwn.Xor(left)
		rOwn = rOwn.Xor(right)
	}

	myPayload := payload(uint64(myScaledShare.V))
	lastBit := byte(target.Bit(0))

	lWithPayload := lOwn.Xor(myPayload)
	leftCWBytes, err := ctx.ReconstructChoice(lastBit, lWithPayload[:], lOwn[:])
	if err != nil {
		return nil, fmt.Errorf("rdpf: final-left correction: %w", err)
	}
	rWithPayload := rOwn.Xor(myPayload)
	rightCWBytes, err := ctx.ReconstructChoice(lastBit, rOwn[:], rWithPayload[:])
	if err != nil {
		return nil, fmt.Errorf("rdpf: final-right correction: %w", err)
	}
	var leftCW, rightCW prg.Node
	copy(leftCW[:], leftCWBytes)
	copy(rightCW[:], rightCWBytes)
	// Force the flag bit the same way every internal-level CW does, so
	// leaf-level flag bits keep the same on-path/off-path disagreement
	// invariant the internal levels maintain (cdpf's range decomposition
	// relies on this holding uniformly at every depth).
	r.CWLeaf[0] = leftCW.SetLsb(1)
	r.CWLeaf[1] = rightCW.SetLsb(1)

	return r, nil
}

// Leaf evaluates this party's share of leaf index x (0 <= x < 2^Depth),
// descending from the seed and applying corrections at every level the
// path's ancestor carried flag=1 — pure local computation, no MPC. Bit
// order matches Gen: level l consumes x's bit (Depth-1-l), most
// significant first, with the final level consuming bit 0.
func (r *RDPF) Leaf(x uint64) prg.Node {
	n := r.Seed
	for l := 0; l < r.Depth-1; l++ {
		bit := byte((x >> uint(r.Depth-1-l)) & 1)
		left, right := prg.Both(n, nil)
		if n.Lsb() == 1 {
			left = left.Xor(r.CW[l])
			right = right.Xor(r.CW[l])
		}
		if bit == 0 {
			n = left
		} else {
			n = right
		}
	}
	// Final descent, applying the side-specific leaf correction.
	lastBit := byte(x & 1)
	left, right := prg.Both(n, nil)
	if n.Lsb() == 1 {
		left = left.Xor(r.CWLeaf[0])
		right = right.Xor(r.CWLeaf[1])
	}
	if lastBit == 0 {
		return left
	}
	return right
}

// NodeFlag returns this party's flag bit (the tree's on-path/off-path
// indicator, spec §4.6) for the interior node reached by descending
// `level` steps from the seed along prefix's top `level` bits (same
// MSB-first bit order as Leaf/Gen). level must be in [0,Depth]; level=0
// returns the seed's own flag bit, level=Depth returns the true leaf's
// flag bit (equivalent to Leaf(prefix).Lsb()). Used by CDPF's canonical
// dyadic-interval range decomposition, where a subtree's flag bit is
// exactly its XOR-shared membership indicator for "target is somewhere
// in this subtree".
func (r *RDPF) NodeFlag(prefix uint64, level int) byte {
	n := r.Seed
	internal := level
	if internal > r.Depth-1 {
		internal = r.Depth - 1
	}
	for l := 0; l < internal; l++ {
		bit := byte((prefix >> uint(level-1-l)) & 1)
		left, right := prg.Both(n, nil)
		if n.Lsb() == 1 {
			left = left.Xor(r.CW[l])
			right = right.Xor(r.CW[l])
		}
		if bit == 0 {
			n = left
		} else {
			n = right
		}
	}
	if level < r.Depth {
		return n.Lsb()
	}
	// level == Depth: one more step through the final leaf-level
	// correction, same as Leaf's last descent.
	lastBit := byte(prefix & 1)
	left, right := prg.Both(n, nil)
	if n.Lsb() == 1 {
		left = left.Xor(r.CWLeaf[0])
		right = right.Xor(r.CWLeaf[1])
	}
	if lastBit == 0 {
		return left.Lsb()
	}
	return right.Lsb()
}

// Cursor walks consecutive leaf indices while reusing whatever path
// prefix two indices share, descending only the differing suffix (spec
// §4.6's streaming-evaluation requirement) instead of recomputing every
// level from the seed on each call.
type Cursor struct {
	r     *RDPF
	nodes []prg.Node // nodes[l] is the node entering level l, l=0..Depth-1
	have  bool
	lastX uint64
}

// NewCursor returns a fresh streaming evaluator over r.
func (r *RDPF) NewCursor() *Cursor {
	return &Cursor{r: r, nodes: make([]prg.Node, r.Depth)}
}

// Eval returns this party's share of leaf index x, reusing any path
// prefix carried over from the previous call to Eval on the same
// cursor.
func (c *Cursor) Eval(x uint64) prg.Node {
	r := c.r
	start := 0
	if c.have {
		diff := x ^ c.lastX
		if diff != 0 {
			p := highestBit(diff)
			start = r.Depth - 1 - p
		} else {
			start = r.Depth - 1
		}
	}
	if start == 0 {
		c.nodes[0] = r.Seed
	}
	for l := start; l < r.Depth-1; l++ {
		bit := byte((x >> uint(r.Depth-1-l)) & 1)
		n := c.nodes[l]
		left, right := prg.Both(n, nil)
		if n.Lsb() == 1 {
			left = left.Xor(r.CW[l])
			right = right.Xor(r.CW[l])
		}
		if bit == 0 {
			c.nodes[l+1] = left
		} else {
			c.nodes[l+1] = right
		}
	}

	n := c.nodes[r.Depth-1]
	lastBit := byte(x & 1)
	left, right := prg.Both(n, nil)
	if n.Lsb() == 1 {
		left = left.Xor(r.CWLeaf[0])
		right = right.Xor(r.CWLeaf[1])
	}
	c.have = true
	c.lastX = x
	if lastBit == 0 {
		return left
	}
	return right
}

// highestBit returns the position (0 = LSB) of the most significant set
// bit of v. v is assumed nonzero.
func highestBit(v uint64) int {
	p := -1
	for v != 0 {
		p++
		v >>= 1
	}
	return p
}

// Expand memoizes the full 2^Depth leaf set (spec §4.6: "optionally a
// memoized full expansion"), trading memory for repeated point lookups.
func (r *RDPF) Expand() {
	n := uint64(1) << uint(r.Depth)
	r.memo = make([][16]byte, n)
	for x := uint64(0); x < n; x++ {
		r.memo[x] = r.Leaf(x)
	}
}

func (r *RDPF) leafAt(x uint64) prg.Node {
	if r.memo != nil {
		return r.memo[x]
	}
	return r.Leaf(x)
}

// UnitBS returns this party's bit share of [x=target].
func (r *RDPF) UnitBS(x uint64) shares.BS {
	return shares.BS(unitBit(r.leafAt(x)))
}

// UnitAS converts UnitBS(x) to an additive share via xs_to_as on the
// single-bit XS it represents (spec's decoders require "unit_sum_inverse
// as a scalar"; this implementation instead reuses the general xs_to_as
// machinery already proven correct for an arbitrary bit width, which is
// an equivalent, if less specialized, way to get the same additive
// share — see DESIGN.md).
func (r *RDPF) UnitAS(ctx *mpc.Ctx, x uint64) (shares.AS, error) {
	bit := shares.NewXS(uint64(r.UnitBS(x)), 1)
	return ctx.XsToAs(bit, 1)
}

// ScaledXS returns this party's XS share of M·[x=target].
func (r *RDPF) ScaledXS(x uint64) shares.XS {
	return shares.NewXS(scaledWord(r.leafAt(x)), r.W)
}

// ScaledAS converts ScaledXS(x) to an additive share via xs_to_as.
func (r *RDPF) ScaledAS(ctx *mpc.Ctx, x uint64) (shares.AS, error) {
	return ctx.XsToAs(r.ScaledXS(x), int(r.W))
}

func ctr(aesOps *uint64) prg.AESOpsCounter { return aesOpsCounter{aesOps} }

type aesOpsCounter struct{ n *uint64 }

func (c aesOpsCounter) Add(n uint64) { *c.n += n }

func randomNode() (prg.Node, error) {
	var n prg.Node
	if _, err := rand.Read(n[:]); err != nil {
		return prg.Node{}, fmt.Errorf("rdpf: seed randomness: %w", err)
	}
	return n, nil
}
