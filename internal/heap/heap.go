// Package heap implements the oblivious min-heap priority queue built on
// top of internal/duoram (spec §4.9): a binary heap stored as a flat
// array of additive-shared keys, insert and extract-min each touching
// every level of the tree regardless of where a value actually settles,
// so the access pattern never depends on the data.
package heap

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/duoram3pc/internal/cdpf"
	"github.com/luxfi/duoram3pc/internal/duoram"
	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/shares"
)

// Heap is a 1-indexed binary min-heap over a Duoram: index 0 is never
// used, item i's children live at 2i and 2i+1. NumItems is a public
// count — driven by how many inserts/extracts each party has issued,
// never by secret data — so the set of live slots is known to both
// parties even though the values in them are not.
type Heap struct {
	db       *duoram.Duoram
	Cap      int
	NumItems int
}

// New allocates an empty heap able to hold up to capacity items.
func New(self party.ID, w shares.Width, capacity int) *Heap {
	return &Heap{db: duoram.New(self, w, capacity+1, 1), Cap: capacity}
}

func (h *Heap) Width() shares.Width { return h.db.W }

func publicConstAS(self party.ID, v uint64, w shares.Width) shares.AS {
	if self == party.P0 {
		return shares.NewAS(v, w)
	}
	return shares.NewAS(0, w)
}

func publicConstXS(self party.ID, v uint64, w shares.Width) shares.XS {
	if self == party.P0 {
		return shares.NewXS(v, w)
	}
	return shares.NewXS(0, w)
}

// maxRingVal is used as a "positive infinity" sentinel for a missing
// child: the largest representable value under the signed 2's-
// complement interpretation CDPF compares use, so a real key is never
// greater than it.
func maxRingVal(w shares.Width) uint64 {
	return (uint64(1) << uint(w-1)) - 1
}

// treeHeight returns the number of parent-to-child levels a heap of the
// given capacity can have below the root (root is level 0).
func treeHeight(cap int) int {
	h := 0
	for (1<<uint(h+1))-1 < cap {
		h++
	}
	return h
}

func mulBits(ctx *mpc.Ctx, a, b shares.BS) (shares.BS, error) {
	z, err := ctx.Mul(shares.NewAS(uint64(a), ctx.W), shares.NewAS(uint64(b), ctx.W))
	if err != nil {
		return 0, err
	}
	return shares.BS(z.V & 1), nil
}

// orBits computes a OR b as a OR b = a XOR b XOR (a AND b), via one
// secret AND.
func orBits(ctx *mpc.Ctx, a, b shares.BS) (shares.BS, error) {
	ab, err := mulBits(ctx, a, b)
	if err != nil {
		return 0, err
	}
	return a.Xor(b).Xor(ab), nil
}

func notBit(self party.ID, b shares.BS) shares.BS {
	if self == party.P0 {
		return b ^ 1
	}
	return b
}

// xsSelect computes f ? y : x for two same-width XS values, via one
// select triple (internal/mpc.ReconstructChoice).
func xsSelect(ctx *mpc.Ctx, f shares.BS, x, y shares.XS) (shares.XS, error) {
	xb := make([]byte, 8)
	yb := make([]byte, 8)
	binary.LittleEndian.PutUint64(xb, x.V)
	binary.LittleEndian.PutUint64(yb, y.V)
	out, err := ctx.ReconstructChoice(byte(f), xb, yb)
	if err != nil {
		return shares.XS{}, err
	}
	return shares.NewXS(binary.LittleEndian.Uint64(out), x.W), nil
}

// Insert adds v to the heap, restoring the min-heap invariant by
// bubbling it up from the new last slot to the root (spec §4.9 basic
// insert): the path walked is num_items+1, its parent, its
// grandparent, ..., 1 — entirely public positions, since the new slot
// is just a running count — so every step is a plain Duoram explicit
// read/write; only the comparison and the conditional swap of the two
// values are oblivious.
func (h *Heap) Insert(ctx *mpc.Ctx, v shares.AS) error {
	if h.NumItems >= h.Cap {
		return fmt.Errorf("heap: full (capacity %d)", h.Cap)
	}
	h.NumItems++
	i := h.NumItems
	h.db.SetExplicit(i, []shares.AS{v})

	for i > 1 {
		parent := i / 2
		pc := h.db.GetExplicit(parent)[0]
		cc := h.db.GetExplicit(i)[0]

		c, err := cdpf.GenRandom(ctx, h.db.W)
		if err != nil {
			return err
		}
		diff := cc
		diff.Sub(pc)
		lt, eq, _, err := c.Compare(ctx, diff)
		if err != nil {
			return err
		}
		swap := lt.Xor(eq) // child <= parent: violates min-heap order
		if err := ctx.OSwap(&pc, &cc, swap); err != nil {
			return err
		}
		h.db.SetExplicit(parent, []shares.AS{pc})
		h.db.SetExplicit(i, []shares.AS{cc})
		i = parent
	}
	return nil
}

// InsertOptimized performs the same insertion as Insert, but replaces
// the O(height) sequential bubble-compares with a single oblivious
// binary search for the insertion point along the root-to-leaf path
// (spec §4.9 insert_optimized): the path's existing ancestor values are
// already heap-ordered ascending root-to-leaf, so finding where v fits
// is exactly duoram.ObliviousBinarySearch over that small path array,
// which costs O(log height) rounds instead of O(height). The located
// cut point then drives one compare-and-select per path slot to shift
// larger ancestors down by one and write v into the gap; the spec
// describes this final phase as a single batched round of parallel
// flagmults, which this implementation instead runs as height+1
// independent (but not sequentially dependent) compare+select rounds.
func (h *Heap) InsertOptimized(ctx *mpc.Ctx, v shares.AS) error {
	if h.NumItems >= h.Cap {
		return fmt.Errorf("heap: full (capacity %d)", h.Cap)
	}
	h.NumItems++
	leaf := h.NumItems
	w := h.db.W
	self := h.db.Self

	var positions []int
	for p := leaf; p > 1; p /= 2 {
		positions = append(positions, p/2)
	}
	for a, b := 0, len(positions)-1; a < b; a, b = a+1, b-1 {
		positions[a], positions[b] = positions[b], positions[a]
	}
	d := len(positions)
	if d == 0 {
		// Root insert: nothing to shift.
		h.db.SetExplicit(leaf, []shares.AS{v})
		return nil
	}

	pathVals := make([]shares.AS, d)
	for k, p := range positions {
		pathVals[k] = h.db.GetExplicit(p)[0]
	}

	scratch := duoram.New(self, w, d, 1)
	for k, val := range pathVals {
		scratch.SetExplicit(k, []shares.AS{val})
	}
	cutIdx, err := duoram.ObliviousBinarySearch(ctx, duoram.NewFlat(scratch), v)
	if err != nil {
		return err
	}

	newVals := make([]shares.AS, d+1)
	for j := 0; j <= d; j++ {
		jConst := publicConstAS(self, uint64(j), w)
		diff := cutIdx
		diff.Sub(jConst) // cutIdx - j
		c, err := cdpf.GenRandom(ctx, w)
		if err != nil {
			return err
		}
		lt, eq, gt, err := c.Compare(ctx, diff)
		if err != nil {
			return err
		}
		isAtCut := eq   // j == cutIdx
		isPastCut := lt // cutIdx < j
		_ = gt          // j < cutIdx: keep own old value, the Select default branch

		own := shares.NewAS(0, w)
		if j < d {
			own = pathVals[j]
		}
		fromPrev := shares.NewAS(0, w)
		if j > 0 {
			fromPrev = pathVals[j-1]
		}

		elseVal, err := ctx.Select(isAtCut, own, v)
		if err != nil {
			return err
		}
		newVal, err := ctx.Select(isPastCut, elseVal, fromPrev)
		if err != nil {
			return err
		}
		newVals[j] = newVal
	}

	for j, p := range positions {
		h.db.SetExplicit(p, []shares.AS{newVals[j]})
	}
	h.db.SetExplicit(leaf, []shares.AS{newVals[d]})
	return nil
}

// liveFlat is a duoram.Shape over the physical sub-range [lo,hi) that
// treats any position beyond numItems (the live boundary, which can be
// smaller than the heap's allocated capacity) as the constant sentinel
// instead of reading stale data left over from an earlier extract-min.
type liveFlat struct {
	d            *duoram.Duoram
	lo, hi       uint64
	numItems     uint64
	sentinelCell []shares.AS
}

func (s *liveFlat) Size() int            { return int(s.hi - s.lo) }
func (s *liveFlat) Root() *duoram.Duoram { return s.d }
func (s *liveFlat) Resolve(virt uint64) (uint64, bool, []shares.AS) {
	phys := s.lo + virt
	if phys < s.hi && phys <= s.numItems {
		return phys, true, nil
	}
	return 0, false, s.sentinelCell
}

// extractMin implements both the basic and optimized extract-min
// variants of spec §4.9. Both walk the tree top-down for exactly
// treeHeight(Cap) levels regardless of the real heap's depth — a fixed,
// data-independent access pattern — carrying the displaced value `cur`
// and a `done` flag that, once set, forces every subsequent update to a
// zero delta so further (meaningless) position tracking never corrupts
// real data. The `shared` flag selects between the basic cost model
// (independent OblivIndex for the parent, left child and right child at
// every level) and the optimized
// one (a single OblivIndex whose unit vector is reused, via Stride
// views, to address the parent, left-child and right-child rows at
// once — spec's "width-3 OblivIndex descent").
func (h *Heap) extractMin(ctx *mpc.Ctx, shared bool) (shares.AS, error) {
	w := h.db.W
	self := h.db.Self
	if h.NumItems == 0 {
		return shares.NewAS(0, w), fmt.Errorf("heap: extract from empty heap")
	}

	min := h.db.GetExplicit(1)[0]
	last := h.db.GetExplicit(h.NumItems)[0]
	h.NumItems--
	if h.NumItems == 0 {
		h.db.SetExplicit(1, []shares.AS{shares.NewAS(0, w)})
		return min, nil
	}
	h.db.SetExplicit(1, []shares.AS{last})

	height := treeHeight(h.Cap)
	// The full constant on both parties: a constant cell is consumed by
	// scaling indicator shares, not by reconstruction (see duoram.NewPad).
	sentinelRow := []shares.AS{shares.NewAS(maxRingVal(w), w)}

	cur := last
	done := shares.BS(0)
	qXS := shares.NewXS(0, shares.Width(height+1))

	for L := 0; L < height; L++ {
		levelSize := 1 << uint(L)
		childBase := uint64(1) << uint(L+1)

		childFlat := &liveFlat{d: h.db, lo: childBase, hi: childBase << 1, numItems: uint64(h.NumItems), sentinelCell: sentinelRow}
		leftShape := duoram.NewStride(childFlat, 0, 2)
		rightShape := duoram.NewStride(childFlat, 1, 2)

		oiLeft, err := duoram.NewOblivIndex(ctx, qXS, levelSize)
		if err != nil {
			return shares.AS{}, err
		}
		oiRight := oiLeft
		if !shared {
			oiRight, err = duoram.NewOblivIndex(ctx, qXS, levelSize)
			if err != nil {
				return shares.AS{}, err
			}
		}

		leftVal, err := oiLeft.Read(leftShape)
		if err != nil {
			return shares.AS{}, err
		}
		rightVal, err := oiRight.Read(rightShape)
		if err != nil {
			return shares.AS{}, err
		}

		cLR, err := cdpf.GenRandom(ctx, w)
		if err != nil {
			return shares.AS{}, err
		}
		diffLR := leftVal[0]
		diffLR.Sub(rightVal[0])
		_, _, gtLR, err := cLR.Compare(ctx, diffLR) // gtLR = [left > right]
		if err != nil {
			return shares.AS{}, err
		}
		rightChosen := gtLR

		smallerVal, err := ctx.Select(rightChosen, leftVal[0], rightVal[0])
		if err != nil {
			return shares.AS{}, err
		}

		c2, err := cdpf.GenRandom(ctx, w)
		if err != nil {
			return shares.AS{}, err
		}
		diff2 := cur
		diff2.Sub(smallerVal)
		_, _, moveFlag, err := c2.Compare(ctx, diff2) // moveFlag = [cur > smaller]
		if err != nil {
			return shares.AS{}, err
		}

		notDone := notBit(self, done)
		effectiveMove, err := mulBits(ctx, moveFlag, notDone)
		if err != nil {
			return shares.AS{}, err
		}

		notMove := notBit(self, moveFlag)
		done, err = orBits(ctx, done, notMove)
		if err != nil {
			return shares.AS{}, err
		}

		childDiff := cur
		childDiff.Sub(smallerVal)
		scaledByMove, err := ctx.FlagMult(effectiveMove, childDiff)
		if err != nil {
			return shares.AS{}, err
		}
		notRightChosen := notBit(self, rightChosen)
		leftDelta, err := ctx.FlagMult(notRightChosen, scaledByMove)
		if err != nil {
			return shares.AS{}, err
		}
		rightDelta, err := ctx.FlagMult(rightChosen, scaledByMove)
		if err != nil {
			return shares.AS{}, err
		}
		parentDelta := scaledByMove.Negate()

		parentShape := &liveFlat{d: h.db, lo: uint64(1) << uint(L), hi: childBase, numItems: uint64(h.NumItems), sentinelCell: sentinelRow}
		oiParent := oiLeft
		if !shared {
			oiParent, err = duoram.NewOblivIndex(ctx, qXS, levelSize)
			if err != nil {
				return shares.AS{}, err
			}
		}
		if err := oiParent.Update(parentShape, []shares.AS{parentDelta}); err != nil {
			return shares.AS{}, err
		}
		if err := oiLeft.Update(leftShape, []shares.AS{leftDelta}); err != nil {
			return shares.AS{}, err
		}
		if err := oiRight.Update(rightShape, []shares.AS{rightDelta}); err != nil {
			return shares.AS{}, err
		}

		leftChildQ := shares.NewXS(qXS.V<<1, qXS.W)
		rightChildQ := leftChildQ
		rightChildQ.Xor(publicConstXS(self, 1, qXS.W))

		chosenChildQ, err := xsSelect(ctx, rightChosen, leftChildQ, rightChildQ)
		if err != nil {
			return shares.AS{}, err
		}
		qXS, err = xsSelect(ctx, effectiveMove, qXS, chosenChildQ)
		if err != nil {
			return shares.AS{}, err
		}
	}
	return min, nil
}

// ExtractMin removes and returns the minimum element (spec §4.9, the
// width-3 OblivIndex-sharing "optimized" variant: one DPF generation
// serves the parent, left-child and right-child reads/updates at every
// level instead of three).
func (h *Heap) ExtractMin(ctx *mpc.Ctx) (shares.AS, error) {
	return h.extractMin(ctx, true)
}

// ExtractMinBasic removes and returns the minimum element using the
// basic cost model: an independent DPF for each of the parent,
// left-child and right-child accesses at every level (spec §4.9 basic
// extract_min).
func (h *Heap) ExtractMinBasic(ctx *mpc.Ctx) (shares.AS, error) {
	return h.extractMin(ctx, false)
}
