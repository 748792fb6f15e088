// Package avl implements the oblivious AVL search tree built on top of
// the same share algebra as internal/heap (spec §4.10): a flat array of
// key/value/balance cells (internal/duoram, additively shared) plus a
// parallel array of XOR-shared child pointers, descended with a
// fixed-height (TTL-bounded) walk so the access pattern never reveals
// which node, if any, matched.
//
// Node 0 is a permanent NULL sentinel, never written. The tree root is
// itself a secret XS pointer, since which physical slot holds the root
// changes as the tree grows. Node indices are allocated from a public,
// monotonically increasing counter — same convention as the heap's
// NumItems: the count of inserts ever issued is not secret, only the
// keys are. Deleted slots are never recycled: which physical slot a
// deleted key occupied is exactly the kind of fact an oblivious
// structure must not let leak through its allocation pattern, so
// capacity bounds the total number of inserts over the tree's lifetime
// rather than the live key count.
//
// Every Insert/Delete records the descent path as ancestorLevel entries
// and then runs a second, bottom-up rebalance pass (rebalance.go) that
// propagates the height-change bit and performs oblivious single/double
// rotation fixup, so the tree stays AVL-balanced after every operation
// while which node rotated, or whether any rotation happened at all,
// stays secret.
package avl

import (
	"fmt"
	"math"

	"github.com/luxfi/duoram3pc/internal/cdpf"
	"github.com/luxfi/duoram3pc/internal/duoram"
	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/rdpf"
	"github.com/luxfi/duoram3pc/internal/shares"
)

// Avl is an oblivious BST/AVL-shaped tree over up to Cap nodes.
type Avl struct {
	db    *duoram.Duoram // width 3 per cell: key, value, balance
	left  []shares.XS
	right []shares.XS

	Cap      int
	self     party.ID
	w        shares.Width
	ptrW     shares.Width
	root     shares.XS
	numNodes int
	ttl      int
}

// New allocates an empty tree able to hold up to capacity nodes.
func New(self party.ID, w shares.Width, capacity int) *Avl {
	ptrBits := bitsFor(capacity + 1)
	ptrW := shares.Width(ptrBits)
	left := make([]shares.XS, capacity+1)
	right := make([]shares.XS, capacity+1)
	for i := range left {
		left[i] = shares.NewXS(0, ptrW)
		right[i] = shares.NewXS(0, ptrW)
	}
	return &Avl{
		db:    duoram.New(self, w, capacity+1, 3),
		left:  left,
		right: right,
		Cap:   capacity,
		self:  self,
		w:     w,
		ptrW:  ptrW,
		root:  shares.NewXS(0, ptrW),
		ttl:   avlTTL(capacity),
	}
}

func (a *Avl) Width() shares.Width { return a.w }

// bitsFor returns the number of bits needed to represent [0,n).
func bitsFor(n int) int {
	b := 0
	for (1 << uint(b)) < n {
		b++
	}
	if b == 0 {
		b = 1
	}
	return b
}

// depthFor mirrors internal/duoram's unexported helper: the smallest d
// with 2^d >= n.
func depthFor(n int) int {
	d := 0
	for (1 << uint(d)) < n {
		d++
	}
	if d == 0 {
		d = 1
	}
	return d
}

// avlTTL is the height bound spec §4.10/§8 names for an AVL tree of up
// to n keys: ceil(1.44*log2(n+2)), resolved here (an Open Question in
// the distilled spec) in favor of the ceiling, so the fixed-round
// descent never runs short of a real AVL's worst-case height.
func avlTTL(n int) int {
	if n < 1 {
		return 1
	}
	h := int(math.Ceil(1.44 * math.Log2(float64(n+2))))
	if h < 1 {
		h = 1
	}
	return h
}

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

func mulBits(ctx *mpc.Ctx, a, b shares.BS) (shares.BS, error) {
	z, err := ctx.Mul(shares.NewAS(uint64(a), ctx.W), shares.NewAS(uint64(b), ctx.W))
	if err != nil {
		return 0, err
	}
	return shares.BS(z.V & 1), nil
}

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

// isZeroXS tests a secret pointer against the NULL sentinel (0): OR all
// of its bits together via the same embed-as-AS/Mul/mask trick mulBits
// uses, then negate. Cost is W sequential secret ANDs, fine for the
// small pointer widths a tree's capacity implies.
func isZeroXS(ctx *mpc.Ctx, self party.ID, x shares.XS) (shares.BS, error) {
	acc := shares.BS(0)
	for j := 0; j < int(x.W); j++ {
		b := x.Bit(j)
		var err error
		acc, err = orBits(ctx, acc, b)
		if err != nil {
			return 0, err
		}
	}
	return notBit(self, acc), nil
}

// scaleXS returns f*x (every bit of x masked by the single secret bit
// f) via one batched round of ptrWidth secret ANDs, using the same
// embed-then-fold-mod-2 identity mulBits relies on, here across all
// bits of x at once through BatchMul.
func scaleXS(ctx *mpc.Ctx, f shares.BS, x shares.XS) (shares.XS, error) {
	w := int(x.W)
	xsOp := make([]shares.AS, w)
	ysOp := make([]shares.AS, w)
	fAS := shares.NewAS(uint64(f), ctx.W)
	for j := 0; j < w; j++ {
		xsOp[j] = fAS
		ysOp[j] = shares.NewAS(uint64(x.Bit(j)), ctx.W)
	}
	prods, err := ctx.BatchMul(xsOp, ysOp)
	if err != nil {
		return shares.XS{}, err
	}
	out := shares.NewXS(0, x.W)
	for j := 0; j < w; j++ {
		if prods[j].V&1 == 1 {
			out.V |= uint64(1) << uint(j)
		}
	}
	return out, nil
}

// xsRead obliviously reads cells[target] for a parallel array of
// XOR-shared pointer cells: a genuine RDPF generated fresh for target
// (mirroring duoram.OblivIndex, which only ever addresses AS-typed
// cells) produces one secret bit share per position; each position's
// bit is ANDed (via the mulBits identity, batched across every
// position*bitwidth pair into a single round) against every bit of that
// position's stored pointer, and the masked terms are XOR-accumulated —
// since the indicator is a one-hot vector, exactly the target's cell
// survives. This gives internal/duoram's OblivIndex abstraction an
// XOR-domain counterpart, needed because a tree pointer must stay in XS
// form end to end (it is fed straight back in as the next level's
// RDPF target, with no AS<->XS conversion available).
func xsRead(ctx *mpc.Ctx, target shares.XS, capacity int, cells []shares.XS, ptrW shares.Width) (shares.XS, error) {
	depth := depthFor(capacity)
	r, err := rdpf.Gen(ctx, depth, target, shares.NewXS(0, ctx.W))
	if err != nil {
		return shares.XS{}, err
	}
	pw := int(ptrW)
	xsOp := make([]shares.AS, 0, capacity*pw)
	ysOp := make([]shares.AS, 0, capacity*pw)
	for i := 0; i < capacity; i++ {
		uAS := shares.NewAS(uint64(r.UnitBS(uint64(i))), ctx.W)
		for j := 0; j < pw; j++ {
			xsOp = append(xsOp, uAS)
			ysOp = append(ysOp, shares.NewAS(uint64(cells[i].Bit(j)), ctx.W))
		}
	}
	prods, err := ctx.BatchMul(xsOp, ysOp)
	if err != nil {
		return shares.XS{}, err
	}
	out := shares.NewXS(0, ptrW)
	idx := 0
	bitAcc := make([]shares.BS, pw)
	for i := 0; i < capacity; i++ {
		for j := 0; j < pw; j++ {
			bitAcc[j] = bitAcc[j].Xor(shares.BS(prods[idx].V & 1))
			idx++
		}
	}
	for j := 0; j < pw; j++ {
		if bitAcc[j] == 1 {
			out.V |= uint64(1) << uint(j)
		}
	}
	return out, nil
}

// xsUpdate applies cells[target] ^= delta, the XOR-domain counterpart
// of duoram.OblivIndex.Update: delta is masked by the same one-hot
// indicator (fresh RDPF for target) and XORed locally into every
// position, a no-op everywhere but the target position.
func xsUpdate(ctx *mpc.Ctx, target shares.XS, capacity int, cells []shares.XS, ptrW shares.Width, delta shares.XS) error {
	depth := depthFor(capacity)
	r, err := rdpf.Gen(ctx, depth, target, shares.NewXS(0, ctx.W))
	if err != nil {
		return err
	}
	pw := int(ptrW)
	xsOp := make([]shares.AS, 0, capacity*pw)
	ysOp := make([]shares.AS, 0, capacity*pw)
	for i := 0; i < capacity; i++ {
		uAS := shares.NewAS(uint64(r.UnitBS(uint64(i))), ctx.W)
		for j := 0; j < pw; j++ {
			xsOp = append(xsOp, uAS)
			ysOp = append(ysOp, shares.NewAS(uint64(delta.Bit(j)), ctx.W))
		}
	}
	prods, err := ctx.BatchMul(xsOp, ysOp)
	if err != nil {
		return err
	}
	idx := 0
	for i := 0; i < capacity; i++ {
		for j := 0; j < pw; j++ {
			if prods[idx].V&1 == 1 {
				cells[i].V ^= uint64(1) << uint(j)
			}
			idx++
		}
	}
	return nil
}

// nodeStep reads cell fields and both child pointers at a secret
// pointer in one pass, reusing one duoram.OblivIndex for the AS fields
// and two fresh RDPFs (via xsRead) for the pointer fields.
type nodeStep struct {
	oi                *duoram.OblivIndex
	key, val, balance shares.AS
	left, right       shares.XS
}

func (a *Avl) readNode(ctx *mpc.Ctx, ptr shares.XS) (*nodeStep, error) {
	oi, err := duoram.NewOblivIndex(ctx, ptr, a.Cap+1)
	if err != nil {
		return nil, err
	}
	cell, err := oi.Read(duoram.NewFlat(a.db))
	if err != nil {
		return nil, err
	}
	left, err := xsRead(ctx, ptr, a.Cap+1, a.left, a.ptrW)
	if err != nil {
		return nil, err
	}
	right, err := xsRead(ctx, ptr, a.Cap+1, a.right, a.ptrW)
	if err != nil {
		return nil, err
	}
	return &nodeStep{oi: oi, key: cell[0], val: cell[1], balance: cell[2], left: left, right: right}, nil
}

// Insert adds (key,val) to the tree, or overwrites val in place if key
// is already present (spec §4.10 insert, TTL-bounded descent). Every
// level of the walk performs the same work regardless of where, or
// whether, the key actually lands: CDPF-compare against the stored key,
// decide left/right/land/found under a `done` flag the same way
// internal/heap's extract-min does, and fold a zero-scaled delta into
// every array this round touches when this isn't the deciding level.
// Balance is kept as a signed AS per node instead of the spec's packed
// two-bit pair (DESIGN.md). The descent records every visited level;
// the unwind pass (rebalance) then bumps ancestor balances and performs
// rotation fixup at the unique imbalance point, if any.
func (a *Avl) Insert(ctx *mpc.Ctx, key, val shares.AS) error {
	if a.numNodes >= a.Cap {
		return fmt.Errorf("avl: full (capacity %d)", a.Cap)
	}
	self := a.self
	w := a.w
	newIdx := a.numNodes + 1
	newIdxXS := publicConstXS(self, uint64(newIdx), a.ptrW)

	cur := a.root
	var parent shares.XS
	dirRight := shares.BS(0)
	done := shares.BS(0)
	rootLand := shares.BS(0)
	inserted := shares.BS(0)
	levels := make([]ancestorLevel, 0, a.ttl)

	flat := duoram.NewFlat(a.db)

	for L := 0; L < a.ttl; L++ {
		isNull, err := isZeroXS(ctx, self, cur)
		if err != nil {
			return err
		}
		notDone := notBit(self, done)

		step, err := a.readNode(ctx, cur)
		if err != nil {
			return err
		}

		c, err := cdpf.GenRandom(ctx, w)
		if err != nil {
			return err
		}
		diff := key
		diff.Sub(step.key)
		lt, eq, gt, err := c.Compare(ctx, diff)
		if err != nil {
			return err
		}

		notIsNull := notBit(self, isNull)
		landHere, err := mulBits(ctx, isNull, notDone)
		if err != nil {
			return err
		}
		goLeft, err := mulBits(ctx, lt, notIsNull)
		if err != nil {
			return err
		}
		goLeft, err = mulBits(ctx, goLeft, notDone)
		if err != nil {
			return err
		}
		goRight, err := mulBits(ctx, gt, notIsNull)
		if err != nil {
			return err
		}
		goRight, err = mulBits(ctx, goRight, notDone)
		if err != nil {
			return err
		}
		foundEq, err := mulBits(ctx, eq, notIsNull)
		if err != nil {
			return err
		}
		foundEq, err = mulBits(ctx, foundEq, notDone)
		if err != nil {
			return err
		}

		// Record this level for the unwind pass: a real ancestor of the
		// insertion point exactly when the descent stepped past it.
		onPath, err := orBits(ctx, goLeft, goRight)
		if err != nil {
			return err
		}
		levels = append(levels, ancestorLevel{ptr: cur, dirRight: goRight, structural: onPath, gate: onPath})
		inserted, err = orBits(ctx, inserted, landHere)
		if err != nil {
			return err
		}

		// Overwrite value in place on an exact key match.
		valDelta := val
		valDelta.Sub(step.val)
		scaledValDelta, err := ctx.FlagMult(foundEq, valDelta)
		if err != nil {
			return err
		}
		if err := step.oi.Update(flat, []shares.AS{shares.NewAS(0, w), scaledValDelta, shares.NewAS(0, w)}); err != nil {
			return err
		}

		// Fold the new node's fields into its (public) slot: a no-op
		// add at every level but the one where landHere is 1.
		dKey, err := ctx.FlagMult(landHere, key)
		if err != nil {
			return err
		}
		dVal, err := ctx.FlagMult(landHere, val)
		if err != nil {
			return err
		}
		row := a.db.GetExplicit(newIdx)
		row[0].Add(dKey)
		row[1].Add(dVal)
		a.db.SetExplicit(newIdx, row)

		if L == 0 {
			rootLand = landHere
		} else {
			notDirRight := notBit(self, dirRight)
			leftFlag, err := mulBits(ctx, landHere, notDirRight)
			if err != nil {
				return err
			}
			rightFlag, err := mulBits(ctx, landHere, dirRight)
			if err != nil {
				return err
			}
			leftDelta, err := scaleXS(ctx, leftFlag, newIdxXS)
			if err != nil {
				return err
			}
			rightDelta, err := scaleXS(ctx, rightFlag, newIdxXS)
			if err != nil {
				return err
			}
			if err := xsUpdate(ctx, parent, a.Cap+1, a.left, a.ptrW, leftDelta); err != nil {
				return err
			}
			if err := xsUpdate(ctx, parent, a.Cap+1, a.right, a.ptrW, rightDelta); err != nil {
				return err
			}
		}

		done, err = orBits(ctx, done, landHere)
		if err != nil {
			return err
		}
		done, err = orBits(ctx, done, foundEq)
		if err != nil {
			return err
		}

		next, err := xsSelect(ctx, goLeft, cur, step.left)
		if err != nil {
			return err
		}
		next, err = xsSelect(ctx, goRight, next, step.right)
		if err != nil {
			return err
		}

		parent = cur
		dirRight = goRight
		cur = next
	}

	newRoot, err := xsSelect(ctx, rootLand, a.root, newIdxXS)
	if err != nil {
		return err
	}
	a.root = newRoot
	a.numNodes++

	return a.rebalance(ctx, levels, inserted, false)
}

// xsSelect computes f ? y : x for two XS values of the same width, via
// one select triple (internal/mpc.ReconstructChoice).
func xsSelect(ctx *mpc.Ctx, f shares.BS, x, y shares.XS) (shares.XS, error) {
	xb := []byte{byte(x.V), byte(x.V >> 8), byte(x.V >> 16), byte(x.V >> 24), byte(x.V >> 32), byte(x.V >> 40), byte(x.V >> 48), byte(x.V >> 56)}
	yb := []byte{byte(y.V), byte(y.V >> 8), byte(y.V >> 16), byte(y.V >> 24), byte(y.V >> 32), byte(y.V >> 40), byte(y.V >> 48), byte(y.V >> 56)}
	out, err := ctx.ReconstructChoice(byte(f), xb, yb)
	if err != nil {
		return shares.XS{}, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(out[i])
	}
	return shares.NewXS(v, x.W), nil
}

// Lookup performs an oblivious search for key (spec §4.10 lookup): a
// CDPF compare at every one of the TTL levels picks left or right, and
// an XOR-accumulated F_found flag (folded with select, the way the
// spec describes) latches the matching value the moment eq fires.
func (a *Avl) Lookup(ctx *mpc.Ctx, key shares.AS) (shares.AS, shares.BS, error) {
	self := a.self
	w := a.w
	cur := a.root
	found := shares.BS(0)
	out := shares.NewAS(0, w)

	for L := 0; L < a.ttl; L++ {
		isNull, err := isZeroXS(ctx, self, cur)
		if err != nil {
			return shares.AS{}, 0, err
		}
		step, err := a.readNode(ctx, cur)
		if err != nil {
			return shares.AS{}, 0, err
		}

		c, err := cdpf.GenRandom(ctx, w)
		if err != nil {
			return shares.AS{}, 0, err
		}
		diff := key
		diff.Sub(step.key)
		lt, eq, _, err := c.Compare(ctx, diff)
		if err != nil {
			return shares.AS{}, 0, err
		}

		notIsNull := notBit(self, isNull)
		notFound := notBit(self, found)
		hitHere, err := mulBits(ctx, eq, notIsNull)
		if err != nil {
			return shares.AS{}, 0, err
		}
		hitHere, err = mulBits(ctx, hitHere, notFound)
		if err != nil {
			return shares.AS{}, 0, err
		}

		latched, err := ctx.Select(hitHere, out, step.val)
		if err != nil {
			return shares.AS{}, 0, err
		}
		out = latched

		found, err = orBits(ctx, found, hitHere)
		if err != nil {
			return shares.AS{}, 0, err
		}

		goLeft, err := mulBits(ctx, lt, notIsNull)
		if err != nil {
			return shares.AS{}, 0, err
		}
		goLeft, err = mulBits(ctx, goLeft, notFound)
		if err != nil {
			return shares.AS{}, 0, err
		}
		goRight := notBit(self, goLeft)
		// goRight must still respect notFound/notIsNull; fold those in.
		goRight, err = mulBits(ctx, goRight, notIsNull)
		if err != nil {
			return shares.AS{}, 0, err
		}
		goRight, err = mulBits(ctx, goRight, notFound)
		if err != nil {
			return shares.AS{}, 0, err
		}

		next, err := xsSelect(ctx, goLeft, cur, step.left)
		if err != nil {
			return shares.AS{}, 0, err
		}
		next, err = xsSelect(ctx, goRight, next, step.right)
		if err != nil {
			return shares.AS{}, 0, err
		}
		cur = next
	}
	return out, found, nil
}

// Delete removes key from the tree if present (spec §4.10 delete): a
// first TTL-bounded descent locates the node (tracking its parent and
// which side it hangs from), then — only when that node has two
// children — a second bounded descent finds its in-order successor
// (the leftmost node of its right subtree) so the classic non-recursive
// BST splice applies: a 0/1-child node is spliced directly into its
// parent's slot; a 2-child node instead has its key/value overwritten
// by the successor's, and the successor (which by construction has at
// most a right child) is the one actually unlinked. Both descents
// record their levels; the unwind pass (rebalance) then propagates the
// height-decrease bit from the unlink point and performs rotation fixup
// wherever a node tips to ±2, possibly more than once on the way up.
func (a *Avl) Delete(ctx *mpc.Ctx, key shares.AS) (shares.BS, error) {
	self := a.self
	w := a.w

	cur := a.root
	var parent shares.XS
	dirRight := shares.BS(0)
	atRoot := notBit(self, shares.BS(0)) // public 1: only one party's share carries it
	found := shares.BS(0)

	var targetPtr, targetParent, targetLeft, targetRight shares.XS
	var targetDirRight, targetAtRoot shares.BS
	levels := make([]ancestorLevel, 0, 2*a.ttl+1)

	flat := duoram.NewFlat(a.db)

	for L := 0; L < a.ttl; L++ {
		isNull, err := isZeroXS(ctx, self, cur)
		if err != nil {
			return 0, err
		}
		notFound := notBit(self, found)
		step, err := a.readNode(ctx, cur)
		if err != nil {
			return 0, err
		}

		c, err := cdpf.GenRandom(ctx, w)
		if err != nil {
			return 0, err
		}
		diff := key
		diff.Sub(step.key)
		lt, eq, gt, err := c.Compare(ctx, diff)
		if err != nil {
			return 0, err
		}
		notIsNull := notBit(self, isNull)

		hitHere, err := mulBits(ctx, eq, notIsNull)
		if err != nil {
			return 0, err
		}
		hitHere, err = mulBits(ctx, hitHere, notFound)
		if err != nil {
			return 0, err
		}

		targetPtr, err = xsSelect(ctx, hitHere, targetPtr, cur)
		if err != nil {
			return 0, err
		}
		targetParent, err = xsSelect(ctx, hitHere, targetParent, parent)
		if err != nil {
			return 0, err
		}
		targetLeft, err = xsSelect(ctx, hitHere, targetLeft, step.left)
		if err != nil {
			return 0, err
		}
		targetRight, err = xsSelect(ctx, hitHere, targetRight, step.right)
		if err != nil {
			return 0, err
		}
		td, err := ctx.Select(hitHere, shares.NewAS(uint64(targetDirRight), w), shares.NewAS(uint64(dirRight), w))
		if err != nil {
			return 0, err
		}
		targetDirRight = shares.BS(td.V & 1)
		ta, err := ctx.Select(hitHere, shares.NewAS(uint64(targetAtRoot), w), shares.NewAS(uint64(atRoot), w))
		if err != nil {
			return 0, err
		}
		targetAtRoot = shares.BS(ta.V & 1)

		found, err = orBits(ctx, found, hitHere)
		if err != nil {
			return 0, err
		}

		goLeft, err := mulBits(ctx, lt, notIsNull)
		if err != nil {
			return 0, err
		}
		goLeft, err = mulBits(ctx, goLeft, notFound)
		if err != nil {
			return 0, err
		}
		goRight, err := mulBits(ctx, gt, notIsNull)
		if err != nil {
			return 0, err
		}
		goRight, err = mulBits(ctx, goRight, notFound)
		if err != nil {
			return 0, err
		}

		// A real ancestor of the deleted node exactly when the descent
		// stepped past this level.
		onPath, err := orBits(ctx, goLeft, goRight)
		if err != nil {
			return 0, err
		}
		levels = append(levels, ancestorLevel{ptr: cur, dirRight: goRight, structural: onPath, gate: onPath})

		next, err := xsSelect(ctx, goLeft, cur, step.left)
		if err != nil {
			return 0, err
		}
		next, err = xsSelect(ctx, goRight, next, step.right)
		if err != nil {
			return 0, err
		}

		parent = cur
		dirRight = goRight
		atRoot = shares.BS(0)
		cur = next
	}

	hasLeft, err := isZeroXS(ctx, self, targetLeft)
	if err != nil {
		return 0, err
	}
	hasLeft = notBit(self, hasLeft)
	hasRight, err := isZeroXS(ctx, self, targetRight)
	if err != nil {
		return 0, err
	}
	hasRight = notBit(self, hasRight)
	twoChildren, err := mulBits(ctx, hasLeft, hasRight)
	if err != nil {
		return 0, err
	}

	// The target's own level: its right subtree is where the successor
	// came from, but it only takes part in the unwind when it kept its
	// slot (two children) — otherwise its parent's pointer is rewired
	// below and the target must stay out of the splice chain entirely.
	levels = append(levels, ancestorLevel{
		ptr:        targetPtr,
		dirRight:   notBit(self, shares.BS(0)),
		structural: twoChildren,
		gate:       twoChildren,
	})

	// Successor search: descend the leftmost spine of targetRight.
	succCur := targetRight
	succParent := targetPtr
	// succParent's relevant child field is its right pointer initially;
	// public 1, so only one party's share carries it.
	succIsRightChild := notBit(self, shares.BS(0))
	for L := 0; L < a.ttl; L++ {
		step, err := a.readNode(ctx, succCur)
		if err != nil {
			return 0, err
		}
		hasMoreLeft, err := isZeroXS(ctx, self, step.left)
		if err != nil {
			return 0, err
		}
		hasMoreLeft = notBit(self, hasMoreLeft)
		descend, err := mulBits(ctx, hasMoreLeft, twoChildren)
		if err != nil {
			return 0, err
		}
		// A real ancestor of the unlinked successor exactly when another
		// left step was taken; the successor slot itself (descend=0)
		// stays a dummy. The step toward the unlink point is always left
		// here, so dirRight is a public 0.
		levels = append(levels, ancestorLevel{ptr: succCur, dirRight: shares.BS(0), structural: descend, gate: descend})
		nextParent, err := xsSelect(ctx, descend, succParent, succCur)
		if err != nil {
			return 0, err
		}
		nextCur, err := xsSelect(ctx, descend, succCur, step.left)
		if err != nil {
			return 0, err
		}
		succParent = nextParent
		// Once we take a left step, the relevant child field at the new
		// succParent is its left pointer from then on; embed-then-fold
		// the same way mulBits does (see isZeroXS/scaleXS) so this is a
		// genuine oblivious update, not a cleartext branch.
		newIsRightAS, err := ctx.Select(descend, shares.NewAS(uint64(succIsRightChild), w), shares.NewAS(0, w))
		if err != nil {
			return 0, err
		}
		succIsRightChild = shares.BS(newIsRightAS.V & 1)
		succCur = nextCur
	}

	succStep, err := a.readNode(ctx, succCur)
	if err != nil {
		return 0, err
	}

	// Overwrite the deleted node's key/value with the successor's when
	// twoChildren; otherwise leave it (it is about to be unlinked).
	deletedStep, err := a.readNode(ctx, targetPtr)
	if err != nil {
		return 0, err
	}
	keyDelta, err := ctx.FlagMult(twoChildren, diffAS(succStep.key, deletedStep.key))
	if err != nil {
		return 0, err
	}
	valDelta, err := ctx.FlagMult(twoChildren, diffAS(succStep.val, deletedStep.val))
	if err != nil {
		return 0, err
	}
	tOi, err := duoram.NewOblivIndex(ctx, targetPtr, a.Cap+1)
	if err != nil {
		return 0, err
	}
	if err := tOi.Update(flat, []shares.AS{keyDelta, valDelta, shares.NewAS(0, w)}); err != nil {
		return 0, err
	}

	// The slot to actually unlink: the successor's slot when
	// twoChildren, else the originally located node.
	unlinkPtr, err := xsSelect(ctx, twoChildren, targetPtr, succCur)
	if err != nil {
		return 0, err
	}
	unlinkParent, err := xsSelect(ctx, twoChildren, targetParent, succParent)
	if err != nil {
		return 0, err
	}
	unlinkDirRight, err := ctx.Select(twoChildren, shares.NewAS(uint64(targetDirRight), w), shares.NewAS(uint64(succIsRightChild), w))
	if err != nil {
		return 0, err
	}
	unlinkAtRoot, err := ctx.Select(twoChildren, shares.NewAS(uint64(targetAtRoot), w), shares.NewAS(0, w))
	if err != nil {
		return 0, err
	}

	unlinkStep, err := a.readNode(ctx, unlinkPtr)
	if err != nil {
		return 0, err
	}
	// The unlinked slot's single surviving child (at most one, by
	// construction: the original 0/1-child case, or the successor,
	// which never has a left child).
	unlinkLeftIsNull, err := isZeroXS(ctx, self, unlinkStep.left)
	if err != nil {
		return 0, err
	}
	child, err := xsSelect(ctx, unlinkLeftIsNull, unlinkStep.left, unlinkStep.right)
	if err != nil {
		return 0, err
	}

	// Rewire: root register, or parent's left/right field.
	isRootUnlink := shares.BS(unlinkAtRoot.V & 1)
	isDirRight := shares.BS(unlinkDirRight.V & 1)
	newRoot, err := xsSelect(ctx, isRootUnlink, a.root, child)
	if err != nil {
		return 0, err
	}

	notRootFlag, err := mulBits(ctx, found, notBit(self, isRootUnlink))
	if err != nil {
		return 0, err
	}
	notDirFlag, err := mulBits(ctx, notRootFlag, notBit(self, isDirRight))
	if err != nil {
		return 0, err
	}
	dirFlag, err := mulBits(ctx, notRootFlag, isDirRight)
	if err != nil {
		return 0, err
	}

	oldLeft, err := xsRead(ctx, unlinkParent, a.Cap+1, a.left, a.ptrW)
	if err != nil {
		return 0, err
	}
	oldRight, err := xsRead(ctx, unlinkParent, a.Cap+1, a.right, a.ptrW)
	if err != nil {
		return 0, err
	}
	leftXorDelta := child
	leftXorDelta.Xor(oldLeft)
	rightXorDelta := child
	rightXorDelta.Xor(oldRight)
	leftDelta, err := scaleXS(ctx, notDirFlag, leftXorDelta)
	if err != nil {
		return 0, err
	}
	rightDelta, err := scaleXS(ctx, dirFlag, rightXorDelta)
	if err != nil {
		return 0, err
	}
	if err := xsUpdate(ctx, unlinkParent, a.Cap+1, a.left, a.ptrW, leftDelta); err != nil {
		return 0, err
	}
	if err := xsUpdate(ctx, unlinkParent, a.Cap+1, a.right, a.ptrW, rightDelta); err != nil {
		return 0, err
	}

	rootDelta, err := scaleXS(ctx, found, xorXS(newRoot, a.root))
	if err != nil {
		return 0, err
	}
	a.root.Xor(rootDelta)

	// Zero the unlinked slot's key/value so a later Insert landing on
	// an unrelated but coincidentally-reused index never happens (slots
	// are never reused, so this is purely hygiene for Lookup/Delete
	// re-running against a freed pointer, which will simply read zero).
	zOi, err := duoram.NewOblivIndex(ctx, unlinkPtr, a.Cap+1)
	if err != nil {
		return 0, err
	}
	zKeyDelta, err := ctx.FlagMult(found, diffAS(shares.NewAS(0, w), unlinkStep.key))
	if err != nil {
		return 0, err
	}
	zValDelta, err := ctx.FlagMult(found, diffAS(shares.NewAS(0, w), unlinkStep.val))
	if err != nil {
		return 0, err
	}
	if err := zOi.Update(flat, []shares.AS{zKeyDelta, zValDelta, shares.NewAS(0, w)}); err != nil {
		return 0, err
	}

	if err := a.rebalance(ctx, levels, found, true); err != nil {
		return 0, err
	}

	return found, nil
}

func diffAS(a, b shares.AS) shares.AS {
	d := a
	d.Sub(b)
	return d
}

func xorXS(a, b shares.XS) shares.XS {
	x := a
	x.Xor(b)
	return x
}
