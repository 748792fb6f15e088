package avl

import (
	"github.com/luxfi/duoram3pc/internal/cdpf"
	"github.com/luxfi/duoram3pc/internal/duoram"
	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/shares"
)

// ancestorLevel is one node on the path an Insert/Delete descent walked
// through, recorded so a second, bottom-up pass can propagate balance
// changes and perform rotation fixup (spec §4.10's updateBalanceIns and
// updateBalanceDel, adapted from _examples/original_source/avl.cpp's
// rotation cases into this package's oblivious return-record shape).
//
// structural is 1 whenever ptr genuinely names a real node on the
// relevant path — it gates both the pointer-fixup splice into this
// node's child slot and the handoff of this level's own subtree root to
// the next, shallower level, so a rotation result is never written into
// an array slot that doesn't belong to the path. gate restricts whether
// this level participates in the balance/rotation computation. For an
// ordinary ancestor the two coincide (goLeft|goRight at descent time);
// for the merged delete "target" entry both are twoChildren: when the
// target itself was spliced out (0/1 children) its parent's pointer has
// already been rewired by Delete and the target must neither receive
// nor emit a subtree root.
type ancestorLevel struct {
	ptr        shares.XS
	dirRight   shares.BS
	structural shares.BS
	gate       shares.BS
}

// eqConstAS tests a secret AS value against a public constant via a
// fresh random-target CDPF, the same "compare against a blinded value"
// idiom Insert/Lookup/Delete already use for key comparisons.
func eqConstAS(ctx *mpc.Ctx, self party.ID, w shares.Width, x shares.AS, c uint64) (shares.BS, error) {
	cd, err := cdpf.GenRandom(ctx, w)
	if err != nil {
		return 0, err
	}
	diff := x
	diff.Sub(publicConstAS(self, c, w))
	_, eq, _, err := cd.Compare(ctx, diff)
	if err != nil {
		return 0, err
	}
	return eq, nil
}

// spliceChild writes newChild into parentPtr's dirRight-side pointer
// slot, gated by structural: a no-op everywhere but the genuine ancestor
// one level up from whatever rotation (if any) just produced newChild.
func (a *Avl) spliceChild(ctx *mpc.Ctx, structural, dirRight shares.BS, parentPtr, newChild shares.XS) error {
	self := a.self
	oldLeft, err := xsRead(ctx, parentPtr, a.Cap+1, a.left, a.ptrW)
	if err != nil {
		return err
	}
	oldRight, err := xsRead(ctx, parentPtr, a.Cap+1, a.right, a.ptrW)
	if err != nil {
		return err
	}
	leftXorDelta := xorXS(newChild, oldLeft)
	rightXorDelta := xorXS(newChild, oldRight)

	notDir := notBit(self, dirRight)
	leftFlag, err := mulBits(ctx, structural, notDir)
	if err != nil {
		return err
	}
	rightFlag, err := mulBits(ctx, structural, dirRight)
	if err != nil {
		return err
	}
	leftDelta, err := scaleXS(ctx, leftFlag, leftXorDelta)
	if err != nil {
		return err
	}
	rightDelta, err := scaleXS(ctx, rightFlag, rightXorDelta)
	if err != nil {
		return err
	}
	if err := xsUpdate(ctx, parentPtr, a.Cap+1, a.left, a.ptrW, leftDelta); err != nil {
		return err
	}
	if err := xsUpdate(ctx, parentPtr, a.Cap+1, a.right, a.ptrW, rightDelta); err != nil {
		return err
	}
	return nil
}

// rebalanceNode performs one level's worth of updateBalanceIns/
// updateBalanceDel plus rotation fixup. dirRight is the direction from
// this node toward the child subtree whose height just changed; running
// is the height-changed flag carried in from the deeper level; gate
// restricts whether this level participates at all (see ancestorLevel).
// It returns the pointer this level's parent should now treat as "this
// subtree's root" (itself, unless a rotation replaced it) and the
// height-changed flag to carry into the next, shallower level.
func (a *Avl) rebalanceNode(ctx *mpc.Ctx, nPtr shares.XS, dirRight, running, gate shares.BS, forDelete bool) (resultPtr shares.XS, nextRunning shares.BS, err error) {
	self := a.self
	w := a.w

	active, err := mulBits(ctx, running, gate)
	if err != nil {
		return shares.XS{}, 0, err
	}

	step, err := a.readNode(ctx, nPtr)
	if err != nil {
		return shares.XS{}, 0, err
	}

	zero := publicConstAS(self, 0, w)
	posOne := publicConstAS(self, 1, w)
	negOne := publicConstAS(self, ^uint64(0), w)

	deltaPos, deltaNeg := posOne, negOne
	if forDelete {
		deltaPos, deltaNeg = negOne, posOne
	}
	delta, err := ctx.Select(dirRight, deltaNeg, deltaPos)
	if err != nil {
		return shares.XS{}, 0, err
	}
	deltaScaled, err := ctx.FlagMult(active, delta)
	if err != nil {
		return shares.XS{}, 0, err
	}
	newBal := step.balance
	newBal.Add(deltaScaled)

	isZero, err := eqConstAS(ctx, self, w, newBal, 0)
	if err != nil {
		return shares.XS{}, 0, err
	}
	isPos2, err := eqConstAS(ctx, self, w, newBal, 2)
	if err != nil {
		return shares.XS{}, 0, err
	}
	isNeg2, err := eqConstAS(ctx, self, w, newBal, ^uint64(1))
	if err != nil {
		return shares.XS{}, 0, err
	}
	imbalance, err := orBits(ctx, isPos2, isNeg2)
	if err != nil {
		return shares.XS{}, 0, err
	}
	s := isPos2 // heavy-right, meaningful only when imbalance=1

	childPtr, err := xsSelect(ctx, s, step.left, step.right)
	if err != nil {
		return shares.XS{}, 0, err
	}
	otherPtr, err := xsSelect(ctx, s, step.right, step.left)
	if err != nil {
		return shares.XS{}, 0, err
	}

	cStep, err := a.readNode(ctx, childPtr)
	if err != nil {
		return shares.XS{}, 0, err
	}

	cInner, err := xsSelect(ctx, s, cStep.right, cStep.left)
	if err != nil {
		return shares.XS{}, 0, err
	}
	cOuter, err := xsSelect(ctx, s, cStep.left, cStep.right)
	if err != nil {
		return shares.XS{}, 0, err
	}

	cBalNeg1, err := eqConstAS(ctx, self, w, cStep.balance, ^uint64(0))
	if err != nil {
		return shares.XS{}, 0, err
	}
	cBalPos1, err := eqConstAS(ctx, self, w, cStep.balance, 1)
	if err != nil {
		return shares.XS{}, 0, err
	}
	notCNeg1 := notBit(self, cBalNeg1)
	notCPos1 := notBit(self, cBalPos1)
	cBalZero, err := mulBits(ctx, notCNeg1, notCPos1)
	if err != nil {
		return shares.XS{}, 0, err
	}
	notS := notBit(self, s)
	t1, err := mulBits(ctx, s, cBalNeg1)
	if err != nil {
		return shares.XS{}, 0, err
	}
	t2, err := mulBits(ctx, notS, cBalPos1)
	if err != nil {
		return shares.XS{}, 0, err
	}
	dr, err := orBits(ctx, t1, t2) // double-rotation flag
	if err != nil {
		return shares.XS{}, 0, err
	}
	notDr := notBit(self, dr)

	gPtr := cInner
	gStep, err := a.readNode(ctx, gPtr)
	if err != nil {
		return shares.XS{}, 0, err
	}
	gInner, err := xsSelect(ctx, s, gStep.right, gStep.left)
	if err != nil {
		return shares.XS{}, 0, err
	}
	gOuter, err := xsSelect(ctx, s, gStep.left, gStep.right)
	if err != nil {
		return shares.XS{}, 0, err
	}

	nChildSideNew, err := xsSelect(ctx, dr, cInner, gInner)
	if err != nil {
		return shares.XS{}, 0, err
	}
	nOtherSideNew := otherPtr

	cInnerNew, err := xsSelect(ctx, dr, nPtr, gOuter)
	if err != nil {
		return shares.XS{}, 0, err
	}
	cOuterNew := cOuter

	gLeftNew, err := xsSelect(ctx, s, childPtr, nPtr)
	if err != nil {
		return shares.XS{}, 0, err
	}
	gRightNew, err := xsSelect(ctx, s, nPtr, childPtr)
	if err != nil {
		return shares.XS{}, 0, err
	}

	nRightFinal, err := xsSelect(ctx, s, nOtherSideNew, nChildSideNew)
	if err != nil {
		return shares.XS{}, 0, err
	}
	nLeftFinal, err := xsSelect(ctx, s, nChildSideNew, nOtherSideNew)
	if err != nil {
		return shares.XS{}, 0, err
	}
	cRightFinal, err := xsSelect(ctx, s, cInnerNew, cOuterNew)
	if err != nil {
		return shares.XS{}, 0, err
	}
	cLeftFinal, err := xsSelect(ctx, s, cOuterNew, cInnerNew)
	if err != nil {
		return shares.XS{}, 0, err
	}

	newSubRoot, err := xsSelect(ctx, dr, childPtr, gPtr)
	if err != nil {
		return shares.XS{}, 0, err
	}

	// Single-rotation balances.
	reinforceVal, err := ctx.Select(s, negOne, posOne)
	if err != nil {
		return shares.XS{}, 0, err
	}
	oppositeVal, err := ctx.Select(s, posOne, negOne)
	if err != nil {
		return shares.XS{}, 0, err
	}
	nBalSingle, err := ctx.Select(cBalZero, zero, reinforceVal)
	if err != nil {
		return shares.XS{}, 0, err
	}
	cBalSingle, err := ctx.Select(cBalZero, zero, oppositeVal)
	if err != nil {
		return shares.XS{}, 0, err
	}

	// Double-rotation balances.
	gBalNeg1, err := eqConstAS(ctx, self, w, gStep.balance, ^uint64(0))
	if err != nil {
		return shares.XS{}, 0, err
	}
	gBalPos1, err := eqConstAS(ctx, self, w, gStep.balance, 1)
	if err != nil {
		return shares.XS{}, 0, err
	}
	notGNeg1 := notBit(self, gBalNeg1)
	notGPos1 := notBit(self, gBalPos1)
	gBalZero, err := mulBits(ctx, notGNeg1, notGPos1)
	if err != nil {
		return shares.XS{}, 0, err
	}

	valWhenGPos1N, err := ctx.Select(s, zero, negOne)
	if err != nil {
		return shares.XS{}, 0, err
	}
	valWhenGNeg1N, err := ctx.Select(s, posOne, zero)
	if err != nil {
		return shares.XS{}, 0, err
	}
	nonZeroN, err := ctx.Select(gBalPos1, valWhenGNeg1N, valWhenGPos1N)
	if err != nil {
		return shares.XS{}, 0, err
	}
	nBalDouble, err := ctx.Select(gBalZero, nonZeroN, zero)
	if err != nil {
		return shares.XS{}, 0, err
	}

	valWhenGPos1C, err := ctx.Select(s, negOne, zero)
	if err != nil {
		return shares.XS{}, 0, err
	}
	valWhenGNeg1C, err := ctx.Select(s, zero, posOne)
	if err != nil {
		return shares.XS{}, 0, err
	}
	nonZeroC, err := ctx.Select(gBalPos1, valWhenGNeg1C, valWhenGPos1C)
	if err != nil {
		return shares.XS{}, 0, err
	}
	cBalDouble, err := ctx.Select(gBalZero, nonZeroC, zero)
	if err != nil {
		return shares.XS{}, 0, err
	}

	nBalRot, err := ctx.Select(dr, nBalSingle, nBalDouble)
	if err != nil {
		return shares.XS{}, 0, err
	}
	cBalRot, err := ctx.Select(dr, cBalSingle, cBalDouble)
	if err != nil {
		return shares.XS{}, 0, err
	}
	// G's balance is always 0 after a double rotation; gBalRot is only
	// ever applied scaled by doRotDouble below, so its value when dr=0
	// never reaches the tree.
	gBalRot := zero

	postBalN, err := ctx.Select(imbalance, newBal, nBalRot)
	if err != nil {
		return shares.XS{}, 0, err
	}
	nBalDelta, err := ctx.FlagMult(active, diffAS(postBalN, step.balance))
	if err != nil {
		return shares.XS{}, 0, err
	}
	if err := step.oi.Update(flatOf(a), []shares.AS{zero, zero, nBalDelta}); err != nil {
		return shares.XS{}, 0, err
	}

	doRotation, err := mulBits(ctx, active, imbalance)
	if err != nil {
		return shares.XS{}, 0, err
	}
	doRotDouble, err := mulBits(ctx, doRotation, dr)
	if err != nil {
		return shares.XS{}, 0, err
	}

	cBalDelta, err := ctx.FlagMult(doRotation, diffAS(cBalRot, cStep.balance))
	if err != nil {
		return shares.XS{}, 0, err
	}
	if err := cStep.oi.Update(flatOf(a), []shares.AS{zero, zero, cBalDelta}); err != nil {
		return shares.XS{}, 0, err
	}

	gBalDelta, err := ctx.FlagMult(doRotDouble, diffAS(gBalRot, gStep.balance))
	if err != nil {
		return shares.XS{}, 0, err
	}
	if err := gStep.oi.Update(flatOf(a), []shares.AS{zero, zero, gBalDelta}); err != nil {
		return shares.XS{}, 0, err
	}

	nLeftDelta, err := scaleXS(ctx, doRotation, xorXS(nLeftFinal, step.left))
	if err != nil {
		return shares.XS{}, 0, err
	}
	nRightDelta, err := scaleXS(ctx, doRotation, xorXS(nRightFinal, step.right))
	if err != nil {
		return shares.XS{}, 0, err
	}
	if err := xsUpdate(ctx, nPtr, a.Cap+1, a.left, a.ptrW, nLeftDelta); err != nil {
		return shares.XS{}, 0, err
	}
	if err := xsUpdate(ctx, nPtr, a.Cap+1, a.right, a.ptrW, nRightDelta); err != nil {
		return shares.XS{}, 0, err
	}

	cLeftDelta, err := scaleXS(ctx, doRotation, xorXS(cLeftFinal, cStep.left))
	if err != nil {
		return shares.XS{}, 0, err
	}
	cRightDelta, err := scaleXS(ctx, doRotation, xorXS(cRightFinal, cStep.right))
	if err != nil {
		return shares.XS{}, 0, err
	}
	if err := xsUpdate(ctx, childPtr, a.Cap+1, a.left, a.ptrW, cLeftDelta); err != nil {
		return shares.XS{}, 0, err
	}
	if err := xsUpdate(ctx, childPtr, a.Cap+1, a.right, a.ptrW, cRightDelta); err != nil {
		return shares.XS{}, 0, err
	}

	gLeftDelta, err := scaleXS(ctx, doRotDouble, xorXS(gLeftNew, gStep.left))
	if err != nil {
		return shares.XS{}, 0, err
	}
	gRightDelta, err := scaleXS(ctx, doRotDouble, xorXS(gRightNew, gStep.right))
	if err != nil {
		return shares.XS{}, 0, err
	}
	if err := xsUpdate(ctx, gPtr, a.Cap+1, a.left, a.ptrW, gLeftDelta); err != nil {
		return shares.XS{}, 0, err
	}
	if err := xsUpdate(ctx, gPtr, a.Cap+1, a.right, a.ptrW, gRightDelta); err != nil {
		return shares.XS{}, 0, err
	}

	resultPtr, err = xsSelect(ctx, doRotation, nPtr, newSubRoot)
	if err != nil {
		return shares.XS{}, 0, err
	}

	// Whether height-change propagation should continue past this node.
	notIsZero := notBit(self, isZero)
	var noRotContinue, afterRotContinue shares.BS
	if forDelete {
		noRotContinue = isZero
		// Height shrinks through every delete rotation except the
		// single-rotation case whose child was balanced (the subtree
		// keeps its height and absorbs the change).
		absorb, err := mulBits(ctx, notDr, cBalZero)
		if err != nil {
			return shares.XS{}, 0, err
		}
		afterRotContinue = notBit(self, absorb)
	} else {
		noRotContinue = notIsZero
		afterRotContinue = shares.BS(0)
	}
	notImbalance := notBit(self, imbalance)
	term1, err := mulBits(ctx, notImbalance, noRotContinue)
	if err != nil {
		return shares.XS{}, 0, err
	}
	term2, err := mulBits(ctx, imbalance, afterRotContinue)
	if err != nil {
		return shares.XS{}, 0, err
	}
	innerContinue, err := orBits(ctx, term1, term2)
	if err != nil {
		return shares.XS{}, 0, err
	}

	runningAS, err := ctx.Select(active, shares.NewAS(uint64(running), w), shares.NewAS(uint64(innerContinue), w))
	if err != nil {
		return shares.XS{}, 0, err
	}
	nextRunning = shares.BS(runningAS.V & 1)

	return resultPtr, nextRunning, nil
}

// rebalance walks levels from the deepest recorded entry (levels[len-1])
// up to the tree root (levels[0]), propagating height-change and
// performing rotation fixup at every level that needs it. seedActive is
// the height-changed flag entering the deepest level (inserted, for
// Insert; found, for Delete).
//
// prevResult/prevStructural carry the deepest real subtree root seen so
// far: filler levels (structural=0) pass both through untouched, so a
// rotation result survives any run of dummy levels between a real node
// and its real parent, and the splice into a level's child slot fires
// only when both that level and the carried result are real. The final
// root write is gated the same way — if no real level was ever seen
// (first insert into an empty tree, or a delete that spliced the root
// out directly), a.root keeps whatever the caller already put there.
func (a *Avl) rebalance(ctx *mpc.Ctx, levels []ancestorLevel, seedActive shares.BS, forDelete bool) error {
	if len(levels) == 0 {
		return nil
	}
	running := seedActive
	prevResult := shares.NewXS(0, a.ptrW)
	prevStructural := shares.BS(0)

	for i := len(levels) - 1; i >= 0; i-- {
		lvl := levels[i]
		spliceFlag, err := mulBits(ctx, prevStructural, lvl.structural)
		if err != nil {
			return err
		}
		if err := a.spliceChild(ctx, spliceFlag, lvl.dirRight, lvl.ptr, prevResult); err != nil {
			return err
		}
		resultPtr, nextRunning, err := a.rebalanceNode(ctx, lvl.ptr, lvl.dirRight, running, lvl.gate, forDelete)
		if err != nil {
			return err
		}
		running = nextRunning
		prevResult, err = xsSelect(ctx, lvl.structural, prevResult, resultPtr)
		if err != nil {
			return err
		}
		prevStructural, err = orBits(ctx, prevStructural, lvl.structural)
		if err != nil {
			return err
		}
	}

	newRoot, err := xsSelect(ctx, prevStructural, a.root, prevResult)
	if err != nil {
		return err
	}
	a.root = newRoot
	return nil
}

func flatOf(a *Avl) *duoram.Flat { return duoram.NewFlat(a.db) }
