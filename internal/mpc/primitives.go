package mpc

import (
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/shares"
)

// Mul computes z = x*y mod 2^nbits from one multiplication triple, per
// spec §4.4: "two words exchanged, one message". See DESIGN.md's "MPC
// primitive algebra" section for the resolved triple guarantee.
func (c *Ctx) Mul(x, y shares.AS) (shares.AS, error) {
	X, Y, Z, err := c.popTriple()
	if err != nil {
		return shares.AS{}, err
	}

	d := x
	d.Sub(X)
	e := y
	e.Sub(Y)

	got, err := c.exchangeWords(d, e)
	if err != nil {
		return shares.AS{}, err
	}
	dPeer, ePeer := got[0], got[1]

	dClear := d
	dClear.Add(dPeer)
	eClear := e
	eClear.Add(ePeer)

	z := Z
	t := dClear
	t.Mul(Y)
	z.Add(t)
	t = eClear
	t.Mul(X)
	z.Add(t)
	if c.Self == party.P0 {
		t = dClear
		t.Mul(eClear)
		z.Add(t)
	}
	return z, nil
}

// BatchMul runs n independent Mul instances, each from its own
// multiplication triple, but batches all n mask reveals into a single
// queue-then-yield round exactly as BatchValueMul does for valuemul —
// the same batching idiom generalized from one full (both-secret)
// multiplication to n of them at once. Used by internal/duoram to turn
// an oblivious inner product (N secret multiplications of a DPF
// indicator share against a database share) into one round instead of
// N.
func (c *Ctx) BatchMul(xs, ys []shares.AS) ([]shares.AS, error) {
	n := len(xs)
	if len(ys) != n {
		panic("mpc: BatchMul length mismatch")
	}
	Xs := make([]shares.AS, n)
	Ys := make([]shares.AS, n)
	Zs := make([]shares.AS, n)
	ds := make([]shares.AS, n)
	es := make([]shares.AS, n)

	var buf []byte
	for i := 0; i < n; i++ {
		X, Y, Z, err := c.popTriple()
		if err != nil {
			return nil, err
		}
		Xs[i], Ys[i], Zs[i] = X, Y, Z
		d := xs[i]
		d.Sub(X)
		e := ys[i]
		e.Sub(Y)
		ds[i], es[i] = d, e
		buf = shares.WriteAS(buf, d)
		buf = shares.WriteAS(buf, e)
	}

	c.IO.QueuePeer(buf)
	c.H.Yield()

	got, err := c.IO.RecvPeer(len(buf))
	if err != nil {
		return nil, err
	}

	out := make([]shares.AS, n)
	rest := got
	for i := 0; i < n; i++ {
		var dPeer, ePeer shares.AS
		dPeer, rest, err = shares.ReadAS(rest, c.W)
		if err != nil {
			return nil, err
		}
		ePeer, rest, err = shares.ReadAS(rest, c.W)
		if err != nil {
			return nil, err
		}
		dClear := ds[i]
		dClear.Add(dPeer)
		eClear := es[i]
		eClear.Add(ePeer)

		z := Zs[i]
		t := dClear
		t.Mul(Ys[i])
		z.Add(t)
		t = eClear
		t.Mul(Xs[i])
		z.Add(t)
		if c.Self == party.P0 {
			t = dClear
			t.Mul(eClear)
			z.Add(t)
		}
		out[i] = z
	}
	return out, nil
}

// ValueMul computes additive shares of mine*other, where mine is a
// cleartext value known only to the calling party and other is a
// different cleartext known only to the peer. Consumes one half-triple,
// exchanges one word each way.
func (c *Ctx) ValueMul(mine shares.AS) (shares.AS, error) {
	out, err := c.BatchValueMul([]shares.AS{mine})
	if err != nil {
		return shares.AS{}, err
	}
	return out[0], nil
}

// BatchValueMul runs n independent ValueMul instances (one per entry of
// mine) but batches all n half-triple mask reveals into a single
// queue-then-yield round, so n conversions cost one round trip instead
// of n. Used by XsToAs to convert a whole word's worth of bits in one
// round (spec §4.4: "batched into one round").
func (c *Ctx) BatchValueMul(mine []shares.AS) ([]shares.AS, error) {
	n := len(mine)
	ownFactors := make([]shares.AS, n)
	ownShares := make([]shares.AS, n)
	ds := make([]shares.AS, n)

	var buf []byte
	for i := 0; i < n; i++ {
		f, s, err := c.popHalf()
		if err != nil {
			return nil, err
		}
		d := mine[i]
		d.Sub(f)
		ownFactors[i], ownShares[i], ds[i] = f, s, d
		buf = shares.WriteAS(buf, d)
	}

	c.IO.QueuePeer(buf)
	c.H.Yield()

	got, err := c.IO.RecvPeer(len(buf))
	if err != nil {
		return nil, err
	}

	out := make([]shares.AS, n)
	rest := got
	for i := 0; i < n; i++ {
		var peerD shares.AS
		peerD, rest, err = shares.ReadAS(rest, c.W)
		if err != nil {
			return nil, err
		}
		z := ownShares[i]
		t := ownFactors[i]
		t.Mul(peerD)
		z.Add(t)
		if c.Self == party.P1 {
			// Fixed convention: P1 contributes the d*e cross-correction
			// term (see DESIGN.md); either party could, as long as
			// exactly one does.
			t = ds[i]
			t.Mul(peerD)
			z.Add(t)
		}
		out[i] = z
	}
	return out, nil
}

// Cross computes shares of x0*y1 + x1*y0 as two one-directional
// ValueMul calls, given each party's own additive-share halves ownX,
// ownY of x and y. Each round must pair P0's half against P1's
// *opposite* half (x against y, then y against x), so which operand
// each party feeds into that round's ValueMul depends on Self — callers
// on both sides just pass their own (ownX, ownY), no argument swapping
// required.
func (c *Ctx) Cross(ownX, ownY shares.AS) (shares.AS, error) {
	// Round 1: P0 contributes its x-half, P1 its y-half -> x0*y1.
	feed1, feed2 := ownY, ownX
	if c.Self == party.P0 {
		feed1, feed2 = ownX, ownY
	}
	t1, err := c.ValueMul(feed1)
	if err != nil {
		return shares.AS{}, err
	}
	// Round 2: P0 contributes its y-half, P1 its x-half -> x1*y0.
	t2, err := c.ValueMul(feed2)
	if err != nil {
		return shares.AS{}, err
	}
	t1.Add(t2)
	return t1, nil
}

// FlagMult computes z = f*y where f is a single-bit XOR share and y is
// an AS. A naive additive embedding of f breaks when both parties hold
// a 1 (the bit reconstructs to 0 but the embedded sum is 2), so the
// product is assembled from cross terms instead:
//
//	(f0 + f1 - 2*f0*f1)*(y0 + y1)
//	  = (1-2*f0)*y0*f1 + (1-2*f1)*y1*f0 + f0*y0 + f1*y1
//
// with f0 XOR f1 = f0 + f1 - 2*f0*f1. The two cross terms cost one
// Cross (two half-triples); the last two are local.
func (c *Ctx) FlagMult(f shares.BS, y shares.AS) (shares.AS, error) {
	fv := uint64(f)
	scaled := shares.NewAS(y.V*(1-2*fv), y.W)
	z, err := c.Cross(scaled, shares.NewAS(fv, y.W))
	if err != nil {
		return shares.AS{}, err
	}
	z.Add(shares.NewAS(fv*y.V, y.W))
	return z, nil
}

// Select computes z = f ? y : x = x + f*(y-x).
func (c *Ctx) Select(f shares.BS, x, y shares.AS) (shares.AS, error) {
	diff := y
	diff.Sub(x)
	term, err := c.FlagMult(f, diff)
	if err != nil {
		return shares.AS{}, err
	}
	z := x
	z.Add(term)
	return z, nil
}

// OSwap conditionally swaps x and y in place when f=1, via one FlagMult
// of (y-x) (spec §4.4).
func (c *Ctx) OSwap(x, y *shares.AS, f shares.BS) error {
	diff := *y
	diff.Sub(*x)
	delta, err := c.FlagMult(f, diff)
	if err != nil {
		return err
	}
	x.Add(delta)
	y.Sub(delta)
	return nil
}
