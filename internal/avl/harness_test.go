package avl

import (
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/luxfi/duoram3pc/internal/coro"
	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/preproc"
	"github.com/luxfi/duoram3pc/internal/shares"
	"github.com/luxfi/duoram3pc/internal/transport"
)

var seqState uint32

// seqBit is a deterministic, non-cryptographic bit source: these tests
// only need varied 0/1 coverage across many preprocessed triples, not
// real randomness.
func seqBit() int {
	seqState = seqState*1103515245 + 12345
	return int((seqState >> 16) & 1)
}

func mustOK(err error) {
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
}

// newPair wires two mpc.Ctx values over an in-process net.Pipe, each
// with every correlated-randomness queue stocked generously enough for
// a small tree test. Tree walks burn through far more records than the
// heap's: every level of every descent generates fresh RDPFs and CDPFs.
func newPair(w shares.Width, n int) (c0, c1 *mpc.Ctx) {
	connA, connB := net.Pipe()

	ioA := transport.NewComputationalMPCIO(party.P0, 0, transport.NewConn(connA, &transport.LamportClock{}), nil)
	ioB := transport.NewComputationalMPCIO(party.P1, 0, transport.NewConn(connB, &transport.LamportClock{}), nil)

	recSize := 3 * int(w/8)
	halfSize := 2 * int(w/8)
	c0 = &mpc.Ctx{IO: ioA, W: w, Self: party.P0,
		Triples: preproc.NewQueue(recSize), Halves: preproc.NewQueue(halfSize), Selects: preproc.NewQueue(recSize)}
	c1 = &mpc.Ctx{IO: ioB, W: w, Self: party.P1,
		Triples: preproc.NewQueue(recSize), Halves: preproc.NewQueue(halfSize), Selects: preproc.NewQueue(recSize)}

	for i := 0; i < n; i++ {
		pushTriple(c0.Triples, c1.Triples, w)
		pushHalf(c0.Halves, c1.Halves, w)
		pushSelect(c0.Selects, c1.Selects, w)
	}

	DeferCleanup(func() {
		connA.Close()
		connB.Close()
	})
	return c0, c1
}

func pushTriple(q0, q1 *preproc.Queue, w shares.Width) {
	x0 := shares.NewAS(0, w)
	mustOK(x0.Randomize(int(w)))
	x1 := shares.NewAS(0, w)
	mustOK(x1.Randomize(int(w)))
	y0 := shares.NewAS(0, w)
	mustOK(y0.Randomize(int(w)))
	y1 := shares.NewAS(0, w)
	mustOK(y1.Randomize(int(w)))

	z := x0
	z.Add(x1)
	yy := y0
	yy.Add(y1)
	z.Mul(yy)

	z0 := shares.NewAS(0, w)
	mustOK(z0.Randomize(int(w)))
	z1 := z
	z1.Sub(z0)

	mustOK(q0.Push(shares.WriteASTriple(nil, x0, y0, z0)))
	mustOK(q1.Push(shares.WriteASTriple(nil, x1, y1, z1)))
}

func pushHalf(q0, q1 *preproc.Queue, w shares.Width) {
	rA := shares.NewAS(0, w)
	mustOK(rA.Randomize(int(w)))
	rB := shares.NewAS(0, w)
	mustOK(rB.Randomize(int(w)))
	prod := rA
	prod.Mul(rB)
	zA := shares.NewAS(0, w)
	mustOK(zA.Randomize(int(w)))
	zB := prod
	zB.Sub(zA)

	mustOK(q0.Push(append(shares.WriteAS(nil, rA), shares.WriteAS(nil, zA)...)))
	mustOK(q1.Push(append(shares.WriteAS(nil, rB), shares.WriteAS(nil, zB)...)))
}

func pushSelect(q0, q1 *preproc.Queue, w shares.Width) {
	a0 := shares.NewAS(uint64(seqBit()), w)
	a1 := shares.NewAS(uint64(seqBit()), w)
	b0 := shares.NewAS(0, w)
	mustOK(b0.Randomize(int(w)))
	b1 := shares.NewAS(0, w)
	mustOK(b1.Randomize(int(w)))

	a := a0.V ^ a1.V
	b := b0.V ^ b1.V
	var c uint64
	if a&1 == 1 {
		c = b
	}

	c0 := shares.NewAS(0, w)
	mustOK(c0.Randomize(int(w)))
	c1 := shares.NewAS(c^c0.V, w)

	mustOK(q0.Push(shares.WriteASTriple(nil, a0, b0, c0)))
	mustOK(q1.Push(shares.WriteASTriple(nil, a1, b1, c1)))
}

func runBoth(f0, f1 func(h *coro.Handle) error, io0, io1 *transport.MPCIO) error {
	h0 := coro.Go(f0)
	h1 := coro.Go(f1)
	return coro.RunCoroutines([]*coro.Handle{h0, h1}, func() {
		io0.Send()
		io1.Send()
	})
}

func splitAS(v uint64, w shares.Width) (a0, a1 shares.AS) {
	a0 = shares.NewAS(0, w)
	a0.Randomize(int(w))
	a1 = shares.NewAS(v, w)
	a1.Sub(a0)
	return
}

func insertBoth(c0, c1 *mpc.Ctx, a0, a1 *Avl, key, val uint64) {
	w := a0.Width()
	k0, k1 := splitAS(key, w)
	v0, v1 := splitAS(val, w)
	mustOK(runBoth(func(h *coro.Handle) error {
		c0.H = h
		return a0.Insert(c0, k0, v0)
	}, func(h *coro.Handle) error {
		c1.H = h
		return a1.Insert(c1, k1, v1)
	}, c0.IO, c1.IO))
}

func deleteBoth(c0, c1 *mpc.Ctx, a0, a1 *Avl, key uint64) uint8 {
	w := a0.Width()
	k0, k1 := splitAS(key, w)
	var f0, f1 shares.BS
	mustOK(runBoth(func(h *coro.Handle) error {
		c0.H = h
		var err error
		f0, err = a0.Delete(c0, k0)
		return err
	}, func(h *coro.Handle) error {
		c1.H = h
		var err error
		f1, err = a1.Delete(c1, k1)
		return err
	}, c0.IO, c1.IO))
	return shares.CombineBS(f0, f1)
}

func lookupBoth(c0, c1 *mpc.Ctx, a0, a1 *Avl, key uint64) (uint64, uint8) {
	w := a0.Width()
	k0, k1 := splitAS(key, w)
	var v0, v1 shares.AS
	var f0, f1 shares.BS
	mustOK(runBoth(func(h *coro.Handle) error {
		c0.H = h
		var err error
		v0, f0, err = a0.Lookup(c0, k0)
		return err
	}, func(h *coro.Handle) error {
		c1.H = h
		var err error
		v1, f1, err = a1.Lookup(c1, k1)
		return err
	}, c0.IO, c1.IO))
	return shares.CombineAS(v0, v1), shares.CombineBS(f0, f1)
}

// clearNode is one reconstructed tree slot, for test-side verification
// only: no party ever sees this view during the protocol.
type clearNode struct {
	key, val    uint64
	bal         int64
	left, right int
}

func reconstructTree(a0, a1 *Avl) (int, map[int]clearNode) {
	w := a0.Width()
	nodes := make(map[int]clearNode)
	root := int(shares.CombineXS(a0.root, a1.root))
	for i := 1; i <= a0.Cap; i++ {
		r0 := a0.db.GetExplicit(i)
		r1 := a1.db.GetExplicit(i)
		nodes[i] = clearNode{
			key:   shares.CombineAS(r0[0], r1[0]),
			val:   shares.CombineAS(r0[1], r1[1]),
			bal:   signedOfWidth(shares.CombineAS(r0[2], r1[2]), w),
			left:  int(shares.CombineXS(a0.left[i], a1.left[i])),
			right: int(shares.CombineXS(a0.right[i], a1.right[i])),
		}
	}
	return root, nodes
}

func signedOfWidth(v uint64, w shares.Width) int64 {
	if w == shares.Width64 {
		return int64(v)
	}
	return int64(int32(uint32(v)))
}

// checkAVL walks the reconstructed tree from root and verifies the BST
// ordering, that every stored balance equals height(right)-height(left)
// and stays within ±1, and that the in-order key sequence equals want.
func checkAVL(root int, nodes map[int]clearNode, want []uint64) {
	var keys []uint64
	seen := make(map[int]bool)
	var walk func(n int, lo, hi *uint64) int
	walk = func(n int, lo, hi *uint64) int {
		if n == 0 {
			return 0
		}
		Expect(seen[n]).To(BeFalse(), "pointer cycle through node %d", n)
		seen[n] = true
		nd := nodes[n]
		if lo != nil {
			Expect(nd.key).To(BeNumerically(">", *lo), "BST violation at node %d", n)
		}
		if hi != nil {
			Expect(nd.key).To(BeNumerically("<", *hi), "BST violation at node %d", n)
		}
		hl := walk(nd.left, lo, &nd.key)
		keys = append(keys, nd.key)
		hr := walk(nd.right, &nd.key, hi)
		Expect(nd.bal).To(Equal(int64(hr-hl)),
			"node %d (key %d): balance field vs subtree heights L=%d R=%d", n, nd.key, hl, hr)
		Expect(nd.bal).To(And(BeNumerically(">=", -1), BeNumerically("<=", 1)),
			"node %d (key %d): AVL violation", n, nd.key)
		h := hl
		if hr > h {
			h = hr
		}
		return h + 1
	}
	walk(root, nil, nil)
	Expect(keys).To(Equal(want), "in-order key sequence")
}
