package heap

import (
	"net"
	"testing"

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

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// newPair wires two mpc.Ctx values over an in-process net.Pipe, each
// with every correlated-randomness queue stocked generously enough for
// a small heap test.
func newPair(t *testing.T, w shares.Width, n int) (c0, c1 *mpc.Ctx) {
	t.Helper()
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
		pushTriple(t, c0.Triples, c1.Triples, w)
		pushHalf(t, c0.Halves, c1.Halves, w)
		pushSelect(t, c0.Selects, c1.Selects, w)
	}

	t.Cleanup(func() {
		connA.Close()
		connB.Close()
	})
	return c0, c1
}

func pushTriple(t *testing.T, q0, q1 *preproc.Queue, w shares.Width) {
	t.Helper()
	x0 := shares.NewAS(0, w)
	must(t, x0.Randomize(int(w)))
	x1 := shares.NewAS(0, w)
	must(t, x1.Randomize(int(w)))
	y0 := shares.NewAS(0, w)
	must(t, y0.Randomize(int(w)))
	y1 := shares.NewAS(0, w)
	must(t, y1.Randomize(int(w)))

	z := x0
	z.Add(x1)
	yy := y0
	yy.Add(y1)
	z.Mul(yy)

	z0 := shares.NewAS(0, w)
	must(t, z0.Randomize(int(w)))
	z1 := z
	z1.Sub(z0)

	must(t, q0.Push(shares.WriteASTriple(nil, x0, y0, z0)))
	must(t, q1.Push(shares.WriteASTriple(nil, x1, y1, z1)))
}

func pushHalf(t *testing.T, q0, q1 *preproc.Queue, w shares.Width) {
	t.Helper()
	rA := shares.NewAS(0, w)
	must(t, rA.Randomize(int(w)))
	rB := shares.NewAS(0, w)
	must(t, rB.Randomize(int(w)))
	prod := rA
	prod.Mul(rB)
	zA := shares.NewAS(0, w)
	must(t, zA.Randomize(int(w)))
	zB := prod
	zB.Sub(zA)

	must(t, q0.Push(append(shares.WriteAS(nil, rA), shares.WriteAS(nil, zA)...)))
	must(t, q1.Push(append(shares.WriteAS(nil, rB), shares.WriteAS(nil, zB)...)))
}

func pushSelect(t *testing.T, q0, q1 *preproc.Queue, w shares.Width) {
	t.Helper()
	a0 := shares.NewAS(uint64(seqBit()), w)
	a1 := shares.NewAS(uint64(seqBit()), w)
	b0 := shares.NewAS(0, w)
	must(t, b0.Randomize(int(w)))
	b1 := shares.NewAS(0, w)
	must(t, b1.Randomize(int(w)))

	a := a0.V ^ a1.V
	b := b0.V ^ b1.V
	var c uint64
	if a&1 == 1 {
		c = b
	}

	c0 := shares.NewAS(0, w)
	must(t, c0.Randomize(int(w)))
	c1 := shares.NewAS(c^c0.V, w)

	must(t, q0.Push(shares.WriteASTriple(nil, a0, b0, c0)))
	must(t, q1.Push(shares.WriteASTriple(nil, a1, b1, c1)))
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
