package cdpf

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

func newPair(t *testing.T, w shares.Width) (c0, c1 *mpc.Ctx) {
	t.Helper()
	connA, connB := net.Pipe()

	ioA := transport.NewComputationalMPCIO(party.P0, 0, transport.NewConn(connA, &transport.LamportClock{}), nil)
	ioB := transport.NewComputationalMPCIO(party.P1, 0, transport.NewConn(connB, &transport.LamportClock{}), nil)

	recSize := 3 * int(w/8)
	c0 = &mpc.Ctx{IO: ioA, W: w, Self: party.P0, Selects: preproc.NewQueue(recSize)}
	c1 = &mpc.Ctx{IO: ioB, W: w, Self: party.P1, Selects: preproc.NewQueue(recSize)}

	// int(w)-1 internal levels + 2 final-level corrections, plus one
	// spare.
	for i := 0; i < int(w)+2; i++ {
		pushSelect(t, c0.Selects, c1.Selects, w)
	}

	t.Cleanup(func() {
		connA.Close()
		connB.Close()
	})
	return c0, c1
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

var seqState uint32

// seqBit returns a deterministic pseudo-random bit sequence; tests here
// don't need cryptographic randomness, just varied 0/1 coverage.
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

func splitXS(v uint64, w shares.Width) (x0, x1 shares.XS) {
	x0 = shares.XS{V: 0, W: w}
	x0.Randomize(int(w))
	x1 = shares.NewXS(v, w)
	x1.Xor(x0)
	return
}

func genPair(t *testing.T, w shares.Width, target uint64) (c0Ctx, c1Ctx *mpc.Ctx, d0, d1 *CDPF) {
	t.Helper()
	c0Ctx, c1Ctx = newPair(t, w)

	xs0, xs1 := splitXS(target, w)
	as0, as1 := splitAS(target, w)

	err := runBoth(func(h *coro.Handle) error {
		c0Ctx.H = h
		var err error
		d0, err = Gen(c0Ctx, w, xs0, as0)
		return err
	}, func(h *coro.Handle) error {
		c1Ctx.H = h
		var err error
		d1, err = Gen(c1Ctx, w, xs1, as1)
		return err
	}, c0Ctx.IO, c1Ctx.IO)
	must(t, err)
	return
}

func compareDiff(t *testing.T, w shares.Width, c0, c1 *mpc.Ctx, d0, d1 *CDPF, diff uint64) (lt, eq, gt byte) {
	t.Helper()
	diff0, diff1 := splitAS(diff, w)

	var lt0, eq0, gt0, lt1, eq1, gt1 shares.BS
	err := runBoth(func(h *coro.Handle) error {
		c0.H = h
		var err error
		lt0, eq0, gt0, err = d0.Compare(c0, diff0)
		return err
	}, func(h *coro.Handle) error {
		c1.H = h
		var err error
		lt1, eq1, gt1, err = d1.Compare(c1, diff1)
		return err
	}, c0.IO, c1.IO)
	must(t, err)

	return byte(lt0 ^ lt1), byte(eq0 ^ eq1), byte(gt0 ^ gt1)
}

func TestCDPFCompareSignsAndEquality(t *testing.T) {
	w := shares.Width32
	const target = 0x1000

	cases := []struct {
		diff uint64
		want string // "lt", "eq", "gt"
	}{
		{0, "eq"},
		{1, "gt"},
		{1<<31 - 1, "gt"},
		{^uint64(0) & 0xffffffff, "lt"},    // diff = -1
		{uint64(1<<31) & 0xffffffff, "lt"}, // diff = -2^31 (most negative)
	}

	for _, tc := range cases {
		c0, c1, d0, d1 := genPair(t, w, target)
		lt, eq, gt := compareDiff(t, w, c0, c1, d0, d1, tc.diff)

		got := ""
		switch {
		case lt == 1 && eq == 0 && gt == 0:
			got = "lt"
		case lt == 0 && eq == 1 && gt == 0:
			got = "eq"
		case lt == 0 && eq == 0 && gt == 1:
			got = "gt"
		default:
			t.Fatalf("diff=%#x: expected exactly one bit set, got lt=%d eq=%d gt=%d", tc.diff, lt, eq, gt)
		}
		if got != tc.want {
			t.Fatalf("diff=%#x: got %s want %s", tc.diff, got, tc.want)
		}
	}
}

func TestCDPFIsZero(t *testing.T) {
	w := shares.Width32
	_, _, d0, d1 := genPair(t, w, 0)
	got := d0.IsZero() ^ d1.IsZero()
	if got != 1 {
		t.Fatalf("IsZero for target=0 should combine to 1, got %d", got)
	}

	_, _, d0b, d1b := genPair(t, w, 77)
	got2 := d0b.IsZero() ^ d1b.IsZero()
	if got2 != 0 {
		t.Fatalf("IsZero for target=77 should combine to 0, got %d", got2)
	}
}
