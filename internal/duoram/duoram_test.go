package duoram

import (
	"testing"

	"github.com/luxfi/duoram3pc/internal/coro"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/shares"
)

func TestFlatReadReconstructsTargetCell(t *testing.T) {
	w := shares.Width32
	const n = 4
	c0, c1 := newPair(t, w, 64)

	d0 := New(party.P0, w, n, 1)
	d1 := New(party.P1, w, n, 1)
	// cleartext cell values 10,20,30,40, split arbitrarily across the
	// two parties' shares.
	vals := []uint64{10, 20, 30, 40}
	for i, v := range vals {
		a0, a1 := splitAS(v, w)
		d0.SetExplicit(i, []shares.AS{a0})
		d1.SetExplicit(i, []shares.AS{a1})
	}

	const target = 2
	x0, x1 := splitXS(target, shares.Width(depthFor(n)))

	var res0, res1 []shares.AS
	err := runBoth(func(h *coro.Handle) error {
		c0.H = h
		oi, err := NewOblivIndex(c0, x0, n)
		if err != nil {
			return err
		}
		res0, err = oi.Read(NewFlat(d0))
		return err
	}, func(h *coro.Handle) error {
		c1.H = h
		oi, err := NewOblivIndex(c1, x1, n)
		if err != nil {
			return err
		}
		res1, err = oi.Read(NewFlat(d1))
		return err
	}, c0.IO, c1.IO)
	must(t, err)

	combined := shares.CombineAS(res0[0], res1[0])
	if combined != vals[target] {
		t.Fatalf("read at target=%d: got %d want %d", target, combined, vals[target])
	}
}

func TestFlatUpdateAddsDelta(t *testing.T) {
	w := shares.Width32
	const n = 4
	c0, c1 := newPair(t, w, 64)

	d0 := New(party.P0, w, n, 1)
	d1 := New(party.P1, w, n, 1)
	vals := []uint64{1, 2, 3, 4}
	for i, v := range vals {
		a0, a1 := splitAS(v, w)
		d0.SetExplicit(i, []shares.AS{a0})
		d1.SetExplicit(i, []shares.AS{a1})
	}

	const target = 1
	const delta = 100
	x0, x1 := splitXS(target, shares.Width(depthFor(n)))
	delta0, delta1 := splitAS(delta, w)

	err := runBoth(func(h *coro.Handle) error {
		c0.H = h
		oi, err := NewOblivIndex(c0, x0, n)
		if err != nil {
			return err
		}
		return oi.Update(NewFlat(d0), []shares.AS{delta0})
	}, func(h *coro.Handle) error {
		c1.H = h
		oi, err := NewOblivIndex(c1, x1, n)
		if err != nil {
			return err
		}
		return oi.Update(NewFlat(d1), []shares.AS{delta1})
	}, c0.IO, c1.IO)
	must(t, err)

	for i, v := range vals {
		want := v
		if i == target {
			want += delta
		}
		combined := shares.CombineAS(d0.GetExplicit(i)[0], d1.GetExplicit(i)[0])
		if combined != want {
			t.Fatalf("cell %d after update: got %d want %d", i, combined, want)
		}
	}
}

func TestPadReturnsConstantPastExtent(t *testing.T) {
	w := shares.Width32
	const n = 3
	c0, c1 := newPair(t, w, 64)

	d0 := New(party.P0, w, n, 1)
	d1 := New(party.P1, w, n, 1)
	vals := []uint64{5, 6, 7}
	for i, v := range vals {
		a0, a1 := splitAS(v, w)
		d0.SetExplicit(i, []shares.AS{a0})
		d1.SetExplicit(i, []shares.AS{a1})
	}

	const padded = 4 // next power of two strictly above n=3
	const sentinel = 999
	const target = 3 // the padded, out-of-range slot
	x0, x1 := splitXS(target, shares.Width(depthFor(padded)))

	var res0, res1 []shares.AS
	err := runBoth(func(h *coro.Handle) error {
		c0.H = h
		pad := NewPad(NewFlat(d0), padded, []uint64{sentinel})
		oi, err := NewOblivIndex(c0, x0, padded)
		if err != nil {
			return err
		}
		res0, err = oi.Read(pad)
		return err
	}, func(h *coro.Handle) error {
		c1.H = h
		pad := NewPad(NewFlat(d1), padded, []uint64{sentinel})
		oi, err := NewOblivIndex(c1, x1, padded)
		if err != nil {
			return err
		}
		res1, err = oi.Read(pad)
		return err
	}, c0.IO, c1.IO)
	must(t, err)

	combined := shares.CombineAS(res0[0], res1[0])
	if combined != sentinel {
		t.Fatalf("pad read past extent: got %d want %d", combined, sentinel)
	}
}
