package duoram

import (
	"testing"

	"github.com/luxfi/duoram3pc/internal/coro"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/shares"
)

func runSearch(t *testing.T, vals []uint64, targetVal uint64) uint64 {
	t.Helper()
	w := shares.Width32
	n := len(vals)
	c0, c1 := newPair(t, w, 1024)

	d0 := New(party.P0, w, n, 1)
	d1 := New(party.P1, w, n, 1)
	for i, v := range vals {
		a0, a1 := splitAS(v, w)
		d0.SetExplicit(i, []shares.AS{a0})
		d1.SetExplicit(i, []shares.AS{a1})
	}
	t0, t1 := splitAS(targetVal, w)

	var res0, res1 shares.AS
	err := runBoth(func(h *coro.Handle) error {
		c0.H = h
		r, err := ObliviousBinarySearch(c0, NewFlat(d0), t0)
		res0 = r
		return err
	}, func(h *coro.Handle) error {
		c1.H = h
		r, err := ObliviousBinarySearch(c1, NewFlat(d1), t1)
		res1 = r
		return err
	}, c0.IO, c1.IO)
	must(t, err)

	return shares.CombineAS(res0, res1)
}

func TestObliviousBinarySearchExactMatch(t *testing.T) {
	vals := []uint64{1, 3, 5, 7, 9}
	got := runSearch(t, vals, 5)
	if got != 2 {
		t.Fatalf("search for 5 in %v: got index %d want 2", vals, got)
	}
}

func TestObliviousBinarySearchBetweenElements(t *testing.T) {
	vals := []uint64{1, 3, 5, 7, 9}
	got := runSearch(t, vals, 6)
	if got != 3 {
		t.Fatalf("search for 6 in %v: got index %d want 3", vals, got)
	}
}

func TestObliviousBinarySearchBeforeFirst(t *testing.T) {
	vals := []uint64{10, 20, 30, 40}
	got := runSearch(t, vals, 1)
	if got != 0 {
		t.Fatalf("search for 1 in %v: got index %d want 0", vals, got)
	}
}
