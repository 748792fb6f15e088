package duoram

import (
	"testing"

	"github.com/luxfi/duoram3pc/internal/coro"
	"github.com/luxfi/duoram3pc/internal/shares"
)

func TestBitonicSortAscending(t *testing.T) {
	w := shares.Width32
	const n = 8
	c0, c1 := newPair(t, w, 4000)

	vals := []uint64{7, 3, 5, 1, 8, 2, 6, 4}
	data0 := make([]shares.AS, n)
	data1 := make([]shares.AS, n)
	for i, v := range vals {
		a0, a1 := splitAS(v, w)
		data0[i], data1[i] = a0, a1
	}

	err := runBoth(func(h *coro.Handle) error {
		c0.H = h
		return BitonicSort(c0, data0, true)
	}, func(h *coro.Handle) error {
		c1.H = h
		return BitonicSort(c1, data1, true)
	}, c0.IO, c1.IO)
	must(t, err)

	want := []uint64{1, 2, 3, 4, 5, 6, 7, 8}
	for i := range want {
		got := shares.CombineAS(data0[i], data1[i])
		if got != want[i] {
			t.Fatalf("position %d: got %d want %d", i, got, want[i])
		}
	}
}

func TestBitonicSortDescending(t *testing.T) {
	w := shares.Width32
	const n = 4
	c0, c1 := newPair(t, w, 1500)

	vals := []uint64{2, 9, 4, 1}
	data0 := make([]shares.AS, n)
	data1 := make([]shares.AS, n)
	for i, v := range vals {
		a0, a1 := splitAS(v, w)
		data0[i], data1[i] = a0, a1
	}

	err := runBoth(func(h *coro.Handle) error {
		c0.H = h
		return BitonicSort(c0, data0, false)
	}, func(h *coro.Handle) error {
		c1.H = h
		return BitonicSort(c1, data1, false)
	}, c0.IO, c1.IO)
	must(t, err)

	want := []uint64{9, 4, 2, 1}
	for i := range want {
		got := shares.CombineAS(data0[i], data1[i])
		if got != want[i] {
			t.Fatalf("position %d: got %d want %d", i, got, want[i])
		}
	}
}

func TestBitonicSortRejectsNonPowerOfTwo(t *testing.T) {
	w := shares.Width32
	c0, _ := newPair(t, w, 16)
	data := make([]shares.AS, 3)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-power-of-two length")
		}
	}()
	_ = BitonicSort(c0, data, true)
}
