package heap

import (
	"testing"

	"github.com/luxfi/duoram3pc/internal/coro"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/shares"
)

func TestInsertAndExtractMinProducesSortedOrder(t *testing.T) {
	w := shares.Width32
	const cap = 7
	c0, c1 := newPair(t, w, 20000)

	h0 := New(party.P0, w, cap)
	h1 := New(party.P1, w, cap)

	vals := []uint64{5, 3, 8, 1, 9, 2, 7}
	for _, v := range vals {
		v0, v1 := splitAS(v, w)
		err := runBoth(func(h *coro.Handle) error {
			c0.H = h
			return h0.Insert(c0, v0)
		}, func(h *coro.Handle) error {
			c1.H = h
			return h1.Insert(c1, v1)
		}, c0.IO, c1.IO)
		must(t, err)
	}

	var got []uint64
	for i := 0; i < len(vals); i++ {
		var m0, m1 shares.AS
		err := runBoth(func(h *coro.Handle) error {
			c0.H = h
			var err error
			m0, err = h0.ExtractMinBasic(c0)
			return err
		}, func(h *coro.Handle) error {
			c1.H = h
			var err error
			m1, err = h1.ExtractMinBasic(c1)
			return err
		}, c0.IO, c1.IO)
		must(t, err)
		got = append(got, shares.CombineAS(m0, m1))
	}

	want := []uint64{1, 2, 3, 5, 7, 8, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("extract order: got %v want %v", got, want)
		}
	}
}

func TestInsertOptimizedAndExtractMinSharedProducesSortedOrder(t *testing.T) {
	w := shares.Width32
	const cap = 7
	c0, c1 := newPair(t, w, 30000)

	h0 := New(party.P0, w, cap)
	h1 := New(party.P1, w, cap)

	vals := []uint64{4, 6, 2, 9, 1, 3, 8}
	for _, v := range vals {
		v0, v1 := splitAS(v, w)
		err := runBoth(func(h *coro.Handle) error {
			c0.H = h
			return h0.InsertOptimized(c0, v0)
		}, func(h *coro.Handle) error {
			c1.H = h
			return h1.InsertOptimized(c1, v1)
		}, c0.IO, c1.IO)
		must(t, err)
	}

	var got []uint64
	for i := 0; i < len(vals); i++ {
		var m0, m1 shares.AS
		err := runBoth(func(h *coro.Handle) error {
			c0.H = h
			var err error
			m0, err = h0.ExtractMin(c0)
			return err
		}, func(h *coro.Handle) error {
			c1.H = h
			var err error
			m1, err = h1.ExtractMin(c1)
			return err
		}, c0.IO, c1.IO)
		must(t, err)
		got = append(got, shares.CombineAS(m0, m1))
	}

	want := []uint64{1, 2, 3, 4, 6, 8, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("extract order: got %v want %v", got, want)
		}
	}
}

func TestExtractMinOnEmptyHeapErrors(t *testing.T) {
	w := shares.Width32
	c0, c1 := newPair(t, w, 100)
	h0 := New(party.P0, w, 4)
	h1 := New(party.P1, w, 4)

	err := runBoth(func(h *coro.Handle) error {
		c0.H = h
		_, err := h0.ExtractMin(c0)
		return err
	}, func(h *coro.Handle) error {
		c1.H = h
		_, err := h1.ExtractMin(c1)
		return err
	}, c0.IO, c1.IO)
	if err == nil {
		t.Fatalf("expected error extracting from empty heap")
	}
}

func TestExtractMinIdempotenceOnSingletonHeap(t *testing.T) {
	w := shares.Width32
	c0, c1 := newPair(t, w, 200)
	h0 := New(party.P0, w, 4)
	h1 := New(party.P1, w, 4)

	v0, v1 := splitAS(42, w)
	must(t, runBoth(func(h *coro.Handle) error {
		c0.H = h
		return h0.Insert(c0, v0)
	}, func(h *coro.Handle) error {
		c1.H = h
		return h1.Insert(c1, v1)
	}, c0.IO, c1.IO))

	var m0, m1 shares.AS
	must(t, runBoth(func(h *coro.Handle) error {
		c0.H = h
		var err error
		m0, err = h0.ExtractMin(c0)
		return err
	}, func(h *coro.Handle) error {
		c1.H = h
		var err error
		m1, err = h1.ExtractMin(c1)
		return err
	}, c0.IO, c1.IO))
	if shares.CombineAS(m0, m1) != 42 {
		t.Fatalf("first extract: got %d want 42", shares.CombineAS(m0, m1))
	}

	err := runBoth(func(h *coro.Handle) error {
		c0.H = h
		_, err := h0.ExtractMin(c0)
		return err
	}, func(h *coro.Handle) error {
		c1.H = h
		_, err := h1.ExtractMin(c1)
		return err
	}, c0.IO, c1.IO)
	if err == nil {
		t.Fatalf("expected error extracting from now-empty heap")
	}
}
