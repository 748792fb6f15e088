package avl

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/shares"
)

var _ = Describe("Oblivious AVL tree", func() {
	const w = shares.Width32

	newTrees := func(capacity int) (*Avl, *Avl) {
		return New(party.P0, w, capacity), New(party.P1, w, capacity)
	}

	Describe("insert rebalancing", func() {
		It("restores balance with a single rotation at the root", func() {
			c0, c1 := newPair(w, 80000)
			a0, a1 := newTrees(4)

			for _, k := range []uint64{5, 7, 9} {
				insertBoth(c0, c1, a0, a1, k, k*10)
			}

			root, nodes := reconstructTree(a0, a1)
			rn := nodes[root]
			Expect(rn.key).To(Equal(uint64(7)))
			Expect(nodes[rn.left].key).To(Equal(uint64(5)))
			Expect(nodes[rn.right].key).To(Equal(uint64(9)))
			checkAVL(root, nodes, []uint64{5, 7, 9})
		})

		It("restores balance with a double rotation at the root", func() {
			c0, c1 := newPair(w, 80000)
			a0, a1 := newTrees(4)

			for _, k := range []uint64{9, 5, 7} {
				insertBoth(c0, c1, a0, a1, k, k*10)
			}

			root, nodes := reconstructTree(a0, a1)
			rn := nodes[root]
			Expect(rn.key).To(Equal(uint64(7)))
			Expect(nodes[rn.left].key).To(Equal(uint64(5)))
			Expect(nodes[rn.right].key).To(Equal(uint64(9)))
			checkAVL(root, nodes, []uint64{5, 7, 9})
		})
	})

	Describe("delete rebalancing", func() {
		It("rotates the right subtree and leaves the root right-heavy", func() {
			c0, c1 := newPair(w, 250000)
			a0, a1 := newTrees(8)

			for _, k := range []uint64{5, 3, 12, 7, 1, 9} {
				insertBoth(c0, c1, a0, a1, k, k*10)
			}
			Expect(deleteBoth(c0, c1, a0, a1, 1)).To(Equal(uint8(1)))

			root, nodes := reconstructTree(a0, a1)
			rn := nodes[root]
			Expect(rn.key).To(Equal(uint64(5)))
			Expect(rn.bal).To(Equal(int64(1)))
			right := nodes[rn.right]
			Expect(right.key).To(Equal(uint64(9)))
			Expect(nodes[right.left].key).To(Equal(uint64(7)))
			Expect(nodes[right.right].key).To(Equal(uint64(12)))
			Expect(nodes[rn.left].key).To(Equal(uint64(3)))
			Expect(nodes[rn.left].bal).To(Equal(int64(0)))
			checkAVL(root, nodes, []uint64{3, 5, 7, 9, 12})
		})

		It("cascades rotations from the unlink point up to a new root", func() {
			if testing.Short() {
				Skip("stocks a very large correlated-randomness pool")
			}
			c0, c1 := newPair(w, 500000)
			a0, a1 := newTrees(13)

			for _, k := range []uint64{9, 5, 12, 7, 3, 10, 15, 2, 4, 6, 8, 20, 1} {
				insertBoth(c0, c1, a0, a1, k, k*10)
			}
			Expect(deleteBoth(c0, c1, a0, a1, 10)).To(Equal(uint8(1)))

			root, nodes := reconstructTree(a0, a1)
			rn := nodes[root]
			Expect(rn.key).To(Equal(uint64(5)))
			Expect(nodes[rn.left].key).To(Equal(uint64(3)))
			Expect(nodes[rn.right].key).To(Equal(uint64(9)))
			checkAVL(root, nodes, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 12, 15, 20})
		})
	})

	Describe("lookup", func() {
		It("latches the value on a hit and reports misses", func() {
			c0, c1 := newPair(w, 200000)
			a0, a1 := newTrees(8)

			for _, k := range []uint64{5, 3, 12, 7} {
				insertBoth(c0, c1, a0, a1, k, k*10)
			}

			val, found := lookupBoth(c0, c1, a0, a1, 7)
			Expect(found).To(Equal(uint8(1)))
			Expect(val).To(Equal(uint64(70)))

			_, found = lookupBoth(c0, c1, a0, a1, 8)
			Expect(found).To(Equal(uint8(0)))
		})
	})

	Describe("repeated delete", func() {
		It("reports found once, then missing, without corrupting the tree", func() {
			c0, c1 := newPair(w, 250000)
			a0, a1 := newTrees(8)

			for _, k := range []uint64{5, 3, 12} {
				insertBoth(c0, c1, a0, a1, k, k*10)
			}
			Expect(deleteBoth(c0, c1, a0, a1, 3)).To(Equal(uint8(1)))
			Expect(deleteBoth(c0, c1, a0, a1, 3)).To(Equal(uint8(0)))

			_, found := lookupBoth(c0, c1, a0, a1, 3)
			Expect(found).To(Equal(uint8(0)))

			root, nodes := reconstructTree(a0, a1)
			checkAVL(root, nodes, []uint64{5, 12})
		})
	})
})
