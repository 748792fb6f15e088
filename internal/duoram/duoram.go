// Package duoram implements the oblivious flat-memory abstraction the
// higher-level data structures (heap, AVL) are built on (spec §3, §4.8):
// a Duoram holds one party's share of a fixed-size array of fixed-width
// additive-share cells, Shapes give non-owning reindexed views over it
// (Flat, Stride, Pad), and an OblivIndex batches every physical-location
// lookup a secret-indexed read or update needs into one round.
//
// See DESIGN.md's Duoram entry for the one deliberate algorithmic
// simplification this package makes relative to the Vadapalli-Henry-
// Goldberg paper the spec is drawn from: the original protocol keeps a
// peer-blinded shadow of the database so that reads/updates cost O(1)
// rounds and O(log N) communication per access; this package instead
// performs the oblivious inner product as a single batched round of N
// genuine secret multiplications (O(N) communication), because the
// shadow-vector bookkeeping's exact cross-term cancellation algebra is
// not present in the portion of the original C++ source this repo was
// given to study from.
package duoram

import (
	"fmt"

	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/rdpf"
	"github.com/luxfi/duoram3pc/internal/shares"
)

// Duoram is one computational party's share of a flat oblivious memory
// of fixed-width cells. Width is the number of AS fields per cell (the
// spec's WIDTH), letting one DPF evaluation amortize across several
// fields of a struct cell.
type Duoram struct {
	Self  party.ID
	W     shares.Width
	Width int // AS fields per cell

	// Database holds this party's additive share of every cell.
	// Database[i][f] is field f of cell i.
	Database [][]shares.AS
}

// New allocates a Duoram of the given size (cell count) and per-cell
// field width, owned by self, all cells zeroed.
func New(self party.ID, w shares.Width, size, width int) *Duoram {
	db := make([][]shares.AS, size)
	for i := range db {
		row := make([]shares.AS, width)
		for f := range row {
			row[f] = shares.NewAS(0, w)
		}
		db[i] = row
	}
	return &Duoram{Self: self, W: w, Width: width, Database: db}
}

// Size returns the number of cells.
func (d *Duoram) Size() int { return len(d.Database) }

// SetExplicit writes cell idx (a public, cleartext index) directly —
// the "explicit writes bypass DPFs entirely" path (spec §4.8). No MPC
// round is needed: an additive share's own half can always be replaced
// locally.
func (d *Duoram) SetExplicit(idx int, cell []shares.AS) {
	row := make([]shares.AS, len(cell))
	copy(row, cell)
	d.Database[idx] = row
}

// GetExplicit reads cell idx (a public, cleartext index) directly: this
// party's share of the cell, with no MPC round.
func (d *Duoram) GetExplicit(idx int) []shares.AS {
	row := make([]shares.AS, len(d.Database[idx]))
	copy(row, d.Database[idx])
	return row
}

// Shape is a non-owning, possibly-nested reindexing view over a Duoram.
// Resolve maps a shape-local virtual index either to a physical Duoram
// index, or (for Pad, past the end of its wrapped shape) to a fixed
// public constant cell that never touches the Database.
type Shape interface {
	Size() int
	Root() *Duoram
	Resolve(virt uint64) (phys uint64, isPhys bool, constCell []shares.AS)
}

// Flat is the identity shape over a contiguous sub-range [lo,hi) of the
// parent Duoram.
type Flat struct {
	d      *Duoram
	lo, hi uint64
}

// NewFlat returns the Flat view of the whole Duoram.
func NewFlat(d *Duoram) *Flat {
	return &Flat{d: d, lo: 0, hi: uint64(d.Size())}
}

// SubFlat restricts to [lo,hi) of the Duoram's physical index space.
func SubFlat(d *Duoram, lo, hi uint64) *Flat {
	return &Flat{d: d, lo: lo, hi: hi}
}

func (f *Flat) Size() int     { return int(f.hi - f.lo) }
func (f *Flat) Root() *Duoram { return f.d }
func (f *Flat) Resolve(virt uint64) (uint64, bool, []shares.AS) {
	return f.lo + virt, true, nil
}

// Stride is an arithmetic-progression view: virtual index i maps to
// parent index offset+i*stride.
type Stride struct {
	parent         Shape
	offset, stride uint64
}

// NewStride wraps parent with the given offset and stride (spec §4.8:
// "Pad and Stride delegate through indexmap").
func NewStride(parent Shape, offset, stride uint64) *Stride {
	if stride == 0 {
		panic("duoram: Stride stride must be nonzero")
	}
	return &Stride{parent: parent, offset: offset, stride: stride}
}

func (s *Stride) Size() int {
	n := s.parent.Size()
	if n <= int(s.offset) {
		return 0
	}
	return (n-int(s.offset)-1)/int(s.stride) + 1
}
func (s *Stride) Root() *Duoram { return s.parent.Root() }
func (s *Stride) Resolve(virt uint64) (uint64, bool, []shares.AS) {
	return s.parent.Resolve(s.offset + virt*s.stride)
}

// Pad virtually extends parent to paddedSize; reads past parent's
// extent return (bit-exactly) a share of padVal without consuming a
// physical Database slot. Update skips positions past parent's extent,
// so they are never written.
type Pad struct {
	parent     Shape
	paddedSize uint64
	padVal     []shares.AS // the full public constant, per field
}

// NewPad wraps parent, extending it to paddedSize with a constant cell.
// padVal is the public constant and is stored in full on both parties —
// unlike a shared value, a constant cell is consumed by scaling each
// party's *indicator share* by it (Read's constant path), and
// (u0+u1)*c only reconstructs to c·[i=target] when both parties scale
// by the whole constant (spec §4.8: "out-of-range reads return
// (bit-exactly) a share of padval").
func NewPad(parent Shape, paddedSize uint64, padVal []uint64) *Pad {
	cell := make([]shares.AS, len(padVal))
	for i, v := range padVal {
		cell[i] = shares.NewAS(v, parent.Root().W)
	}
	return &Pad{parent: parent, paddedSize: paddedSize, padVal: cell}
}

func (p *Pad) Size() int     { return int(p.paddedSize) }
func (p *Pad) Root() *Duoram { return p.parent.Root() }
func (p *Pad) Resolve(virt uint64) (uint64, bool, []shares.AS) {
	if virt < uint64(p.parent.Size()) {
		return p.parent.Resolve(virt)
	}
	return 0, false, p.padVal
}

// depthFor returns the smallest d >= 1 with 2^d >= n (n <= 1 maps to
// depth 1).
func depthFor(n int) int {
	d := 0
	for (1 << uint(d)) < n {
		d++
	}
	if d == 0 {
		d = 1
	}
	return d
}

// OblivIndex is a lazy cursor over a secret virtual index: it generates
// one RDPF at construction (covering the widest shape it will be used
// against) so that repeated reads/updates against the same index share
// its randomness (spec §4.8). The DPF it owns is consumed across the
// whole sequence of accesses for one logical lookup.
type OblivIndex struct {
	ctx    *mpc.Ctx
	depth  int
	target shares.XS
	r      *rdpf.RDPF
}

// NewOblivIndex generates the RDPF backing idx for a shape of the given
// size. ctx.H must be live.
func NewOblivIndex(ctx *mpc.Ctx, target shares.XS, shapeSize int) (*OblivIndex, error) {
	depth := depthFor(shapeSize)
	r, err := rdpf.Gen(ctx, depth, target, shares.NewXS(0, ctx.W))
	if err != nil {
		return nil, fmt.Errorf("duoram: obliv index: %w", err)
	}
	return &OblivIndex{ctx: ctx, depth: depth, target: target, r: r}, nil
}

// Read performs an oblivious read of shape[idx], returning a fresh
// share of every field of the cell (spec §4.8). Positions the shape
// resolves to a constant (Pad, out of range) contribute their public
// constant scaled by this party's local indicator share — a local
// computation needing no extra round, since scaling a secret share by a
// known public constant never requires interaction.
func (oi *OblivIndex) Read(shape Shape) ([]shares.AS, error) {
	n := shape.Size()
	if n > (1 << uint(oi.depth)) {
		return nil, fmt.Errorf("duoram: shape size %d exceeds OblivIndex depth %d", n, oi.depth)
	}
	width := shape.Root().Width

	var physPositions []uint64
	var physRows [][]shares.AS
	var physU []uint64 // indices into u, aligned with physPositions

	result := make([]shares.AS, width)
	for f := range result {
		result[f] = shares.NewAS(0, shape.Root().W)
	}

	u, err := oi.unitShares(n)
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		phys, isPhys, constCell := shape.Resolve(uint64(i))
		if !isPhys {
			for f := 0; f < width; f++ {
				term := u[i]
				term.Mul(constCell[f])
				result[f].Add(term)
			}
			continue
		}
		physPositions = append(physPositions, phys)
		physRows = append(physRows, shape.Root().Database[phys])
		physU = append(physU, uint64(i))
	}

	if len(physPositions) > 0 {
		xsOp := make([]shares.AS, 0, len(physPositions)*width)
		ysOp := make([]shares.AS, 0, len(physPositions)*width)
		for k := range physPositions {
			for f := 0; f < width; f++ {
				xsOp = append(xsOp, u[physU[k]])
				ysOp = append(ysOp, physRows[k][f])
			}
		}
		prods, err := oi.ctx.BatchMul(xsOp, ysOp)
		if err != nil {
			return nil, fmt.Errorf("duoram: read batch mul: %w", err)
		}
		idx := 0
		for range physPositions {
			for f := 0; f < width; f++ {
				result[f].Add(prods[idx])
				idx++
			}
		}
	}
	return result, nil
}

// Update performs shape[idx] += delta obliviously (spec §4.8): every
// physical cell in the shape's range gets delta scaled by this party's
// local indicator share for that position added in, via one batched
// round of secret multiplications. Positions the shape resolves to a
// constant (Pad) are skipped and left unwritten.
func (oi *OblivIndex) Update(shape Shape, delta []shares.AS) error {
	n := shape.Size()
	if n > (1 << uint(oi.depth)) {
		return fmt.Errorf("duoram: shape size %d exceeds OblivIndex depth %d", n, oi.depth)
	}
	width := shape.Root().Width
	if len(delta) != width {
		return fmt.Errorf("duoram: delta width %d != cell width %d", len(delta), width)
	}

	u, err := oi.unitShares(n)
	if err != nil {
		return err
	}

	var physPositions []uint64
	var physU []uint64
	for i := 0; i < n; i++ {
		phys, isPhys, _ := shape.Resolve(uint64(i))
		if !isPhys {
			continue
		}
		physPositions = append(physPositions, phys)
		physU = append(physU, uint64(i))
	}
	if len(physPositions) == 0 {
		return nil
	}

	xsOp := make([]shares.AS, 0, len(physPositions)*width)
	ysOp := make([]shares.AS, 0, len(physPositions)*width)
	for k := range physPositions {
		for f := 0; f < width; f++ {
			xsOp = append(xsOp, u[physU[k]])
			ysOp = append(ysOp, delta[f])
		}
	}
	prods, err := oi.ctx.BatchMul(xsOp, ysOp)
	if err != nil {
		return fmt.Errorf("duoram: update batch mul: %w", err)
	}
	idx := 0
	db := shape.Root().Database
	for _, phys := range physPositions {
		for f := 0; f < width; f++ {
			db[phys][f].Add(prods[idx])
			idx++
		}
	}
	return nil
}

// unitShares returns this party's additive indicator share for every
// virtual position [0,n) in one batched round.
func (oi *OblivIndex) unitShares(n int) ([]shares.AS, error) {
	xs := make([]uint64, n)
	for i := range xs {
		xs[i] = uint64(i)
	}
	return oi.r.BatchUnitAS(oi.ctx, xs)
}
