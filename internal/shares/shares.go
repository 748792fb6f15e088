// Package shares implements the additive, XOR, and bit share algebra that
// every higher layer of the protocol builds on. A shared value is defined
// only by the pair of shares held by P0 and P1; a single party's share is
// uniformly random and independent of the secret.
package shares

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// Width is the ring width in bits: every value_t is reduced modulo 2^W.
type Width int

const (
	Width32 Width = 32
	Width64 Width = 64
)

func (w Width) mask() uint64 {
	if w == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(w)) - 1
}

// AS is an additive share: the reconstructed value is (AS0+AS1) mod 2^W.
type AS struct {
	V uint64
	W Width
}

// NewAS builds an AS reduced to its width.
func NewAS(v uint64, w Width) AS {
	return AS{V: v & w.mask(), W: w}
}

// Add implements AS += AS (mod 2^W).
func (a *AS) Add(b AS) {
	a.V = (a.V + b.V) & a.W.mask()
}

// Sub implements AS -= AS (mod 2^W).
func (a *AS) Sub(b AS) {
	a.V = (a.V - b.V) & a.W.mask()
}

// Mul implements AS *= AS (mod 2^W). This is a *local* cleartext-style
// multiply on the share value itself (used e.g. to scale a share by a
// public constant); secret x secret multiplication goes through
// internal/mpc.Mul and consumes a triple.
func (a *AS) Mul(b AS) {
	a.V = (a.V * b.V) & a.W.mask()
}

// Negate returns -a mod 2^W.
func (a AS) Negate() AS {
	return NewAS((-a.V)&a.W.mask(), a.W)
}

// Randomize fills a with CSPRNG bytes, masked to nbits (nbits <= W).
func (a *AS) Randomize(nbits int) error {
	v, err := randomWord(nbits)
	if err != nil {
		return err
	}
	a.V = v & a.W.mask()
	return nil
}

func (a AS) String() string { return fmt.Sprintf("AS(%d/2^%d)", a.V, a.W) }

// XS is an XOR share: the reconstructed value is XS0 ^ XS1.
type XS struct {
	V uint64
	W Width
}

// NewXS builds an XS reduced to its width.
func NewXS(v uint64, w Width) XS {
	return XS{V: v & w.mask(), W: w}
}

// Add is XOR share addition, which is XOR.
func (x *XS) Add(y XS) { x.V = (x.V ^ y.V) & x.W.mask() }

// Sub is XOR share subtraction, which is also XOR.
func (x *XS) Sub(y XS) { x.V = (x.V ^ y.V) & x.W.mask() }

// Xor is an explicit alias for Add/Sub, for call sites where XOR reads
// more clearly than arithmetic notation.
func (x *XS) Xor(y XS) { x.Add(y) }

// Mul implements local share*share AND, used only where both operands are
// already local (e.g. masks); true secret AND goes through internal/mpc.
func (x *XS) Mul(y XS) { x.V = (x.V & y.V) & x.W.mask() }

func (x *XS) Randomize(nbits int) error {
	v, err := randomWord(nbits)
	if err != nil {
		return err
	}
	x.V = v & x.W.mask()
	return nil
}

func (x XS) String() string { return fmt.Sprintf("XS(%#x/2^%d)", x.V, x.W) }

// Bit extracts bit position i (0 = LSB) of x as a BS.
func (x XS) Bit(i int) BS {
	return BS((x.V >> uint(i)) & 1)
}

// BS is a single-bit XOR share: reconstructed value is BS0 ^ BS1.
type BS uint8

// Xor is BS0^BS1 style combination.
func (b BS) Xor(o BS) BS { return b ^ o }

// And is a *local* AND of two bit shares (not a secret AND — that goes
// through internal/mpc.Mul on single-bit operands).
func (b BS) And(o BS) BS { return b & o }

func (b *BS) Randomize() error {
	var buf [1]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return err
	}
	*b = BS(buf[0] & 1)
	return nil
}

// CombineAS reconstructs the cleartext value of an AS pair. It exists only
// for tests and debug harnesses — no party ever calls Combine on its own
// peer's live share during the protocol.
func CombineAS(a, b AS) uint64 {
	return (a.V + b.V) & a.W.mask()
}

// CombineXS reconstructs the cleartext value of an XS pair.
func CombineXS(a, b XS) uint64 {
	return (a.V ^ b.V) & a.W.mask()
}

// CombineBS reconstructs the cleartext value of a BS pair.
func CombineBS(a, b BS) uint8 {
	return uint8(a ^ b)
}

func randomWord(nbits int) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(buf[:])
	if nbits >= 64 {
		return v, nil
	}
	return v & ((uint64(1) << uint(nbits)) - 1), nil
}
