// Package prg implements the fixed-key AES-128 PRG used to expand DPF
// tree nodes (spec §4.5). AES here is used purely as a fixed permutation
// (Davies-Meyer over a single block), not as a cipher mode: the low bit
// of every node is reserved as the DPF flag bit and is re-set by the
// caller after each expansion.
package prg

import (
	"crypto/aes"
)

// Node is a 128-bit opaque DPF tree node.
type Node [16]byte

// Lsb returns the low (flag) bit of n.
func (n Node) Lsb() byte { return n[0] & 1 }

// SetLsb returns n with its low bit set to b (0 or 1).
func (n Node) SetLsb(b byte) Node {
	out := n
	out[0] = (out[0] &^ 1) | (b & 1)
	return out
}

// Xor returns n ^ o.
func (n Node) Xor(o Node) Node {
	var out Node
	for i := range out {
		out[i] = n[i] ^ o[i]
	}
	return out
}

// fixedKey is AES128_KeyExpand((314159265, 271828182)) per spec §4.5: a
// process-wide constant, never secret, never reused for anything but
// expanding DPF nodes.
var fixedKey = deriveFixedKey()

func deriveFixedKey() []byte {
	var key [16]byte
	// (314159265, 271828182) as two little-endian uint64 halves.
	putU64LE(key[0:8], 314159265)
	putU64LE(key[8:16], 271828182)
	return key[:]
}

func putU64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

// block is a package-level AES cipher under the fixed key; crypto/aes's
// Block is safe for concurrent use by multiple goroutines, so one cipher
// serves every worker.
var block = mustNewCipher(fixedKey)

func mustNewCipher(key []byte) cipherBlock {
	c, err := aes.NewCipher(key)
	if err != nil {
		panic("prg: AES key expansion failed: " + err.Error())
	}
	return c
}

// cipherBlock is the subset of cipher.Block the PRG needs, so tests can
// substitute a fake block cipher without pulling in crypto/cipher.
type cipherBlock interface {
	Encrypt(dst, src []byte)
}

// AESOpsCounter lets callers track the number of single-block AES
// operations performed, matching the teacher's per-worker aes_ops
// profiling counter (spec §9). It is optional; nil is fine.
type AESOpsCounter interface {
	Add(n uint64)
}

// Eval computes one child of s selected by bit b: AES_ENC(k, set_lsb(s,
// b)) XOR set_lsb(s, b). The caller is responsible for re-setting the
// result's flag bit according to the DPF protocol.
func Eval(s Node, b byte, ctr AESOpsCounter) Node {
	in := s.SetLsb(b)
	var out Node
	block.Encrypt(out[:], in[:])
	out = out.Xor(in)
	if ctr != nil {
		ctr.Add(1)
	}
	return out
}

// Both computes both children of s in one call (left = bit 0, right = bit
// 1), matching prgboth in spec §4.5.
func Both(s Node, ctr AESOpsCounter) (left, right Node) {
	return Eval(s, 0, ctr), Eval(s, 1, ctr)
}
