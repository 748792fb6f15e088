// Package preproc implements the correlated-randomness store (spec
// §4.3): typed, fixed-size record files produced by the server P2 ahead
// of time, plus the inline network framing used when preprocessing runs
// live instead of from disk.
package preproc

import "fmt"

// Kind identifies a correlated-randomness record type. The string value
// doubles as the file-name prefix (spec §4.3: "<prefix>.p<player%10>.t<threadnum>").
type Kind string

const (
	KindTriple Kind = "triples" // multiplication triple: 3 value_t
	KindHalf   Kind = "halves"  // half-triple: 2 value_t
	KindSelect Kind = "selects" // select triple for DPF node XOR: 3 value_t (a,b,c=a&b)
	KindRDPF   Kind = "rdpf"    // RDPF triple/pair of a fixed depth
	KindCDPF   Kind = "cdpf"    // comparison DPF
)

// FrameType is the one-byte tag used to frame preprocessing bursts sent
// over the network when the server runs inline instead of reading from
// disk (spec §6): 0x80 triple, 0x81 half-triple, 0x01..0x40 RDPF of that
// depth, 0x00 end-of-stream. 0x82 extends this scheme for select triples
// and 0x83 for CDPFs; spec §4.3 names both as correlated-randomness kinds
// without pinning a byte, so we assign the next free values.
type FrameType byte

const (
	FrameEnd    FrameType = 0x00
	FrameTriple FrameType = 0x80
	FrameHalf   FrameType = 0x81
	FrameSelect FrameType = 0x82
	FrameCDPF   FrameType = 0x83
	// FrameRDPFDepth(d) for d in [1,0x40] identifies an RDPF of depth d.
)

// FrameRDPFDepth returns the frame type byte for an RDPF of the given
// depth (1..64, spec's 0x01..0x40 range covers depths up to 64).
func FrameRDPFDepth(depth int) FrameType {
	if depth < 1 || depth > 0x40 {
		panic(fmt.Sprintf("preproc: RDPF depth %d out of frameable range [1,64]", depth))
	}
	return FrameType(depth)
}

// DepthOf returns the RDPF depth a frame type encodes, and ok=false if ft
// is not an RDPF-depth frame.
func (ft FrameType) DepthOf() (depth int, ok bool) {
	if ft >= 0x01 && ft <= 0x40 {
		return int(ft), true
	}
	return 0, false
}

// FileName returns the on-disk name for a record file, following spec
// §4.3/§6: "<prefix>.p<player%10>.t<threadnum>". depth is only
// meaningful (and appended) for KindRDPF.
func FileName(kind Kind, playerNum, thread, depth int) string {
	prefix := string(kind)
	if kind == KindRDPF {
		prefix = fmt.Sprintf("%s%d", kind, depth)
	}
	return fmt.Sprintf("%s.p%d.t%d", prefix, playerNum%10, thread)
}
