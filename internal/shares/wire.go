package shares

import (
	"encoding/binary"
	"fmt"
	"io"
)

// wireSize returns the number of bytes a share of width w occupies on the
// wire: 4 for Width32, 8 for Width64.
func (w Width) wireSize() int {
	return int(w) / 8
}

// WriteAS appends the fixed-width little-endian encoding of a to buf.
func WriteAS(buf []byte, a AS) []byte {
	return appendWord(buf, a.V, a.W)
}

// WriteXS appends the fixed-width little-endian encoding of x to buf.
func WriteXS(buf []byte, x XS) []byte {
	return appendWord(buf, x.V, x.W)
}

// WriteBS appends a single byte (0 or 1) to buf.
func WriteBS(buf []byte, b BS) []byte {
	return append(buf, byte(b&1))
}

func appendWord(buf []byte, v uint64, w Width) []byte {
	switch w {
	case Width32:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(v))
		return append(buf, tmp[:]...)
	case Width64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], v)
		return append(buf, tmp[:]...)
	default:
		panic(fmt.Sprintf("shares: unsupported width %d", w))
	}
}

// ReadAS decodes an AS of width w from the front of r, returning the
// remaining bytes.
func ReadAS(r []byte, w Width) (AS, []byte, error) {
	v, rest, err := readWord(r, w)
	if err != nil {
		return AS{}, nil, err
	}
	return NewAS(v, w), rest, nil
}

// ReadXS decodes an XS of width w from the front of r, returning the
// remaining bytes.
func ReadXS(r []byte, w Width) (XS, []byte, error) {
	v, rest, err := readWord(r, w)
	if err != nil {
		return XS{}, nil, err
	}
	return NewXS(v, w), rest, nil
}

// ReadBS decodes a single bit-share byte from the front of r.
func ReadBS(r []byte) (BS, []byte, error) {
	if len(r) < 1 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return BS(r[0] & 1), r[1:], nil
}

func readWord(r []byte, w Width) (uint64, []byte, error) {
	n := w.wireSize()
	if len(r) < n {
		return 0, nil, io.ErrUnexpectedEOF
	}
	switch w {
	case Width32:
		return uint64(binary.LittleEndian.Uint32(r[:4])), r[4:], nil
	case Width64:
		return binary.LittleEndian.Uint64(r[:8]), r[8:], nil
	default:
		return 0, nil, fmt.Errorf("shares: unsupported width %d", w)
	}
}

// WriteASTriple concatenates the wire encodings of three AS values in
// order — the layout used for multiplication-triple records.
func WriteASTriple(buf []byte, x, y, z AS) []byte {
	buf = WriteAS(buf, x)
	buf = WriteAS(buf, y)
	buf = WriteAS(buf, z)
	return buf
}

// ReadASTriple decodes three consecutive AS values of width w.
func ReadASTriple(r []byte, w Width) (x, y, z AS, rest []byte, err error) {
	x, r, err = ReadAS(r, w)
	if err != nil {
		return
	}
	y, r, err = ReadAS(r, w)
	if err != nil {
		return
	}
	z, r, err = ReadAS(r, w)
	rest = r
	return
}
