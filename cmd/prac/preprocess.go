package main

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/preproc"
	"github.com/luxfi/duoram3pc/internal/shares"
	"github.com/luxfi/duoram3pc/internal/transport"
)

// wordBytes returns the byte width of one value_t at width w.
func wordBytes(w shares.Width) int { return int(w) / 8 }

func randWord(w shares.Width) uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	v := binary.LittleEndian.Uint64(buf[:])
	if w == 64 {
		return v
	}
	return v & ((uint64(1) << uint(w)) - 1)
}

// genTripleShares produces one multiplication-triple record pair
// satisfying Z0+Z1 = (X0+X1)*(Y0+Y1), one 3-word record per party.
func genTripleShares(w shares.Width) (p0, p1 []byte) {
	x0, x1 := randWord(w), randWord(w)
	y0, y1 := randWord(w), randWord(w)
	x := shares.NewAS(x0, w)
	x.Add(shares.NewAS(x1, w))
	y := shares.NewAS(y0, w)
	y.Add(shares.NewAS(y1, w))
	z := x
	z.Mul(y)
	z0 := shares.NewAS(randWord(w), w)
	z1 := z
	z1.Sub(z0)

	p0 = shares.WriteASTriple(nil, shares.NewAS(x0, w), shares.NewAS(y0, w), z0)
	p1 = shares.WriteASTriple(nil, shares.NewAS(x1, w), shares.NewAS(y1, w), z1)
	return p0, p1
}

// genHalfShares produces one half-triple record pair (spec §4.3: X0*Y1 =
// Z0+Z1, one operand cleartext-held by the other party).
func genHalfShares(w shares.Width) (p0, p1 []byte) {
	a := shares.NewAS(randWord(w), w)
	b := shares.NewAS(randWord(w), w)
	prod := a
	prod.Mul(b)
	z0 := shares.NewAS(randWord(w), w)
	z1 := prod
	z1.Sub(z0)

	p0 = append(shares.WriteAS(nil, a), shares.WriteAS(nil, z0)...)
	p1 = append(shares.WriteAS(nil, b), shares.WriteAS(nil, z1)...)
	return p0, p1
}

// genSelectShares produces one select-triple record pair: a boolean
// AND-triple (a,b,c=a&b) laid out like a multiplication triple, used by
// reconstruct_choice (spec §4.4, §4.6).
func genSelectShares(w shares.Width) (p0, p1 []byte) {
	a0 := shares.NewAS(randWord(w)&1, w)
	a1 := shares.NewAS(randWord(w)&1, w)
	b0 := shares.NewAS(randWord(w), w)
	b1 := shares.NewAS(randWord(w), w)

	a := a0.V ^ a1.V
	b := b0.V ^ b1.V
	var c uint64
	if a&1 == 1 {
		c = b
	}
	c0 := shares.NewAS(randWord(w), w)
	c1 := shares.NewAS(c^c0.V, w)

	p0 = shares.WriteASTriple(nil, a0, b0, c0)
	p1 = shares.WriteASTriple(nil, a1, b1, c1)
	return p0, p1
}

// preprocessOpts configures one -p invocation.
type preprocessOpts struct {
	width      shares.Width
	count      int
	threads    int
	outDir     string
	compressed bool
}

// runPreprocessServer is P2's half of -p mode: generate count records of
// each kind per worker and stream them, framed per spec §6 (type byte,
// 4-byte count, then records; 0x00 terminates), to both computational
// parties over the already-established per-worker server links.
func runPreprocessServer(sess *session, opts preprocessOpts) error {
	for w, io := range sess.ios {
		if err := streamBurstsToParty(io, party.P0, opts); err != nil {
			return fmt.Errorf("prac: preprocess worker %d -> P0: %w", w, err)
		}
		if err := streamBurstsToParty(io, party.P1, opts); err != nil {
			return fmt.Errorf("prac: preprocess worker %d -> P1: %w", w, err)
		}
	}
	return nil
}

func streamBurstsToParty(io *transport.MPCIO, target party.ID, opts preprocessOpts) error {
	var buf []byte
	buf = appendBurst(buf, preproc.FrameTriple, opts.count, func(i int) []byte {
		p0, p1 := genTripleShares(opts.width)
		if target == party.P0 {
			return p0
		}
		return p1
	})
	buf = appendBurst(buf, preproc.FrameHalf, opts.count, func(i int) []byte {
		p0, p1 := genHalfShares(opts.width)
		if target == party.P0 {
			return p0
		}
		return p1
	})
	buf = appendBurst(buf, preproc.FrameSelect, opts.count, func(i int) []byte {
		p0, p1 := genSelectShares(opts.width)
		if target == party.P0 {
			return p0
		}
		return p1
	})
	buf = append(buf, byte(preproc.FrameEnd))
	io.QueueServer(buf, target)
	io.Send()
	return nil
}

func appendBurst(buf []byte, ft preproc.FrameType, count int, gen func(int) []byte) []byte {
	var hdr [5]byte
	hdr[0] = byte(ft)
	binary.LittleEndian.PutUint32(hdr[1:], uint32(count))
	buf = append(buf, hdr[:]...)
	for i := 0; i < count; i++ {
		buf = append(buf, gen(i)...)
	}
	return buf
}

// runPreprocessClient is a computational party's half of -p mode: read
// framed bursts off its server link and append each record, in producer
// order, to the per-(kind,worker) file (spec §4.3's
// "<kind>.p<player%10>.t<threadnum>").
func runPreprocessClient(self party.ID, sess *session, opts preprocessOpts) error {
	recSizeTriple := 3 * wordBytes(opts.width)
	recSizeHalf := 2 * wordBytes(opts.width)

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("prac: mkdir %s: %w", opts.outDir, err)
	}

	for w, io := range sess.ios {
		writers := map[preproc.Kind]*preproc.Writer{}
		open := func(kind preproc.Kind, recSize int) (*preproc.Writer, error) {
			if wr, ok := writers[kind]; ok {
				return wr, nil
			}
			path := filepath.Join(opts.outDir, preproc.FileName(kind, int(self), w, 0))
			wr, err := preproc.OpenWriter(path, recSize, opts.compressed)
			if err != nil {
				return nil, err
			}
			writers[kind] = wr
			return wr, nil
		}

		for {
			b, err := io.RecvServer(1)
			if err != nil {
				return fmt.Errorf("prac: worker %d read burst type: %w", w, err)
			}
			ft := preproc.FrameType(b[0])
			if ft == preproc.FrameEnd {
				break
			}
			countBuf, err := io.RecvServer(4)
			if err != nil {
				return fmt.Errorf("prac: worker %d read burst count: %w", w, err)
			}
			count := int(binary.LittleEndian.Uint32(countBuf))

			var kind preproc.Kind
			var recSize int
			switch ft {
			case preproc.FrameTriple:
				kind, recSize = preproc.KindTriple, recSizeTriple
			case preproc.FrameHalf:
				kind, recSize = preproc.KindHalf, recSizeHalf
			case preproc.FrameSelect:
				kind, recSize = preproc.KindSelect, recSizeTriple
			default:
				return fmt.Errorf("prac: worker %d unknown burst type %#x", w, byte(ft))
			}
			wr, err := open(kind, recSize)
			if err != nil {
				return fmt.Errorf("prac: worker %d open %s file: %w", w, kind, err)
			}
			for i := 0; i < count; i++ {
				rec, err := io.RecvServer(recSize)
				if err != nil {
					return fmt.Errorf("prac: worker %d read %s record %d/%d: %w", w, kind, i, count, err)
				}
				if err := wr.Write(rec); err != nil {
					return fmt.Errorf("prac: worker %d write %s record: %w", w, kind, err)
				}
			}
		}

		for kind, wr := range writers {
			if err := wr.Close(); err != nil {
				return fmt.Errorf("prac: worker %d close %s file: %w", w, kind, err)
			}
		}
	}
	return nil
}
