package preproc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteBurst frames a burst of count fixed-size records under type ft and
// writes it to w, matching spec §6's inline preprocessing framing: "1
// byte type, 4 bytes count, then count records".
func WriteBurst(w io.Writer, ft FrameType, recs [][]byte) error {
	var hdr [5]byte
	hdr[0] = byte(ft)
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(recs)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("preproc: write burst header: %w", err)
	}
	for _, r := range recs {
		if _, err := w.Write(r); err != nil {
			return fmt.Errorf("preproc: write burst record: %w", err)
		}
	}
	return nil
}

// WriteEnd writes the end-of-stream frame (type 0x00, no count/records).
func WriteEnd(w io.Writer) error {
	_, err := w.Write([]byte{byte(FrameEnd)})
	return err
}

// Burst is one decoded inline-preprocessing burst.
type Burst struct {
	Type    FrameType
	Records [][]byte
}

// ReadBurst reads one burst from r. recSizeFor maps a frame type to the
// fixed record size used for that kind (so the CDPF/RDPF/triple layers
// stay in control of their own record layouts). A FrameEnd burst has no
// records and recSizeFor is not consulted.
func ReadBurst(r io.Reader, recSizeFor func(FrameType) (int, error)) (Burst, error) {
	var typeByte [1]byte
	if _, err := io.ReadFull(r, typeByte[:]); err != nil {
		return Burst{}, fmt.Errorf("preproc: read burst type: %w", err)
	}
	ft := FrameType(typeByte[0])
	if ft == FrameEnd {
		return Burst{Type: ft}, nil
	}

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return Burst{}, fmt.Errorf("preproc: read burst count: %w", err)
	}
	count := binary.LittleEndian.Uint32(countBuf[:])

	recSize, err := recSizeFor(ft)
	if err != nil {
		return Burst{}, err
	}

	recs := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		rec := make([]byte, recSize)
		if _, err := io.ReadFull(r, rec); err != nil {
			return Burst{}, fmt.Errorf("preproc: read burst record %d/%d: %w", i, count, err)
		}
		recs = append(recs, rec)
	}
	return Burst{Type: ft, Records: recs}, nil
}
