package preproc

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
)

// Writer appends fixed-size records to a preprocessing file. Records are
// written in producer order; Writer is not safe for concurrent use, in
// line with the spec's single-producer-per-worker model.
type Writer struct {
	f       *os.File
	w       io.Writer
	snappyW *snappy.Writer
	recSize int
}

// OpenWriter creates (or truncates) the file for kind at path, optionally
// wrapping writes in a snappy stream when compressed is true.
func OpenWriter(path string, recSize int, compressed bool) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("preproc: create %s: %w", path, err)
	}
	w := &Writer{f: f, recSize: recSize}
	if compressed {
		w.snappyW = snappy.NewBufferedWriter(f)
		w.w = w.snappyW
	} else {
		w.w = bufio.NewWriter(f)
	}
	return w, nil
}

// Write appends one record. len(rec) must equal the writer's record size.
func (w *Writer) Write(rec []byte) error {
	if len(rec) != w.recSize {
		return fmt.Errorf("preproc: record size %d, want %d", len(rec), w.recSize)
	}
	_, err := w.w.Write(rec)
	return err
}

// Close flushes buffered data and closes the underlying file.
func (w *Writer) Close() error {
	if w.snappyW != nil {
		if err := w.snappyW.Close(); err != nil {
			return err
		}
	} else if bw, ok := w.w.(*bufio.Writer); ok {
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return w.f.Close()
}

// Reader pops fixed-size records from a preprocessing file in producer
// order, matching spec §4.3's "pops one record of the right kind from
// the relevant per-worker queue." Exhausting the file is fatal (spec §7:
// "attempting to consume a triple/CDPF that the store did not provide is
// fatal").
type Reader struct {
	f       *os.File
	r       io.Reader
	snappyR *snappy.Reader
	recSize int
}

// OpenReader opens an existing preprocessing file for sequential
// consumption.
func OpenReader(path string, recSize int, compressed bool) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("preproc: open %s: %w", path, err)
	}
	r := &Reader{f: f, recSize: recSize}
	if compressed {
		r.snappyR = snappy.NewReader(f)
		r.r = r.snappyR
	} else {
		r.r = bufio.NewReader(f)
	}
	return r, nil
}

// Pop reads and returns the next record, or a fatal error if the store is
// exhausted or corrupt.
func (r *Reader) Pop() ([]byte, error) {
	buf := make([]byte, r.recSize)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("preproc: store exhausted: %w", err)
		}
		return nil, fmt.Errorf("preproc: read record: %w", err)
	}
	return buf, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
