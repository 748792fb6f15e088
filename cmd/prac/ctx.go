package main

import (
	"fmt"
	"path/filepath"

	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/preproc"
	"github.com/luxfi/duoram3pc/internal/shares"
	"github.com/luxfi/duoram3pc/internal/transport"
)

// prefetch is how many records of each kind a freshly loaded queue is
// stocked with when backing an online mode from a preprocessing
// directory. Exhausting it mid-run is the fatal condition spec §7
// documents ("preprocessing exhaustion"); online test modes simply ask
// for more than any of them need.
const prefetch = 1 << 16

// loadCtx builds an mpc.Ctx for worker w of a computational party,
// draining its correlated-randomness files (written by a prior -p run
// out of dir) into in-memory queues.
func loadCtx(self party.ID, io *transport.MPCIO, w shares.Width, dir string, worker int, compressed bool) (*mpc.Ctx, error) {
	recSizeTriple := 3 * wordBytes(w)
	recSizeHalf := 2 * wordBytes(w)

	triples := preproc.NewQueue(recSizeTriple)
	halves := preproc.NewQueue(recSizeHalf)
	selects := preproc.NewQueue(recSizeTriple)

	if err := drainKind(dir, preproc.KindTriple, int(self), worker, recSizeTriple, compressed, triples); err != nil {
		return nil, err
	}
	if err := drainKind(dir, preproc.KindHalf, int(self), worker, recSizeHalf, compressed, halves); err != nil {
		return nil, err
	}
	if err := drainKind(dir, preproc.KindSelect, int(self), worker, recSizeTriple, compressed, selects); err != nil {
		return nil, err
	}

	return &mpc.Ctx{
		IO: io, W: w, Self: self,
		Triples: triples, Halves: halves, Selects: selects,
	}, nil
}

// drainKind loads up to `prefetch` records of kind from its file into q.
// A missing file leaves q empty — the first Pop against it then
// surfaces spec §7's "preprocessing exhaustion is fatal" naturally,
// exactly mirroring a real deployment that forgot to run -p first.
func drainKind(dir string, kind preproc.Kind, playerNum, worker, recSize int, compressed bool, q *preproc.Queue) error {
	path := filepath.Join(dir, preproc.FileName(kind, playerNum, worker, 0))
	r, err := preproc.OpenReader(path, recSize, compressed)
	if err != nil {
		return nil // no file yet; Pop() will fail loudly when actually needed.
	}
	defer r.Close()
	if _, err := q.DrainFrom(r, prefetch); err != nil {
		return fmt.Errorf("prac: drain %s: %w", kind, err)
	}
	return nil
}
