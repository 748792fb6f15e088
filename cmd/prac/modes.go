package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/luxfi/duoram3pc/internal/avl"
	"github.com/luxfi/duoram3pc/internal/cdpf"
	"github.com/luxfi/duoram3pc/internal/coro"
	"github.com/luxfi/duoram3pc/internal/duoram"
	"github.com/luxfi/duoram3pc/internal/heap"
	"github.com/luxfi/duoram3pc/internal/mpc"
	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/rdpf"
	"github.com/luxfi/duoram3pc/internal/shares"
	"github.com/luxfi/duoram3pc/internal/xhash"
)

// modeFunc is one CLI mode's body for a single worker of a computational
// party. P2 has nothing to do online (its entire contribution is
// materialized during -p preprocessing; see DESIGN.md), so runPrac
// returns early for party.P2 before ever calling a modeFunc.
type modeFunc func(ctx *mpc.Ctx, args []string) (report, error)

// report is the small, mode-specific summary printed (or --json-encoded)
// after a mode finishes.
type report struct {
	Mode     string        `cbor:"mode"`
	Elapsed  time.Duration `cbor:"elapsed_ns"`
	Detail   string        `cbor:"detail"`
	ClockEnd uint64        `cbor:"clock_end"`
}

var modeTable = map[string]modeFunc{
	"test":        modeTest,
	"lamporttest": modeLamportTest,
	"rdpftest":    modeRDPFTest,
	"rdpftime":    modeRDPFTime,
	"evaltime":    modeEvalTime,
	"tupletime":   modeTupleTime,
	"cdpftest":    modeCDPFTest,
	"cmptest":     modeCDPFTest,
	"duotest":     modeDuoTest,
	"sorttest":    modeSortTest,
	"bsearch":     modeBSearch,
	"heap":        modeHeap,
	"avl":         modeAVL,
}

// runOneShot drives a single coroutine for one worker through to
// completion, flushing its transport on every yield (spec §5's
// run_coroutines, specialized to the single-coroutine-per-process shape
// a real multi-process deployment has: coordination with the remote
// peer happens over the network, not via a local multi-coroutine
// scheduler).
func runOneShot(ctx *mpc.Ctx, fn func(h *coro.Handle) error) error {
	h := coro.Go(fn)
	return coro.RunCoroutines([]*coro.Handle{h}, func() { ctx.IO.Send() })
}

func modeTest(ctx *mpc.Ctx, args []string) (report, error) {
	start := time.Now()
	var x, y, z shares.AS
	err := runOneShot(ctx, func(h *coro.Handle) error {
		ctx.H = h
		x = shares.NewAS(7, ctx.W)
		y = shares.NewAS(6, ctx.W)
		var err error
		z, err = ctx.Mul(x, y)
		if err != nil {
			return err
		}
		f := shares.BS(0) // public 1: one party's share carries it
		if ctx.Self == party.P0 {
			f = 1
		}
		z, err = ctx.Select(f, x, z)
		return err
	})
	if err != nil {
		return report{}, err
	}
	return report{Mode: "test", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("local share z=%v", z),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}

func modeLamportTest(ctx *mpc.Ctx, args []string) (report, error) {
	start := time.Now()
	tr := xhash.New()
	err := runOneShot(ctx, func(h *coro.Handle) error {
		ctx.H = h
		msg := []byte("lamport")
		ctx.IO.QueuePeer(msg)
		tr.RecordSend(msg)
		h.Yield()
		got, err := ctx.IO.RecvPeer(len(msg))
		if err != nil {
			return err
		}
		tr.RecordRecv(got)
		return nil
	})
	if err != nil {
		return report{}, err
	}
	digest := tr.Sum()
	return report{Mode: "lamporttest", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("transcript=%x clock=%d", digest[:8], tr.Clock()),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}

func parseDepth(args []string, def int) int {
	if len(args) > 0 {
		if d, err := strconv.Atoi(args[0]); err == nil {
			return d
		}
	}
	return def
}

func modeRDPFTest(ctx *mpc.Ctx, args []string) (report, error) {
	depth := parseDepth(args, 8)
	start := time.Now()
	var target, scaled shares.XS
	var myShare shares.XS
	var leafAt uint64
	err := runOneShot(ctx, func(h *coro.Handle) error {
		ctx.H = h
		myShare = shares.NewXS(0, ctx.W)
		if err := myShare.Randomize(depth); err != nil {
			return err
		}
		target = myShare
		scaled = shares.NewXS(0, ctx.W)
		if err := scaled.Randomize(int(ctx.W)); err != nil {
			return err
		}
		if _, err := rdpf.Gen(ctx, depth, target, scaled); err != nil {
			return err
		}
		leafAt = myShare.V & ((uint64(1) << uint(depth)) - 1)
		return nil
	})
	if err != nil {
		return report{}, err
	}
	return report{Mode: "rdpftest", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("depth=%d own-target-share=%v probe=%d", depth, myShare, leafAt),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}

func modeRDPFTime(ctx *mpc.Ctx, args []string) (report, error) {
	depth := parseDepth(args, 16)
	start := time.Now()
	err := runOneShot(ctx, func(h *coro.Handle) error {
		ctx.H = h
		target := shares.NewXS(0, ctx.W)
		if err := target.Randomize(depth); err != nil {
			return err
		}
		scaled := shares.NewXS(0, ctx.W)
		if err := scaled.Randomize(int(ctx.W)); err != nil {
			return err
		}
		_, err := rdpf.Gen(ctx, depth, target, scaled)
		return err
	})
	if err != nil {
		return report{}, err
	}
	return report{Mode: "rdpftime", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("generated one depth-%d RDPF in %s", depth, time.Since(start)),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}

func modeEvalTime(ctx *mpc.Ctx, args []string) (report, error) {
	depth := parseDepth(args, 16)
	start := time.Now()
	var evalDur time.Duration
	err := runOneShot(ctx, func(h *coro.Handle) error {
		ctx.H = h
		target := shares.NewXS(0, ctx.W)
		if err := target.Randomize(depth); err != nil {
			return err
		}
		scaled := shares.NewXS(0, ctx.W)
		if err := scaled.Randomize(int(ctx.W)); err != nil {
			return err
		}
		r, err := rdpf.Gen(ctx, depth, target, scaled)
		if err != nil {
			return err
		}
		evalStart := time.Now()
		cur := r.NewCursor()
		var x uint64
		for i := 0; i < (1<<uint(depth)) && i < 4096; i++ {
			cur.Eval(x)
			x++
		}
		evalDur = time.Since(evalStart)
		return nil
	})
	if err != nil {
		return report{}, err
	}
	return report{Mode: "evaltime", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("streaming-evaluated up to 4096 leaves of a depth-%d RDPF in %s", depth, evalDur),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}

func modeTupleTime(ctx *mpc.Ctx, args []string) (report, error) {
	depth := parseDepth(args, 10)
	start := time.Now()
	err := runOneShot(ctx, func(h *coro.Handle) error {
		ctx.H = h
		target := shares.NewXS(0, ctx.W)
		if err := target.Randomize(depth); err != nil {
			return err
		}
		db := shares.NewXS(0, ctx.W)
		bl := shares.NewXS(0, ctx.W)
		pe := shares.NewXS(0, ctx.W)
		_, err := rdpf.GenTriple(ctx, depth, target, db, bl, pe)
		return err
	})
	if err != nil {
		return report{}, err
	}
	return report{Mode: "tupletime", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("generated one depth-%d RDPFTriple in %s", depth, time.Since(start)),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}

func modeCDPFTest(ctx *mpc.Ctx, args []string) (report, error) {
	start := time.Now()
	var lt, eq, gt shares.BS
	err := runOneShot(ctx, func(h *coro.Handle) error {
		ctx.H = h
		c, err := cdpf.GenRandom(ctx, ctx.W)
		if err != nil {
			return err
		}
		diff := shares.NewAS(0, ctx.W)
		if err := diff.Randomize(int(ctx.W)); err != nil {
			return err
		}
		lt, eq, gt, err = c.Compare(ctx, diff)
		return err
	})
	if err != nil {
		return report{}, err
	}
	return report{Mode: "cdpftest", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("own compare-bit shares lt=%d eq=%d gt=%d", lt, eq, gt),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}

func modeDuoTest(ctx *mpc.Ctx, args []string) (report, error) {
	size := 16
	start := time.Now()
	var before, after []shares.AS
	err := runOneShot(ctx, func(h *coro.Handle) error {
		ctx.H = h
		d := duoram.New(ctx.Self, ctx.W, size, 1)
		flat := duoram.NewFlat(d)
		idx := shares.NewXS(0, ctx.W)
		if err := idx.Randomize(4); err != nil {
			return err
		}
		oi, err := duoram.NewOblivIndex(ctx, idx, size)
		if err != nil {
			return err
		}
		before, err = oi.Read(flat)
		if err != nil {
			return err
		}
		delta := shares.NewAS(0, ctx.W)
		if err := delta.Randomize(int(ctx.W)); err != nil {
			return err
		}
		if err := oi.Update(flat, []shares.AS{delta}); err != nil {
			return err
		}
		oi2, err := duoram.NewOblivIndex(ctx, idx, size)
		if err != nil {
			return err
		}
		after, err = oi2.Read(flat)
		return err
	})
	if err != nil {
		return report{}, err
	}
	return report{Mode: "duotest", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("own share before=%v after=%v", before, after),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}

func modeSortTest(ctx *mpc.Ctx, args []string) (report, error) {
	n := 8
	start := time.Now()
	data := make([]shares.AS, n)
	err := runOneShot(ctx, func(h *coro.Handle) error {
		ctx.H = h
		for i := range data {
			data[i] = shares.NewAS(0, ctx.W)
			if err := data[i].Randomize(int(ctx.W)); err != nil {
				return err
			}
		}
		return duoram.BitonicSort(ctx, data, true)
	})
	if err != nil {
		return report{}, err
	}
	return report{Mode: "sorttest", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("own post-sort shares=%v", data),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}

func modeBSearch(ctx *mpc.Ctx, args []string) (report, error) {
	depth := parseDepth(args, 4)
	n := 1 << uint(depth)
	start := time.Now()
	var result shares.AS
	err := runOneShot(ctx, func(h *coro.Handle) error {
		ctx.H = h
		d := duoram.New(ctx.Self, ctx.W, n, 1)
		for i := 0; i < n; i++ {
			v := shares.NewAS(0, ctx.W)
			if err := v.Randomize(int(ctx.W)); err != nil {
				return err
			}
			d.SetExplicit(i, []shares.AS{v})
		}
		flat := duoram.NewFlat(d)
		target := shares.NewAS(0, ctx.W)
		if err := target.Randomize(int(ctx.W)); err != nil {
			return err
		}
		var err error
		result, err = duoram.ObliviousBinarySearch(ctx, flat, target)
		return err
	})
	if err != nil {
		return report{}, err
	}
	return report{Mode: "bsearch", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("own index share=%v", result),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}

// heapArgs parses `-m max -d depth -i ins -e ext -opt {0,1} -s {0,1}`
// (spec §6).
type heapArgs struct {
	max, depth, ins, ext int
	optimized, shared    bool
}

func parseHeapArgs(args []string) heapArgs {
	ha := heapArgs{max: 1024, depth: 10, ins: 8, ext: 4}
	for i := 0; i+1 < len(args); i += 2 {
		v := args[i+1]
		switch args[i] {
		case "-m":
			ha.max, _ = strconv.Atoi(v)
		case "-d":
			ha.depth, _ = strconv.Atoi(v)
		case "-i":
			ha.ins, _ = strconv.Atoi(v)
		case "-e":
			ha.ext, _ = strconv.Atoi(v)
		case "-opt":
			ha.optimized = v == "1"
		case "-s":
			ha.shared = v == "1"
		}
	}
	return ha
}

func modeHeap(ctx *mpc.Ctx, args []string) (report, error) {
	ha := parseHeapArgs(args)
	start := time.Now()
	h := heap.New(ctx.Self, ctx.W, ha.max)
	var mins []shares.AS
	err := runOneShot(ctx, func(handle *coro.Handle) error {
		ctx.H = handle
		for i := 0; i < ha.ins; i++ {
			v := shares.NewAS(0, ctx.W)
			if err := v.Randomize(int(ctx.W)); err != nil {
				return err
			}
			if ha.optimized {
				if err := h.InsertOptimized(ctx, v); err != nil {
					return err
				}
			} else if err := h.Insert(ctx, v); err != nil {
				return err
			}
		}
		for i := 0; i < ha.ext && i < ha.ins; i++ {
			m, err := h.ExtractMin(ctx)
			if err != nil {
				return err
			}
			mins = append(mins, m)
		}
		return nil
	})
	if err != nil {
		return report{}, err
	}
	return report{Mode: "heap", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("inserted=%d extracted=%d own-min-shares=%v", ha.ins, len(mins), mins),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}

func modeAVL(ctx *mpc.Ctx, args []string) (report, error) {
	depth := 10
	items := 16
	if len(args) > 0 {
		depth = parseDepth(args, depth)
	}
	if len(args) > 1 {
		if v, err := strconv.Atoi(args[1]); err == nil {
			items = v
		}
	}
	capacity := (1 << uint(depth))
	start := time.Now()
	tree := avl.New(ctx.Self, ctx.W, capacity)
	var found []shares.BS
	err := runOneShot(ctx, func(h *coro.Handle) error {
		ctx.H = h
		for i := 0; i < items; i++ {
			k := shares.NewAS(0, ctx.W)
			if err := k.Randomize(int(ctx.W)); err != nil {
				return err
			}
			v := shares.NewAS(0, ctx.W)
			if err := v.Randomize(int(ctx.W)); err != nil {
				return err
			}
			if err := tree.Insert(ctx, k, v); err != nil {
				return err
			}
			_, f, err := tree.Lookup(ctx, k)
			if err != nil {
				return err
			}
			found = append(found, f)
		}
		return nil
	})
	if err != nil {
		return report{}, err
	}
	return report{Mode: "avl", Elapsed: time.Since(start),
		Detail:   fmt.Sprintf("inserted=%d own-found-bit-shares=%v", items, found),
		ClockEnd: ctx.IO.Clock().Value()}, nil
}
