// Command prac is the CLI entrypoint for the three-party runtime (spec
// §6): it dispatches player_num/mode_args to the preprocessing server or
// to one of the online test/benchmark modes, after establishing the
// fixed-port TCP+smux topology between P0, P1, and P2.
//
// Per spec §1, command-line dispatch and argument parsing are explicitly
// out of scope for the protocol core — this package is the thin external
// collaborator the spec assumes exists, wired directly to internal/.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"

	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/shares"
)

var (
	flagPreprocess bool
	flagThreads    int
	flagCompressed bool
	flagXORShared  bool
	flagWidth      int
	flagDir        string
	flagCount      int
	flagJSON       bool
)

func main() {
	root := &cobra.Command{
		Use:   "prac player_num [p0_addr [p1_addr]] mode [mode_args...]",
		Short: "three-party Duoram runtime: preprocessing server and online test/benchmark modes",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runPrac,
	}
	root.Flags().BoolVarP(&flagPreprocess, "preprocess", "p", false, "run in preprocessing mode")
	root.Flags().IntVarP(&flagThreads, "threads", "t", 1, "number of worker threads")
	root.Flags().BoolVarP(&flagCompressed, "compressed", "c", false, "snappy-compress the preprocessing record files (DPF storage and leaf expansion are unchanged)")
	root.Flags().BoolVarP(&flagXORShared, "xor-db", "x", false, "use XOR-shared DB where supported (accepted; AVL's pointer arrays are already XS, see DESIGN.md)")
	root.Flags().IntVar(&flagWidth, "width", 64, "ring width in bits (32 or 64)")
	root.Flags().StringVar(&flagDir, "dir", "./prac-preproc", "preprocessing file directory")
	root.Flags().IntVar(&flagCount, "count", 4096, "records of each kind to generate per worker in -p mode")
	root.Flags().BoolVar(&flagJSON, "json", false, "emit the mode report as JSON instead of plain text")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "prac:", err)
		os.Exit(1)
	}
}

func runPrac(cmd *cobra.Command, args []string) error {
	playerNum, err := parsePlayerNum(args[0])
	if err != nil {
		return err
	}
	self := party.ID(playerNum)

	rest := args[1:]
	var p0Addr, p1Addr string
	switch self {
	case party.P0:
		// no addresses: P0 only accepts.
	case party.P1:
		if len(rest) < 1 {
			return fmt.Errorf("player 1 requires p0_addr")
		}
		p0Addr, rest = rest[0], rest[1:]
	case party.P2:
		if len(rest) < 2 {
			return fmt.Errorf("player 2 requires p0_addr p1_addr")
		}
		p0Addr, p1Addr, rest = rest[0], rest[1], rest[2:]
	default:
		return fmt.Errorf("player_num must be 0, 1, or 2")
	}

	w := shares.Width(flagWidth)
	if w != shares.Width32 && w != shares.Width64 {
		return fmt.Errorf("--width must be 32 or 64")
	}

	sess, err := buildSession(self, p0Addr, p1Addr, flagThreads)
	if err != nil {
		return err
	}
	defer sess.Close()

	if flagPreprocess {
		opts := preprocessOpts{width: w, count: flagCount, threads: flagThreads, outDir: flagDir, compressed: flagCompressed}
		if self == party.P2 {
			return runPreprocessServer(sess, opts)
		}
		return runPreprocessClient(self, sess, opts)
	}

	if len(rest) < 1 {
		return fmt.Errorf("online mode requires a mode name")
	}
	modeName, modeArgs := rest[0], rest[1:]

	if self == party.P2 {
		// The server's entire contribution is materialized during -p
		// preprocessing (see DESIGN.md's RDPF/RDPFTriple entries); it
		// has nothing further to do for any online mode.
		fmt.Fprintf(os.Stderr, "prac: player 2 has no online role for mode %q; exiting\n", modeName)
		return nil
	}

	fn, ok := modeTable[modeName]
	if !ok {
		return fmt.Errorf("unknown mode %q", modeName)
	}

	var rep report
	for worker, io := range sess.ios {
		ctx, err := loadCtx(self, io, w, flagDir, worker, flagCompressed)
		if err != nil {
			return fmt.Errorf("prac: load worker %d context: %w", worker, err)
		}
		rep, err = fn(ctx, modeArgs)
		if err != nil {
			return fmt.Errorf("prac: mode %q worker %d: %w", modeName, worker, err)
		}
	}

	return printReport(rep)
}

func parsePlayerNum(s string) (int, error) {
	switch s {
	case "0":
		return 0, nil
	case "1":
		return 1, nil
	case "2":
		return 2, nil
	default:
		return 0, fmt.Errorf("player_num must be 0, 1, or 2, got %q", s)
	}
}

func printReport(r report) error {
	if flagJSON {
		b, err := cbor.Marshal(r)
		if err != nil {
			return err
		}
		// Re-decode into a plain map for human-readable JSON on stdout;
		// the CBOR encoding itself is what spec §11's domain-stack entry
		// wires fxamacker/cbor to (machine-readable report output).
		var generic map[string]interface{}
		if err := cbor.Unmarshal(b, &generic); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(generic)
	}
	fmt.Printf("%s: %s (elapsed %s, clock %d)\n", r.Mode, r.Detail, r.Elapsed, r.ClockEnd)
	return nil
}
