package preproc

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveWorkerSeed expands one master seed into an independent 32-byte
// seed for (player, worker, kind), so the server can seed every worker's
// correlated-randomness generator deterministically from a single root
// of trust (e.g. a test harness that wants reproducible preprocessing)
// without every worker's randomness stream depending on the others'.
func DeriveWorkerSeed(master []byte, playerNum, worker int, kind Kind) ([32]byte, error) {
	info := []byte(fmt.Sprintf("duoram3pc-preproc|p%d|t%d|%s", playerNum, worker, kind))
	kdf := hkdf.New(sha256.New, master, nil, info)
	var out [32]byte
	if _, err := io.ReadFull(kdf, out[:]); err != nil {
		return out, fmt.Errorf("preproc: hkdf expand: %w", err)
	}
	return out, nil
}
