package syncer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/MitchellTesla/mantis/statesync"
)

// Fetcher retrieves the raw bytes for a batch of requested hashes from
// whatever transport the caller wires in (devp2p, a test double, or, in
// cmd/mantis-sync, an in-memory fake). A hash the fetcher could not
// satisfy is simply omitted from the result; the driver's next round
// will reschedule nothing on its own — a genuinely missing node is a
// peer-selection and retry concern, out of scope here per spec.
type Fetcher interface {
	Fetch(ctx context.Context, hashes []common.Hash) ([]statesync.Response, error)
}
