package syncer

// Config tunes the reference driver's dispatch behavior. Like the
// teacher's plain-struct configs (eth.Config, trie.Config), there is no
// file-loading layer here — callers construct one directly or start
// from DefaultConfig.
type Config struct {
	// BatchSize is the maximum number of hashes taken off the
	// scheduler's queue per round.
	BatchSize int
	// Workers is the number of concurrent fetch goroutines a round is
	// split across.
	Workers int
	// FlushEvery flushes the scheduler's batch to storage once every
	// FlushEvery rounds. A value of 1 flushes after every round.
	FlushEvery int
}

// DefaultConfig returns reasonable defaults for a single-peer sync.
func DefaultConfig() Config {
	return Config{
		BatchSize:  384,
		Workers:    8,
		FlushEvery: 1,
	}
}
