// Package statestore defines the thin seam between the scheduler and the
// durable key-value store, and provides a concrete adapter over
// go-ethereum's ethdb.KeyValueStore.
package statestore

import "github.com/ethereum/go-ethereum/common"

// Adapter is the storage-layer collaborator the scheduler calls. It does
// not know about PendingRequest or SchedulerState; it only persists and
// answers existence probes for hashed blobs.
type Adapter interface {
	// GetMptNode retrieves a trie node's bytes, reporting whether it exists.
	GetMptNode(hash common.Hash) (data []byte, ok bool, err error)
	// GetCode retrieves a code blob's bytes, reporting whether it exists.
	GetCode(hash common.Hash) (data []byte, ok bool, err error)
	// PutMptNode durably writes a trie node, tagged with the block number
	// the state belongs to (used by the store for pruning/TTL purposes).
	PutMptNode(hash common.Hash, data []byte, blockNumber uint64) error
	// PutCode durably writes a code blob. Code is not tagged by block: it
	// is addressed purely by content hash and never pruned per-block.
	PutCode(hash common.Hash, data []byte) error
	// HasMptNode reports whether a trie node is already durable.
	HasMptNode(hash common.Hash) (bool, error)
	// HasCode reports whether a code blob is already durable.
	HasCode(hash common.Hash) (bool, error)
}
