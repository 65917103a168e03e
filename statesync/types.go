// Package statesync implements the pull-based, dependency-tracked,
// priority-ordered scheduler that drives fast sync of a state trie: given
// a target root hash, it computes every trie node and code blob
// transitively reachable from it and hands them to storage in an order
// that never writes a node before all of its children are durable.
package statesync

import "github.com/ethereum/go-ethereum/common"

// RequestKind distinguishes the three things a PendingRequest can be
// waiting on.
type RequestKind uint8

const (
	// StateNode is a node belonging to the account (root) trie.
	StateNode RequestKind = iota
	// StorageNode is a node belonging to a per-account storage trie.
	StorageNode
	// Code is a contract bytecode blob, not a trie node.
	Code
)

func (k RequestKind) String() string {
	switch k {
	case StateNode:
		return "state-node"
	case StorageNode:
		return "storage-node"
	case Code:
		return "code"
	default:
		return "unknown"
	}
}

// maxMptTrieDepth is used as the depth of account-leaf fan-out requests
// (code, storage root) so they sort ahead of everything else in the
// queue: finishing a leaf's dependents quickly lets its bookkeeping
// record drain from active as soon as possible.
const maxMptTrieDepth = 64

// PendingRequest is the bookkeeping record for one hash that is known to
// be needed but not yet flushed to storage.
type PendingRequest struct {
	Hash    common.Hash
	Data    []byte // nil until a response has been accepted
	Kind    RequestKind
	Parents []common.Hash
	Depth   int
	Deps    int // unresolved children spawned by this request
}

// Response is one reply the driver feeds back into the scheduler: the
// hash that was requested, and the raw bytes the network returned for it.
type Response struct {
	Hash common.Hash
	Data []byte
}

// batchEntry is a committed-but-not-yet-flushed write.
type batchEntry struct {
	Data []byte
	Kind RequestKind
}

// State is the pure data the scheduler operates on: the set of requests
// still being tracked, the priority order in which missing hashes should
// be handed to the driver, and the writes waiting on a Flush. Callers are
// expected to treat a *Scheduler as owned by a single logical actor, the
// same discipline go-ethereum applies to its own StateDB mutation model,
// rather than the copy-on-every-mutation style the spec's pseudocode uses.
type State struct {
	active map[common.Hash]*PendingRequest
	queue  *requestQueue
	batch  map[common.Hash]batchEntry
}
