package statesync

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/MitchellTesla/mantis/mpt"
	"github.com/MitchellTesla/mantis/statestore"
)

// EmptyRootHash is the canonical Keccak-256(RLP("")) root of an empty MPT.
var EmptyRootHash = common.HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

// EmptyCodeHash is Keccak-256 of the empty byte string, the code hash of
// an externally-owned account.
var EmptyCodeHash = common.HexToHash("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")

// Scheduler is the state-sync scheduler. Every exported method mutates
// the scheduler's own State value in place; by convention a Scheduler has
// exactly one logical owner, so this has the same observable behavior as
// the spec's "returns a new state" contract without the allocation cost
// of copying the active/queue/batch structures on every call.
type Scheduler struct {
	state State
	store statestore.Adapter
	log   log.Logger
}

// Init returns a Scheduler ready to sync targetRoot, or (nil, nil) if
// nothing needs to be fetched: targetRoot is the canonical empty-trie
// root, or the store already holds a node under targetRoot.
func Init(store statestore.Adapter, targetRoot common.Hash, logger log.Logger) (*Scheduler, error) {
	if targetRoot == EmptyRootHash {
		return nil, nil
	}
	has, err := store.HasMptNode(targetRoot)
	if err != nil {
		return nil, fmt.Errorf("statesync: probing store for root %s: %w", targetRoot, err)
	}
	if has {
		return nil, nil
	}
	if logger == nil {
		logger = log.Root()
	}
	s := &Scheduler{
		store: store,
		log:   logger,
		state: State{
			active: make(map[common.Hash]*PendingRequest),
			queue:  newRequestQueue(),
			batch:  make(map[common.Hash]batchEntry),
		},
	}
	s.schedule(&PendingRequest{Hash: targetRoot, Kind: StateNode, Depth: 0})
	return s, nil
}

// schedule enters req into active and queue, or, if req.Hash is already
// tracked, merges req's parents into the existing record instead of
// issuing a second fetch. Sharing in a content-addressed tree means the
// same hash can legitimately be discovered from more than one parent.
func (s *Scheduler) schedule(req *PendingRequest) {
	if existing, ok := s.state.active[req.Hash]; ok {
		existing.Parents = append(existing.Parents, req.Parents...)
		return
	}
	s.state.active[req.Hash] = req
	s.state.queue.Push(req)
}

// TakeMissing pops up to max hashes in descending-depth order. The
// entries remain in active, still awaiting a response.
func (s *Scheduler) TakeMissing(max int) []common.Hash {
	reqs := s.state.queue.PopN(max)
	hashes := make([]common.Hash, len(reqs))
	for i, r := range reqs {
		hashes[i] = r.Hash
	}
	return hashes
}

// TakeAllMissing is TakeMissing with max set to the entire queue.
func (s *Scheduler) TakeAllMissing() []common.Hash {
	return s.TakeMissing(s.state.queue.Len())
}

// ProcessResponses folds process over responses in order. The first
// CriticalError aborts the fold and is returned; any NotCriticalError is
// logged and discarded, and the fold continues with the same state.
func (s *Scheduler) ProcessResponses(responses []Response) error {
	for _, r := range responses {
		if err := s.processResponse(r); err != nil {
			var critical *CriticalError
			if errors.As(err, &critical) {
				return critical
			}
			s.log.Trace("discarding non-critical sync response", "hash", r.Hash, "err", err)
		}
	}
	return nil
}

func (s *Scheduler) processResponse(r Response) error {
	req, ok := s.state.active[r.Hash]
	if !ok {
		return &NotCriticalError{Err: fmt.Errorf("%w: %s", ErrNotRequested, r.Hash)}
	}
	if req.Data != nil {
		return &NotCriticalError{Err: fmt.Errorf("%w: %s", ErrAlreadyProcessed, r.Hash)}
	}

	if req.Kind == Code {
		req.Data = r.Data
		req.Deps = 0
		s.commit(req)
		return nil
	}

	node, err := mpt.DecodeNode(r.Data)
	if err != nil {
		return &CriticalError{Err: fmt.Errorf("%w: %s: %v", ErrCannotDecodeMPTNode, r.Hash, err)}
	}

	children, err := s.computeChildren(req, node)
	if err != nil {
		return err
	}

	var fresh []*PendingRequest
	for _, c := range children {
		known, err := s.isAlreadyKnown(c)
		if err != nil {
			return &CriticalError{Err: fmt.Errorf("statesync: checking store for %s: %w", c.Hash, err)}
		}
		if known {
			continue
		}
		fresh = append(fresh, c)
	}

	req.Data = r.Data
	if len(fresh) == 0 && req.Deps == 0 {
		s.commit(req)
		return nil
	}
	req.Deps = len(fresh)
	for _, c := range fresh {
		s.schedule(c)
	}
	return nil
}

// computeChildren derives the child requests a decoded node fans out to,
// given the kind and hash of the request that produced it.
func (s *Scheduler) computeChildren(req *PendingRequest, node mpt.Node) ([]*PendingRequest, error) {
	switch n := node.(type) {
	case mpt.LeafNode:
		if req.Kind == StorageNode {
			return nil, nil
		}
		acc, err := mpt.DecodeAccount(n.Value)
		if err != nil {
			return nil, &CriticalError{Err: fmt.Errorf("%w: %s: %v", ErrNotAccountLeafNode, req.Hash, err)}
		}
		var children []*PendingRequest
		if acc.CodeHash != EmptyCodeHash {
			children = append(children, &PendingRequest{
				Hash: acc.CodeHash, Kind: Code,
				Parents: []common.Hash{req.Hash}, Depth: maxMptTrieDepth,
			})
		}
		if acc.StorageRoot != EmptyRootHash {
			children = append(children, &PendingRequest{
				Hash: acc.StorageRoot, Kind: StorageNode,
				Parents: []common.Hash{req.Hash}, Depth: maxMptTrieDepth,
			})
		}
		return children, nil

	case mpt.BranchNode:
		var children []*PendingRequest
		for _, child := range n.Children {
			if child.Kind != mpt.ChildHashRef {
				continue
			}
			children = append(children, &PendingRequest{
				Hash: child.Hash, Kind: req.Kind,
				Parents: []common.Hash{req.Hash}, Depth: req.Depth + 1,
			})
		}
		return children, nil

	case mpt.ExtensionNode:
		if n.Next.Kind != mpt.ChildHashRef {
			return nil, nil
		}
		return []*PendingRequest{{
			Hash: n.Next.Hash, Kind: req.Kind,
			Parents: []common.Hash{req.Hash}, Depth: req.Depth + len(n.SharedKey),
		}}, nil

	default:
		// HashRefNode, EmptyNode: no children at the top level of a
		// response, handled defensively rather than as an error.
		return nil, nil
	}
}

// isAlreadyKnown reports whether candidate's hash is already durable or
// already staged for a durable write. It deliberately does not consult
// active: a hash already tracked there still needs to go through
// schedule() so its parent list merges correctly.
func (s *Scheduler) isAlreadyKnown(candidate *PendingRequest) (bool, error) {
	if _, ok := s.state.batch[candidate.Hash]; ok {
		return true, nil
	}
	if candidate.Kind == Code {
		return s.store.HasCode(candidate.Hash)
	}
	return s.store.HasMptNode(candidate.Hash)
}

// commit removes req from active, stages it in batch, and cascades: each
// parent has its dependency count decremented, and any parent that
// reaches zero dependencies (and already has data) commits in turn. A
// parent missing from active at this point means scheduling invariants
// were violated elsewhere; that is a programming error, not a runtime
// condition to recover from.
func (s *Scheduler) commit(req *PendingRequest) {
	delete(s.state.active, req.Hash)
	s.state.batch[req.Hash] = batchEntry{Data: req.Data, Kind: req.Kind}

	for _, parentHash := range req.Parents {
		parent, ok := s.state.active[parentHash]
		if !ok {
			panic(fmt.Sprintf("statesync: parent %s of %s missing from active at commit", parentHash, req.Hash))
		}
		parent.Deps--
		if parent.Deps < 0 {
			panic(fmt.Sprintf("statesync: negative dependency count on %s", parentHash))
		}
		if parent.Deps == 0 && parent.Data != nil {
			s.commit(parent)
		}
	}
}

// Flush drains batch into the storage adapter in arbitrary order —
// batch is a mapping, so the order within one flush call is immaterial —
// and empties it. blockNumber tags every trie node write.
func (s *Scheduler) Flush(blockNumber uint64) error {
	for hash, entry := range s.state.batch {
		var err error
		if entry.Kind == Code {
			err = s.store.PutCode(hash, entry.Data)
		} else {
			err = s.store.PutMptNode(hash, entry.Data, blockNumber)
		}
		if err != nil {
			return fmt.Errorf("statesync: flushing %s (%s): %w", hash, entry.Kind, err)
		}
		delete(s.state.batch, hash)
	}
	return nil
}

// PendingCount is the number of active requests that have received data
// but are still blocked on unresolved children — i.e. requests waiting on
// a commit cascade, not requests merely waiting to be dispatched (that is
// MissingCount) or already dispatched and awaiting a network reply (the
// driver tracks those itself).
func (s *Scheduler) PendingCount() int {
	n := 0
	for _, req := range s.state.active {
		if req.Data != nil {
			n++
		}
	}
	return n
}

// MissingCount is the number of hashes scheduled but not yet handed to
// the driver by TakeMissing/TakeAllMissing.
func (s *Scheduler) MissingCount() int {
	return s.state.queue.Len()
}
