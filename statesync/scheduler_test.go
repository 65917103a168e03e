package statesync

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MitchellTesla/mantis/mpt"
	"github.com/MitchellTesla/mantis/statestore"
)

func newTestScheduler(t *testing.T, root common.Hash) (*Scheduler, statestore.Adapter) {
	t.Helper()
	store := statestore.NewKVAdapter(memorydb.New())
	sched, err := Init(store, root, nil)
	require.NoError(t, err)
	require.NotNil(t, sched)
	return sched, store
}

func accountLeafWith(t *testing.T, key []byte, codeHash, storageRoot common.Hash) []byte {
	t.Helper()
	acc := mpt.Account{
		Nonce:       3,
		Balance:     uint256.NewInt(77),
		StorageRoot: storageRoot,
		CodeHash:    codeHash,
	}
	accRLP, err := mpt.EncodeAccount(acc)
	require.NoError(t, err)
	leaf, err := mpt.EncodeLeaf(key, accRLP)
	require.NoError(t, err)
	return leaf
}

// --- §8 boundary cases ---

func TestInitEmptyTrieRootIsNoOp(t *testing.T) {
	store := statestore.NewKVAdapter(memorydb.New())
	sched, err := Init(store, EmptyRootHash, nil)
	require.NoError(t, err)
	assert.Nil(t, sched)
}

func TestInitAlreadyInStoreIsNoOp(t *testing.T) {
	store := statestore.NewKVAdapter(memorydb.New())
	root := common.HexToHash("0xdeadbeef")
	require.NoError(t, store.PutMptNode(root, []byte("already have it"), 1))

	sched, err := Init(store, root, nil)
	require.NoError(t, err)
	assert.Nil(t, sched)
}

func TestCodeResponseWithEmptyBytesCommits(t *testing.T) {
	root := common.HexToHash("0x01")
	codeHash := common.HexToHash("0x02")
	sched, _ := newTestScheduler(t, root)
	sched.TakeMissing(1)

	leaf := accountLeafWith(t, []byte{1, 2}, codeHash, EmptyRootHash)
	require.NoError(t, sched.ProcessResponses([]Response{{Hash: root, Data: leaf}}))
	require.Equal(t, 1, sched.MissingCount())

	sched.TakeMissing(1)
	require.NoError(t, sched.ProcessResponses([]Response{{Hash: codeHash, Data: []byte{}}}))
	assert.Equal(t, 0, sched.PendingCount())
	assert.Equal(t, 0, sched.MissingCount())
}

func TestEmptyAccountLeafProducesNoChildren(t *testing.T) {
	root := common.HexToHash("0x01")
	sched, _ := newTestScheduler(t, root)
	sched.TakeMissing(1)

	leaf := accountLeafWith(t, []byte{1, 2}, EmptyCodeHash, EmptyRootHash)
	require.NoError(t, sched.ProcessResponses([]Response{{Hash: root, Data: leaf}}))
	assert.Equal(t, 0, sched.PendingCount())
	assert.Equal(t, 0, sched.MissingCount())
}

// --- §8 concrete scenarios ---

// S1: single leaf, empty account.
func TestScenarioS1SingleLeafEmptyAccount(t *testing.T) {
	root := common.HexToHash("0x01")
	sched, store := newTestScheduler(t, root)

	hashes := sched.TakeMissing(1)
	require.Equal(t, []common.Hash{root}, hashes)

	leaf := accountLeafWith(t, []byte{5, 6}, EmptyCodeHash, EmptyRootHash)
	require.NoError(t, sched.ProcessResponses([]Response{{Hash: root, Data: leaf}}))

	assert.Equal(t, 0, sched.MissingCount())
	assert.Equal(t, 0, sched.PendingCount())

	require.NoError(t, sched.Flush(100))
	has, err := store.HasMptNode(root)
	require.NoError(t, err)
	assert.True(t, has)
}

// S2: leaf with code, empty storage.
func TestScenarioS2LeafWithCode(t *testing.T) {
	root := common.HexToHash("0x01")
	codeHash := common.HexToHash("0xc0de")
	sched, store := newTestScheduler(t, root)

	sched.TakeMissing(1)
	leaf := accountLeafWith(t, []byte{1}, codeHash, EmptyRootHash)
	require.NoError(t, sched.ProcessResponses([]Response{{Hash: root, Data: leaf}}))

	assert.Equal(t, 1, sched.MissingCount(), "the code request")
	assert.Equal(t, 1, sched.PendingCount(), "the root, waiting on the code dependency")

	sched.TakeMissing(1)
	require.NoError(t, sched.ProcessResponses([]Response{{Hash: codeHash, Data: []byte{0xde, 0xad}}}))

	assert.Equal(t, 0, sched.PendingCount())
	assert.Equal(t, 0, sched.MissingCount())

	require.NoError(t, sched.Flush(1))
	hasNode, err := store.HasMptNode(root)
	require.NoError(t, err)
	hasCode, err := store.HasCode(codeHash)
	require.NoError(t, err)
	assert.True(t, hasNode)
	assert.True(t, hasCode)
}

// S3: root is a branch with two HashRef children, each a leaf with no
// code/storage.
func TestScenarioS3BranchFanout(t *testing.T) {
	root := common.HexToHash("0x01")
	sched, _ := newTestScheduler(t, root)

	sched.TakeMissing(1)

	leafA, err := mpt.EncodeLeaf([]byte{1, 2}, mustEncodeAccount(t))
	require.NoError(t, err)
	leafB, err := mpt.EncodeLeaf([]byte{3, 4}, mustEncodeAccount(t))
	require.NoError(t, err)
	hashA := common.HexToHash("0xaa")
	hashB := common.HexToHash("0xbb")

	var children mpt.BranchChildren
	children[0] = hashA
	children[1] = hashB
	branch, err := mpt.EncodeBranch(children, nil)
	require.NoError(t, err)

	require.NoError(t, sched.ProcessResponses([]Response{{Hash: root, Data: branch}}))
	assert.Equal(t, 2, sched.MissingCount())
	assert.Equal(t, 1, sched.PendingCount())

	dispatched := sched.TakeMissing(2)
	assert.ElementsMatch(t, []common.Hash{hashA, hashB}, dispatched)

	require.NoError(t, sched.ProcessResponses([]Response{{Hash: hashA, Data: leafA}}))
	assert.Equal(t, 1, sched.PendingCount(), "root still waiting, deps=1")

	require.NoError(t, sched.ProcessResponses([]Response{{Hash: hashB, Data: leafB}}))
	assert.Equal(t, 0, sched.PendingCount())
	assert.Equal(t, 0, sched.MissingCount())
}

func mustEncodeAccount(t *testing.T) []byte {
	t.Helper()
	raw, err := mpt.EncodeAccount(mpt.Account{
		Nonce:       0,
		Balance:     uint256.NewInt(0),
		StorageRoot: EmptyRootHash,
		CodeHash:    EmptyCodeHash,
	})
	require.NoError(t, err)
	return raw
}

// S4: two separate branch children reference the same subtree hash.
func TestScenarioS4SharedSubtree(t *testing.T) {
	root := common.HexToHash("0x01")
	sched, _ := newTestScheduler(t, root)
	sched.TakeMissing(1)

	shared := common.HexToHash("0x5ec1300000000000000000000000000000000000000000000000000000000")

	var children mpt.BranchChildren
	children[0] = shared
	children[1] = shared
	branch, err := mpt.EncodeBranch(children, nil)
	require.NoError(t, err)

	require.NoError(t, sched.ProcessResponses([]Response{{Hash: root, Data: branch}}))

	// Exactly one active entry for the shared hash, with both parents.
	req, ok := sched.state.active[shared]
	require.True(t, ok)
	assert.Equal(t, []common.Hash{root, root}, req.Parents, "duplicate parent occurrences must both be recorded")

	// Exactly one fetch is issued — taking missing once drains it, and a
	// second take should not find it again.
	hashes := sched.TakeAllMissing()
	assert.Equal(t, []common.Hash{shared}, hashes)
	assert.Equal(t, 0, sched.MissingCount())

	leaf := mustEncodeAccount(t)
	leafNode, err := mpt.EncodeLeaf([]byte{9}, leaf)
	require.NoError(t, err)
	require.NoError(t, sched.ProcessResponses([]Response{{Hash: shared, Data: leafNode}}))

	// root's Parents list on the shared child has two entries, so a
	// single commit of the shared child decrements root's deps twice,
	// driving it to zero and cascading the root's own commit.
	assert.Equal(t, 0, sched.PendingCount())
	assert.Equal(t, 0, sched.MissingCount())
}

// S5: malformed node delivered for an active StateNode request.
func TestScenarioS5MalformedNode(t *testing.T) {
	root := common.HexToHash("0x01")
	sched, _ := newTestScheduler(t, root)
	sched.TakeMissing(1)

	err := sched.ProcessResponses([]Response{{Hash: root, Data: []byte{0xff, 0xff, 0xff}}})
	require.Error(t, err)

	var critical *CriticalError
	require.ErrorAs(t, err, &critical)
	assert.ErrorIs(t, err, ErrCannotDecodeMPTNode)

	// State is unchanged: root is still active, still missing.
	_, ok := sched.state.active[root]
	assert.True(t, ok)
}

// S6: unsolicited response for a hash never requested.
func TestScenarioS6UnsolicitedResponse(t *testing.T) {
	root := common.HexToHash("0x01")
	sched, _ := newTestScheduler(t, root)

	before := sched.PendingCount()
	err := sched.ProcessResponses([]Response{{Hash: common.HexToHash("0x9e7e7000000000000000000000000000000000000000000000000000000000"), Data: []byte("x")}})
	require.NoError(t, err, "non-critical errors are absorbed, never surfaced")
	assert.Equal(t, before, sched.PendingCount())
}

func TestAlreadyProcessedIsNonCritical(t *testing.T) {
	root := common.HexToHash("0x01")
	sched, _ := newTestScheduler(t, root)

	leaf := accountLeafWith(t, []byte{1}, EmptyCodeHash, EmptyRootHash)
	require.NoError(t, sched.ProcessResponses([]Response{{Hash: root, Data: leaf}}))

	// ErrAlreadyProcessed only fires while a request is still active
	// with data already set, so exercise it via a node with a pending
	// dependency rather than a fully-committed leaf.
	codeHash := common.HexToHash("0xc0de")
	sched2, _ := newTestScheduler(t, root)
	sched2.TakeMissing(1)
	withCode := accountLeafWith(t, []byte{1}, codeHash, EmptyRootHash)
	require.NoError(t, sched2.ProcessResponses([]Response{{Hash: root, Data: withCode}}))

	err := sched2.ProcessResponses([]Response{{Hash: root, Data: withCode}})
	require.NoError(t, err)
}

// --- §8 quantified invariants ---

// Invariant 2: a hash in active is never simultaneously in queue and
// "removed from queue" — and every hash in queue is in active.
func TestInvariantQueueSubsetOfActive(t *testing.T) {
	root := common.HexToHash("0x01")
	sched, _ := newTestScheduler(t, root)

	// root is in both active and queue right after Init.
	assert.Equal(t, 1, len(sched.state.active))
	assert.Equal(t, 1, sched.state.queue.Len())

	sched.TakeMissing(1)
	// now in active but not queue.
	assert.Equal(t, 1, len(sched.state.active))
	assert.Equal(t, 0, sched.state.queue.Len())
}

// Invariant 5: scheduling the same hash twice with different parent
// lists yields one active entry whose parents is the concatenation, and
// no duplicate fetch is issued.
func TestInvariantDuplicateScheduleMergesParents(t *testing.T) {
	root := common.HexToHash("0x01")
	sched, _ := newTestScheduler(t, root)
	sched.state.queue.PopN(sched.state.queue.Len()) // drain root out, simulate in-flight

	h := common.HexToHash("0x42")
	p1 := common.HexToHash("0xf1")
	p2 := common.HexToHash("0xf2")
	sched.schedule(&PendingRequest{Hash: h, Kind: StateNode, Parents: []common.Hash{p1}, Depth: 3})
	sched.schedule(&PendingRequest{Hash: h, Kind: StateNode, Parents: []common.Hash{p2}, Depth: 3})

	require.Len(t, sched.state.active, 2) // root + h
	req := sched.state.active[h]
	assert.Equal(t, []common.Hash{p1, p2}, req.Parents)
	assert.Equal(t, 1, sched.state.queue.Len(), "h was pushed to the queue exactly once")
}

func TestDependenciesNeverNegative(t *testing.T) {
	root := common.HexToHash("0x01")
	sched, _ := newTestScheduler(t, root)
	sched.TakeMissing(1)

	leaf := accountLeafWith(t, []byte{1}, EmptyCodeHash, EmptyRootHash)
	require.NoError(t, sched.ProcessResponses([]Response{{Hash: root, Data: leaf}}))
	assert.Equal(t, 0, sched.PendingCount())
}

func TestExtensionDepthUsesSharedKeyLength(t *testing.T) {
	root := common.HexToHash("0x01")
	sched, _ := newTestScheduler(t, root)
	sched.TakeMissing(1)

	child := common.HexToHash("0xc1")
	key := []byte{1, 2, 3, 4, 5} // 5 nibbles
	ext, err := mpt.EncodeExtension(key, child)
	require.NoError(t, err)

	require.NoError(t, sched.ProcessResponses([]Response{{Hash: root, Data: ext}}))
	req, ok := sched.state.active[child]
	require.True(t, ok)
	assert.Equal(t, len(key), req.Depth)
}
