// Command mantis-sync is a smoke-test harness for the state-sync
// scheduler: it builds a tiny two-account fixture trie in memory, wires
// a fake "network" that serves nodes from it, and drives a fresh
// in-memory store to convergence through syncer.Driver. It does not
// speak devp2p and is not a production sync client.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/MitchellTesla/mantis/mpt"
	"github.com/MitchellTesla/mantis/statestore"
	"github.com/MitchellTesla/mantis/statesync"
	"github.com/MitchellTesla/mantis/syncer"
)

func main() {
	app := &cli.App{
		Name:  "mantis-sync",
		Usage: "drive the state-sync scheduler against an in-memory fixture trie",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Value: syncer.DefaultConfig().Workers, Usage: "concurrent fetch workers"},
			&cli.IntFlag{Name: "batch-size", Value: syncer.DefaultConfig().BatchSize, Usage: "hashes taken per round"},
			&cli.Uint64Flag{Name: "block", Value: 1, Usage: "block number tag for flushed nodes"},
			&cli.BoolFlag{Name: "verbose", Usage: "debug-level logging"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mantis-sync:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, levelFor(c.Bool("verbose")), true))

	net := newFixtureNetwork()
	root := net.buildTwoAccountTrie()

	store := statestore.NewKVAdapter(memorydb.New())
	sched, err := statesync.Init(store, root, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if sched == nil {
		logger.Info("nothing to sync", "root", root)
		return nil
	}

	cfg := syncer.Config{
		BatchSize:  c.Int("batch-size"),
		Workers:    c.Int("workers"),
		FlushEvery: 1,
	}
	driver := syncer.NewDriver(sched, net, cfg, logger)

	logger.Info("starting sync", "root", root, "workers", cfg.Workers, "batchSize", cfg.BatchSize)
	if err := driver.Run(context.Background(), c.Uint64("block")); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	logger.Info("sync complete", "root", root)
	return nil
}

func levelFor(verbose bool) slog.Level {
	if verbose {
		return log.LevelDebug
	}
	return log.LevelInfo
}

// fixtureNetwork is an in-memory, hardcoded "peer": buildTwoAccountTrie
// fills its blobs map with the raw bytes of every node (RLP) and code
// blob of a small fixture trie, keyed by the hash each is requested under.
type fixtureNetwork struct {
	blobs map[common.Hash][]byte
}

func newFixtureNetwork() *fixtureNetwork {
	return &fixtureNetwork{blobs: make(map[common.Hash][]byte)}
}

func (n *fixtureNetwork) Fetch(_ context.Context, hashes []common.Hash) ([]statesync.Response, error) {
	out := make([]statesync.Response, 0, len(hashes))
	for _, h := range hashes {
		if data, ok := n.blobs[h]; ok {
			out = append(out, statesync.Response{Hash: h, Data: data})
		}
	}
	return out, nil
}

// buildTwoAccountTrie wires a root branch with one plain account leaf
// and one contract account leaf (with nonzero code), and returns the
// root hash.
func (n *fixtureNetwork) buildTwoAccountTrie() common.Hash {
	codeHash := common.HexToHash("0xfeedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedfa")
	n.blobs[codeHash] = []byte{0x60, 0x00, 0x60, 0x00} // PUSH1 0x00 PUSH1 0x00

	contractAcc := mustEncodeAccount(mpt.Account{
		Nonce:       1,
		Balance:     uint256.NewInt(1_000_000),
		StorageRoot: statesync.EmptyRootHash,
		CodeHash:    codeHash,
	})
	contractHash := common.HexToHash("0xc0ffee00000000000000000000000000000000000000000000000000000000")
	n.blobs[contractHash] = mustEncodeLeaf([]byte{1, 2, 3}, contractAcc)

	walletAcc := mustEncodeAccount(mpt.Account{
		Nonce:       42,
		Balance:     uint256.NewInt(5_000_000_000),
		StorageRoot: statesync.EmptyRootHash,
		CodeHash:    statesync.EmptyCodeHash,
	})
	walletHash := common.HexToHash("0xba1a0000000000000000000000000000000000000000000000000000000000")
	n.blobs[walletHash] = mustEncodeLeaf([]byte{4, 5, 6}, walletAcc)

	var children mpt.BranchChildren
	children[0] = contractHash
	children[1] = walletHash
	branch, err := mpt.EncodeBranch(children, nil)
	if err != nil {
		panic(err)
	}

	root := common.HexToHash("0x5ca1ab1e00000000000000000000000000000000000000000000000000000")
	n.blobs[root] = branch
	return root
}

func mustEncodeAccount(acc mpt.Account) []byte {
	raw, err := mpt.EncodeAccount(acc)
	if err != nil {
		panic(err)
	}
	return raw
}

func mustEncodeLeaf(key, value []byte) []byte {
	raw, err := mpt.EncodeLeaf(key, value)
	if err != nil {
		panic(err)
	}
	return raw
}
