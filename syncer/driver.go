// Package syncer provides a reference driver that pumps a
// statesync.Scheduler against a Fetcher until the trie is fully
// retrieved. The scheduler itself is single-threaded and synchronous;
// this is where the "many parallel fetches, one serialized mutator"
// shape lives, in the style of go-ethereum's eth/downloader worker
// loops rather than a generic job-queue library.
package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/MitchellTesla/mantis/statesync"
)

// Driver repeatedly drains the scheduler's missing set, fans requests
// out across a worker pool, and folds the responses back in.
type Driver struct {
	cfg   Config
	sched *statesync.Scheduler
	fetch Fetcher
	log   log.Logger
}

// NewDriver builds a Driver. logger may be nil, in which case log.Root()
// is used.
func NewDriver(sched *statesync.Scheduler, fetch Fetcher, cfg Config, logger log.Logger) *Driver {
	if logger == nil {
		logger = log.Root()
	}
	return &Driver{cfg: cfg, sched: sched, fetch: fetch, log: logger}
}

// Run drives the scheduler to completion: each round takes the missing
// hashes, dispatches them across the worker pool, folds the responses
// back into the scheduler, and periodically flushes staged writes to
// storage, tagging them with blockNumber. Run returns when the queue
// is empty, or on the first error from a fetch round, scheduler
// critical error, or flush.
func (d *Driver) Run(ctx context.Context, blockNumber uint64) error {
	round := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hashes := d.sched.TakeMissing(d.cfg.BatchSize)
		if len(hashes) == 0 {
			break
		}

		responses, err := d.dispatch(ctx, hashes)
		if err != nil {
			return fmt.Errorf("syncer: fetch round failed: %w", err)
		}

		if err := d.sched.ProcessResponses(responses); err != nil {
			return fmt.Errorf("syncer: processing responses: %w", err)
		}

		round++
		d.log.Debug("sync round complete", "round", round, "fetched", len(responses),
			"missing", d.sched.MissingCount(), "pending", d.sched.PendingCount())

		if d.cfg.FlushEvery > 0 && round%d.cfg.FlushEvery == 0 {
			if err := d.sched.Flush(blockNumber); err != nil {
				return fmt.Errorf("syncer: flush: %w", err)
			}
		}
	}
	return d.sched.Flush(blockNumber)
}

// dispatch splits hashes across up to cfg.Workers goroutines, runs
// fetch.Fetch concurrently, and merges the results. The first error from
// any worker aborts the round; partial results from the others are
// discarded rather than partially folded in, so the scheduler's state
// never observes a half-completed round.
func (d *Driver) dispatch(ctx context.Context, hashes []common.Hash) ([]statesync.Response, error) {
	chunks := splitHashes(hashes, d.cfg.Workers)

	resCh := make(chan []statesync.Response, len(chunks))
	errCh := make(chan error, len(chunks))

	var wg sync.WaitGroup
	for _, chunk := range chunks {
		chunk := chunk
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := d.fetch.Fetch(ctx, chunk)
			if err != nil {
				errCh <- err
				return
			}
			resCh <- resp
		}()
	}
	wg.Wait()
	close(resCh)
	close(errCh)

	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}

	var out []statesync.Response
	for resp := range resCh {
		out = append(out, resp...)
	}
	return out, nil
}

// splitHashes divides hashes into at most workers contiguous chunks. It
// never returns an empty chunk: a workers value below 1 yields a single
// chunk, a value above len(hashes) yields one chunk per hash, and an
// empty hashes slice yields no chunks.
func splitHashes(hashes []common.Hash, workers int) [][]common.Hash {
	if workers < 1 {
		workers = 1
	}
	if workers > len(hashes) {
		workers = len(hashes)
	}
	if workers == 0 {
		return nil
	}
	size := (len(hashes) + workers - 1) / workers
	chunks := make([][]common.Hash, 0, workers)
	for i := 0; i < len(hashes); i += size {
		end := i + size
		if end > len(hashes) {
			end = len(hashes)
		}
		chunks = append(chunks, hashes[i:end])
	}
	return chunks
}
