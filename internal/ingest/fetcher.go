package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/fall-guy/volquery/internal/ingest/store"
	"github.com/fall-guy/volquery/internal/ledger"
)

const (
	fetchBatchSizeDefault = 32
	fetchIntervalDefault  = 5 * time.Second
)

// Fetcher keeps the block table in step with the ledger: it affirms a row for
// every height the ledger reports and retrieves missing block bodies with a
// bounded set of in-flight requests, newest heights first. Failed fetches are
// dropped and picked up again on the next pass. The fetcher only ever writes
// the found/block/tx_count columns; ingestion owns the ingested flag.
type Fetcher struct {
	store     store.BlockStore
	ledger    LedgerClient
	logger    *slog.Logger
	batchSize int
	interval  time.Duration

	workersWg sync.WaitGroup
	ctx       context.Context
	cancelAll func()
}

func WithFetchBatchSize(n int) func(*Fetcher) {
	return func(f *Fetcher) {
		f.batchSize = n
	}
}

func WithFetchInterval(d time.Duration) func(*Fetcher) {
	return func(f *Fetcher) {
		f.interval = d
	}
}

func NewFetcher(logger *slog.Logger, blockStore store.BlockStore, ledgerClient LedgerClient, opts ...func(*Fetcher)) *Fetcher {
	ctx, cancel := context.WithCancel(context.Background())

	f := &Fetcher{
		store:     blockStore,
		ledger:    ledgerClient,
		logger:    logger.With(slog.String("module", "block-fetcher")),
		batchSize: fetchBatchSizeDefault,
		interval:  fetchIntervalDefault,

		ctx:       ctx,
		cancelAll: cancel,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Start runs fetch passes with fixed-delay rescheduling: the next pass is
// timed from the end of the previous one, so slow upstream responses throttle
// the loop naturally.
func (f *Fetcher) Start() {
	f.workersWg.Add(1)

	go func() {
		defer f.workersWg.Done()

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-f.ctx.Done():
				return
			case <-timer.C:
				err := f.RunPass(f.ctx)
				if err != nil {
					f.logger.Error("fetch pass failed", slog.String("err", err.Error()))
				}
				timer.Reset(f.interval)
			}
		}
	}()
}

func (f *Fetcher) GracefulStop() {
	f.cancelAll()
	f.workersWg.Wait()
}

type fetchResult struct {
	height uint64
	err    error
}

// RunPass drains all currently missing blocks, topping the in-flight set back
// up to the batch size after every completion, and returns once nothing is
// left to fetch.
func (f *Fetcher) RunPass(ctx context.Context) error {
	inFlight := make(map[uint64]struct{}, f.batchSize)
	failed := make(map[uint64]struct{})
	results := make(chan fetchResult)

	for {
		err := f.affirmLedgerHeights(ctx)
		if err != nil {
			return err
		}

		if len(inFlight) < f.batchSize {
			heights, err := f.store.BlocksToFetch(ctx, f.batchSize)
			if err != nil {
				return err
			}

			for _, height := range heights {
				if len(inFlight) >= f.batchSize {
					break
				}
				if _, ok := inFlight[height]; ok {
					continue
				}
				if _, ok := failed[height]; ok {
					// already failed this pass; retry on the next one
					continue
				}

				inFlight[height] = struct{}{}
				height := height
				go func() {
					err := f.fetchBlock(ctx, height)
					select {
					case results <- fetchResult{height: height, err: err}:
					case <-ctx.Done():
					}
				}()
			}
		}

		if len(inFlight) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case result := <-results:
			delete(inFlight, result.height)
			if result.err != nil {
				// leave the height not found; the next pass retries it
				failed[result.height] = struct{}{}
				f.logger.Warn("failed to fetch block", slog.Uint64("height", result.height), slog.String("err", result.err.Error()))
			}
		}
	}
}

func (f *Fetcher) affirmLedgerHeights(ctx context.Context) error {
	consensus, err := f.ledger.GetConsensus(ctx)
	if err != nil {
		return err
	}

	return f.store.AffirmBlockHeights(ctx, consensus.Height)
}

func (f *Fetcher) fetchBlock(ctx context.Context, height uint64) error {
	block, err := f.ledger.GetBlock(ctx, height)
	if err != nil {
		return err
	}

	body, err := decodeBlockBody([]byte(block.Body))
	if err != nil {
		return err
	}

	raw, err := json.Marshal(block)
	if err != nil {
		return err
	}

	return f.store.MarkBlockFound(ctx, height, raw, uint64(len(body.Transactions)))
}

// raw block payloads round-trip through the store as ledger.Block JSON
func decodeStoredBlock(raw []byte) (*ledger.Block, error) {
	var block ledger.Block
	err := json.Unmarshal(raw, &block)
	if err != nil {
		return nil, err
	}

	return &block, nil
}
