package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/fall-guy/volquery/internal/ingest/store"
	"github.com/fall-guy/volquery/internal/ledger"
)

const (
	assetFetchBatchSizeDefault = 32
	assetFetchRetriesDefault   = 5
	assetFetchBackoffDefault   = 2 * time.Second
)

var ErrAssetsUnresolved = errors.New("not all assets could be resolved")

// StampTracker maintains per-asset ownership and the stamp interval. An asset
// is a stamp while it is owned and carries a stamp payload; the transition
// heights are recorded as the half-open (stampOn, stampOff) pair, which is
// enough to answer both current and historical stamp queries.
type StampTracker struct {
	store     store.AssetStore
	ledger    LedgerClient
	logger    *slog.Logger
	batchSize int
	retries   uint64
	backoff   time.Duration
}

func WithAssetBatchSize(n int) func(*StampTracker) {
	return func(t *StampTracker) {
		t.batchSize = n
	}
}

func WithAssetFetchRetries(retries uint64, constantBackoff time.Duration) func(*StampTracker) {
	return func(t *StampTracker) {
		t.retries = retries
		t.backoff = constantBackoff
	}
}

func NewStampTracker(logger *slog.Logger, assetStore store.AssetStore, ledgerClient LedgerClient, opts ...func(*StampTracker)) *StampTracker {
	t := &StampTracker{
		store:     assetStore,
		ledger:    ledgerClient,
		logger:    logger.With(slog.String("module", "stamp-tracker")),
		batchSize: assetFetchBatchSizeDefault,
		retries:   assetFetchRetriesDefault,
		backoff:   assetFetchBackoffDefault,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Refresh brings the given assets up to date as of the given block height.
// Assets already refreshed at or past that height are skipped, which makes
// re-ingestion of a block a no-op here.
func (t *StampTracker) Refresh(ctx context.Context, assetIDs []string, height uint64) error {
	known, err := t.store.AssetHeights(ctx, assetIDs)
	if err != nil {
		return err
	}

	var pending []string
	for _, assetID := range assetIDs {
		storedHeight, ok := known[assetID]
		if ok && storedHeight >= height {
			continue
		}
		pending = append(pending, assetID)
	}
	if len(pending) == 0 {
		return nil
	}

	resolved, err := t.resolveAssets(ctx, pending, height)
	if err != nil {
		return err
	}

	for _, assetID := range pending {
		err = t.applyRefresh(ctx, resolved[assetID], height)
		if err != nil {
			return err
		}
	}

	return nil
}

// resolveAssets fetches asset info in bounded concurrent batches, retrying
// with constant backoff until every ID has produced a result or the retry
// budget is spent.
func (t *StampTracker) resolveAssets(ctx context.Context, assetIDs []string, height uint64) (map[string]*ledger.AssetInfo, error) {
	resolved := make(map[string]*ledger.AssetInfo, len(assetIDs))
	var mu sync.Mutex

	operation := func() error {
		var remaining []string
		mu.Lock()
		for _, assetID := range assetIDs {
			if _, ok := resolved[assetID]; !ok {
				remaining = append(remaining, assetID)
			}
		}
		mu.Unlock()
		if len(remaining) == 0 {
			return nil
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(t.batchSize)

		for _, assetID := range remaining {
			assetID := assetID
			g.Go(func() error {
				info, err := t.ledger.GetAsset(gCtx, assetID, height)
				if err != nil {
					// leave the ID unresolved for the next attempt
					t.logger.Warn("failed to fetch asset", slog.String("assetID", assetID), slog.String("err", err.Error()))
					return nil
				}

				mu.Lock()
				resolved[assetID] = info
				mu.Unlock()
				return nil
			})
		}

		err := g.Wait()
		if err != nil {
			return err
		}

		mu.Lock()
		missing := len(assetIDs) - len(resolved)
		mu.Unlock()
		if missing > 0 {
			return errors.Join(ErrAssetsUnresolved, fmt.Errorf("%d of %d assets missing", missing, len(assetIDs)))
		}

		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(t.backoff), t.retries), ctx)

	err := backoff.Retry(operation, policy)
	if err != nil {
		return nil, err
	}

	return resolved, nil
}

func (t *StampTracker) applyRefresh(ctx context.Context, info *ledger.AssetInfo, height uint64) error {
	isStamp := info.Owner != nil && len(info.Stamp) > 0

	asset := &store.Asset{
		AssetID: info.AssetID,
		Owner:   info.Owner,
		Height:  height,
		Asset:   info.Asset,
		Stamp:   info.Stamp,
	}

	existing, err := t.store.GetAsset(ctx, info.AssetID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if existing == nil {
		if isStamp {
			asset.StampOn = height
		}
	} else {
		asset.StampOn = existing.StampOn
		asset.StampOff = existing.StampOff
		// only one interval boundary moves per refresh, and only on a status flip
		if isStamp != existing.IsStamp() {
			if isStamp {
				asset.StampOn = height
			} else {
				asset.StampOff = height
			}
		}
	}

	return t.store.UpsertAsset(ctx, asset)
}
