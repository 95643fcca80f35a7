package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fall-guy/volquery/internal/ledger"
)

func TestStampTrackerRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("new stamped asset opens the interval", func(t *testing.T) {
		volStore := newTestStore(t)
		owner := int64(3)
		ledgerNode := &fakeLedger{
			getAssetFunc: func(_ context.Context, assetID string, atHeight uint64) (*ledger.AssetInfo, error) {
				assert.Equal(t, uint64(10), atHeight)
				return &ledger.AssetInfo{AssetID: assetID, Owner: &owner, Stamp: []byte(`{"grade":"mint"}`)}, nil
			},
		}
		sut := NewStampTracker(slog.Default(), volStore, ledgerNode)

		require.NoError(t, sut.Refresh(ctx, []string{"asset-1"}, 10))

		asset, err := volStore.GetAsset(ctx, "asset-1")
		require.NoError(t, err)
		assert.Equal(t, uint64(10), asset.StampOn)
		assert.True(t, asset.IsStamp())
	})

	t.Run("new plain asset stays outside the interval", func(t *testing.T) {
		volStore := newTestStore(t)
		owner := int64(3)
		ledgerNode := &fakeLedger{
			getAssetFunc: func(_ context.Context, assetID string, _ uint64) (*ledger.AssetInfo, error) {
				return &ledger.AssetInfo{AssetID: assetID, Owner: &owner}, nil
			},
		}
		sut := NewStampTracker(slog.Default(), volStore, ledgerNode)

		require.NoError(t, sut.Refresh(ctx, []string{"asset-1"}, 10))

		asset, err := volStore.GetAsset(ctx, "asset-1")
		require.NoError(t, err)
		assert.False(t, asset.IsStamp())
		assert.Equal(t, uint64(0), asset.StampOn)
	})

	t.Run("status flips move one boundary at a time", func(t *testing.T) {
		volStore := newTestStore(t)
		owner := int64(3)
		var stamped atomic.Bool
		stamped.Store(true)
		ledgerNode := &fakeLedger{
			getAssetFunc: func(_ context.Context, assetID string, _ uint64) (*ledger.AssetInfo, error) {
				info := &ledger.AssetInfo{AssetID: assetID, Owner: &owner}
				if stamped.Load() {
					info.Stamp = []byte(`{}`)
				}
				return info, nil
			},
		}
		sut := NewStampTracker(slog.Default(), volStore, ledgerNode)

		require.NoError(t, sut.Refresh(ctx, []string{"asset-1"}, 5))

		stamped.Store(false)
		require.NoError(t, sut.Refresh(ctx, []string{"asset-1"}, 8))

		asset, err := volStore.GetAsset(ctx, "asset-1")
		require.NoError(t, err)
		assert.Equal(t, uint64(5), asset.StampOn)
		assert.Equal(t, uint64(8), asset.StampOff)
		assert.False(t, asset.IsStamp())
		assert.True(t, asset.WasStampAt(7))

		// re-stamped later, the off boundary is kept
		stamped.Store(true)
		require.NoError(t, sut.Refresh(ctx, []string{"asset-1"}, 12))

		asset, err = volStore.GetAsset(ctx, "asset-1")
		require.NoError(t, err)
		assert.Equal(t, uint64(12), asset.StampOn)
		assert.Equal(t, uint64(8), asset.StampOff)
		assert.True(t, asset.IsStamp())
	})

	t.Run("assets already refreshed at the height are skipped", func(t *testing.T) {
		volStore := newTestStore(t)
		var fetches atomic.Int64
		owner := int64(3)
		ledgerNode := &fakeLedger{
			getAssetFunc: func(_ context.Context, assetID string, _ uint64) (*ledger.AssetInfo, error) {
				fetches.Add(1)
				return &ledger.AssetInfo{AssetID: assetID, Owner: &owner}, nil
			},
		}
		sut := NewStampTracker(slog.Default(), volStore, ledgerNode)

		require.NoError(t, sut.Refresh(ctx, []string{"asset-1"}, 10))
		require.NoError(t, sut.Refresh(ctx, []string{"asset-1"}, 10))
		require.NoError(t, sut.Refresh(ctx, []string{"asset-1"}, 9))

		assert.Equal(t, int64(1), fetches.Load())
	})

	t.Run("unresolvable assets fail the refresh after retries", func(t *testing.T) {
		volStore := newTestStore(t)
		var fetches atomic.Int64
		ledgerNode := &fakeLedger{
			getAssetFunc: func(_ context.Context, _ string, _ uint64) (*ledger.AssetInfo, error) {
				fetches.Add(1)
				return nil, errors.New("node hiccup")
			},
		}
		sut := NewStampTracker(slog.Default(), volStore, ledgerNode,
			WithAssetFetchRetries(2, time.Millisecond))

		err := sut.Refresh(ctx, []string{"asset-1"}, 10)
		require.ErrorIs(t, err, ErrAssetsUnresolved)
		assert.Equal(t, int64(3), fetches.Load())

		_, getErr := volStore.GetAsset(ctx, "asset-1")
		require.Error(t, getErr)
	})
}
