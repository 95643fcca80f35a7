package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

func upsertTestAsset(t *testing.T, sut *SQL, asset *store.Asset) {
	t.Helper()
	require.NoError(t, sut.UpsertAsset(context.Background(), asset))
}

func stampIDs(stamps []*store.Asset) []string {
	ids := make([]string, 0, len(stamps))
	for _, stamp := range stamps {
		ids = append(ids, stamp.AssetID)
	}
	return ids
}

func int64Ptr(v int64) *int64 {
	return &v
}

func TestUpsertAsset(t *testing.T) {
	ctx := context.Background()
	sut := newTestStore(t)

	_, err := sut.GetAsset(ctx, "asset-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	upsertTestAsset(t, sut, &store.Asset{
		AssetID: "asset-1",
		Owner:   int64Ptr(4),
		Height:  100,
		StampOn: 100,
		Asset:   []byte(`{"name":"dragon"}`),
		Stamp:   []byte(`{"grade":"mint"}`),
	})

	asset, err := sut.GetAsset(ctx, "asset-1")
	require.NoError(t, err)
	require.NotNil(t, asset.Owner)
	assert.Equal(t, int64(4), *asset.Owner)
	assert.Equal(t, uint64(100), asset.Height)
	assert.True(t, asset.IsStamp())
	assert.JSONEq(t, `{"name":"dragon"}`, string(asset.Asset))

	// losing the owner and the stamp payload round-trips as NULL
	upsertTestAsset(t, sut, &store.Asset{
		AssetID:  "asset-1",
		Height:   150,
		StampOn:  100,
		StampOff: 150,
	})

	asset, err = sut.GetAsset(ctx, "asset-1")
	require.NoError(t, err)
	assert.Nil(t, asset.Owner)
	assert.Nil(t, asset.Stamp)
	assert.False(t, asset.IsStamp())
}

func TestAssetHeights(t *testing.T) {
	ctx := context.Background()
	sut := newTestStore(t)

	upsertTestAsset(t, sut, &store.Asset{AssetID: "asset-1", Height: 10})
	upsertTestAsset(t, sut, &store.Asset{AssetID: "asset-2", Height: 20})

	heights, err := sut.AssetHeights(ctx, []string{"asset-1", "asset-2", "asset-3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"asset-1": 10, "asset-2": 20}, heights)

	heights, err = sut.AssetHeights(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, heights)
}

func TestGetStamps(t *testing.T) {
	ctx := context.Background()
	sut := newTestStore(t)

	// the fresh-session snapshot height is the number of known blocks
	require.NoError(t, sut.AffirmBlockHeights(ctx, 200))

	// stamped at 100, still stamped
	upsertTestAsset(t, sut, &store.Asset{AssetID: "asset-current", Owner: int64Ptr(1), Height: 100, StampOn: 100})
	// stamped at 100, lost at 150
	upsertTestAsset(t, sut, &store.Asset{AssetID: "asset-lapsed", Owner: int64Ptr(2), Height: 150, StampOn: 100, StampOff: 150})
	// never stamped
	upsertTestAsset(t, sut, &store.Asset{AssetID: "asset-plain", Owner: int64Ptr(3), Height: 100})

	t.Run("fresh session sees current stamps only", func(t *testing.T) {
		result, err := sut.GetStamps(ctx, store.StampSearch{})
		require.NoError(t, err)
		assert.Equal(t, []string{"asset-current"}, stampIDs(result.Stamps))
		assert.Equal(t, uint64(200), result.Token.Height)
		require.NotNil(t, result.Total)
		assert.Equal(t, int64(1), *result.Total)
	})

	t.Run("historical snapshot includes later-lapsed stamps", func(t *testing.T) {
		token := store.StampToken{BaseUTC: "2025-06-01T00:00:00Z", Height: 120}
		result, err := sut.GetStamps(ctx, store.StampSearch{Token: &token})
		require.NoError(t, err)
		assert.Equal(t, []string{"asset-current", "asset-lapsed"}, stampIDs(result.Stamps))
		assert.Nil(t, result.Total)
	})

	t.Run("owner filters", func(t *testing.T) {
		token := store.StampToken{BaseUTC: "2025-06-01T00:00:00Z", Height: 120}

		result, err := sut.GetStamps(ctx, store.StampSearch{Token: &token, ExcludeOwner: int64Ptr(1)})
		require.NoError(t, err)
		assert.Equal(t, []string{"asset-lapsed"}, stampIDs(result.Stamps))

		result, err = sut.GetStamps(ctx, store.StampSearch{Token: &token, MatchOwner: int64Ptr(1)})
		require.NoError(t, err)
		assert.Equal(t, []string{"asset-current"}, stampIDs(result.Stamps))
	})

	t.Run("pagination", func(t *testing.T) {
		token := store.StampToken{BaseUTC: "2025-06-01T00:00:00Z", Height: 120}

		first, err := sut.GetStamps(ctx, store.StampSearch{Token: &token, Count: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"asset-current"}, stampIDs(first.Stamps))

		second, err := sut.GetStamps(ctx, store.StampSearch{Token: &token, Count: 1, Base: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"asset-lapsed"}, stampIDs(second.Stamps))
	})
}
