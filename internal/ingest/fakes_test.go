package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fall-guy/volquery/internal/ledger"
)

// fakeLedger substitutes the upstream node; unset functions report not found.
type fakeLedger struct {
	getConsensusFunc func(ctx context.Context) (*ledger.Consensus, error)
	getBlockFunc     func(ctx context.Context, height uint64) (*ledger.Block, error)
	getOfferFunc     func(ctx context.Context, identifier string, atHeight uint64) (*ledger.Offer, error)
	getAccountFunc   func(ctx context.Context, accountID string, atHeight uint64) (*ledger.Account, error)
	getAssetFunc     func(ctx context.Context, assetID string, atHeight uint64) (*ledger.AssetInfo, error)
}

func (f *fakeLedger) GetConsensus(ctx context.Context) (*ledger.Consensus, error) {
	if f.getConsensusFunc == nil {
		return nil, ledger.ErrNotFound
	}
	return f.getConsensusFunc(ctx)
}

func (f *fakeLedger) GetBlock(ctx context.Context, height uint64) (*ledger.Block, error) {
	if f.getBlockFunc == nil {
		return nil, ledger.ErrNotFound
	}
	return f.getBlockFunc(ctx, height)
}

func (f *fakeLedger) GetOffer(ctx context.Context, identifier string, atHeight uint64) (*ledger.Offer, error) {
	if f.getOfferFunc == nil {
		return nil, ledger.ErrNotFound
	}
	return f.getOfferFunc(ctx, identifier, atHeight)
}

func (f *fakeLedger) GetAccount(ctx context.Context, accountID string, atHeight uint64) (*ledger.Account, error) {
	if f.getAccountFunc == nil {
		return nil, ledger.ErrNotFound
	}
	return f.getAccountFunc(ctx, accountID, atHeight)
}

func (f *fakeLedger) GetAsset(ctx context.Context, assetID string, atHeight uint64) (*ledger.AssetInfo, error) {
	if f.getAssetFunc == nil {
		return nil, ledger.ErrNotFound
	}
	return f.getAssetFunc(ctx, assetID, atHeight)
}

// newLedgerBlock assembles a block whose body carries the given transaction
// bodies, inline in the bodyIn field.
func newLedgerBlock(t *testing.T, height uint64, txBodies ...string) *ledger.Block {
	t.Helper()

	envelopes := make([]map[string]json.RawMessage, 0, len(txBodies))
	for _, body := range txBodies {
		envelopes = append(envelopes, map[string]json.RawMessage{"bodyIn": json.RawMessage(body)})
	}

	body, err := json.Marshal(map[string]any{"transactions": envelopes})
	require.NoError(t, err)

	return &ledger.Block{Height: height, Body: string(body)}
}

// rawStoredBlock encodes a ledger block the way the fetcher persists it.
func rawStoredBlock(t *testing.T, block *ledger.Block) []byte {
	t.Helper()

	raw, err := json.Marshal(block)
	require.NoError(t, err)

	return raw
}
