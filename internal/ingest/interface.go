package ingest

import (
	"context"

	"github.com/fall-guy/volquery/internal/ledger"
)

// LedgerClient is the upstream ledger node contract. Implemented by
// internal/ledger; tests substitute fakes.
type LedgerClient interface {
	GetConsensus(ctx context.Context) (*ledger.Consensus, error)
	GetBlock(ctx context.Context, height uint64) (*ledger.Block, error)
	GetOffer(ctx context.Context, identifier string, atHeight uint64) (*ledger.Offer, error)
	GetAccount(ctx context.Context, accountID string, atHeight uint64) (*ledger.Account, error)
	GetAsset(ctx context.Context, assetID string, atHeight uint64) (*ledger.AssetInfo, error)
}
