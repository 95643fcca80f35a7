package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrFailedToOpenDB            = errors.New("failed to open database")
	ErrUnknownEngine             = errors.New("unknown database engine")
	ErrFailedToCreateSchema      = errors.New("failed to create schema")
	ErrFailedToAffirmBlocks      = errors.New("failed to affirm block rows")
	ErrFailedToMarkBlockFound    = errors.New("failed to mark block found")
	ErrFailedToMarkBlockIngested = errors.New("failed to mark block ingested")
	ErrFailedToAdvanceNonce      = errors.New("failed to advance nonce")
	ErrFailedToAffirmOffer       = errors.New("failed to affirm offer")
	ErrFailedToCloseOffer        = errors.New("failed to close offer")
	ErrFailedToUpsertAsset       = errors.New("failed to upsert asset")
	ErrFailedToResetIngest       = errors.New("failed to reset ingest")
)

// NonceClock is the logical clock guarding pagination snapshots. Both
// counters advance by exactly 1 per call, are persisted immediately and never
// roll back outside of ResetIngest. The ingest loop is the only writer.
type NonceClock interface {
	AdvanceOrigin(ctx context.Context) (uint64, error)
	AdvanceClosed(ctx context.Context) (uint64, error)
	Current(ctx context.Context) (Nonces, error)
}

type BlockStore interface {
	// AffirmBlockHeights lazily creates a row for every height below the
	// given ledger height.
	AffirmBlockHeights(ctx context.Context, ledgerHeight uint64) error
	// BlocksToFetch returns not-yet-found heights, newest first.
	BlocksToFetch(ctx context.Context, limit int) ([]uint64, error)
	MarkBlockFound(ctx context.Context, height uint64, rawBlock []byte, txCount uint64) error
	// NextUningestedBlock returns the lowest found, not yet ingested block
	// with at least one transaction, or ErrNotFound.
	NextUningestedBlock(ctx context.Context) (*Block, error)
	MarkBlockIngested(ctx context.Context, height uint64) error
	BlockCount(ctx context.Context) (uint64, error)
}

type OfferStore interface {
	// AffirmOffer ensures a row exists for the offer ID. Existing content is
	// never overwritten.
	AffirmOffer(ctx context.Context, offerID string) error
	// AffirmKnownOffer upserts the offer's content under the given origin
	// nonce and replaces its per-asset link rows.
	AffirmKnownOffer(ctx context.Context, offer *Offer, originNonce uint64) error
	CloseOffer(ctx context.Context, offerID string, reason string, closedNonce uint64) error
	GetOffer(ctx context.Context, offerID string) (*Offer, error)
	GetOffers(ctx context.Context, search OfferSearch) (*OfferSearchResult, error)
}

type AssetStore interface {
	GetAsset(ctx context.Context, assetID string) (*Asset, error)
	// AssetHeights returns the stored refresh height for each known ID;
	// unknown IDs are absent from the map.
	AssetHeights(ctx context.Context, assetIDs []string) (map[string]uint64, error)
	UpsertAsset(ctx context.Context, asset *Asset) error
	GetStamps(ctx context.Context, search StampSearch) (*StampSearchResult, error)
}

type Store interface {
	NonceClock
	BlockStore
	OfferStore
	AssetStore

	// ResetIngest drops all derived tables and indexes, recreates the schema
	// and marks every block as not ingested.
	ResetIngest(ctx context.Context) error
	GetStats(ctx context.Context) (*Stats, error)

	Ping(ctx context.Context) error
	Close() error
}
