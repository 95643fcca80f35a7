package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

const (
	ingestIntervalDefault     = 5 * time.Second
	accountCacheExpiryDefault = 24 * time.Hour
	accountCacheCleanup       = 1 * time.Hour
)

// Processor walks found, not yet ingested blocks in ascending height order
// and applies their transactions to derived state. It is the sole writer of
// offers, assets and the logical clock; a block is processed completely,
// including all outbound fetches it triggers, before the next one starts.
//
// An error aborts the current run without marking the block ingested, so the
// run is retried from the same block on the next cycle. Processing is
// at-least-once; every mutation below is safe to repeat.
type Processor struct {
	store    store.Store
	ledger   LedgerClient
	writer   *OfferWriter
	tracker  *StampTracker
	logger   *slog.Logger
	interval time.Duration

	// memoizes account name to account index; droppable without harm
	accounts *cache.Cache

	workersWg sync.WaitGroup
	ctx       context.Context
	cancelAll func()
}

func WithIngestInterval(d time.Duration) func(*Processor) {
	return func(p *Processor) {
		p.interval = d
	}
}

func WithStampTracker(tracker *StampTracker) func(*Processor) {
	return func(p *Processor) {
		p.tracker = tracker
	}
}

func NewProcessor(logger *slog.Logger, storeI store.Store, ledgerClient LedgerClient, opts ...func(*Processor)) *Processor {
	ctx, cancelAll := context.WithCancel(context.Background())

	p := &Processor{
		store:    storeI,
		ledger:   ledgerClient,
		writer:   NewOfferWriter(storeI, storeI),
		logger:   logger.With(slog.String("module", "ingester")),
		interval: ingestIntervalDefault,
		accounts: cache.New(accountCacheExpiryDefault, accountCacheCleanup),

		ctx:       ctx,
		cancelAll: cancelAll,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.tracker == nil {
		p.tracker = NewStampTracker(logger, storeI, ledgerClient)
	}

	return p
}

func (p *Processor) Start() {
	p.workersWg.Add(1)

	go func() {
		defer p.workersWg.Done()

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-p.ctx.Done():
				return
			case <-timer.C:
				err := p.RunPass(p.ctx)
				if err != nil {
					p.logger.Error("ingest pass aborted", slog.String("err", err.Error()))
				}
				timer.Reset(p.interval)
			}
		}
	}()
}

func (p *Processor) GracefulStop() {
	p.logger.Info("Shutting down")

	p.cancelAll()
	p.workersWg.Wait()

	p.logger.Info("Shutdown complete")
}

// RunPass ingests eligible blocks until none remain or one fails.
func (p *Processor) RunPass(ctx context.Context) error {
	for {
		block, err := p.store.NextUningestedBlock(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}

		err = p.IngestBlock(ctx, block)
		if err != nil {
			return err
		}

		err = p.store.MarkBlockIngested(ctx, block.Height)
		if err != nil {
			return err
		}
	}
}

// IngestBlock applies one block's transactions and refreshes every touched
// asset at the block's height.
func (p *Processor) IngestBlock(ctx context.Context, block *store.Block) error {
	stored, err := decodeStoredBlock(block.Block)
	if err != nil {
		return err
	}

	body, err := decodeBlockBody([]byte(stored.Body))
	if err != nil {
		return err
	}

	p.logger.Info("ingesting block", slog.Uint64("height", block.Height), slog.Int("txs", len(body.Transactions)))

	touched := make(map[string]struct{})

	for _, envelope := range body.Transactions {
		tx, err := decodeTransaction(envelope)
		if err != nil {
			return err
		}

		err = p.applyTransaction(ctx, tx, block.Height, touched)
		if err != nil {
			return err
		}
	}

	if len(touched) == 0 {
		return nil
	}

	assetIDs := make([]string, 0, len(touched))
	for assetID := range touched {
		assetIDs = append(assetIDs, assetID)
	}

	return p.tracker.Refresh(ctx, assetIDs, block.Height)
}

func (p *Processor) applyTransaction(ctx context.Context, tx *Transaction, height uint64, touched map[string]struct{}) error {
	switch tx.Kind {
	case TxKindBuyAssets:
		return p.applyBuyAssets(ctx, tx.BuyAssets, touched)

	case TxKindCancelOffer:
		return p.applyCancelOffer(ctx, tx.CancelOffer, height)

	case TxKindOfferAssets:
		return p.applyOfferAssets(ctx, tx.OfferAssets, height, touched)

	case TxKindRunScript, TxKindSendAssets:
		for _, assetID := range tx.TouchedAssets() {
			touched[assetID] = struct{}{}
		}
		return nil
	}

	p.logger.Debug("ignoring transaction of unknown kind", slog.String("kind", tx.Kind), slog.Uint64("height", height))
	return nil
}

func (p *Processor) applyBuyAssets(ctx context.Context, body *BuyAssetsBody, touched map[string]struct{}) error {
	offer, err := p.store.GetOffer(ctx, body.OfferID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if offer != nil && offer.Known() {
		for _, asset := range offer.Assets {
			touched[asset.AssetID] = struct{}{}
		}
	}

	return p.writer.Close(ctx, body.OfferID, store.CloseReasonCompleted)
}

func (p *Processor) applyCancelOffer(ctx context.Context, body *CancelOfferBody, height uint64) error {
	// no offer can predate the first block
	if height == 0 {
		return ErrOfferNotFoundOnNode
	}

	// the offer is already gone at the cancellation height, so resolve it
	// against the previous one
	offer, err := p.ledger.GetOffer(ctx, body.Identifier, height-1)
	if err != nil {
		return errors.Join(ErrOfferNotFoundOnNode, err)
	}

	return p.writer.Close(ctx, offer.OfferID, store.CloseReasonCancelled)
}

func (p *Processor) applyOfferAssets(ctx context.Context, body *OfferAssetsBody, height uint64, touched map[string]struct{}) error {
	if len(body.AssetIdentifiers) == 0 {
		return ErrEmptyOfferedAssets
	}

	offer, err := p.ledger.GetOffer(ctx, body.AssetIdentifiers[0], height)
	if err != nil {
		return errors.Join(ErrOfferNotFoundOnNode, err)
	}

	sellerIndex, err := p.resolveAccountIndex(ctx, offer.Seller, height)
	if err != nil {
		return err
	}

	assets := make([]store.OfferAsset, 0, len(offer.Assets))
	for _, asset := range offer.Assets {
		touched[asset.AssetID] = struct{}{}
		assets = append(assets, store.OfferAsset{AssetID: asset.AssetID, Type: asset.Type})
	}

	return p.writer.AffirmKnown(ctx, &store.Offer{
		OfferID:      offer.OfferID,
		SellerIndex:  &sellerIndex,
		Assets:       assets,
		MinimumPrice: offer.MinimumPrice,
		Expiration:   offer.Expiration,
	})
}

func (p *Processor) resolveAccountIndex(ctx context.Context, accountID string, height uint64) (int64, error) {
	if index, found := p.accounts.Get(accountID); found {
		return index.(int64), nil
	}

	account, err := p.ledger.GetAccount(ctx, accountID, height)
	if err != nil {
		return 0, err
	}

	p.accounts.Set(accountID, account.Index, cache.DefaultExpiration)

	return account.Index, nil
}
