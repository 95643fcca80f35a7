package ingest

import (
	"context"
	"errors"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

// OfferWriter pairs offer mutations with the logical clock. Every affirm of
// known content advances the origin nonce, every first close of an offer
// advances the closed nonce; the paginated reads key their snapshots off
// those counters. Only the ingest loop may hold a writer.
type OfferWriter struct {
	clock  store.NonceClock
	offers store.OfferStore
}

func NewOfferWriter(clock store.NonceClock, offers store.OfferStore) *OfferWriter {
	return &OfferWriter{
		clock:  clock,
		offers: offers,
	}
}

func (w *OfferWriter) AffirmKnown(ctx context.Context, offer *store.Offer) error {
	nonce, err := w.clock.AdvanceOrigin(ctx)
	if err != nil {
		return err
	}

	return w.offers.AffirmKnownOffer(ctx, offer, nonce)
}

func (w *OfferWriter) Close(ctx context.Context, offerID string, reason string) error {
	offer, err := w.offers.GetOffer(ctx, offerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if offer != nil && offer.Closed != nil {
		// already closed; re-ingesting the block must not move the clock or
		// rewrite the recorded closed nonce
		return nil
	}

	nonce, err := w.clock.AdvanceClosed(ctx)
	if err != nil {
		return err
	}

	return w.offers.CloseOffer(ctx, offerID, reason, nonce)
}
