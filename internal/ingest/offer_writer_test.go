package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

type fakeClock struct {
	origin    uint64
	closed    uint64
	originErr error
	closedErr error
}

func (c *fakeClock) AdvanceOrigin(_ context.Context) (uint64, error) {
	if c.originErr != nil {
		return 0, c.originErr
	}
	c.origin++
	return c.origin, nil
}

func (c *fakeClock) AdvanceClosed(_ context.Context) (uint64, error) {
	if c.closedErr != nil {
		return 0, c.closedErr
	}
	c.closed++
	return c.closed, nil
}

func (c *fakeClock) Current(_ context.Context) (store.Nonces, error) {
	return store.Nonces{Origin: c.origin, Closed: c.closed}, nil
}

type offerCall struct {
	offerID string
	reason  string
	nonce   uint64
}

type fakeOfferStore struct {
	store.OfferStore

	offers   map[string]*store.Offer
	affirmed []offerCall
	closed   []offerCall
}

func (s *fakeOfferStore) GetOffer(_ context.Context, offerID string) (*store.Offer, error) {
	offer, ok := s.offers[offerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return offer, nil
}

func (s *fakeOfferStore) AffirmKnownOffer(_ context.Context, offer *store.Offer, originNonce uint64) error {
	s.affirmed = append(s.affirmed, offerCall{offerID: offer.OfferID, nonce: originNonce})
	return nil
}

func (s *fakeOfferStore) CloseOffer(_ context.Context, offerID string, reason string, closedNonce uint64) error {
	s.closed = append(s.closed, offerCall{offerID: offerID, reason: reason, nonce: closedNonce})
	return nil
}

func TestOfferWriter(t *testing.T) {
	ctx := context.Background()

	t.Run("affirm advances origin and stamps the nonce", func(t *testing.T) {
		clock := &fakeClock{}
		offers := &fakeOfferStore{}
		sut := NewOfferWriter(clock, offers)

		require.NoError(t, sut.AffirmKnown(ctx, &store.Offer{OfferID: "offer-1"}))
		require.NoError(t, sut.AffirmKnown(ctx, &store.Offer{OfferID: "offer-2"}))

		assert.Equal(t, []offerCall{
			{offerID: "offer-1", nonce: 1},
			{offerID: "offer-2", nonce: 2},
		}, offers.affirmed)
		assert.Empty(t, offers.closed)
	})

	t.Run("close advances closed and stamps the nonce", func(t *testing.T) {
		clock := &fakeClock{}
		offers := &fakeOfferStore{}
		sut := NewOfferWriter(clock, offers)

		require.NoError(t, sut.Close(ctx, "offer-1", store.CloseReasonCancelled))

		assert.Equal(t, []offerCall{
			{offerID: "offer-1", reason: store.CloseReasonCancelled, nonce: 1},
		}, offers.closed)
		assert.Empty(t, offers.affirmed)
	})

	t.Run("closing an already closed offer is a no-op", func(t *testing.T) {
		reason := store.CloseReasonCompleted
		clock := &fakeClock{closed: 3}
		offers := &fakeOfferStore{
			offers: map[string]*store.Offer{
				"offer-1": {OfferID: "offer-1", ClosedNonce: 3, Closed: &reason},
			},
		}
		sut := NewOfferWriter(clock, offers)

		require.NoError(t, sut.Close(ctx, "offer-1", store.CloseReasonCancelled))

		assert.Empty(t, offers.closed)
		assert.Equal(t, uint64(3), clock.closed)
	})

	t.Run("an open offer is closed normally", func(t *testing.T) {
		clock := &fakeClock{}
		offers := &fakeOfferStore{
			offers: map[string]*store.Offer{
				"offer-1": {OfferID: "offer-1", OriginNonce: 1},
			},
		}
		sut := NewOfferWriter(clock, offers)

		require.NoError(t, sut.Close(ctx, "offer-1", store.CloseReasonCompleted))

		assert.Equal(t, []offerCall{
			{offerID: "offer-1", reason: store.CloseReasonCompleted, nonce: 1},
		}, offers.closed)
	})

	t.Run("clock failure stops the mutation", func(t *testing.T) {
		clockErr := errors.New("clock broken")
		clock := &fakeClock{originErr: clockErr, closedErr: clockErr}
		offers := &fakeOfferStore{}
		sut := NewOfferWriter(clock, offers)

		require.ErrorIs(t, sut.AffirmKnown(ctx, &store.Offer{OfferID: "offer-1"}), clockErr)
		require.ErrorIs(t, sut.Close(ctx, "offer-1", store.CloseReasonCompleted), clockErr)

		assert.Empty(t, offers.affirmed)
		assert.Empty(t, offers.closed)
	})
}
