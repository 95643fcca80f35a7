package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

const offersPageSizeDefault = 20

func (s *SQL) AffirmOffer(ctx context.Context, offerID string) error {
	q := `INSERT INTO offers (offer_id) VALUES ($1) ON CONFLICT DO NOTHING`

	if _, err := s.db.ExecContext(ctx, q, offerID); err != nil {
		return errors.Join(store.ErrFailedToAffirmOffer, err)
	}

	return nil
}

// AffirmKnownOffer upserts the offer's content and replaces its link rows.
// Replacing instead of appending keeps the operation idempotent under
// re-ingestion of the same block.
func (s *SQL) AffirmKnownOffer(ctx context.Context, offer *store.Offer, originNonce uint64) error {
	assets, err := json.Marshal(offer.Assets)
	if err != nil {
		return errors.Join(store.ErrFailedToAffirmOffer, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(store.ErrFailedToAffirmOffer, err)
	}
	defer tx.Rollback() // nolint: errcheck

	_, err = tx.ExecContext(ctx, `INSERT INTO offers (offer_id) VALUES ($1) ON CONFLICT DO NOTHING`, offer.OfferID)
	if err != nil {
		return errors.Join(store.ErrFailedToAffirmOffer, err)
	}

	q := `
		UPDATE offers
		SET seller = $1
		,assets = $2
		,minimum_price = $3
		,expiration = $4
		,origin_nonce = $5
		WHERE offer_id = $6
	`

	_, err = tx.ExecContext(ctx, q, offer.SellerIndex, string(assets), offer.MinimumPrice, offer.Expiration, originNonce, offer.OfferID)
	if err != nil {
		return errors.Join(store.ErrFailedToAffirmOffer, err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM offer_assets WHERE offer_id = $1`, offer.OfferID)
	if err != nil {
		return errors.Join(store.ErrFailedToAffirmOffer, err)
	}

	for _, asset := range offer.Assets {
		_, err = tx.ExecContext(ctx, `INSERT INTO offer_assets (offer_id, asset_id, type) VALUES ($1, $2, $3)`, offer.OfferID, asset.AssetID, asset.Type)
		if err != nil {
			return errors.Join(store.ErrFailedToAffirmOffer, err)
		}
	}

	return tx.Commit()
}

func (s *SQL) CloseOffer(ctx context.Context, offerID string, reason string, closedNonce uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(store.ErrFailedToCloseOffer, err)
	}
	defer tx.Rollback() // nolint: errcheck

	_, err = tx.ExecContext(ctx, `INSERT INTO offers (offer_id) VALUES ($1) ON CONFLICT DO NOTHING`, offerID)
	if err != nil {
		return errors.Join(store.ErrFailedToCloseOffer, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE offers SET closed = $1, closed_nonce = $2 WHERE offer_id = $3`, reason, closedNonce, offerID)
	if err != nil {
		return errors.Join(store.ErrFailedToCloseOffer, err)
	}

	return tx.Commit()
}

func (s *SQL) GetOffer(ctx context.Context, offerID string) (*store.Offer, error) {
	q := `
		SELECT offer_id, seller, assets, minimum_price, expiration, origin_nonce, closed_nonce, closed
		FROM offers
		WHERE offer_id = $1
	`

	offer, err := scanOffer(s.db.QueryRowContext(ctx, q, offerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return offer, nil
}

// GetOffers pages through offers under a snapshot token so that a session
// never sees an offer appear or disappear mid-pagination while ingestion
// keeps running. A missing token starts a new session at the current nonces.
func (s *SQL) GetOffers(ctx context.Context, search store.OfferSearch) (*store.OfferSearchResult, error) {
	excludeSeller := int64(-1)
	if search.ExcludeSeller != nil {
		excludeSeller = *search.ExcludeSeller
	}
	matchSeller := int64(-1)
	if search.MatchSeller != nil {
		matchSeller = *search.MatchSeller
	}
	count := search.Count
	if count <= 0 {
		count = offersPageSizeDefault
	}

	result := &store.OfferSearchResult{}

	if search.Token != nil {
		result.Token = *search.Token
	} else {
		nonces, err := s.Current(ctx)
		if err != nil {
			return nil, err
		}
		result.Token = store.NewSearchToken(s.now(), nonces)

		// the total is anchored to the snapshot, so it is computed once per
		// session and stays valid for all following pages
		countQ := `
			SELECT COUNT(*)
			FROM offers
			WHERE origin_nonce > 0
				AND origin_nonce <= $1
				AND ($2 OR closed IS NULL)
				AND ($3 OR $4 < expiration)
				AND seller != $5
				AND ($6 < 0 OR seller = $7)
		`

		var total int64
		err = s.db.QueryRowContext(ctx, countQ,
			result.Token.Origin,
			search.All,
			search.All, result.Token.BaseUTC,
			excludeSeller,
			matchSeller, matchSeller,
		).Scan(&total)
		if err != nil {
			return nil, err
		}

		result.Total = &total
	}

	q := `
		SELECT offer_id, seller, assets, minimum_price, expiration, origin_nonce, closed_nonce, closed
		FROM offers
		WHERE origin_nonce > 0
			AND origin_nonce <= $1
			AND ($2 OR closed_nonce > $3 OR closed IS NULL)
			AND ($4 OR $5 < expiration)
			AND seller != $6
			AND ($7 < 0 OR seller = $8)
		ORDER BY origin_nonce ASC
		LIMIT $9 OFFSET $10
	`

	rows, err := s.db.QueryContext(ctx, q,
		result.Token.Origin,
		search.All, result.Token.Closed,
		search.All, result.Token.BaseUTC,
		excludeSeller,
		matchSeller, matchSeller,
		count, search.Base,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result.Offers = make([]*store.Offer, 0, count)
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		result.Offers = append(result.Offers, offer)
	}

	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (*store.Offer, error) {
	var (
		offer      store.Offer
		seller     sql.NullInt64
		assets     sql.NullString
		expiration sql.NullString
		closed     sql.NullString
	)

	err := row.Scan(&offer.OfferID, &seller, &assets, &offer.MinimumPrice, &expiration, &offer.OriginNonce, &offer.ClosedNonce, &closed)
	if err != nil {
		return nil, err
	}

	if seller.Valid {
		v := seller.Int64
		offer.SellerIndex = &v
	}
	if assets.Valid && assets.String != "" {
		err = json.Unmarshal([]byte(assets.String), &offer.Assets)
		if err != nil {
			return nil, err
		}
	}
	offer.Expiration = expiration.String
	if closed.Valid {
		v := closed.String
		offer.Closed = &v
	}

	return &offer, nil
}
