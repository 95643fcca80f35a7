package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

const stampsPageSizeDefault = 20

func (s *SQL) GetAsset(ctx context.Context, assetID string) (*store.Asset, error) {
	q := `
		SELECT asset_id, owner, height, stamp_on, stamp_off, asset, stamp
		FROM assets
		WHERE asset_id = $1
	`

	asset, err := scanAsset(s.db.QueryRowContext(ctx, q, assetID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return asset, nil
}

func (s *SQL) AssetHeights(ctx context.Context, assetIDs []string) (map[string]uint64, error) {
	heights := make(map[string]uint64, len(assetIDs))
	if len(assetIDs) == 0 {
		return heights, nil
	}

	placeholders := make([]string, len(assetIDs))
	args := make([]any, len(assetIDs))
	for i, id := range assetIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	q := fmt.Sprintf(`SELECT asset_id, height FROM assets WHERE asset_id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var height uint64
		if err = rows.Scan(&id, &height); err != nil {
			return nil, err
		}
		heights[id] = height
	}

	return heights, rows.Err()
}

func (s *SQL) UpsertAsset(ctx context.Context, asset *store.Asset) error {
	q := `
		INSERT INTO assets (asset_id, owner, height, stamp_on, stamp_off, asset, stamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (asset_id) DO UPDATE SET
		 owner = excluded.owner
		,height = excluded.height
		,stamp_on = excluded.stamp_on
		,stamp_off = excluded.stamp_off
		,asset = excluded.asset
		,stamp = excluded.stamp
	`

	_, err := s.db.ExecContext(ctx, q,
		asset.AssetID,
		asset.Owner,
		asset.Height,
		asset.StampOn,
		asset.StampOff,
		rawOrNull(asset.Asset),
		rawOrNull(asset.Stamp),
	)
	if err != nil {
		return errors.Join(store.ErrFailedToUpsertAsset, err)
	}

	return nil
}

// GetStamps pages through assets holding stamp status at the token's block
// height ceiling, with the same session discipline as GetOffers. The filter
// is the half-open interval predicate evaluated at snapshot height.
func (s *SQL) GetStamps(ctx context.Context, search store.StampSearch) (*store.StampSearchResult, error) {
	excludeOwner := int64(-1)
	if search.ExcludeOwner != nil {
		excludeOwner = *search.ExcludeOwner
	}
	matchOwner := int64(-1)
	if search.MatchOwner != nil {
		matchOwner = *search.MatchOwner
	}
	count := search.Count
	if count <= 0 {
		count = stampsPageSizeDefault
	}

	result := &store.StampSearchResult{}

	if search.Token != nil {
		result.Token = *search.Token
	} else {
		height, err := s.BlockCount(ctx)
		if err != nil {
			return nil, err
		}
		result.Token = store.NewStampToken(s.now(), height)

		countQ := `
			SELECT COUNT(*)
			FROM assets
			WHERE stamp_on < $1
				AND (stamp_off < stamp_on OR $2 <= stamp_off)
				AND ($3 < 0 OR COALESCE(owner, -1) != $4)
				AND ($5 < 0 OR owner = $6)
		`

		var total int64
		err = s.db.QueryRowContext(ctx, countQ,
			result.Token.Height, result.Token.Height,
			excludeOwner, excludeOwner,
			matchOwner, matchOwner,
		).Scan(&total)
		if err != nil {
			return nil, err
		}

		result.Total = &total
	}

	q := `
		SELECT asset_id, owner, height, stamp_on, stamp_off, asset, stamp
		FROM assets
		WHERE stamp_on < $1
			AND (stamp_off < stamp_on OR $2 <= stamp_off)
			AND ($3 < 0 OR COALESCE(owner, -1) != $4)
			AND ($5 < 0 OR owner = $6)
		ORDER BY asset_id ASC
		LIMIT $7 OFFSET $8
	`

	rows, err := s.db.QueryContext(ctx, q,
		result.Token.Height, result.Token.Height,
		excludeOwner, excludeOwner,
		matchOwner, matchOwner,
		count, search.Base,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result.Stamps = make([]*store.Asset, 0, count)
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		result.Stamps = append(result.Stamps, asset)
	}

	return result, rows.Err()
}

func scanAsset(row rowScanner) (*store.Asset, error) {
	var (
		asset store.Asset
		owner sql.NullInt64
		raw   sql.NullString
		stamp sql.NullString
	)

	err := row.Scan(&asset.AssetID, &owner, &asset.Height, &asset.StampOn, &asset.StampOff, &raw, &stamp)
	if err != nil {
		return nil, err
	}

	if owner.Valid {
		v := owner.Int64
		asset.Owner = &v
	}
	if raw.Valid && raw.String != "" {
		asset.Asset = []byte(raw.String)
	}
	if stamp.Valid && stamp.String != "" {
		asset.Stamp = []byte(stamp.String)
	}

	return &asset, nil
}

func rawOrNull(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
