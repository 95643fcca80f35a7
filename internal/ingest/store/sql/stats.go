package sql

import (
	"context"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

func (s *SQL) GetStats(ctx context.Context) (*store.Stats, error) {
	q := `
		SELECT
		 (SELECT COUNT(*) FROM blocks)
		,(SELECT COUNT(*) FROM blocks WHERE found = TRUE)
		,(SELECT COUNT(*) FROM blocks WHERE ingested = TRUE)
		,(SELECT COUNT(*) FROM offers WHERE origin_nonce > 0 AND closed IS NULL)
		,(SELECT COUNT(*) FROM assets WHERE stamp_off < stamp_on)
	`

	stats := &store.Stats{}
	err := s.db.QueryRowContext(ctx, q).Scan(
		&stats.BlocksTotal,
		&stats.BlocksFound,
		&stats.BlocksIngested,
		&stats.OpenOffers,
		&stats.Stamps,
	)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
