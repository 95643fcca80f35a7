package sql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

func (s *SQL) AffirmBlockHeights(ctx context.Context, ledgerHeight uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(store.ErrFailedToAffirmBlocks, err)
	}
	defer tx.Rollback() // nolint: errcheck

	var count uint64
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&count)
	if err != nil {
		return errors.Join(store.ErrFailedToAffirmBlocks, err)
	}

	q := `INSERT INTO blocks (height) VALUES ($1) ON CONFLICT DO NOTHING`
	for height := count; height < ledgerHeight; height++ {
		if _, err = tx.ExecContext(ctx, q, height); err != nil {
			return errors.Join(store.ErrFailedToAffirmBlocks, err)
		}
	}

	return tx.Commit()
}

func (s *SQL) BlocksToFetch(ctx context.Context, limit int) ([]uint64, error) {
	q := `
		SELECT height
		FROM blocks
		WHERE found = FALSE
		ORDER BY height DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	heights := make([]uint64, 0, limit)
	for rows.Next() {
		var height uint64
		if err = rows.Scan(&height); err != nil {
			return nil, err
		}
		heights = append(heights, height)
	}

	return heights, rows.Err()
}

func (s *SQL) MarkBlockFound(ctx context.Context, height uint64, rawBlock []byte, txCount uint64) error {
	q := `
		UPDATE blocks
		SET found = TRUE
		,block = $1
		,tx_count = $2
		WHERE height = $3
	`

	if _, err := s.db.ExecContext(ctx, q, string(rawBlock), txCount, height); err != nil {
		return errors.Join(store.ErrFailedToMarkBlockFound, err)
	}

	return nil
}

// NextUningestedBlock selects the lowest eligible block so that derived state
// is always applied in forward height order.
func (s *SQL) NextUningestedBlock(ctx context.Context) (*store.Block, error) {
	q := `
		SELECT height, tx_count, block
		FROM blocks
		WHERE ingested = FALSE AND found = TRUE AND tx_count > 0
		ORDER BY height ASC
		LIMIT 1
	`

	block := &store.Block{Found: true}
	var raw sql.NullString

	err := s.db.QueryRowContext(ctx, q).Scan(&block.Height, &block.TxCount, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if raw.Valid {
		block.Block = []byte(raw.String)
	}

	return block, nil
}

func (s *SQL) MarkBlockIngested(ctx context.Context, height uint64) error {
	q := `UPDATE blocks SET ingested = TRUE WHERE height = $1`

	if _, err := s.db.ExecContext(ctx, q, height); err != nil {
		return errors.Join(store.ErrFailedToMarkBlockIngested, err)
	}

	return nil
}

func (s *SQL) BlockCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
