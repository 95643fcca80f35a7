package sql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

// The nonces table holds a single row. Only the ingest loop advances it, so
// affirm-then-update needs no row locking.

func (s *SQL) AdvanceOrigin(ctx context.Context) (uint64, error) {
	return s.advanceNonce(ctx, `UPDATE nonces SET origin = origin + 1 RETURNING origin`)
}

func (s *SQL) AdvanceClosed(ctx context.Context) (uint64, error) {
	return s.advanceNonce(ctx, `UPDATE nonces SET closed = closed + 1 RETURNING closed`)
}

func (s *SQL) advanceNonce(ctx context.Context, q string) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Join(store.ErrFailedToAdvanceNonce, err)
	}
	defer tx.Rollback() // nolint: errcheck

	err = affirmNonceRow(ctx, tx)
	if err != nil {
		return 0, errors.Join(store.ErrFailedToAdvanceNonce, err)
	}

	var nonce uint64
	err = tx.QueryRowContext(ctx, q).Scan(&nonce)
	if err != nil {
		return 0, errors.Join(store.ErrFailedToAdvanceNonce, err)
	}

	return nonce, tx.Commit()
}

func (s *SQL) Current(ctx context.Context) (store.Nonces, error) {
	nonces := store.Nonces{}

	err := s.db.QueryRowContext(ctx, `SELECT origin, closed FROM nonces LIMIT 1`).Scan(&nonces.Origin, &nonces.Closed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// clock not started yet
			return store.Nonces{}, nil
		}
		return store.Nonces{}, err
	}

	return nonces, nil
}

func affirmNonceRow(ctx context.Context, tx *sql.Tx) error {
	var count int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM nonces`).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO nonces (origin, closed) VALUES (0, 0)`)
	return err
}
