package sql

import (
	"context"
	"errors"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

// ResetIngest drops every derived table, recreates the schema and re-marks
// all blocks as not ingested. Raw block bodies are kept, so the next ingest
// pass rebuilds all derived state from local data.
func (s *SQL) ResetIngest(ctx context.Context) error {
	statements := []string{
		`DROP INDEX IF EXISTS ix_offer_assets_type`,
		`DROP INDEX IF EXISTS ix_offer_assets_offer`,
		`DROP INDEX IF EXISTS ix_assets_owner`,
		`DROP TABLE IF EXISTS offer_assets`,
		`DROP TABLE IF EXISTS offers`,
		`DROP TABLE IF EXISTS nonces`,
		`DROP TABLE IF EXISTS assets`,
		`UPDATE blocks SET ingested = FALSE WHERE ingested = TRUE`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Join(store.ErrFailedToResetIngest, err)
		}
	}

	err := createSchema(s.db, s.engine)
	if err != nil {
		return errors.Join(store.ErrFailedToResetIngest, err)
	}

	return nil
}
