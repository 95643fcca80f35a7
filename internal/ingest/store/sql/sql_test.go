package sql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQL {
	t.Helper()

	s, err := New(sqliteMemoryEngine, WithNow(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestNewUnknownEngine(t *testing.T) {
	_, err := New("oracle")
	require.ErrorIs(t, err, store.ErrUnknownEngine)
}

func TestPing(t *testing.T) {
	sut := newTestStore(t)
	require.NoError(t, sut.Ping(context.Background()))
}
