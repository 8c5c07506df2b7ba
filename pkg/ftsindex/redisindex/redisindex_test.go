package redisindex_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triplestore.dev/updateengine/pkg/ftsindex/redisindex"
)

func newTestIndex(t *testing.T) *redisindex.Index {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	idx, err := redisindex.New(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestCommitAppliesStagedUpdates(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Init(ctx, "txn-1"))
	require.NoError(t, idx.UpdateText(ctx, "txn-1", "urn:res:1", "nie:title", "hello world"))
	require.NoError(t, idx.Commit(ctx, "txn-1"))

	// A second transaction's rollback must not disturb what txn-1 committed.
	require.NoError(t, idx.Init(ctx, "txn-2"))
	require.NoError(t, idx.UpdateText(ctx, "txn-2", "urn:res:1", "nie:title", "should not stick"))
	require.NoError(t, idx.Rollback(ctx, "txn-2"))
}

func TestRollbackDiscardsStagedUpdates(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Init(ctx, "txn-1"))
	require.NoError(t, idx.UpdateText(ctx, "txn-1", "urn:res:2", "nie:title", "discarded"))
	require.NoError(t, idx.Rollback(ctx, "txn-1"))

	// Nothing left staged for a subsequent Init under the same txn id.
	require.NoError(t, idx.Init(ctx, "txn-1"))
	assert.NoError(t, idx.Commit(ctx, "txn-1"))
}
