package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStatementCacheServesAndInvalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewStatementCache(client, time.Minute)
	ctx := context.Background()

	filter := StatementFilter{Limit: 500}
	loads := 0
	loader := func(context.Context) (Statement, error) {
		loads++
		return Statement{Transactions: []MainAccountTransaction{}, TotalBalance: decimal.NewFromInt(int64(loads))}, nil
	}

	first, err := cache.Fetch(ctx, filter, loader)
	require.NoError(t, err)
	require.Equal(t, 1, loads)

	second, err := cache.Fetch(ctx, filter, loader)
	require.NoError(t, err)
	require.Equal(t, 1, loads, "second read must come from cache")
	require.True(t, first.TotalBalance.Equal(second.TotalBalance))

	require.NoError(t, cache.Bump(ctx))

	_, err = cache.Fetch(ctx, filter, loader)
	require.NoError(t, err)
	require.Equal(t, 2, loads, "bump must invalidate cached statements")
}
