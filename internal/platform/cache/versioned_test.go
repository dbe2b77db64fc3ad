package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type counts struct {
	Total int `json:"total"`
}

func TestVersionedFetchAndBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewVersioned(client, "assets", time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return counts{Total: calls}, nil
	}

	key, err := c.BuildKey(ctx, "summary")
	require.NoError(t, err)
	require.Equal(t, "assets:summary:v1", key)

	var got counts
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, got.Total)

	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, got.Total)
	require.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "summary")
	require.NoError(t, err)
	require.Equal(t, "assets:summary:v2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 2, got.Total)
}

func TestVersionedNilClientCallsLoader(t *testing.T) {
	c := NewVersioned(nil, "assets", time.Minute)
	var got counts
	err := c.FetchJSON(context.Background(), "k", &got, func(context.Context) (any, error) {
		return counts{Total: 9}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 9, got.Total)
}
