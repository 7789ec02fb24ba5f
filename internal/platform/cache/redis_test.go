package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Total string `json:"total"`
}

func newTestCache(t *testing.T, ttl time.Duration) (*JSONCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewJSONCache(client, ttl), mr
}

func TestJSONCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "report:tb", payload{Name: "Cash", Total: "112.00"}))

	var got payload
	require.NoError(t, c.Get(ctx, "report:tb", &got))
	require.Equal(t, "Cash", got.Name)
	require.Equal(t, "112.00", got.Total)
}

func TestJSONCacheMiss(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	var got payload
	require.ErrorIs(t, c.Get(context.Background(), "absent", &got), ErrMiss)
}

func TestJSONCacheExpiry(t *testing.T) {
	c, mr := newTestCache(t, time.Second)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "report:tb", payload{Name: "Cash"}))
	mr.FastForward(2 * time.Second)

	var got payload
	require.ErrorIs(t, c.Get(ctx, "report:tb", &got), ErrMiss)
}

func TestJSONCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "report:tb", payload{Name: "Cash"}))
	require.NoError(t, c.Invalidate(ctx, "report:tb"))

	var got payload
	require.ErrorIs(t, c.Get(ctx, "report:tb", &got), ErrMiss)
}
