package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisMemo(t *testing.T) *RedisMemo {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisMemo(client, time.Minute)
}

func TestRedisMemoComputesOnce(t *testing.T) {
	memo := newTestRedisMemo(t)
	calls := 0
	fn := func() (string, error) {
		calls++
		return "computed-value", nil
	}

	v1, err := memo.GetOrCompute(context.Background(), "bucket:exists:foo", fn)
	require.NoError(t, err)
	require.Equal(t, "computed-value", v1)

	v2, err := memo.GetOrCompute(context.Background(), "bucket:exists:foo", fn)
	require.NoError(t, err)
	require.Equal(t, "computed-value", v2)
	require.Equal(t, 1, calls)
}

func TestRedisMemoInvalidate(t *testing.T) {
	memo := newTestRedisMemo(t)
	calls := 0
	fn := func() (string, error) {
		calls++
		return "v", nil
	}
	_, err := memo.GetOrCompute(context.Background(), "k", fn)
	require.NoError(t, err)
	require.NoError(t, memo.Invalidate(context.Background(), "k"))
	_, err = memo.GetOrCompute(context.Background(), "k", fn)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
