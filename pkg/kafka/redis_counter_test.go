package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewRedisCounter(rdb, time.Hour)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr(ctx, "p1/a.txt")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.True(t, mr.Exists("kafka:attempts:p1/a.txt"))
	assert.Equal(t, time.Hour, mr.TTL("kafka:attempts:p1/a.txt"))

	// 不同任务的计数互不影响
	n, err := c.Incr(ctx, "p1/b.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, c.Reset(ctx, "p1/a.txt"))
	assert.False(t, mr.Exists("kafka:attempts:p1/a.txt"))

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("kafka:attempts:p1/b.txt"))
}

func TestRedisCounterUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	_, err := NewRedisCounter(rdb, time.Minute).Incr(context.Background(), "k")
	assert.Error(t, err)
}
