package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/frostbank/pkg/config"
)

func TestNewConnectsAndInstruments(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	before := testutil.ToFloat64(redisRequestsTotal.WithLabelValues("set"))
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.Equal(t, before+1, testutil.ToFloat64(redisRequestsTotal.WithLabelValues("set")))

	missesBefore := testutil.ToFloat64(redisErrorsTotal.WithLabelValues("get"))
	_, err = client.Get(context.Background(), "absent").Result()
	assert.ErrorIs(t, err, goredis.Nil)
	assert.Equal(t, missesBefore, testutil.ToFloat64(redisErrorsTotal.WithLabelValues("get")))

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), config.RedisConfig{Addr: addr, MaxRetries: -1})
	assert.Error(t, err)
}
