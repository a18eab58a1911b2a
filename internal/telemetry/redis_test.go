package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	channel string
	message interface{}
	err     error
	closed  bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message = message
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisPublisher_Publish(t *testing.T) {
	rdb := &fakeRedis{}
	p := newRedisPublisher(rdb, "")

	require.NoError(t, p.Publish(context.Background(), []byte(`{"type":"book"}`)))
	assert.Equal(t, DefaultChannel, rdb.channel)
	assert.Equal(t, []byte(`{"type":"book"}`), rdb.message)
	assert.Equal(t, "redis", p.Name())

	require.NoError(t, p.Close())
	assert.True(t, rdb.closed)
}

func TestRedisPublisher_PublishError(t *testing.T) {
	rdb := &fakeRedis{err: errors.New("connection refused")}
	p := newRedisPublisher(rdb, "custom")

	err := p.Publish(context.Background(), []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom")
	assert.Equal(t, "custom", rdb.channel)
}

func TestNewRedisPublisher_RequiresAddr(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), RedisConfig{})
	require.Error(t, err)
}
