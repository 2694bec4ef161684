package database

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/place_rank_server/config"
)

func TestRedisEnabled(t *testing.T) {
	assert.False(t, RedisEnabled(&config.RedisConfig{}))
	assert.True(t, RedisEnabled(&config.RedisConfig{Host: "localhost"}))
}

func TestNewRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	rdb, err := NewRedis(&config.RedisConfig{Host: mr.Host(), Port: port, PoolSize: 2})
	require.NoError(t, err)
	defer rdb.Close()

	assert.Equal(t, mr.Addr(), rdb.Options().Addr)
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	_, err = NewRedis(&config.RedisConfig{Host: "127.0.0.1", Port: port})
	assert.Error(t, err)
}
