package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisStore_Unreachable(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	_, err := NewRedisStore(ctx, RedisOptions{Addr: "127.0.0.1:1", MaxElapsed: 200 * time.Millisecond})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRedisStore_Backend(t *testing.T) {
	t.Parallel()
	s := &RedisStore{}
	assert.Equal(t, "redis", s.Backend())

	n, err := s.DeleteExpired(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestApplyLink(t *testing.T) {
	t.Parallel()
	links := Links{}
	applyLink(links, "a", []byte(` "x" `))
	assert.Equal(t, `"x"`, string(links["a"]))
	applyLink(links, "a", []byte(`null`))
	assert.Empty(t, links)
}
