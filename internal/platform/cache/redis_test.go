package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, url, time.Minute, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EvictAll(ctx, Listings...))

	_, ok := s.Get(ctx, NamespaceCodes, "_")
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, NamespaceCodes, "_", []byte("all")))
	require.NoError(t, s.Put(ctx, NamespaceCodes, "UNIV_X", []byte("x")))
	got, ok := s.Get(ctx, NamespaceCodes, "UNIV_X")
	require.True(t, ok)
	assert.Equal(t, []byte("x"), got)

	require.NoError(t, s.EvictAll(ctx, Listings...))
	_, ok = s.Get(ctx, NamespaceCodes, "_")
	assert.False(t, ok)
	_, ok = s.Get(ctx, NamespaceCodes, "UNIV_X")
	assert.False(t, ok)
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-url", time.Minute, zerolog.Nop())
	assert.Error(t, err)
}
