package presence

import (
	"context"
	"os"
	"testing"

	"fitrank/backend/internal/hub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "presence:42", key(42))
}

func TestNop(t *testing.T) {
	var m Mirror = Nop{}
	ctx := context.Background()
	require.NoError(t, m.SetOnline(ctx, 1, hub.StatusOnline))
	require.NoError(t, m.SetOffline(ctx, 1))

	got, err := m.Statuses(ctx, []uint{1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[uint]hub.Status{1: hub.StatusOffline, 2: hub.StatusOffline}, got)
	assert.NoError(t, m.Close())
}

func TestNewRedisMirrorBadURL(t *testing.T) {
	_, err := NewRedisMirror(context.Background(), "http://not-redis")
	assert.Error(t, err)
}

// Runs against a real server when REDIS_TEST_URL is set, e.g. redis://localhost:6379/15.
func TestRedisMirror(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()
	m, err := NewRedisMirror(ctx, url)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.SetOnline(ctx, 9001, hub.StatusBusy))
	require.NoError(t, m.SetOnline(ctx, 9002, hub.StatusInvisible))
	require.NoError(t, m.SetOffline(ctx, 9003))
	t.Cleanup(func() { m.client.Del(ctx, key(9001), key(9002), key(9003)) })

	got, err := m.Statuses(ctx, []uint{9001, 9002, 9003, 9004})
	require.NoError(t, err)
	assert.Equal(t, map[uint]hub.Status{
		9001: hub.StatusBusy,
		9002: hub.StatusOffline,
		9003: hub.StatusOffline,
		9004: hub.StatusOffline,
	}, got)
}
