// Package presence mirrors the hub's online state into Redis so other processes
// can see who is connected here. The hub stays authoritative for its own users.
package presence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"fitrank/backend/internal/hub"

	"github.com/go-redis/redis/v8"
)

const (
	onlineTTL  = 5 * time.Minute
	offlineTTL = time.Minute // short so a quick reconnect does not flicker
)

// Mirror publishes presence outside the process.
type Mirror interface {
	SetOnline(ctx context.Context, userID uint, status hub.Status) error
	SetOffline(ctx context.Context, userID uint) error
	Statuses(ctx context.Context, userIDs []uint) (map[uint]hub.Status, error)
	Close() error
}

func key(userID uint) string {
	return "presence:" + strconv.FormatUint(uint64(userID), 10)
}

type RedisMirror struct {
	client *redis.Client
}

// NewRedisMirror connects to url (redis:// or rediss://) and pings it.
func NewRedisMirror(ctx context.Context, url string) (*RedisMirror, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisMirror{client: client}, nil
}

// NewRedisMirrorWithClient wraps an existing client.
func NewRedisMirrorWithClient(client *redis.Client) *RedisMirror {
	return &RedisMirror{client: client}
}

// SetOnline stores the visible status, so invisible users are mirrored as offline.
func (m *RedisMirror) SetOnline(ctx context.Context, userID uint, status hub.Status) error {
	visible := status.Visible()
	ttl := onlineTTL
	if visible == hub.StatusOffline {
		ttl = offlineTTL
	}
	return m.client.Set(ctx, key(userID), string(visible), ttl).Err()
}

func (m *RedisMirror) SetOffline(ctx context.Context, userID uint) error {
	return m.client.Set(ctx, key(userID), string(hub.StatusOffline), offlineTTL).Err()
}

// Statuses looks up many users in one round trip. Users with no key are offline.
func (m *RedisMirror) Statuses(ctx context.Context, userIDs []uint) (map[uint]hub.Status, error) {
	out := make(map[uint]hub.Status, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	cmds, err := m.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Get(ctx, key(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	for i, cmd := range cmds {
		out[userIDs[i]] = hub.StatusOffline
		if val, err := cmd.(*redis.StringCmd).Result(); err == nil {
			out[userIDs[i]] = hub.Status(val)
		}
	}
	return out, nil
}

func (m *RedisMirror) Close() error { return m.client.Close() }

// Nop is the Mirror used when no Redis is configured.
type Nop struct{}

func (Nop) SetOnline(context.Context, uint, hub.Status) error { return nil }
func (Nop) SetOffline(context.Context, uint) error            { return nil }
func (Nop) Close() error                                      { return nil }

func (Nop) Statuses(_ context.Context, userIDs []uint) (map[uint]hub.Status, error) {
	out := make(map[uint]hub.Status, len(userIDs))
	for _, id := range userIDs {
		out[id] = hub.StatusOffline
	}
	return out, nil
}
