package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence marks which rooms are live in Redis. The registry stays the
// canonical owner of session state; these keys are liveness markers for
// operators and a seam for cross-instance routing later.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresence(client *redis.Client, ttl time.Duration) *Presence {
	return &Presence{client: client, ttl: ttl}
}

func (p *Presence) MarkActive(ctx context.Context, roomID string) {
	// best-effort liveness marker
	_ = p.client.Set(ctx, p.key(roomID), "1", p.ttl).Err()
}

func (p *Presence) ClearActive(ctx context.Context, roomID string) {
	_ = p.client.Del(ctx, p.key(roomID)).Err()
}

func (p *Presence) key(roomID string) string {
	return "room:" + roomID + ":active"
}
