package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fleetserver/models"

	"github.com/go-redis/redis/v8"
)

const (
	presencePrefix = "session:"
	PresenceTTL    = 24 * time.Hour
)

// Presence keeps one Redis key per live broker connection.
// It implements broker.PresenceStore.
type Presence struct {
	rdb *redis.Client
	now func() time.Time
}

func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{rdb: rdb, now: time.Now}
}

func presenceKey(id string) string { return presencePrefix + id }

func (p *Presence) Connected(ctx context.Context, id, addr string) error {
	return p.put(ctx, id, models.Presence{Addr: addr, ConnectedAt: p.now().UTC()})
}

// Seated records the room and role of an already connected peer.
func (p *Presence) Seated(ctx context.Context, id, room, role string) error {
	info, err := p.Get(ctx, id)
	if err != nil {
		return err
	}
	info.Room = room
	info.Role = role
	return p.put(ctx, id, info)
}

func (p *Presence) Disconnected(ctx context.Context, id string) error {
	return p.rdb.Del(ctx, presenceKey(id)).Err()
}

func (p *Presence) Get(ctx context.Context, id string) (models.Presence, error) {
	var info models.Presence
	raw, err := p.rdb.Get(ctx, presenceKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return info, fmt.Errorf("presence %s: not found", id)
	}
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, fmt.Errorf("presence %s: %w", id, err)
	}
	return info, nil
}

func (p *Presence) put(ctx context.Context, id string, info models.Presence) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, presenceKey(id), raw, PresenceTTL).Err()
}
