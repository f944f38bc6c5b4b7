package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"typerace/models"
)

// Roster is the lobby snapshot kept in Redis so listings do not need to
// touch the coordinator.
type Roster struct {
	Status  models.RaceStatus `msgpack:"status"`
	Players []models.Player   `msgpack:"players"`
	StartAt *time.Time        `msgpack:"start_at"`
}

type RosterWriter interface {
	Put(ctx context.Context, raceID string, roster Roster) error
	Drop(ctx context.Context, raceID string) error
}

type RosterReader interface {
	Get(ctx context.Context, raceID string) (*Roster, error)
}

type RosterCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRosterCache(redisClient *redis.Client, ttl time.Duration) *RosterCache {
	return &RosterCache{redis: redisClient, ttl: ttl}
}

func rosterKey(raceID string) string {
	return fmt.Sprintf("race:roster:%s", raceID)
}

func (c *RosterCache) Put(ctx context.Context, raceID string, roster Roster) error {
	data, err := msgpack.Marshal(&roster)
	if err != nil {
		return fmt.Errorf("encode roster %s: %w", raceID, err)
	}
	return c.redis.Set(ctx, rosterKey(raceID), data, c.ttl).Err()
}

// Get returns nil without error when nothing is cached for raceID.
func (c *RosterCache) Get(ctx context.Context, raceID string) (*Roster, error) {
	data, err := c.redis.Get(ctx, rosterKey(raceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var roster Roster
	if err := msgpack.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("decode roster %s: %w", raceID, err)
	}
	return &roster, nil
}

func (c *RosterCache) Drop(ctx context.Context, raceID string) error {
	return c.redis.Del(ctx, rosterKey(raceID)).Err()
}
