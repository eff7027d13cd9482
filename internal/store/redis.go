package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pricewatch/internal/item"
)

// RedisPersister stores the snapshot as one serialized blob under a single
// redis key, for deployments where the daemon itself is ephemeral. A SET of
// the whole blob keeps the atomic whole-state write contract.
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister connects to addr and persists under key.
func NewRedisPersister(addr, password string, db int, key string) *RedisPersister {
	return &RedisPersister{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		key: key,
	}
}

// Load reads the snapshot. A missing key is an empty cache, not an error.
func (p *RedisPersister) Load(ctx context.Context) (map[string]item.Entry, error) {
	b, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]item.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", p.key, err)
	}

	var entries map[string]item.Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", p.key, err)
	}
	if entries == nil {
		entries = map[string]item.Entry{}
	}
	return entries, nil
}

// Save writes the whole snapshot in a single SET, no expiry.
func (p *RedisPersister) Save(ctx context.Context, entries map[string]item.Entry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.client.Set(ctx, p.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", p.key, err)
	}
	return nil
}

// Close releases the redis connection.
func (p *RedisPersister) Close() error {
	return p.client.Close()
}
