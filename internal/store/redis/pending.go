package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
)

const (
	// DefaultPendingTTL bounds how long an unclaimed pending list survives
	DefaultPendingTTL = 48 * time.Hour
)

// Store holds the per-owner pending-notification lists
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a new pending-notification store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		ttl:    DefaultPendingTTL,
	}
}

// Batch is a snapshot of an owner's list. Len is the list length at read
// time and is the boundary to trim once the batch is handled.
type Batch struct {
	Entries []domain.PendingEntry
	Len     int64
	Invalid int // entries that could not be decoded
}

// PushPending appends an entry and refreshes the list expiry.
func (s *Store) PushPending(ctx context.Context, ownerID string, entry domain.PendingEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal pending entry: %w", err)
	}

	key := PendingKey(ownerID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push pending entry for %s: %w", ownerID, err)
	}
	return nil
}

// Drain reads every entry currently in the owner's list without removing any.
func (s *Store) Drain(ctx context.Context, ownerID string) (Batch, error) {
	raw, err := s.client.LRange(ctx, PendingKey(ownerID), 0, -1).Result()
	if err != nil {
		return Batch{}, fmt.Errorf("failed to read pending list for %s: %w", ownerID, err)
	}

	batch := Batch{Len: int64(len(raw)), Entries: make([]domain.PendingEntry, 0, len(raw))}
	for _, item := range raw {
		var e domain.PendingEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			batch.Invalid++
			continue
		}
		batch.Entries = append(batch.Entries, e)
	}
	return batch, nil
}

// Trim drops the first n entries, keeping anything pushed after the drain.
func (s *Store) Trim(ctx context.Context, ownerID string, n int64) error {
	if n <= 0 {
		return nil
	}
	if err := s.client.LTrim(ctx, PendingKey(ownerID), n, -1).Err(); err != nil {
		return fmt.Errorf("failed to trim pending list for %s: %w", ownerID, err)
	}
	return nil
}

// PendingCount returns the current length of the owner's list.
func (s *Store) PendingCount(ctx context.Context, ownerID string) (int64, error) {
	n, err := s.client.LLen(ctx, PendingKey(ownerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count pending list for %s: %w", ownerID, err)
	}
	return n, nil
}
