package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session id has no stored record.
var ErrNotFound = errors.New("session: not found")

// Store persists sessions in Redis as JSON with a sliding TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewStore constructs a Redis backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl, prefix: "session:"}
}

func (s *Store) key(id string) string { return s.prefix + id }

// Get loads a session and refreshes its TTL.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	_ = s.client.Expire(ctx, s.key(id), s.ttl).Err()
	return &sess, nil
}

// Save writes the session.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes the session record.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }
