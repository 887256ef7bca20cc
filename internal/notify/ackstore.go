package notify

import (
	"context"
	"fmt"

	"atrium/api/internal/store"
	"github.com/redis/go-redis/v9"
)

// Scope keys an acknowledgement set. Sets are independent per viewer,
// per role, per organization: clearing a notification as a client in one
// org never touches the same user's employee view or another org.
type Scope struct {
	OrgID    string
	Role     string
	ViewerID string
}

func (s Scope) key() string {
	return "ack:" + s.OrgID + ":" + s.Role + ":" + s.ViewerID
}

// AckStore persists which notification identities a viewer has cleared.
type AckStore interface {
	Acked(ctx context.Context, scope Scope) (map[string]struct{}, error)
	Add(ctx context.Context, scope Scope, ids ...string) error
}

// RedisAckStore keeps each scope as a Redis set.
type RedisAckStore struct {
	client *redis.Client
}

func NewRedisAckStore(client *redis.Client) *RedisAckStore {
	return &RedisAckStore{client: client}
}

func (s *RedisAckStore) Acked(ctx context.Context, scope Scope) (map[string]struct{}, error) {
	members, err := s.client.SMembers(ctx, scope.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("read ack set: %w", err)
	}
	acked := make(map[string]struct{}, len(members))
	for _, id := range members {
		acked[id] = struct{}{}
	}
	return acked, nil
}

func (s *RedisAckStore) Add(ctx context.Context, scope Scope, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	if err := s.client.SAdd(ctx, scope.key(), values...).Err(); err != nil {
		return fmt.Errorf("add to ack set: %w", err)
	}
	return nil
}

// PostgresAckStore is the fallback when Redis is not configured.
type PostgresAckStore struct {
	store *store.PostgresStore
}

func NewPostgresAckStore(pg *store.PostgresStore) *PostgresAckStore {
	return &PostgresAckStore{store: pg}
}

func (s *PostgresAckStore) Acked(ctx context.Context, scope Scope) (map[string]struct{}, error) {
	return s.store.AckedNotifications(ctx, scope.OrgID, scope.Role, scope.ViewerID)
}

func (s *PostgresAckStore) Add(ctx context.Context, scope Scope, ids ...string) error {
	return s.store.AddNotificationAcks(ctx, scope.OrgID, scope.Role, scope.ViewerID, ids)
}
