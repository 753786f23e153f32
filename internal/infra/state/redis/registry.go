package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"doccraft-collab/internal/domain"
)

// RedisRegistry is the Redis implementation of registry.Registry: room
// membership lives in one hash per room (field = user ID, value = session
// JSON), so multiple server instances observe the same presence state.
// Document fan-out is still per-process; this backend only widens presence
// visibility.
type RedisRegistry struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRegistry creates a RedisRegistry instance.
func NewRedisRegistry(client *redis.Client, keyPrefix string) *RedisRegistry {
	if client == nil {
		panic("redis client cannot be nil for RedisRegistry")
	}
	if keyPrefix == "" {
		keyPrefix = "dc:"
	}
	return &RedisRegistry{client: client, keyPrefix: keyPrefix}
}

func (r *RedisRegistry) roomSessionsKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s:sessions", r.keyPrefix, roomID)
}

func (r *RedisRegistry) Join(ctx context.Context, roomID, userID, displayName, displayColor string) (domain.Session, error) {
	key := r.roomSessionsKey(roomID)

	session, found, err := r.getSession(ctx, roomID, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if !found {
		session = domain.Session{RoomID: roomID, UserID: userID}
	}
	session.DisplayName = displayName
	session.DisplayColor = displayColor
	session.IsActive = true
	session.JoinedAt = time.Now()

	if err := r.setSession(ctx, key, &session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (r *RedisRegistry) Leave(ctx context.Context, roomID, userID string) (domain.Session, bool, error) {
	session, found, err := r.getSession(ctx, roomID, userID)
	if err != nil || !found {
		return domain.Session{}, false, err
	}
	session.IsActive = false
	if err := r.setSession(ctx, r.roomSessionsKey(roomID), &session); err != nil {
		return domain.Session{}, false, err
	}
	return session, true, nil
}

func (r *RedisRegistry) OnClose(ctx context.Context, roomID, userID string) (domain.Session, bool, error) {
	session, found, err := r.Leave(ctx, roomID, userID)
	if err != nil {
		return domain.Session{}, false, err
	}

	active, err := r.ListActive(ctx, roomID)
	if err != nil {
		return session, found, err
	}
	if len(active) == 0 {
		key := r.roomSessionsKey(roomID)
		if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
			return session, found, fmt.Errorf("redis: failed to delete empty room %s on key %s: %w", roomID, key, delErr)
		}
	}
	return session, found, nil
}

func (r *RedisRegistry) ListActive(ctx context.Context, roomID string) ([]domain.Session, error) {
	key := r.roomSessionsKey(roomID)
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to list sessions for room %s from %s: %w", roomID, key, err)
	}

	sessions := make([]domain.Session, 0, len(fields))
	for _, raw := range fields {
		var session domain.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			logrus.Warnf("redis: failed to unmarshal session in room %s: %v, data: %s", roomID, err, raw)
			continue
		}
		if session.IsActive {
			sessions = append(sessions, session)
		}
	}
	// Hash iteration order is arbitrary; sort by join time for a stable view.
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].JoinedAt.Before(sessions[j].JoinedAt)
	})
	return sessions, nil
}

func (r *RedisRegistry) HasRoom(ctx context.Context, roomID string) (bool, error) {
	key := r.roomSessionsKey(roomID)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to check room %s on key %s: %w", roomID, key, err)
	}
	return n > 0, nil
}

func (r *RedisRegistry) getSession(ctx context.Context, roomID, userID string) (domain.Session, bool, error) {
	key := r.roomSessionsKey(roomID)
	raw, err := r.client.HGet(ctx, key, userID).Result()
	if err == redis.Nil {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("redis: failed to get session (room: %s, user: %s): %w", roomID, userID, err)
	}
	var session domain.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return domain.Session{}, false, fmt.Errorf("redis: failed to unmarshal session (room: %s, user: %s): %w", roomID, userID, err)
	}
	return session, true, nil
}

func (r *RedisRegistry) setSession(ctx context.Context, key string, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal session (room: %s, user: %s): %w", session.RoomID, session.UserID, err)
	}
	if err := r.client.HSet(ctx, key, session.UserID, raw).Err(); err != nil {
		return fmt.Errorf("redis: failed to set session (room: %s, user: %s) on key %s: %w", session.RoomID, session.UserID, key, err)
	}
	return nil
}
