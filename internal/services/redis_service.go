package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"workspace-service/internal/database"
	"workspace-service/pkg/protocol"

	"github.com/redis/go-redis/v9"
)

// relayChannel is the pub/sub channel carrying workspace events between hub
// instances.
const relayChannel = "workspace_events"

type RedisService struct {
	client *database.RedisClient
}

func NewRedisService(client *database.RedisClient) *RedisService {
	return &RedisService{
		client: client,
	}
}

// =============================================================================
// Cross-instance event relay
// =============================================================================

// PublishEvent fans an event envelope out to every hub instance.
func (r *RedisService) PublishEvent(ctx context.Context, env *protocol.RelayEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.GetClient().Publish(ctx, relayChannel, payload).Err()
}

// SubscribeEvents returns a channel of relay envelopes from other instances.
// The channel closes when ctx is cancelled.
func (r *RedisService) SubscribeEvents(ctx context.Context) (<-chan *protocol.RelayEnvelope, error) {
	pubsub := r.client.GetClient().Subscribe(ctx, relayChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to relay channel: %w", err)
	}

	ch := make(chan *protocol.RelayEnvelope)
	go func() {
		defer close(ch)
		defer pubsub.Close()

		redisCh := pubsub.Channel()
		for {
			select {
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				var env protocol.RelayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					slog.Error("Failed to unmarshal relay envelope", "error", err)
					continue
				}
				select {
				case ch <- &env:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// =============================================================================
// User Status Management
// =============================================================================

func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SAdd(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]interface{}{
		"status":     "online",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("user:%s:status", userID), 5*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to set user online", "userID", userID, "error", err)
		return err
	}
	return nil
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SRem(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]interface{}{
		"status":     "offline",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("user:%s:status", userID), 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to set user offline", "userID", userID, "error", err)
		return err
	}
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.GetClient().SIsMember(ctx, "online_users", userID).Result()
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, "online_users").Result()
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit increments the counter behind key and reports whether the
// caller is still within limit for the window.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	pipe := r.client.GetClient().Pipeline()

	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, err
	}
	return incr.Val() <= int64(limit), nil
}
