package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chorus/presence-bridge/models"
)

const (
	bridgeStatusKeyPrefix = "bridge:status:"
	onlineBridgesKey      = "bridges_online"

	// BridgeEventsChannel carries every status change as it is mirrored.
	BridgeEventsChannel = "bridge:events"
)

// StatusMirror copies bridge status into Redis so other services can see
// which bridges are up. It only ever holds the latest status per bridge.
// A nil *StatusMirror is valid and does nothing.
type StatusMirror struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStatusMirror(client *redis.Client, ttl time.Duration) *StatusMirror {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	return &StatusMirror{redis: client, ttl: ttl}
}

func (m *StatusMirror) Publish(ctx context.Context, status models.BridgeStatus) error {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal bridge status: %w", err)
	}

	pipe := m.redis.TxPipeline()
	pipe.Set(ctx, bridgeStatusKeyPrefix+status.BridgeID, data, m.ttl)
	if status.LoggedOn {
		pipe.SAdd(ctx, onlineBridgesKey, status.BridgeID)
	} else {
		pipe.SRem(ctx, onlineBridgesKey, status.BridgeID)
	}
	pipe.Expire(ctx, onlineBridgesKey, m.ttl*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish bridge status: %w", err)
	}
	return m.notify(ctx, data)
}

func (m *StatusMirror) Remove(ctx context.Context, bridgeID string) error {
	if m == nil {
		return nil
	}
	pipe := m.redis.TxPipeline()
	pipe.Del(ctx, bridgeStatusKeyPrefix+bridgeID)
	pipe.SRem(ctx, onlineBridgesKey, bridgeID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove bridge status: %w", err)
	}

	data, err := json.Marshal(models.BridgeStatus{BridgeID: bridgeID, Status: models.BridgeDisconnected})
	if err != nil {
		return fmt.Errorf("failed to marshal bridge status: %w", err)
	}
	return m.notify(ctx, data)
}

func (m *StatusMirror) notify(ctx context.Context, payload []byte) error {
	if err := m.redis.Publish(ctx, BridgeEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish bridge event: %w", err)
	}
	return nil
}
