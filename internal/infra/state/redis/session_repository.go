package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/offspring2k5/neveralone/internal/domain"
	"github.com/offspring2k5/neveralone/internal/repository"
)

// SessionTTL 是房间键的固定过期窗口。每次写入都刷新（滑动过期），
// 活跃房间因此永不过期，闲置房间 24 小时后整体消亡。
const SessionTTL = 24 * time.Hour

// RedisSessionRepository 是 SessionRepository 接口的 Redis 实现。
// 房间快照与分享码索引各占一个键：
//
//	<prefix>room:<roomId>        -> 完整 JSON 快照
//	<prefix>room_code:<CODE>     -> roomId 字符串
//
// 两个键总是在一个 MULTI/EXEC 事务里一起写入，保证不发散。
type RedisSessionRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSessionRepository 创建 RedisSessionRepository 实例。
func NewRedisSessionRepository(client *redis.Client, keyPrefix string) *RedisSessionRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisSessionRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "na:" // 默认前缀 "na:" (neveralone)
	}
	return &RedisSessionRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisSessionRepository) roomKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s", r.keyPrefix, roomID)
}

func (r *RedisSessionRepository) codeKey(code string) string {
	return fmt.Sprintf("%sroom_code:%s", r.keyPrefix, code)
}

// --- SessionRepository Interface Implementation ---

// SaveRoom 序列化快照并把主记录与分享码索引原子写入，TTL 一并刷新。
func (r *RedisSessionRepository) SaveRoom(ctx context.Context, room *domain.Room) error {
	snapshot := room.Snapshot()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal room %s: %w", room.RoomID(), err)
	}

	// TxPipeline 打包成 MULTI/EXEC，两个 SET 要么都生效要么都不生效
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.roomKey(room.RoomID()), data, SessionTTL)
	pipe.Set(ctx, r.codeKey(room.RoomCode()), room.RoomID(), SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to save room %s (code %s): %w", room.RoomID(), room.RoomCode(), err)
	}
	return nil
}

// GetRoom 取出快照并重建 Room；键不存在（或已过期）映射为 ErrRoomNotFound。
func (r *RedisSessionRepository) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	key := r.roomKey(roomID)
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("redis: failed to get room %s from %s: %w", roomID, key, err)
	}

	var snapshot domain.RoomSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("redis: failed to unmarshal room %s from %s: %w", roomID, key, err)
	}
	room, err := domain.RoomFromSnapshot(snapshot)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to rehydrate room %s: %w", roomID, err)
	}
	return room, nil
}

// ResolveCode 把分享码解析为 roomId；索引缺失映射为 ErrCodeNotFound。
func (r *RedisSessionRepository) ResolveCode(ctx context.Context, code string) (string, error) {
	key := r.codeKey(code)
	roomID, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrCodeNotFound
		}
		return "", fmt.Errorf("redis: failed to resolve code %s from %s: %w", code, key, err)
	}
	return roomID, nil
}

// SweepDanglingCodes 扫描分享码索引，删除主记录已不存在的残留键。
// 主记录和索引 TTL 一起刷新，正常情况下不会发散；这里兜底处理
// 手工删键或 Redis 淘汰策略造成的孤儿索引。
func (r *RedisSessionRepository) SweepDanglingCodes(ctx context.Context) (int, error) {
	pattern := r.keyPrefix + "room_code:*"
	removed := 0

	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		codeKey := iter.Val()
		roomID, err := r.client.Get(ctx, codeKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // 扫描期间刚好过期
			}
			return removed, fmt.Errorf("redis: sweep failed reading %s: %w", codeKey, err)
		}

		exists, err := r.client.Exists(ctx, r.roomKey(roomID)).Result()
		if err != nil {
			return removed, fmt.Errorf("redis: sweep failed checking room %s: %w", roomID, err)
		}
		if exists == 0 {
			if err := r.client.Del(ctx, codeKey).Err(); err != nil {
				logrus.WithError(err).WithField("key", codeKey).Warn("Failed to delete dangling room code key")
				continue
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis: sweep scan failed: %w", err)
	}
	return removed, nil
}
