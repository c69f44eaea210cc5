package repository

import (
	"context"

	"github.com/offspring2k5/neveralone/internal/domain"
)

// SessionRepository 定义了房间会话状态的存取操作。
// 实现方把 Room 当作不透明的序列化数据写入一个带逐键过期的 KV 存储；
// 每次写入都把 TTL 刷新到固定的 24 小时窗口（滑动过期：活跃房间永不过期，
// 闲置房间自动回收）。没有删除操作——房间只通过 TTL 过期消亡。
type SessionRepository interface {
	// SaveRoom 持久化房间快照，同时维护 roomCode -> roomId 的二级索引。
	// 两个键必须在一次原子多键写入中落盘，保证索引与主记录不发散。
	SaveRoom(ctx context.Context, room *domain.Room) error

	// GetRoom 按 roomId 取出并重建房间。
	// 记录不存在或已过期时返回 ErrRoomNotFound。
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)

	// ResolveCode 把分享码解析为 roomId。
	// 索引不存在时返回 ErrCodeNotFound。
	ResolveCode(ctx context.Context, code string) (string, error)

	// SweepDanglingCodes 清理主记录已过期、索引还残留的分享码键，
	// 返回清掉的数量。由后台周期任务调用。
	SweepDanglingCodes(ctx context.Context) (int, error)
}
